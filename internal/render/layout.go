package render

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	textMargin  = 40
	topPadding  = 20
	minFontSize = 10
	fontStep    = 2
)

// Layout is a fitted block of text ready to draw.
type Layout struct {
	Lines      []string
	FontSize   int
	LineHeight int
	// Origins holds the baseline origin of each line.
	Origins []fixed.Point26_6
	face    font.Face
}

// Faces loads Go Regular at the requested sizes and keeps them for reuse.
// The returned faces are not safe for concurrent use.
type Faces struct {
	once  sync.Once
	font  *opentype.Font
	err   error
	mu    sync.Mutex
	faces map[int]font.Face
}

func (f *Faces) Face(size int) (font.Face, error) {
	f.once.Do(func() {
		f.font, f.err = opentype.Parse(goregular.TTF)
		f.faces = make(map[int]font.Face)
	})
	if f.err != nil {
		return nil, fmt.Errorf("parse font: %w", f.err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if face, ok := f.faces[size]; ok {
		return face, nil
	}
	face, err := opentype.NewFace(f.font, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("font face %d: %w", size, err)
	}
	f.faces[size] = face
	return face, nil
}

// Fit wraps text to width-40 and shrinks the font by 2 until the block fits
// height-40 or the font reaches 10.
func (f *Faces) Fit(text string, width, height, fontSize int, pos Position) (Layout, error) {
	if width <= 0 || height <= 0 {
		return Layout{}, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	size := max(fontSize, minFontSize)
	maxWidth := width - textMargin
	maxHeight := height - textMargin

	var (
		face       font.Face
		lines      []string
		lineHeight int
	)
	for {
		var err error
		face, err = f.Face(size)
		if err != nil {
			return Layout{}, err
		}
		lines = wrap(face, text, maxWidth)
		lineHeight = face.Metrics().Height.Ceil()
		if len(lines)*lineHeight <= maxHeight || size <= minFontSize {
			break
		}
		size = max(size-fontStep, minFontSize)
	}

	blockHeight := len(lines) * lineHeight
	top := topPadding
	if pos != PositionTop {
		top = (height - blockHeight) / 2
	}
	ascent := face.Metrics().Ascent.Ceil()
	origins := make([]fixed.Point26_6, len(lines))
	for i, line := range lines {
		lineWidth := font.MeasureString(face, line).Ceil()
		x := (width - lineWidth) / 2
		y := top + i*lineHeight + ascent
		origins[i] = fixed.P(x, y)
	}
	return Layout{Lines: lines, FontSize: size, LineHeight: lineHeight, Origins: origins, face: face}, nil
}

// wrap breaks text greedily on spaces. A word wider than maxWidth gets a
// line of its own.
func wrap(face font.Face, text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var (
		lines   []string
		current string
	)
	for _, word := range words {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if current != "" && font.MeasureString(face, candidate).Ceil() > maxWidth {
			lines = append(lines, current)
			current = word
			continue
		}
		current = candidate
	}
	return append(lines, current)
}
