// Package render produces the per-chunk visuals: a text frame over a solid
// color or a looped background video, bound to the chunk's audio duration.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-narrate/internal/config"
)

var (
	ErrInvalidSize         = errors.New("render: canvas size must be positive")
	ErrInvalidColor        = errors.New("render: invalid color")
	ErrBackgroundNotFound  = errors.New("render: background video not found")
	ErrBackgroundUnusable  = errors.New("render: background video has no frames")
	ErrInvalidDuration     = errors.New("render: duration must be positive")
	errUnsupportedPosition = errors.New("render: unsupported text position")
)

type Position string

const (
	PositionCenter Position = "center"
	PositionTop    Position = "top"
)

// Style describes how a chunk is drawn.
type Style struct {
	Width           int
	Height          int
	FontSize        int
	Background      color.RGBA
	Text            color.RGBA
	Position        Position
	Fade            bool
	BackgroundVideo string
	// BlendEmptyOverlay keeps the 70/30 blend on pixels the text does not
	// cover. Turning it off leaves those background pixels untouched.
	BlendEmptyOverlay bool
}

// StyleFromConfig converts the render section of the runtime config.
func StyleFromConfig(cfg config.RenderConfig) (Style, error) {
	bg, err := ParseColor(cfg.BackgroundColor)
	if err != nil {
		return Style{}, err
	}
	fg, err := ParseColor(cfg.TextColor)
	if err != nil {
		return Style{}, err
	}
	style := Style{
		Width:             cfg.Width,
		Height:            cfg.Height,
		FontSize:          cfg.FontSize,
		Background:        bg,
		Text:              fg,
		Position:          Position(cfg.Position),
		Fade:              cfg.Fade,
		BackgroundVideo:   cfg.BackgroundVideo,
		BlendEmptyOverlay: cfg.BlendEmptyOverlay,
	}
	return style, style.Validate()
}

// Validate reports size and position problems.
func (s Style) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, s.Width, s.Height)
	}
	switch s.Position {
	case PositionCenter, PositionTop, "":
	default:
		return fmt.Errorf("%w: %q", errUnsupportedPosition, s.Position)
	}
	return nil
}

var namedColors = map[string]color.RGBA{
	"black":   {0, 0, 0, 255},
	"white":   {255, 255, 255, 255},
	"red":     {255, 0, 0, 255},
	"green":   {0, 128, 0, 255},
	"blue":    {0, 0, 255, 255},
	"yellow":  {255, 255, 0, 255},
	"cyan":    {0, 255, 255, 255},
	"magenta": {255, 0, 255, 255},
	"gray":    {128, 128, 128, 255},
	"grey":    {128, 128, 128, 255},
	"orange":  {255, 165, 0, 255},
}

// ParseColor accepts a color name or #rrggbb.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok || len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
