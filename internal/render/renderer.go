package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"golang.org/x/image/font"
)

// Visual is a frame producer bound to a duration. Frames returned by Frame
// must not be modified by the caller.
type Visual interface {
	Duration() time.Duration
	Size() image.Point
	Frame(t time.Duration) *image.RGBA
}

// Renderer draws chunk visuals and is safe for concurrent use. Decoded
// backgrounds are kept for the renderer's lifetime, keyed by path and canvas
// size.
type Renderer struct {
	fps    int
	decode Decoder
	faces  *Faces
	textMu sync.Mutex

	mu    sync.Mutex
	clips map[clipKey]*Clip
}

type clipKey struct {
	path string
	size image.Point
}

func NewRenderer(fps int, decode Decoder) *Renderer {
	if fps <= 0 {
		fps = 24
	}
	if decode == nil {
		decode = FFmpegDecoder("")
	}
	return &Renderer{fps: fps, decode: decode, faces: &Faces{}, clips: make(map[clipKey]*Clip)}
}

// Render produces a visual of exactly d for text.
func (r *Renderer) Render(text string, d time.Duration, style Style) (Visual, error) {
	if err := style.Validate(); err != nil {
		return nil, err
	}
	if d <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDuration, d)
	}
	size := image.Pt(style.Width, style.Height)

	if style.BackgroundVideo == "" {
		frame := canvas(size, style.Background)
		if err := r.drawText(frame, text, style); err != nil {
			return nil, err
		}
		return &solidVisual{frame: frame, duration: d, fade: style.Fade}, nil
	}

	clip, err := r.background(style.BackgroundVideo, size)
	if err != nil {
		return nil, err
	}
	overlay := canvas(size, color.RGBA{A: 0xff})
	if err := r.drawText(overlay, text, style); err != nil {
		return nil, err
	}
	return &overlayVisual{
		clip:       clip,
		overlay:    overlay,
		duration:   d,
		fade:       style.Fade,
		blendEmpty: style.BlendEmptyOverlay,
	}, nil
}

// drawText fits and draws text onto dst. Font faces hold glyph buffers, so
// concurrent jobs sharing the renderer take turns here.
func (r *Renderer) drawText(dst *image.RGBA, text string, style Style) error {
	r.textMu.Lock()
	defer r.textMu.Unlock()
	layout, err := r.faces.Fit(text, style.Width, style.Height, style.FontSize, style.Position)
	if err != nil {
		return err
	}
	DrawText(dst, layout, style.Text)
	return nil
}

func (r *Renderer) background(path string, size image.Point) (*Clip, error) {
	key := clipKey{path: path, size: size}
	r.mu.Lock()
	defer r.mu.Unlock()
	if clip, ok := r.clips[key]; ok {
		return clip, nil
	}
	clip, err := r.decode(path, size, r.fps)
	if err != nil {
		return nil, err
	}
	if clip == nil || len(clip.Frames) == 0 || clip.FPS <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrBackgroundUnusable, path)
	}
	for _, frame := range clip.Frames {
		if frame.Rect.Size() != size {
			return nil, fmt.Errorf("%w: %s decoded at %v, want %v", ErrBackgroundUnusable, path, frame.Rect.Size(), size)
		}
	}
	r.clips[key] = clip
	return clip, nil
}

// DrawText draws each fitted line at its origin.
func DrawText(dst *image.RGBA, layout Layout, c color.RGBA) {
	if layout.face == nil {
		return
	}
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: layout.face}
	for i, line := range layout.Lines {
		d.Dot = layout.Origins[i]
		d.DrawString(line)
	}
}

func canvas(size image.Point, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

type solidVisual struct {
	frame    *image.RGBA
	duration time.Duration
	fade     bool
}

func (v *solidVisual) Duration() time.Duration { return v.duration }
func (v *solidVisual) Size() image.Point       { return v.frame.Rect.Size() }

func (v *solidVisual) Frame(t time.Duration) *image.RGBA {
	if !v.fade {
		return v.frame
	}
	f := FadeFactor(t, v.duration)
	if f >= 1 {
		return v.frame
	}
	out := image.NewRGBA(v.frame.Rect)
	Scale(out, v.frame, f)
	return out
}

type overlayVisual struct {
	clip       *Clip
	overlay    *image.RGBA
	duration   time.Duration
	fade       bool
	blendEmpty bool
}

func (v *overlayVisual) Duration() time.Duration { return v.duration }
func (v *overlayVisual) Size() image.Point       { return v.overlay.Rect.Size() }

func (v *overlayVisual) Frame(t time.Duration) *image.RGBA {
	bg := v.clip.At(SourceTime(t, v.clip.Duration()))
	out := image.NewRGBA(v.overlay.Rect)
	f := 1.0
	if v.fade {
		f = FadeFactor(t, v.duration)
	}
	Blend(out, bg, v.overlay, f, v.blendEmpty)
	if f < 1 {
		Scale(out, out, f)
	}
	return out
}
