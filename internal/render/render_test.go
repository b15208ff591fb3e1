package render

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/image/font"
)

func solidClip(size image.Point, fps, frames int, shade uint8) *Clip {
	clip := &Clip{FPS: fps, Size: size}
	for i := 0; i < frames; i++ {
		clip.Frames = append(clip.Frames, canvas(size, color.RGBA{R: shade, G: shade, B: uint8(i), A: 0xff}))
	}
	return clip
}

func testStyle() Style {
	return Style{
		Width:             320,
		Height:            240,
		FontSize:          30,
		Background:        color.RGBA{A: 0xff},
		Text:              color.RGBA{R: 255, G: 255, B: 255, A: 255},
		Position:          PositionCenter,
		BlendEmptyOverlay: true,
	}
}

func TestParseColor(t *testing.T) {
	cases := map[string]color.RGBA{
		"white":   {255, 255, 255, 255},
		" Black ": {0, 0, 0, 255},
		"#ff8000": {255, 128, 0, 255},
	}
	for in, want := range cases {
		got, err := ParseColor(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q: expected %v, got %v", in, want, got)
		}
	}
	for _, bad := range []string{"", "#12345", "#zzzzzz", "chartreuse-ish"} {
		if _, err := ParseColor(bad); !errors.Is(err, ErrInvalidColor) {
			t.Fatalf("%q: expected ErrInvalidColor, got %v", bad, err)
		}
	}
}

func TestStyleValidate(t *testing.T) {
	s := testStyle()
	s.Width = 0
	if err := s.Validate(); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
	s = testStyle()
	s.Position = "diagonal"
	if err := s.Validate(); err == nil {
		t.Fatalf("expected position error")
	}
}

func TestFitShrinksUntilTextFits(t *testing.T) {
	faces := &Faces{}
	text := "This is a rather long narration line that will certainly need to wrap across several lines on a small canvas."
	layout, err := faces.Fit(text, 200, 120, 40, PositionCenter)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if layout.FontSize >= 40 {
		t.Fatalf("expected font to shrink, got %d", layout.FontSize)
	}
	if layout.FontSize%2 != 0 && layout.FontSize != minFontSize {
		t.Fatalf("font should shrink in steps of 2, got %d", layout.FontSize)
	}
	if len(layout.Lines)*layout.LineHeight > 120-textMargin && layout.FontSize != minFontSize {
		t.Fatalf("block of %d lines does not fit", len(layout.Lines))
	}
	face, _ := faces.Face(layout.FontSize)
	for _, line := range layout.Lines {
		if w := font.MeasureString(face, line).Ceil(); w > 200-textMargin && len(strings.Fields(line)) > 1 {
			t.Fatalf("line %q is %dpx wide", line, w)
		}
	}
}

func TestFitStopsAtMinimumSize(t *testing.T) {
	faces := &Faces{}
	long := ""
	for i := 0; i < 200; i++ {
		long += "word "
	}
	layout, err := faces.Fit(long, 100, 60, 30, PositionCenter)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if layout.FontSize != minFontSize {
		t.Fatalf("expected floor of %d, got %d", minFontSize, layout.FontSize)
	}
}

func TestFitPosition(t *testing.T) {
	faces := &Faces{}
	top, err := faces.Fit("Hello", 320, 240, 30, PositionTop)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	center, err := faces.Fit("Hello", 320, 240, 30, PositionCenter)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if top.Origins[0].Y >= center.Origins[0].Y {
		t.Fatalf("top layout should sit above centered layout")
	}
	if top.Origins[0].X != center.Origins[0].X {
		t.Fatalf("lines are centered horizontally in both positions")
	}
	if _, err := faces.Fit("Hello", 0, 240, 30, PositionTop); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
}

func TestFadeFactor(t *testing.T) {
	d := 4 * time.Second
	cases := []struct {
		t    time.Duration
		want float64
	}{
		{0, 0},
		{250 * time.Millisecond, 0.5},
		{500 * time.Millisecond, 1},
		{2 * time.Second, 1},
		{3750 * time.Millisecond, 0.5},
	}
	for _, c := range cases {
		if got := FadeFactor(c.t, d); got != c.want {
			t.Fatalf("t=%s: expected %v, got %v", c.t, c.want, got)
		}
	}
	// short segments use a quarter of their length
	if got := FadeFactor(500*time.Millisecond, time.Second); got != 1 {
		t.Fatalf("expected full intensity at the end of a 250ms ramp, got %v", got)
	}
	if got := FadeFactor(125*time.Millisecond, time.Second); got != 0.5 {
		t.Fatalf("expected half intensity, got %v", got)
	}
}

func TestBlendWeights(t *testing.T) {
	size := image.Pt(2, 1)
	bg := canvas(size, color.RGBA{R: 100, G: 100, B: 100, A: 255})
	overlay := canvas(size, color.RGBA{A: 255})
	overlay.SetRGBA(1, 0, color.RGBA{R: 100, G: 100, B: 100, A: 255})

	dst := image.NewRGBA(bg.Rect)
	Blend(dst, bg, overlay, 1, true)
	if got := dst.RGBAAt(0, 0).R; got != 70 {
		t.Fatalf("empty overlay pixel should still blend to 70, got %d", got)
	}
	if got := dst.RGBAAt(1, 0).R; got != 100 {
		t.Fatalf("expected 0.7*100+0.3*100, got %d", got)
	}

	Blend(dst, bg, overlay, 1, false)
	if got := dst.RGBAAt(0, 0).R; got != 100 {
		t.Fatalf("empty overlay pixel should keep background, got %d", got)
	}

	Blend(dst, bg, overlay, 0.5, true)
	if got := dst.RGBAAt(1, 0).R; got != 85 {
		t.Fatalf("expected overlay weight scaled by fade, got %d", got)
	}
}

func TestSourceTimeLoopsAndTrims(t *testing.T) {
	src := 3 * time.Second
	if got := SourceTime(3*time.Second, src); got != 0 {
		t.Fatalf("loop seam should restart at 0, got %s", got)
	}
	if got := SourceTime(6500*time.Millisecond, src); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms, got %s", got)
	}
	if got := SourceTime(2*time.Second, 10*time.Second); got != 2*time.Second {
		t.Fatalf("longer source should be read directly, got %s", got)
	}
}

func TestBackgroundLoopCoversDuration(t *testing.T) {
	const fps = 24
	style := testStyle()
	size := image.Pt(style.Width, style.Height)
	clip := solidClip(size, fps, 3*fps, 120)
	r := NewRenderer(fps, func(string, image.Point, int) (*Clip, error) { return clip, nil })
	style.BackgroundVideo = "loop.mp4"

	v, err := r.Render("Looping background", 7*time.Second, style)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if v.Duration() != 7*time.Second {
		t.Fatalf("expected 7s visual, got %s", v.Duration())
	}
	frames := 7 * fps
	for i := 0; i < frames; i++ {
		ts := time.Duration(i) * time.Second / fps
		frame := v.Frame(ts)
		// the blue channel of each source frame encodes its index; sample a
		// corner the text never reaches
		want := uint8(int(0.7*float64(i%(3*fps)) + 0.5))
		if got := frame.RGBAAt(0, 0).B; got != want {
			t.Fatalf("frame %d: expected source frame %d, got blue=%d want %d", i, i%(3*fps), got, want)
		}
	}
}

func TestBackgroundTrimmedToDuration(t *testing.T) {
	style := testStyle()
	size := image.Pt(style.Width, style.Height)
	clip := solidClip(size, 10, 100, 50)
	r := NewRenderer(10, func(string, image.Point, int) (*Clip, error) { return clip, nil })
	style.BackgroundVideo = "long.mp4"
	v, err := r.Render("Short", 2*time.Second, style)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	last := v.Frame(2*time.Second - 100*time.Millisecond)
	if got := last.RGBAAt(0, 0).B; got != uint8(13) {
		// source frame 19 has blue 19, scaled by 0.7
		t.Fatalf("expected source frame 19 at the end, got blue=%d", got)
	}
}

func TestBackgroundMemoized(t *testing.T) {
	style := testStyle()
	size := image.Pt(style.Width, style.Height)
	var calls atomic.Int32
	r := NewRenderer(24, func(string, image.Point, int) (*Clip, error) {
		calls.Add(1)
		return solidClip(size, 24, 24, 10), nil
	})
	style.BackgroundVideo = "bg.mp4"
	for i := 0; i < 3; i++ {
		if _, err := r.Render("again", time.Second, style); err != nil {
			t.Fatalf("render: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one decode, got %d", calls.Load())
	}
}

func TestMissingBackground(t *testing.T) {
	style := testStyle()
	style.BackgroundVideo = filepath.Join(t.TempDir(), "missing.mp4")
	r := NewRenderer(24, FFmpegDecoder(""))
	if _, err := r.Render("text", time.Second, style); !errors.Is(err, ErrBackgroundNotFound) {
		t.Fatalf("expected ErrBackgroundNotFound, got %v", err)
	}
}

func TestRenderSolidDrawsText(t *testing.T) {
	r := NewRenderer(24, nil)
	style := testStyle()
	v, err := r.Render("Hello world.", 2*time.Second, style)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if v.Size() != image.Pt(320, 240) {
		t.Fatalf("unexpected size %v", v.Size())
	}
	frame := v.Frame(time.Second)
	lit := 0
	for i := 0; i < len(frame.Pix); i += 4 {
		if frame.Pix[i] > 0 {
			lit++
		}
	}
	if lit == 0 {
		t.Fatalf("expected text pixels on the frame")
	}
	if frame.RGBAAt(0, 0) != style.Background {
		t.Fatalf("corner should keep background color")
	}
}

func TestRenderFadeStartsDark(t *testing.T) {
	r := NewRenderer(24, nil)
	style := testStyle()
	style.Background = color.RGBA{R: 200, G: 200, B: 200, A: 255}
	style.Fade = true
	v, err := r.Render("Fade", 2*time.Second, style)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := v.Frame(0).RGBAAt(0, 0).R; got != 0 {
		t.Fatalf("first frame should be fully faded, got %d", got)
	}
	if got := v.Frame(time.Second).RGBAAt(0, 0).R; got != 200 {
		t.Fatalf("middle frame should be full intensity, got %d", got)
	}
}

func TestRenderRejectsBadInput(t *testing.T) {
	r := NewRenderer(24, nil)
	if _, err := r.Render("x", 0, testStyle()); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	style := testStyle()
	style.Height = -1
	if _, err := r.Render("x", time.Second, style); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
}

func TestClipFromRGB(t *testing.T) {
	size := image.Pt(2, 2)
	data := make([]byte, 2*2*3*2+5)
	data[0] = 9
	clip, err := clipFromRGB(data, size, 24)
	if err != nil {
		t.Fatalf("clip: %v", err)
	}
	if len(clip.Frames) != 2 {
		t.Fatalf("expected 2 whole frames, got %d", len(clip.Frames))
	}
	if clip.Frames[0].RGBAAt(0, 0).R != 9 {
		t.Fatalf("pixel data not copied")
	}
	if _, err := clipFromRGB(data[:5], size, 24); !errors.Is(err, ErrBackgroundUnusable) {
		t.Fatalf("expected ErrBackgroundUnusable, got %v", err)
	}
}

func TestRenderConcurrentJobsShareRenderer(t *testing.T) {
	style := testStyle()
	r := NewRenderer(24, nil)
	want, err := r.Render("Shared faces across jobs.", time.Second, style)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	wantPix := want.Frame(0).Pix

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				v, err := r.Render("Shared faces across jobs.", time.Second, style)
				if err != nil {
					errs <- err
					return
				}
				if string(v.Frame(0).Pix) != string(wantPix) {
					errs <- errors.New("concurrent render produced a different frame")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent render: %v", err)
	}
}
