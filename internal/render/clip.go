package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Clip is a decoded background video: frames sampled at FPS and scaled to a
// fixed size.
type Clip struct {
	FPS    int
	Size   image.Point
	Frames []*image.RGBA
}

// Duration is the clip's native length.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.FPS <= 0 {
		return 0
	}
	return time.Duration(len(c.Frames)) * time.Second / time.Duration(c.FPS)
}

// At returns the frame nearest to t, where t is already mapped into the clip.
func (c *Clip) At(t time.Duration) *image.RGBA {
	idx := int((t*time.Duration(c.FPS) + time.Second/2) / time.Second)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(c.Frames) {
		idx = len(c.Frames) - 1
	}
	return c.Frames[idx]
}

// SourceTime maps segment time t onto a background of length source. A
// shorter background restarts from zero; a longer one is only read in
// [0, t], which trims it to the segment.
func SourceTime(t, source time.Duration) time.Duration {
	if source <= 0 || t < 0 {
		return 0
	}
	return t % source
}

// Decoder loads a background video scaled to size and sampled at fps.
type Decoder func(path string, size image.Point, fps int) (*Clip, error)

// FFmpegDecoder decodes with the ffmpeg binary at path (or "ffmpeg").
func FFmpegDecoder(path string) Decoder {
	if path == "" {
		path = "ffmpeg"
	}
	return func(video string, size image.Point, fps int) (*Clip, error) {
		if _, err := os.Stat(video); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrBackgroundNotFound, video)
			}
			return nil, fmt.Errorf("stat background: %w", err)
		}
		var out, stderr bytes.Buffer
		err := ffmpeg.Input(video).
			Filter("fps", ffmpeg.Args{strconv.Itoa(fps)}).
			Filter("scale", ffmpeg.Args{fmt.Sprintf("%d:%d", size.X, size.Y)}).
			Output("pipe:", ffmpeg.KwArgs{"format": "rawvideo", "pix_fmt": "rgb24"}).
			WithOutput(&out).
			WithErrorOutput(&stderr).
			SetFfmpegPath(path).
			Run()
		if err != nil {
			return nil, fmt.Errorf("decode background %s: %w: %s", video, err, lastLine(stderr.String()))
		}
		return clipFromRGB(out.Bytes(), size, fps)
	}
}

func clipFromRGB(data []byte, size image.Point, fps int) (*Clip, error) {
	frameSize := size.X * size.Y * 3
	if frameSize <= 0 || len(data) < frameSize {
		return nil, ErrBackgroundUnusable
	}
	n := len(data) / frameSize
	clip := &Clip{FPS: fps, Size: size, Frames: make([]*image.RGBA, n)}
	for i := range n {
		img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
		src := data[i*frameSize : (i+1)*frameSize]
		for p, s := 0, 0; s < len(src); p, s = p+4, s+3 {
			img.Pix[p] = src[s]
			img.Pix[p+1] = src[s+1]
			img.Pix[p+2] = src[s+2]
			img.Pix[p+3] = 0xff
		}
		clip.Frames[i] = img
	}
	return clip, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
