// Package encode writes an assembled timeline to a video file with ffmpeg.
package encode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/loqalabs/loqa-narrate/internal/config"
	"github.com/loqalabs/loqa-narrate/internal/timeline"
)

var ErrEncoding = errors.New("encoding failed")

// Encoder consumes a timeline and blocks until the file is written.
type Encoder interface {
	Encode(ctx context.Context, tl *timeline.Timeline, outputPath string, fps int) error
}

type Options struct {
	FFmpegPath   string
	VideoCodec   string
	AudioCodec   string
	AudioBitrate string
	Preset       string
}

func OptionsFromConfig(cfg config.EncodeConfig) Options {
	return Options{
		FFmpegPath:   cfg.FFmpegPath,
		VideoCodec:   cfg.VideoCodec,
		AudioCodec:   cfg.AudioCodec,
		AudioBitrate: cfg.AudioBitrate,
		Preset:       cfg.Preset,
	}
}

// FFmpegEncoder pipes raw rgb24 frames into ffmpeg and joins the segment
// audio with the concat filter.
type FFmpegEncoder struct {
	opts   Options
	logger *slog.Logger
}

func NewFFmpegEncoder(opts Options, logger *slog.Logger) *FFmpegEncoder {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.VideoCodec == "" {
		opts.VideoCodec = "libx264"
	}
	if opts.AudioCodec == "" {
		opts.AudioCodec = "aac"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegEncoder{opts: opts, logger: logger.With(slog.String("component", "encoder"))}
}

func (e *FFmpegEncoder) Encode(ctx context.Context, tl *timeline.Timeline, outputPath string, fps int) error {
	if tl == nil || len(tl.Segments) == 0 {
		return fmt.Errorf("%w: empty timeline", ErrEncoding)
	}
	if fps <= 0 {
		return fmt.Errorf("%w: frame rate must be positive, got %d", ErrEncoding, fps)
	}
	size := tl.Segments[0].Visual.Size()
	for i, seg := range tl.Segments {
		if seg.Visual.Size() != size {
			return fmt.Errorf("%w: segment %d is %v, expected %v", ErrEncoding, i, seg.Visual.Size(), size)
		}
	}
	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create output dir: %v", ErrEncoding, err)
		}
	}

	var stderr bytes.Buffer
	cmd := e.stream(tl, outputPath, size, fps).
		WithErrorOutput(&stderr).
		SetFfmpegPath(e.opts.FFmpegPath).
		Compile()
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffmpeg: %v", ErrEncoding, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cmd.Process.Kill()
		case <-done:
		}
	}()

	started := time.Now()
	frames, writeErr := writeFrames(stdin, tl, fps, size)
	closeErr := stdin.Close()
	waitErr := cmd.Wait()

	if err := errors.Join(writeErr, closeErr, waitErr); err != nil {
		os.Remove(outputPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrEncoding, ctxErr)
		}
		return fmt.Errorf("%w: %v: %s", ErrEncoding, err, tail(stderr.String()))
	}

	e.logger.Info("video encoded",
		slog.String("output", outputPath),
		slog.Int("segments", len(tl.Segments)),
		slog.Int("frames", frames),
		slog.Duration("duration", tl.Duration()),
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (e *FFmpegEncoder) stream(tl *timeline.Timeline, outputPath string, size image.Point, fps int) *ffmpeg.Stream {
	video := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "rgb24",
		"s":         fmt.Sprintf("%dx%d", size.X, size.Y),
		"framerate": strconv.Itoa(fps),
	})
	audios := make([]*ffmpeg.Stream, len(tl.Segments))
	for i, seg := range tl.Segments {
		audios[i] = ffmpeg.Input(seg.Audio.Path).Audio()
	}
	audio := ffmpeg.Concat(audios, ffmpeg.KwArgs{"v": 0, "a": 1})

	kwargs := ffmpeg.KwArgs{
		"c:v":     e.opts.VideoCodec,
		"c:a":     e.opts.AudioCodec,
		"pix_fmt": "yuv420p",
	}
	if e.opts.AudioBitrate != "" {
		kwargs["b:a"] = e.opts.AudioBitrate
	}
	if e.opts.Preset != "" {
		kwargs["preset"] = e.opts.Preset
	}
	return ffmpeg.Output([]*ffmpeg.Stream{video, audio}, outputPath, kwargs).OverWriteOutput()
}

func writeFrames(w io.Writer, tl *timeline.Timeline, fps int, size image.Point) (int, error) {
	durations := make([]time.Duration, len(tl.Segments))
	for i, seg := range tl.Segments {
		durations[i] = seg.Duration()
	}
	counts := FrameCounts(durations, fps)
	offsets := tl.Offsets()
	buf := make([]byte, size.X*size.Y*3)

	frame := 0
	for i, seg := range tl.Segments {
		for range counts[i] {
			t := LocalTime(frame, fps, offsets[i], durations[i])
			toRGB(buf, seg.Visual.Frame(t))
			if _, err := w.Write(buf); err != nil {
				return frame, fmt.Errorf("write frame %d: %w", frame, err)
			}
			frame++
		}
	}
	return frame, nil
}

// FrameCounts gives each segment round(end*fps) - round(start*fps) frames,
// so rounding never accumulates across segments.
func FrameCounts(durations []time.Duration, fps int) []int {
	counts := make([]int, len(durations))
	var start time.Duration
	for i, d := range durations {
		end := start + d
		counts[i] = frameIndex(end, fps) - frameIndex(start, fps)
		start = end
	}
	return counts
}

func frameIndex(t time.Duration, fps int) int {
	return int(math.Round(t.Seconds() * float64(fps)))
}

// LocalTime maps global frame n to a time inside the segment starting at
// offset, clamped to [0, d).
func LocalTime(n, fps int, offset, d time.Duration) time.Duration {
	t := time.Duration(n)*time.Second/time.Duration(fps) - offset
	if t < 0 {
		return 0
	}
	if t >= d {
		return d - time.Nanosecond
	}
	return t
}

func toRGB(dst []byte, img *image.RGBA) {
	for p, s := 0, 0; p+2 < len(dst) && s+3 < len(img.Pix); p, s = p+3, s+4 {
		dst[p] = img.Pix[s]
		dst[p+1] = img.Pix[s+1]
		dst[p+2] = img.Pix[s+2]
	}
}

func tail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return strings.Join(lines, " | ")
}
