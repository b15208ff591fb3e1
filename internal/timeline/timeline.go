// Package timeline pairs each chunk's synthesized audio with a visual of the
// same duration and lays the pairs end to end.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/loqa-narrate/internal/chunker"
	"github.com/loqalabs/loqa-narrate/internal/render"
	"github.com/loqalabs/loqa-narrate/internal/speech"
)

var (
	ErrSynthesis = errors.New("speech synthesis failed")
	ErrRender    = errors.New("frame render failed")
)

// SynthesisError reports which chunk the speech gateway failed on.
type SynthesisError struct {
	Index int
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("chunk %d: %v: %v", e.Index, ErrSynthesis, e.Err)
}

func (e *SynthesisError) Unwrap() []error { return []error{ErrSynthesis, e.Err} }

// RenderError reports which chunk the renderer rejected.
type RenderError struct {
	Index int
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("chunk %d: %v: %v", e.Index, ErrRender, e.Err)
}

func (e *RenderError) Unwrap() []error { return []error{ErrRender, e.Err} }

// Renderer is the frame rendering capability the assembler consumes.
type Renderer interface {
	Render(text string, d time.Duration, style render.Style) (render.Visual, error)
}

// Segment is one chunk's audio and its matching visual.
type Segment struct {
	Chunk  chunker.Chunk
	Audio  *speech.Asset
	Visual render.Visual
}

func (s Segment) Duration() time.Duration { return s.Audio.Duration }

// Timeline is the ordered sequence of segments. The caller owns it and must
// call Release once the encoder is done with it.
type Timeline struct {
	Segments []Segment
}

// Duration is the sum of segment durations.
func (t *Timeline) Duration() time.Duration {
	var total time.Duration
	for _, s := range t.Segments {
		total += s.Duration()
	}
	return total
}

// Offsets returns the start time of every segment.
func (t *Timeline) Offsets() []time.Duration {
	out := make([]time.Duration, len(t.Segments))
	var at time.Duration
	for i, s := range t.Segments {
		out[i] = at
		at += s.Duration()
	}
	return out
}

// Release deletes every segment's temporary audio.
func (t *Timeline) Release() error {
	if t == nil {
		return nil
	}
	var errs []error
	for _, s := range t.Segments {
		if err := s.Audio.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Assembler builds timelines. Workers > 1 synthesizes that many chunks at
// once; rendering and output order stay sequential.
type Assembler struct {
	Workers int
	Logger  *slog.Logger
	// OnSegment, when set, is called after each segment is complete.
	OnSegment func(Segment)
}

// Assemble synthesizes and renders every chunk in order. On any failure all
// audio acquired so far is released before the error is returned.
func (a *Assembler) Assemble(ctx context.Context, chunks []chunker.Chunk, gateway speech.Gateway, renderer Renderer, style render.Style) (*Timeline, error) {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "timeline"))

	tl := &Timeline{Segments: make([]Segment, 0, len(chunks))}
	fail := func(err error, pending ...*speech.Asset) (*Timeline, error) {
		releaseAll(logger, pending)
		if relErr := tl.Release(); relErr != nil {
			logger.Warn("release audio failed", slog.String("error", relErr.Error()))
		}
		return nil, err
	}

	var prepared []*speech.Asset
	if a.Workers > 1 {
		assets, err := synthesizeParallel(ctx, chunks, gateway, a.Workers)
		if err != nil {
			return fail(err, assets...)
		}
		prepared = assets
	}

	for i, c := range chunks {
		var asset *speech.Asset
		if prepared != nil {
			asset = prepared[i]
		} else {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
			var err error
			if asset, err = synthesizeOne(ctx, gateway, c); err != nil {
				return fail(err)
			}
		}

		visual, err := renderer.Render(c.Text, asset.Duration, style)
		if err != nil {
			return fail(&RenderError{Index: c.Index, Err: err}, pendingFrom(prepared, i, asset)...)
		}
		seg := Segment{Chunk: c, Audio: asset, Visual: visual}
		tl.Segments = append(tl.Segments, seg)
		logger.Debug("segment assembled",
			slog.Int("chunk", c.Index),
			slog.Duration("duration", seg.Duration()),
		)
		if a.OnSegment != nil {
			a.OnSegment(seg)
		}
	}
	return tl, nil
}

// pendingFrom lists the assets not yet owned by the timeline when chunk i
// fails to render.
func pendingFrom(prepared []*speech.Asset, i int, current *speech.Asset) []*speech.Asset {
	if prepared != nil {
		return prepared[i:]
	}
	return []*speech.Asset{current}
}

func synthesizeOne(ctx context.Context, gateway speech.Gateway, c chunker.Chunk) (*speech.Asset, error) {
	asset, err := gateway.Synthesize(ctx, c.Text)
	if err != nil {
		return nil, &SynthesisError{Index: c.Index, Err: err}
	}
	if asset.Duration <= 0 {
		asset.Release()
		return nil, &SynthesisError{Index: c.Index, Err: speech.ErrNoDuration}
	}
	return asset, nil
}

func synthesizeParallel(ctx context.Context, chunks []chunker.Chunk, gateway speech.Gateway, workers int) ([]*speech.Asset, error) {
	assets := make([]*speech.Asset, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			asset, err := synthesizeOne(gctx, gateway, c)
			if err != nil {
				return err
			}
			assets[i] = asset
			return nil
		})
	}
	return assets, g.Wait()
}

func releaseAll(logger *slog.Logger, assets []*speech.Asset) {
	for _, asset := range assets {
		if err := asset.Release(); err != nil {
			logger.Warn("release audio failed", slog.String("path", asset.Path), slog.String("error", err.Error()))
		}
	}
}
