// Package narrate runs a narration job end to end: split, synthesize and
// render, encode, then optionally upload.
package narrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-narrate/internal/chunker"
	"github.com/loqalabs/loqa-narrate/internal/encode"
	"github.com/loqalabs/loqa-narrate/internal/eventstore"
	"github.com/loqalabs/loqa-narrate/internal/render"
	"github.com/loqalabs/loqa-narrate/internal/speech"
	"github.com/loqalabs/loqa-narrate/internal/timeline"
)

const instrumentationName = "github.com/loqalabs/loqa-narrate/internal/narrate"

// Job event types.
const (
	EventJobStarted       = "job.started"
	EventChunkSynthesized = "chunk.synthesized"
	EventJobEncoded       = "job.encoded"
	EventJobUploaded      = "job.uploaded"
	EventJobFailed        = "job.failed"
	EventJobCompleted     = "job.completed"
)

var ErrEmptyText = errors.New("narration text is empty")

// Job is one narration request.
type Job struct {
	ID     string
	Text   string
	Output string
	// Style and Chunking override the narrator defaults when set.
	Style    *render.Style
	Chunking *chunker.Config
}

// Result describes a finished job.
type Result struct {
	JobID    string        `json:"job_id"`
	Output   string        `json:"output"`
	Location string        `json:"location,omitempty"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration"`
}

// Recorder persists job state and history.
type Recorder interface {
	UpsertJob(ctx context.Context, job eventstore.Job) error
	AppendEvent(ctx context.Context, evt eventstore.Event) error
}

// Uploader publishes a finished video and returns where it landed.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

type Options struct {
	Chunking  chunker.Config
	Gateway   speech.Gateway
	Renderer  timeline.Renderer
	Encoder   encode.Encoder
	Style     render.Style
	FrameRate int
	Workers   int
	OutputDir string
	Recorder  Recorder
	Uploader  Uploader
	Logger    *slog.Logger
}

type Narrator struct {
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics
}

func New(opts Options) (*Narrator, error) {
	if opts.Gateway == nil || opts.Renderer == nil || opts.Encoder == nil {
		return nil, errors.New("narrator requires gateway, renderer and encoder")
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 24
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m, err := newMetrics(otel.Meter(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("init narrate metrics: %w", err)
	}
	return &Narrator{
		opts:    opts,
		logger:  opts.Logger.With(slog.String("component", "narrator")),
		tracer:  otel.Tracer(instrumentationName),
		metrics: m,
	}, nil
}

// Run executes job. Temporary audio is released before Run returns, on
// success and on failure.
func (n *Narrator) Run(ctx context.Context, job Job) (Result, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Output == "" {
		job.Output = filepath.Join(n.opts.OutputDir, job.ID+".mp4")
	}
	ctx, span := n.tracer.Start(ctx, "narrate.job", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.Int("text.length", len(job.Text)),
	))
	defer span.End()

	logger := n.logger.With(slog.String("job_id", job.ID))
	started := time.Now()
	n.setStatus(ctx, job, eventstore.StatusRunning, "")
	n.event(ctx, job.ID, EventJobStarted, map[string]any{"output": job.Output})

	res, stage, err := n.run(ctx, job, logger)
	n.metrics.jobDuration.Record(ctx, time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		n.metrics.jobs.Add(ctx, 1, metricStatus(eventstore.StatusFailed))
		n.event(ctx, job.ID, EventJobFailed, map[string]any{"stage": stage, "error": err.Error()})
		n.setStatus(ctx, job, eventstore.StatusFailed, err.Error())
		logger.Error("narration failed", slog.String("stage", stage), slog.String("error", err.Error()))
		return res, err
	}

	span.SetAttributes(attribute.Int("chunks", res.Chunks), attribute.Float64("duration_s", res.Duration.Seconds()))
	n.metrics.jobs.Add(ctx, 1, metricStatus(eventstore.StatusCompleted))
	n.event(ctx, job.ID, EventJobCompleted, map[string]any{
		"output":      res.Output,
		"location":    res.Location,
		"chunks":      res.Chunks,
		"duration_s":  res.Duration.Seconds(),
		"duration_ms": time.Since(started).Milliseconds(),
	})
	n.setStatus(ctx, job, eventstore.StatusCompleted, "")
	logger.Info("narration completed",
		slog.String("output", res.Output),
		slog.Int("chunks", res.Chunks),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

func (n *Narrator) run(ctx context.Context, job Job, logger *slog.Logger) (Result, string, error) {
	res := Result{JobID: job.ID, Output: job.Output}

	cfg := n.opts.Chunking
	if job.Chunking != nil {
		cfg = *job.Chunking
	}
	chunks, err := chunker.Split(job.Text, cfg)
	if err != nil {
		return res, "chunk", err
	}
	if len(chunks) == 0 {
		return res, "chunk", ErrEmptyText
	}
	res.Chunks = len(chunks)
	n.metrics.chunks.Add(ctx, int64(len(chunks)))
	logger.Info("text chunked", slog.Int("chunks", len(chunks)), slog.String("mode", string(cfg.Mode)))

	style := n.opts.Style
	if job.Style != nil {
		style = *job.Style
	}
	assembler := &timeline.Assembler{
		Workers: n.opts.Workers,
		Logger:  logger,
		OnSegment: func(seg timeline.Segment) {
			n.metrics.synthesized.Add(ctx, seg.Duration().Seconds())
			n.event(ctx, job.ID, EventChunkSynthesized, map[string]any{
				"index":      seg.Chunk.Index,
				"chars":      seg.Chunk.ApproxLength,
				"carried":    seg.Chunk.Carried,
				"backend":    seg.Audio.Backend,
				"duration_s": seg.Duration().Seconds(),
			})
		},
	}
	tl, err := assembler.Assemble(ctx, chunks, n.opts.Gateway, n.opts.Renderer, style)
	if err != nil {
		return res, "assemble", err
	}
	defer func() {
		if err := tl.Release(); err != nil {
			logger.Warn("release audio failed", slog.String("error", err.Error()))
		}
	}()
	res.Duration = tl.Duration()

	if err := n.opts.Encoder.Encode(ctx, tl, job.Output, n.opts.FrameRate); err != nil {
		return res, "encode", err
	}
	n.event(ctx, job.ID, EventJobEncoded, map[string]any{
		"output":     job.Output,
		"duration_s": res.Duration.Seconds(),
		"fps":        n.opts.FrameRate,
	})

	if n.opts.Uploader != nil {
		location, err := n.opts.Uploader.Upload(ctx, job.Output, job.ID+filepath.Ext(job.Output))
		if err != nil {
			return res, "upload", err
		}
		res.Location = location
		n.event(ctx, job.ID, EventJobUploaded, map[string]any{"location": location})
	}
	return res, "", nil
}

func (n *Narrator) setStatus(ctx context.Context, job Job, status, errMsg string) {
	if n.opts.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := n.opts.Recorder.UpsertJob(ctx, eventstore.Job{ID: job.ID, Status: status, Output: job.Output, Error: errMsg}); err != nil {
		n.logger.Warn("failed to record job status", slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}
}

func (n *Narrator) event(ctx context.Context, jobID, typ string, data map[string]any) {
	if n.opts.Recorder == nil {
		return
	}
	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	payload, err := json.Marshal(data)
	if err != nil {
		n.logger.Warn("failed to marshal job event", slog.String("error", err.Error()))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	evt := eventstore.Event{JobID: jobID, TraceID: traceID, Type: typ, Payload: payload}
	if err := n.opts.Recorder.AppendEvent(ctx, evt); err != nil {
		n.logger.Warn("failed to append job event", slog.String("job_id", jobID), slog.String("type", typ), slog.String("error", err.Error()))
	}
}
