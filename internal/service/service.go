// Package service accepts narration jobs from the bus and the HTTP API and
// runs them with bounded concurrency.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-narrate/internal/bus"
	"github.com/loqalabs/loqa-narrate/internal/chunker"
	"github.com/loqalabs/loqa-narrate/internal/config"
	"github.com/loqalabs/loqa-narrate/internal/eventstore"
	"github.com/loqalabs/loqa-narrate/internal/narrate"
	"github.com/loqalabs/loqa-narrate/internal/protocol"
	"github.com/loqalabs/loqa-narrate/internal/render"
)

const queueGroup = "narrate-workers"

var (
	ErrEmptyText     = errors.New("narration text is empty")
	ErrClosed        = errors.New("narration service closed")
	ErrInvalidOutput = errors.New("output must name a file")
)

// Runner executes one narration job.
type Runner interface {
	Run(ctx context.Context, job narrate.Job) (narrate.Result, error)
}

type Service struct {
	cfg      config.ServiceConfig
	chunking chunker.Config
	style    render.Style
	bus      *bus.Client
	runner   Runner
	recorder narrate.Recorder
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sema   chan struct{}
	sub    *nats.Subscription
	closed atomic.Bool
	active atomic.Int64
}

// Options carries the defaults that request overrides are applied to.
type Options struct {
	Chunking chunker.Config
	Style    render.Style
	Bus      *bus.Client
	Recorder narrate.Recorder
	Logger   *slog.Logger
}

func New(ctx context.Context, cfg config.ServiceConfig, runner Runner, opts Options) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cctx, cancel := context.WithCancel(ctx)
	return &Service{
		cfg:      cfg,
		chunking: opts.Chunking,
		style:    opts.Style,
		bus:      opts.Bus,
		runner:   runner,
		recorder: opts.Recorder,
		log:      logger.With(slog.String("component", "narrate.service")),
		ctx:      cctx,
		cancel:   cancel,
		sema:     make(chan struct{}, cfg.Concurrency),
	}
}

// Start subscribes to narration requests when a bus is configured.
func (s *Service) Start() error {
	if s.bus == nil {
		return nil
	}
	sub, err := s.bus.Conn().QueueSubscribe(protocol.SubjectNarrationRequest, queueGroup, s.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", protocol.SubjectNarrationRequest, err)
	}
	s.sub = sub
	s.log.Info("narration service subscribed", slog.String("subject", protocol.SubjectNarrationRequest))
	return nil
}

// Close stops intake, cancels running jobs and waits for them to finish.
func (s *Service) Close() {
	s.closed.Store(true)
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s != nil && !s.closed.Load() && (s.bus == nil || s.sub != nil)
}

// Active reports the number of jobs queued or running.
func (s *Service) Active() int64 { return s.active.Load() }

// Submit validates req, records it as queued and runs it in the background.
// It returns the job id.
func (s *Service) Submit(req protocol.NarrationRequest) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	if strings.TrimSpace(req.Text) == "" {
		return "", ErrEmptyText
	}
	job, err := s.jobFor(req)
	if err != nil {
		return "", err
	}
	s.recordQueued(job)
	s.publish(protocol.NarrationStatus{JobID: job.ID, Status: eventstore.StatusQueued, Output: job.Output})

	s.active.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)
		select {
		case s.sema <- struct{}{}:
		case <-s.ctx.Done():
			return
		}
		defer func() { <-s.sema }()
		s.run(job)
	}()
	return job.ID, nil
}

func (s *Service) jobFor(req protocol.NarrationRequest) (narrate.Job, error) {
	id := req.JobID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return narrate.Job{}, fmt.Errorf("invalid job id %q: %w", id, err)
	}
	job := narrate.Job{ID: id, Text: req.Text}
	if req.Output != "" {
		// requests only pick a file name inside the output directory
		name := filepath.Base(req.Output)
		if name == "." || name == ".." || name == string(filepath.Separator) {
			return narrate.Job{}, fmt.Errorf("%w: %q", ErrInvalidOutput, req.Output)
		}
		job.Output = filepath.Join(s.cfg.OutputDir, name)
	}

	if req.ChunkMode != "" || req.MaxChunkLength > 0 || req.OverlapWords > 0 {
		cfg := s.chunking
		if req.ChunkMode != "" {
			cfg.Mode = chunker.Mode(req.ChunkMode)
		}
		if req.MaxChunkLength > 0 {
			cfg.MaxChunkLength = req.MaxChunkLength
		}
		if req.OverlapWords > 0 {
			cfg.OverlapWords = req.OverlapWords
		}
		job.Chunking = &cfg
	}
	if req.Fade != nil {
		style := s.style
		style.Fade = *req.Fade
		job.Style = &style
	}
	return job, nil
}

func (s *Service) run(job narrate.Job) {
	timeout := time.Duration(s.cfg.JobTimeout) * time.Second
	ctx, cancel := s.ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, timeout)
	}
	defer cancel()

	s.publish(protocol.NarrationStatus{JobID: job.ID, Status: eventstore.StatusRunning, Output: job.Output})
	res, err := s.runner.Run(ctx, job)
	if err != nil {
		s.log.Warn("narration job failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		s.publish(protocol.NarrationStatus{JobID: job.ID, Status: eventstore.StatusFailed, Output: job.Output, Error: err.Error()})
		return
	}
	s.publish(protocol.NarrationStatus{
		JobID:     job.ID,
		Status:    eventstore.StatusCompleted,
		Output:    res.Output,
		Location:  res.Location,
		Chunks:    res.Chunks,
		DurationS: res.Duration.Seconds(),
	})
}

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.NarrationRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.log.Warn("failed to decode narration request", slog.String("error", err.Error()))
		s.reply(msg, protocol.NarrationAck{Error: "invalid request: " + err.Error()})
		return
	}
	id, err := s.Submit(req)
	if err != nil {
		s.log.Warn("narration request rejected", slog.String("error", err.Error()))
		s.reply(msg, protocol.NarrationAck{JobID: req.JobID, Error: err.Error()})
		return
	}
	s.reply(msg, protocol.NarrationAck{JobID: id, Accepted: true})
}

func (s *Service) reply(msg *nats.Msg, ack protocol.NarrationAck) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	if err := msg.Respond(data); err != nil {
		s.log.Warn("failed to reply to narration request", slog.String("error", err.Error()))
	}
}

func (s *Service) publish(status protocol.NarrationStatus) {
	if s.bus == nil {
		return
	}
	status.Timestamp = time.Now().UTC()
	if err := s.bus.PublishJSON(protocol.SubjectNarrationStatus, status); err != nil {
		s.log.Warn("failed to publish narration status", slog.String("job_id", status.JobID), slog.String("error", err.Error()))
	}
}

func (s *Service) recordQueued(job narrate.Job) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.recorder.UpsertJob(ctx, eventstore.Job{ID: job.ID, Status: eventstore.StatusQueued, Output: job.Output}); err != nil {
		s.log.Warn("failed to record queued job", slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}
}
