package narrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-narrate/internal/chunker"
	"github.com/loqalabs/loqa-narrate/internal/encode"
	"github.com/loqalabs/loqa-narrate/internal/eventstore"
	"github.com/loqalabs/loqa-narrate/internal/render"
	"github.com/loqalabs/loqa-narrate/internal/speech"
	"github.com/loqalabs/loqa-narrate/internal/timeline"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type memoryRecorder struct {
	mu     sync.Mutex
	jobs   map[string]eventstore.Job
	events []eventstore.Event
}

func newRecorder() *memoryRecorder {
	return &memoryRecorder{jobs: make(map[string]eventstore.Job)}
}

func (r *memoryRecorder) UpsertJob(_ context.Context, job eventstore.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return nil
}

func (r *memoryRecorder) AppendEvent(_ context.Context, evt eventstore.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *memoryRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// fileEncoder writes a marker file and checks the audio still exists while
// encoding.
type fileEncoder struct {
	err      error
	segments int
	duration time.Duration
}

func (e *fileEncoder) Encode(_ context.Context, tl *timeline.Timeline, outputPath string, _ int) error {
	if e.err != nil {
		return e.err
	}
	for _, seg := range tl.Segments {
		if _, err := os.Stat(seg.Audio.Path); err != nil {
			return fmt.Errorf("audio released too early: %w", err)
		}
	}
	e.segments = len(tl.Segments)
	e.duration = tl.Duration()
	return os.WriteFile(outputPath, []byte("video"), 0o644)
}

type fakeUploader struct{ key string }

func (u *fakeUploader) Upload(_ context.Context, _ string, key string) (string, error) {
	u.key = key
	return "s3://bucket/" + key, nil
}

type failingGateway struct{}

func (failingGateway) Synthesize(context.Context, string) (*speech.Asset, error) {
	return nil, errors.New("backend down")
}

func newNarrator(t *testing.T, gw speech.Gateway, enc encode.Encoder, rec Recorder, up Uploader) (*Narrator, string) {
	t.Helper()
	out := t.TempDir()
	n, err := New(Options{
		Chunking:  chunker.Config{Mode: chunker.ModeSentence, MaxChunkLength: 20},
		Gateway:   gw,
		Renderer:  render.NewRenderer(24, nil),
		Encoder:   enc,
		Style:     render.Style{Width: 160, Height: 120, FontSize: 20, Position: render.PositionCenter},
		OutputDir: out,
		Recorder:  rec,
		Uploader:  up,
		Logger:    newLogger(),
	})
	if err != nil {
		t.Fatalf("new narrator: %v", err)
	}
	return n, out
}

func TestRunProducesVideoAndEvents(t *testing.T) {
	work := t.TempDir()
	rec := newRecorder()
	enc := &fileEncoder{}
	up := &fakeUploader{}
	n, out := newNarrator(t, speech.NewMockGateway(work, 8000, 2.5), enc, rec, up)

	res, err := n.Run(context.Background(), Job{ID: "job-1", Text: "Hello world. This is sentence two. And a third one."})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != filepath.Join(out, "job-1.mp4") {
		t.Fatalf("unexpected output %s", res.Output)
	}
	if res.Chunks != 3 || enc.segments != 3 {
		t.Fatalf("expected 3 chunks, got %d (encoder saw %d)", res.Chunks, enc.segments)
	}
	if res.Duration != 4*time.Second || enc.duration != res.Duration {
		t.Fatalf("unexpected duration %s", res.Duration)
	}
	if res.Location != "s3://bucket/job-1.mp4" || up.key != "job-1.mp4" {
		t.Fatalf("unexpected upload location %q", res.Location)
	}

	want := []string{
		EventJobStarted,
		EventChunkSynthesized, EventChunkSynthesized, EventChunkSynthesized,
		EventJobEncoded, EventJobUploaded, EventJobCompleted,
	}
	got := rec.types()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
	if rec.jobs["job-1"].Status != eventstore.StatusCompleted {
		t.Fatalf("expected completed status, got %q", rec.jobs["job-1"].Status)
	}

	entries, _ := os.ReadDir(work)
	if len(entries) != 0 {
		t.Fatalf("expected temporary audio released, %d files left", len(entries))
	}
}

func TestRunRecordsFailure(t *testing.T) {
	rec := newRecorder()
	n, _ := newNarrator(t, failingGateway{}, &fileEncoder{}, rec, nil)

	_, err := n.Run(context.Background(), Job{ID: "job-2", Text: "This will not speak."})
	if !errors.Is(err, timeline.ErrSynthesis) {
		t.Fatalf("expected synthesis error, got %v", err)
	}
	got := rec.types()
	if len(got) != 2 || got[0] != EventJobStarted || got[1] != EventJobFailed {
		t.Fatalf("unexpected events %v", got)
	}
	job := rec.jobs["job-2"]
	if job.Status != eventstore.StatusFailed || job.Error == "" {
		t.Fatalf("expected failed job with error, got %+v", job)
	}
}

func TestRunEncodeFailureReleasesAudio(t *testing.T) {
	work := t.TempDir()
	enc := &fileEncoder{err: fmt.Errorf("%w: disk full", encode.ErrEncoding)}
	n, _ := newNarrator(t, speech.NewMockGateway(work, 8000, 2.5), enc, newRecorder(), nil)

	_, err := n.Run(context.Background(), Job{Text: "Short text. Another one."})
	if !errors.Is(err, encode.ErrEncoding) {
		t.Fatalf("expected ErrEncoding, got %v", err)
	}
	entries, _ := os.ReadDir(work)
	if len(entries) != 0 {
		t.Fatalf("expected temporary audio released, %d files left", len(entries))
	}
}

func TestRunRejectsEmptyText(t *testing.T) {
	n, _ := newNarrator(t, speech.NewMockGateway(t.TempDir(), 8000, 2.5), &fileEncoder{}, nil, nil)
	if _, err := n.Run(context.Background(), Job{Text: "  \n "}); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestRunJobOverrides(t *testing.T) {
	enc := &fileEncoder{}
	n, _ := newNarrator(t, speech.NewMockGateway(t.TempDir(), 8000, 2.5), enc, nil, nil)
	res, err := n.Run(context.Background(), Job{
		Text:     "a b c d e f g h",
		Chunking: &chunker.Config{Mode: chunker.ModeWord, MaxChunkLength: 5, OverlapWords: 2},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Chunks != 4 {
		t.Fatalf("expected 4 word chunks, got %d", res.Chunks)
	}
	if res.JobID == "" {
		t.Fatalf("expected generated job id")
	}
}

func TestRunInvalidChunking(t *testing.T) {
	n, _ := newNarrator(t, speech.NewMockGateway(t.TempDir(), 8000, 2.5), &fileEncoder{}, nil, nil)
	_, err := n.Run(context.Background(), Job{Text: "text", Chunking: &chunker.Config{Mode: chunker.ModeSentence}})
	if !errors.Is(err, chunker.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
