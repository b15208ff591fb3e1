package speech

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const minMockDuration = 500 * time.Millisecond

type mockGateway struct {
	workDir        string
	sampleRate     int
	wordsPerSecond float64
}

// NewMockGateway returns a backend that writes silent WAV files whose length
// follows a fixed speaking rate. It needs no network or binaries.
func NewMockGateway(workDir string, sampleRate int, wordsPerSecond float64) Gateway {
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	if wordsPerSecond <= 0 {
		wordsPerSecond = 2.5
	}
	return &mockGateway{workDir: workDir, sampleRate: sampleRate, wordsPerSecond: wordsPerSecond}
}

func (m *mockGateway) Name() string { return "mock" }

func (m *mockGateway) Fingerprint() string {
	return fmt.Sprintf("%d|%g", m.sampleRate, m.wordsPerSecond)
}

func (m *mockGateway) Synthesize(ctx context.Context, text string) (*Asset, error) {
	words := len(strings.Fields(text))
	if words == 0 {
		return nil, ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	duration := time.Duration(float64(words) / m.wordsPerSecond * float64(time.Second))
	if duration < minMockDuration {
		duration = minMockDuration
	}

	file, err := createTemp(m.workDir, "wav")
	if err != nil {
		return nil, err
	}
	samples := int(math.Round(duration.Seconds() * float64(m.sampleRate)))
	if err := writeSilence(file, m.sampleRate, samples); err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, err
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return nil, fmt.Errorf("close wav: %w", err)
	}

	return &Asset{
		Path:     file.Name(),
		Format:   "wav",
		Duration: time.Duration(float64(samples) / float64(m.sampleRate) * float64(time.Second)),
		Backend:  m.Name(),
	}, nil
}

func writeSilence(file *os.File, sampleRate, samples int) error {
	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, samples),
		SourceBitDepth: 16,
	}
	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// createTemp opens a new file in dir (or the OS temp dir) with the given
// extension.
func createTemp(dir, ext string) (*os.File, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
	}
	file, err := os.CreateTemp(dir, "narrate_speech_*."+ext)
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	return file, nil
}
