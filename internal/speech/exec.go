package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execGateway struct {
	cmd        []string
	voice      string
	sampleRate int
	format     string
	workDir    string
	probe      Probe
	mu         sync.Mutex
}

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
	Output     string `json:"output"`
}

// NewExecGateway runs a local synthesis command (piper, espeak wrappers and
// the like). The command receives a JSON request on stdin and must write the
// audio to the requested output path.
func NewExecGateway(command, voice string, sampleRate int, workDir string) (Gateway, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse speech command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("speech command empty")
	}
	return &execGateway{
		cmd:        args,
		voice:      voice,
		sampleRate: sampleRate,
		format:     "wav",
		workDir:    workDir,
		probe:      ProbeDuration,
	}, nil
}

func (e *execGateway) Name() string { return "exec" }

func (e *execGateway) Fingerprint() string {
	return fmt.Sprintf("%q|%s|%d|%s", e.cmd, e.voice, e.sampleRate, e.format)
}

func (e *execGateway) Synthesize(ctx context.Context, text string) (*Asset, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := createTemp(e.workDir, e.format)
	if err != nil {
		return nil, err
	}
	output := file.Name()
	file.Close()
	asset := &Asset{Path: output, Format: e.format, Backend: e.Name()}

	payload, err := json.Marshal(execRequest{
		Text:       text,
		Voice:      e.voice,
		SampleRate: e.sampleRate,
		Output:     output,
	})
	if err != nil {
		asset.Release()
		return nil, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		asset.Release()
		return nil, fmt.Errorf("speech command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		asset.Release()
		return nil, fmt.Errorf("speech command produced no audio at %s", output)
	}

	duration, err := e.probe(ctx, output)
	if err != nil {
		asset.Release()
		return nil, fmt.Errorf("measure speech audio: %w", err)
	}
	asset.Duration = duration
	return asset, nil
}
