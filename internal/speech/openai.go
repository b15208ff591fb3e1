package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/loqalabs/loqa-narrate/internal/config"
)

type openAIGateway struct {
	cfg     config.OpenAIConfig
	workDir string
	client  *http.Client
	probe   Probe
}

type openAISpeechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// NewOpenAIGateway synthesizes through the OpenAI audio/speech endpoint with
// bearer-token auth.
func NewOpenAIGateway(cfg config.OpenAIConfig, workDir string, client *http.Client) Gateway {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &openAIGateway{cfg: cfg, workDir: workDir, client: client, probe: ProbeDuration}
}

func (g *openAIGateway) Fingerprint() string {
	return g.cfg.Endpoint + "|" + g.cfg.Model + "|" + g.cfg.Voice
}

func (g *openAIGateway) Name() string { return "openai" }

func (g *openAIGateway) Synthesize(ctx context.Context, text string) (*Asset, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	body, err := json.Marshal(openAISpeechRequest{
		Model:          g.cfg.Model,
		Input:          text,
		Voice:          g.cfg.Voice,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(g.cfg.Endpoint, "/") + "/v1/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(g.Name(), resp); err != nil {
		return nil, err
	}

	format := formatFromContentType(resp.Header.Get("Content-Type"), "mp3")
	return saveAudio(ctx, resp.Body, g.workDir, format, g.Name(), g.probe)
}
