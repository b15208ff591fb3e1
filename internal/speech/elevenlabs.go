package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/loqalabs/loqa-narrate/internal/config"
)

const elevenLabsDefaultVoice = "21m00Tcm4TlvDq8ikWAM" // Rachel

type elevenLabsGateway struct {
	cfg     config.ElevenLabsConfig
	workDir string
	client  *http.Client
	probe   Probe
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// NewElevenLabsGateway synthesizes through the ElevenLabs text-to-speech
// API, authenticating with the xi-api-key header.
func NewElevenLabsGateway(cfg config.ElevenLabsConfig, workDir string, client *http.Client) Gateway {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.elevenlabs.io"
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = elevenLabsDefaultVoice
	}
	if cfg.Model == "" {
		cfg.Model = "eleven_monolingual_v1"
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &elevenLabsGateway{cfg: cfg, workDir: workDir, client: client, probe: ProbeDuration}
}

func (g *elevenLabsGateway) Name() string { return "elevenlabs" }

func (g *elevenLabsGateway) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s|%g|%g", g.cfg.Endpoint, g.cfg.VoiceID, g.cfg.Model, g.cfg.Stability, g.cfg.SimilarityBoost)
}

func (g *elevenLabsGateway) Synthesize(ctx context.Context, text string) (*Asset, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	body, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: g.cfg.Model,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       g.cfg.Stability,
			SimilarityBoost: g.cfg.SimilarityBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(g.cfg.Endpoint, "/") + "/v1/text-to-speech/" + url.PathEscape(g.cfg.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(g.Name(), resp); err != nil {
		return nil, err
	}

	format := formatFromContentType(resp.Header.Get("Content-Type"), "mp3")
	return saveAudio(ctx, resp.Body, g.workDir, format, g.Name(), g.probe)
}
