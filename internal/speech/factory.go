package speech

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/loqalabs/loqa-narrate/internal/config"
)

// New builds the backend selected by cfg.Mode.
func New(cfg config.SpeechConfig) (Gateway, error) {
	client := &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond}
	switch cfg.Mode {
	case "mock", "":
		return NewMockGateway(cfg.WorkDir, cfg.SampleRate, cfg.WordsPerSecond), nil
	case "exec":
		return NewExecGateway(cfg.Command, cfg.Voice, cfg.SampleRate, cfg.WorkDir)
	case "elevenlabs":
		return NewElevenLabsGateway(cfg.ElevenLabs, cfg.WorkDir, client), nil
	case "openai":
		return NewOpenAIGateway(cfg.OpenAI, cfg.WorkDir, client), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, cfg.Mode)
	}
}

// NewFromConfig builds the configured backend and wraps it with the Redis
// cache when enabled. The returned close function releases the cache client.
func NewFromConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) (Gateway, func() error, error) {
	gateway, err := New(cfg.Speech)
	if err != nil {
		return nil, nil, err
	}
	noop := func() error { return nil }
	if !cfg.Cache.Enabled {
		return gateway, noop, nil
	}
	store, err := NewRedisStore(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
	if err != nil {
		return nil, nil, err
	}
	ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
	cached := NewCachedGateway(gateway, store, cfg.Cache.Prefix, ttl, cfg.Speech.WorkDir, logger)
	return cached, store.Close, nil
}
