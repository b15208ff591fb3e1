package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-narrate/internal/chunker"
	"github.com/loqalabs/loqa-narrate/internal/config"
	"github.com/loqalabs/loqa-narrate/internal/encode"
	"github.com/loqalabs/loqa-narrate/internal/narrate"
	"github.com/loqalabs/loqa-narrate/internal/render"
	"github.com/loqalabs/loqa-narrate/internal/speech"
	"github.com/loqalabs/loqa-narrate/internal/storage"
)

// Pipeline is a narrator plus the resources it holds open.
type Pipeline struct {
	Narrator *narrate.Narrator
	Chunking chunker.Config
	Style    render.Style
	close    func() error
}

// Close releases the speech cache client, if any.
func (p *Pipeline) Close() error {
	if p == nil || p.close == nil {
		return nil
	}
	return p.close()
}

// NewPipeline builds the speech, render, encode and upload stages from cfg.
// recorder may be nil.
func NewPipeline(ctx context.Context, cfg config.Config, recorder narrate.Recorder, logger *slog.Logger) (*Pipeline, error) {
	chunking := chunker.FromConfig(cfg.Chunking)
	style, err := render.StyleFromConfig(cfg.Render)
	if err != nil {
		return nil, fmt.Errorf("render style: %w", err)
	}

	gateway, closeCache, err := speech.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("speech backend: %w", err)
	}

	opts := narrate.Options{
		Chunking:  chunking,
		Gateway:   gateway,
		Renderer:  render.NewRenderer(cfg.Encode.FrameRate, render.FFmpegDecoder(cfg.Encode.FFmpegPath)),
		Encoder:   encode.NewFFmpegEncoder(encode.OptionsFromConfig(cfg.Encode), logger),
		Style:     style,
		FrameRate: cfg.Encode.FrameRate,
		Workers:   cfg.Speech.Workers,
		OutputDir: cfg.Service.OutputDir,
		Recorder:  recorder,
		Logger:    logger,
	}
	if cfg.Storage.Enabled {
		uploader, err := storage.NewS3Uploader(ctx, cfg.Storage)
		if err != nil {
			_ = closeCache()
			return nil, fmt.Errorf("storage: %w", err)
		}
		opts.Uploader = uploader
		logger.Info("uploads enabled", slog.String("bucket", cfg.Storage.Bucket))
	}

	narrator, err := narrate.New(opts)
	if err != nil {
		_ = closeCache()
		return nil, err
	}
	logger.Info("narration pipeline ready",
		slog.String("speech_mode", cfg.Speech.Mode),
		slog.Bool("speech_cache", cfg.Cache.Enabled),
		slog.Int("frame_rate", cfg.Encode.FrameRate))
	return &Pipeline{Narrator: narrator, Chunking: chunking, Style: style, close: closeCache}, nil
}
