// Package app assembles a generation pipeline from configuration. The
// CLI and the server share it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/apresai/eduanim/internal/assembly"
	"github.com/apresai/eduanim/internal/config"
	"github.com/apresai/eduanim/internal/llm"
	"github.com/apresai/eduanim/internal/pipeline"
	"github.com/apresai/eduanim/internal/progress"
	"github.com/apresai/eduanim/internal/render"
	"github.com/apresai/eduanim/internal/storage"
	"github.com/apresai/eduanim/internal/style"
	"github.com/apresai/eduanim/internal/tts"
)

// Deps are the collaborators that differ between entry points.
type Deps struct {
	// Uploader is optional; without it videos stay in cfg.OutputDir.
	Uploader storage.Uploader
	Progress progress.Callback
	Logger   *slog.Logger
}

// NewPipeline builds the model, renderer and optional narrator named by
// cfg. The returned close func releases the narrator.
func NewPipeline(ctx context.Context, cfg config.Config, deps Deps) (*pipeline.Pipeline, func(), error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	model, err := llm.New(ctx, cfg.Model, llm.Config{
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		AWSRegion:       cfg.AWSRegion,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create model: %w", err)
	}
	prof, err := style.Lookup(cfg.Style)
	if err != nil {
		return nil, nil, err
	}
	quality, err := render.ParseQuality(cfg.Quality)
	if err != nil {
		return nil, nil, err
	}

	opts := pipeline.Options{
		Model: model,
		Executor: &render.ManimExecutor{
			Binary:  cfg.ManimBinary,
			Timeout: cfg.RenderTimeout,
			Logger:  logger,
		},
		Uploader:                    deps.Uploader,
		Policy:                      cfg.DomainPolicy(),
		Style:                       prof,
		Branding:                    cfg.Branding,
		Quality:                     quality,
		MemorySize:                  cfg.MemorySize,
		RefineAttempts:              cfg.RefineAttempts,
		FallbackOnExtractionFailure: cfg.FallbackOnExtractionFailure,
		WorkRoot:                    cfg.WorkDir,
		OutputDir:                   cfg.OutputDir,
		Progress:                    deps.Progress,
		Logger:                      logger,
	}

	closeFn := func() {}
	if n := cfg.Narration; n.Provider != "" {
		provider, err := tts.NewProvider(ctx, n.Provider, tts.ProviderConfig{
			Voice:      n.Voice,
			Speed:      n.Speed,
			Pitch:      n.Pitch,
			Model:      n.Model,
			AWSRegion:  cfg.AWSRegion,
			GCPProject: n.GCPProject,
			GCPRegion:  n.GCPRegion,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create narrator: %w", err)
		}
		opts.Narrator = provider
		opts.Muxer = assembly.NewFFmpegMuxer()
		closeFn = func() {
			if err := provider.Close(); err != nil {
				logger.Warn("Close narrator failed", "error", err)
			}
		}
	}

	p, err := pipeline.New(opts)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return p, closeFn, nil
}
