package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/jglaspey/supplement-cli/internal/ocr"
	"github.com/jglaspey/supplement-cli/internal/pipeline"
	"github.com/jglaspey/supplement-cli/internal/store"
	anthropicpkg "github.com/jglaspey/supplement-cli/pkg/anthropic"
)

// pipelineEnv holds the initialized store and pipeline shared by the
// analyze and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens and migrates the configured backend.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initPipeline sets up the store, the Claude client, and the OCR tools, and
// builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("SUPPLEMENT_ANTHROPIC_KEY is required")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	if cfg.Anthropic.RPS > 0 {
		client = anthropicpkg.NewRateLimited(client, cfg.Anthropic.RPS, cfg.Anthropic.Burst)
	}

	text, err := ocr.NewTextExtractor(cfg.OCR)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	images := ocr.NewPdfToImages(cfg.Vision.PdfToPpmPath)

	p := pipeline.New(cfg, st, client, text, images)

	return &pipelineEnv{Store: st, Pipeline: p}, nil
}
