//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	fastembed "github.com/anush008/fastembed-go"
	"github.com/crosve/Csphere/internal/vecmath"
	"go.uber.org/zap"
)

// FastEmbedConfig configures the local ONNX provider.
type FastEmbedConfig struct {
	// Model is a supported model name, BAAI/bge-small-en-v1.5 by default.
	Model string

	// CacheDir holds downloaded model files.
	CacheDir string

	// MaxLength is the maximum token sequence length. Default 512.
	MaxLength int
}

// FastEmbedProvider embeds text with a local ONNX model.
type FastEmbedProvider struct {
	mu        sync.Mutex
	model     *fastembed.FlagEmbedding
	modelName string
	dimension int
	metrics   *Metrics
}

var _ Provider = (*FastEmbedProvider)(nil)

var fastEmbedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// NewFastEmbedProvider loads (downloading if needed) the model.
func NewFastEmbedProvider(cfg FastEmbedConfig, logger *zap.Logger) (*FastEmbedProvider, error) {
	if cfg.Model == "" {
		cfg.Model = "BAAI/bge-small-en-v1.5"
	}
	model, ok := fastEmbedModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported fastembed model %q", ErrInvalidConfig, cfg.Model)
	}
	dim, _ := FastEmbedDimension(cfg.Model)

	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(".", "local_cache")
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = 512
	}
	showProgress := false

	flag, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cfg.CacheDir,
		MaxLength:            cfg.MaxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}

	return &FastEmbedProvider{
		model:     flag,
		modelName: cfg.Model,
		dimension: dim,
		metrics:   NewMetrics(logger),
	}, nil
}

// Embed returns the passage embedding of text.
func (p *FastEmbedProvider) Embed(ctx context.Context, text string) (vec []float64, err error) {
	start := time.Now()
	defer func() {
		p.metrics.Record(ctx, "fastembed", p.modelName, "embed", time.Since(start), len(text), err)
	}()

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// the ONNX session is not safe for concurrent use
	p.mu.Lock()
	out, err := p.model.PassageEmbed([]string{text}, 1)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", ErrEmbeddingFailed, len(out))
	}
	return vecmath.ToFloat64(out[0]), nil
}

// Dimension returns the model's vector length.
func (p *FastEmbedProvider) Dimension() int { return p.dimension }

// Close releases the ONNX session.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model != nil {
		err := p.model.Destroy()
		p.model = nil
		return err
	}
	return nil
}
