package embeddings

import (
	"fmt"

	"github.com/crosve/Csphere/internal/config"
	"go.uber.org/zap"
)

// NewProvider creates the embedder selected by cfg.Provider.
func NewProvider(cfg config.EmbeddingsConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case "tei":
		return NewTEIProvider(TEIConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			APIKey:     cfg.APIKey.Value(),
			Dimension:  cfg.Dimension,
			RateLimit:  cfg.RateLimit,
			Burst:      cfg.Burst,
			Timeout:    cfg.Timeout.Duration(),
			MaxRetries: cfg.MaxRetries,
		}, logger)

	case "openai", "":
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey.Value(),
			Dimension: cfg.Dimension,
			RateLimit: cfg.RateLimit,
			Burst:     cfg.Burst,
		}, logger)

	case "fastembed":
		if dim, ok := FastEmbedDimension(cfg.Model); ok && dim != cfg.Dimension {
			return nil, fmt.Errorf("%w: model %s produces %d dimensions, configured %d",
				ErrInvalidConfig, cfg.Model, dim, cfg.Dimension)
		}
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// NewSummarizer creates the chat-model summarizer. With no summary model
// configured the returned Summarizer always fails with ErrSummarizerDisabled.
func NewSummarizer(cfg config.EmbeddingsConfig, logger *zap.Logger) (Summarizer, error) {
	if cfg.SummaryModel == "" {
		return disabledSummarizer{}, nil
	}
	baseURL := cfg.SummaryBaseURL
	if baseURL == "" {
		baseURL = cfg.BaseURL
	}
	return NewLLMSummarizer(LLMConfig{
		BaseURL:   baseURL,
		Model:     cfg.SummaryModel,
		APIKey:    cfg.APIKey.Value(),
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
	}, logger)
}
