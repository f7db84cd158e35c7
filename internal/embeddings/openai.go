package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/crosve/Csphere/internal/vecmath"
	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	Dimension int
	RateLimit float64
	Burst     int
}

// Validate validates the configuration.
func (c OpenAIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// newOpenAIClient builds a langchaingo client for an OpenAI-compatible API.
func newOpenAIClient(baseURL, model, embeddingModel, apiKey string) (*openai.LLM, error) {
	if apiKey == "" {
		// langchaingo requires a token even for servers that ignore it
		apiKey = "placeholder"
	}
	opts := []openai.Option{
		openai.WithBaseURL(baseURL),
		openai.WithToken(apiKey),
	}
	if model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	if embeddingModel != "" {
		opts = append(opts, openai.WithEmbeddingModel(embeddingModel))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return llm, nil
}

// OpenAIProvider embeds text through langchaingo's OpenAI embedder.
type OpenAIProvider struct {
	config   OpenAIConfig
	embedder *lcembeddings.EmbedderImpl
	limiter  *rate.Limiter
	metrics  *Metrics
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates the embedder.
func NewOpenAIProvider(config OpenAIConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.Burst <= 0 {
		config.Burst = defaultBurst
	}

	llm, err := newOpenAIClient(config.BaseURL, "", config.Model, config.APIKey)
	if err != nil {
		return nil, err
	}
	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &OpenAIProvider{
		config:   config,
		embedder: embedder,
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst),
		metrics:  NewMetrics(logger),
	}, nil
}

// Embed returns the embedding of text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) (vec []float64, err error) {
	start := time.Now()
	defer func() {
		p.metrics.Record(ctx, "openai", p.config.Model, "embed", time.Since(start), len(text), err)
	}()

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	v, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(v) != p.config.Dimension {
		return nil, fmt.Errorf("%w: model returned %d dimensions, configured %d",
			ErrEmbeddingFailed, len(v), p.config.Dimension)
	}
	return vecmath.ToFloat64(v), nil
}

// Dimension returns the configured vector length.
func (p *OpenAIProvider) Dimension() int { return p.config.Dimension }

// Close is a no-op.
func (p *OpenAIProvider) Close() error { return nil }
