package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/crosve/Csphere/internal/vecmath"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 500 * time.Millisecond
	defaultRateLimit   = 5.0
	defaultBurst       = 5
	maxErrorBody       = 4096
)

// TEIConfig configures a Text Embeddings Inference client.
type TEIConfig struct {
	BaseURL    string
	Model      string
	APIKey     string
	Dimension  int
	RateLimit  float64
	Burst      int
	Timeout    time.Duration
	MaxRetries int

	// BaseBackoff is the first retry delay. Tests shorten it.
	BaseBackoff time.Duration
}

// Validate validates the configuration.
func (c TEIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// TEIProvider embeds text with a TEI server's /embed endpoint.
type TEIProvider struct {
	config  TEIConfig
	client  *http.Client
	limiter *rate.Limiter
	metrics *Metrics
	logger  *zap.Logger
}

var _ Provider = (*TEIProvider)(nil)

// NewTEIProvider creates a TEI client.
func NewTEIProvider(config TEIConfig, logger *zap.Logger) (*TEIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.Burst <= 0 {
		config.Burst = defaultBurst
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = defaultBaseBackoff
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &TEIProvider{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst),
		metrics: NewMetrics(logger),
		logger:  logger,
	}, nil
}

type teiRequest struct {
	Inputs   string `json:"inputs"`
	Truncate bool   `json:"truncate"`
}

// Embed returns the embedding of text.
func (p *TEIProvider) Embed(ctx context.Context, text string) (vec []float64, err error) {
	start := time.Now()
	defer func() {
		p.metrics.Record(ctx, "tei", p.config.Model, "embed", time.Since(start), len(text), err)
	}()

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(teiRequest{Inputs: text, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var vectors [][]float32
	err = withRetries(ctx, p.config.MaxRetries, p.config.BaseBackoff, func() error {
		var rerr error
		vectors, rerr = p.doRequest(ctx, body)
		if rerr != nil {
			p.logger.Debug("tei request failed", zap.Error(rerr))
		}
		return rerr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", ErrEmbeddingFailed, len(vectors))
	}
	if len(vectors[0]) != p.config.Dimension {
		return nil, fmt.Errorf("%w: model returned %d dimensions, configured %d",
			ErrEmbeddingFailed, len(vectors[0]), p.config.Dimension)
	}
	return vecmath.ToFloat64(vectors[0]), nil
}

func (p *TEIProvider) doRequest(ctx context.Context, body []byte) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &retryableError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &retryableError{err: err}
		}
		return nil, err
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return vectors, nil
}

// Dimension returns the configured vector length.
func (p *TEIProvider) Dimension() int { return p.config.Dimension }

// Close is a no-op; the client is plain HTTP.
func (p *TEIProvider) Close() error { return nil }
