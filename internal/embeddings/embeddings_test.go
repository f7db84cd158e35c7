package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crosve/Csphere/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

func newTEI(t *testing.T, url string, dim int) *TEIProvider {
	t.Helper()
	p, err := NewTEIProvider(TEIConfig{
		BaseURL:     url,
		Model:       "bge-small",
		Dimension:   dim,
		MaxRetries:  2,
		BaseBackoff: time.Millisecond,
		RateLimit:   1000,
	}, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestTEIProvider_Embed(t *testing.T) {
	var got teiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode([][]float32{{0.5, 0.25, 0.125}})
	}))
	defer srv.Close()

	p := newTEI(t, srv.URL+"/", 3)
	v, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.25, 0.125}, v)
	assert.Equal(t, "hello world", got.Inputs)
	assert.True(t, got.Truncate)
	assert.Equal(t, 3, p.Dimension())
}

func TestTEIProvider_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode([][]float32{{1, 0}})
	}))
	defer srv.Close()

	v, err := newTEI(t, srv.URL, 2).Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, v)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTEIProvider_PermanentFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTEI(t, srv.URL, 2).Embed(context.Background(), "text")
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestTEIProvider_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float32{{1, 0, 0, 0}})
	}))
	defer srv.Close()

	_, err := newTEI(t, srv.URL, 3).Embed(context.Background(), "text")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestTEIProvider_EmptyInput(t *testing.T) {
	p := newTEI(t, "http://127.0.0.1:0", 3)
	_, err := p.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestTEIConfig_Validate(t *testing.T) {
	_, err := NewTEIProvider(TEIConfig{Dimension: 3}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewTEIProvider(TEIConfig{BaseURL: "http://x"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOpenAIProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.1, 0.2, 0.3]}],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{
		BaseURL:   srv.URL,
		Model:     "text-embedding-3-small",
		Dimension: 3,
		RateLimit: 1000,
	}, nil)
	require.NoError(t, err)

	v, err := p.Embed(context.Background(), "a page about jazz")
	require.NoError(t, err)
	require.Len(t, v, 3)
	assert.InDelta(t, 0.2, v[1], 1e-6)

	_, err = p.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestNormalizeCategories(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"exact", []string{"News & Politics"}, []string{"News & Politics"}},
		{"case and spacing", []string{"  science  &  technology "}, []string{"Science & Technology"}},
		{"and spelled out", []string{"Health and Wellness"}, []string{"Health & Wellness"}},
		{"unknown dropped", []string{"Cooking", "Sports & Recreation"}, []string{"Sports & Recreation"}},
		{"duplicates", []string{"Home & Lifestyle", "home & lifestyle"}, []string{"Home & Lifestyle"}},
		{"capped at three", []string{
			"News & Politics", "History & Culture", "Business & Finance", "Education & Learning",
		}, []string{"News & Politics", "History & Culture", "Business & Finance"}},
		{"none", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCategories(tt.in))
		})
	}
}

func TestParseSummary(t *testing.T) {
	s := parseSummary("```json\n{\"summary\": \"Jazz history.\", \"categories\": [\"Arts & Entertainment\", \"Made Up\"]}\n```")
	assert.Equal(t, "Jazz history.", s.Text)
	assert.Equal(t, []string{"Arts & Entertainment"}, s.Categories)

	s = parseSummary("Just prose from a model that ignored the format.")
	assert.Equal(t, "Just prose from a model that ignored the format.", s.Text)
	assert.Empty(t, s.Categories)
}

type fakeLLM struct {
	reply string
	err   error
	seen  []llms.MessageContent
}

func (f *fakeLLM) GenerateContent(_ context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.seen = msgs
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, opts...)
}

func TestLLMSummarizer(t *testing.T) {
	ctx := context.Background()
	cfg := LLMConfig{Model: "gpt-4o-mini", RateLimit: 1000, Burst: 1}

	llm := &fakeLLM{reply: `{"summary": "Go release notes.", "categories": ["Science & Technology"]}`}
	s := newLLMSummarizer(cfg, llm, zap.NewNop())
	out, err := s.Summarize(ctx, "Go 1.24 is released")
	require.NoError(t, err)
	assert.Equal(t, "Go release notes.", out.Text)
	assert.Equal(t, []string{"Science & Technology"}, out.Categories)
	require.Len(t, llm.seen, 2)
	assert.Equal(t, schema.ChatMessageTypeSystem, llm.seen[0].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, llm.seen[1].Role)

	_, err = s.Summarize(ctx, " ")
	assert.ErrorIs(t, err, ErrEmptyInput)

	failing := newLLMSummarizer(cfg, &fakeLLM{err: errors.New("upstream down")}, zap.NewNop())
	_, err = failing.Summarize(ctx, "text")
	assert.ErrorIs(t, err, ErrSummaryFailed)

	blank := newLLMSummarizer(cfg, &fakeLLM{reply: `{"summary": "  "}`}, zap.NewNop())
	_, err = blank.Summarize(ctx, "text")
	assert.ErrorIs(t, err, ErrSummaryFailed)
}

func TestNewSummarizer_Disabled(t *testing.T) {
	s, err := NewSummarizer(config.EmbeddingsConfig{}, nil)
	require.NoError(t, err)
	_, err = s.Summarize(context.Background(), "text")
	assert.ErrorIs(t, err, ErrSummarizerDisabled)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.EmbeddingsConfig{Provider: "tei", BaseURL: "http://localhost:8080", Dimension: 384}, nil)
	require.NoError(t, err)
	assert.Equal(t, 384, p.Dimension())
	require.NoError(t, p.Close())

	_, err = NewProvider(config.EmbeddingsConfig{Provider: "word2vec", Dimension: 3}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewProvider(config.EmbeddingsConfig{Provider: "fastembed", Model: "BAAI/bge-small-en-v1.5", Dimension: 1536}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestWithRetries_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetries(ctx, 3, time.Hour, func() error {
		return &retryableError{err: errors.New("again")}
	})
	assert.ErrorIs(t, err, context.Canceled)
}
