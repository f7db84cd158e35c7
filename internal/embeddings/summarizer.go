package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxSummaryInput bounds the text sent to the chat model, in runes.
const maxSummaryInput = 12000

var summarizePrompt = `You summarize saved web pages for a bookmarking tool.

Respond with a JSON object containing:
- "summary": the main point of the page in exactly two short sentences
- "categories": one to three labels chosen only from this list: ` + strings.Join(Categories, "; ") + `

Respond ONLY with the JSON object, no additional text.`

// LLMConfig configures the chat-model summarizer.
type LLMConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	RateLimit float64
	Burst     int
}

// LLMSummarizer asks an OpenAI-compatible chat model for a summary and
// category labels.
type LLMSummarizer struct {
	config  LLMConfig
	llm     llms.Model
	limiter *rate.Limiter
	metrics *Metrics
	logger  *zap.Logger
}

var _ Summarizer = (*LLMSummarizer)(nil)

// NewLLMSummarizer creates the summarizer.
func NewLLMSummarizer(config LLMConfig, logger *zap.Logger) (*LLMSummarizer, error) {
	if config.BaseURL == "" || config.Model == "" {
		return nil, fmt.Errorf("%w: summarizer needs base URL and model", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.Burst <= 0 {
		config.Burst = defaultBurst
	}
	llm, err := newOpenAIClient(config.BaseURL, config.Model, "", config.APIKey)
	if err != nil {
		return nil, err
	}
	return newLLMSummarizer(config, llm, logger), nil
}

func newLLMSummarizer(config LLMConfig, llm llms.Model, logger *zap.Logger) *LLMSummarizer {
	return &LLMSummarizer{
		config:  config,
		llm:     llm,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst),
		metrics: NewMetrics(logger),
		logger:  logger,
	}
}

// Summarize returns a summary of text and up to MaxCategories labels from
// Categories. Labels outside the list are dropped.
func (s *LLMSummarizer) Summarize(ctx context.Context, text string) (out Summary, err error) {
	start := time.Now()
	defer func() {
		s.metrics.Record(ctx, "openai", s.config.Model, "summarize", time.Since(start), len(text), err)
	}()

	text = strings.TrimSpace(text)
	if text == "" {
		return Summary{}, ErrEmptyInput
	}
	if r := []rune(text); len(r) > maxSummaryInput {
		text = string(r[:maxSummaryInput])
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return Summary{}, fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := s.llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(schema.ChatMessageTypeSystem, summarizePrompt),
			llms.TextParts(schema.ChatMessageTypeHuman, text),
		},
		llms.WithTemperature(0.2),
		llms.WithMaxTokens(400),
	)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrSummaryFailed, err)
	}
	if len(resp.Choices) == 0 {
		return Summary{}, fmt.Errorf("%w: empty response", ErrSummaryFailed)
	}

	out = parseSummary(resp.Choices[0].Content)
	if out.Text == "" {
		return Summary{}, fmt.Errorf("%w: blank summary", ErrSummaryFailed)
	}
	s.logger.Debug("summarized content",
		zap.Int("input_len", len(text)),
		zap.Strings("categories", out.Categories),
	)
	return out, nil
}

type summaryResponse struct {
	Summary    string   `json:"summary"`
	Categories []string `json:"categories"`
}

// parseSummary reads the model's JSON answer. Models sometimes wrap it in a
// markdown fence or ignore the format; plain text becomes the summary.
func parseSummary(content string) Summary {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var resp summaryResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return Summary{Text: content}
	}
	return Summary{
		Text:       strings.TrimSpace(resp.Summary),
		Categories: NormalizeCategories(resp.Categories),
	}
}
