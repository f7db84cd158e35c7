// Package embeddings is the oracle that turns text into fixed-length vectors
// and into a short summary with category labels.
//
// Three embedding providers are available:
//   - tei: a Text Embeddings Inference server over HTTP
//   - openai: any OpenAI-compatible embeddings endpoint via langchaingo
//   - fastembed: local ONNX models (requires a cgo build)
//
// Summaries always go through an OpenAI-compatible chat model.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates empty input text.
	ErrEmptyInput = errors.New("empty input text")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrSummaryFailed indicates the summarizer returned nothing usable.
	ErrSummaryFailed = errors.New("summary generation failed")

	// ErrSummarizerDisabled is returned when no summary model is configured.
	ErrSummarizerDisabled = errors.New("summarizer disabled")
)

// Embedder maps text to a vector of Dimension() floats.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimension() int
}

// Provider is an Embedder that holds resources.
type Provider interface {
	Embedder
	Close() error
}

// Summary is the summarizer's output.
type Summary struct {
	Text       string
	Categories []string
}

// Summarizer condenses page text into a Summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (Summary, error)
}

// disabledSummarizer always fails with ErrSummarizerDisabled.
type disabledSummarizer struct{}

func (disabledSummarizer) Summarize(context.Context, string) (Summary, error) {
	return Summary{}, ErrSummarizerDisabled
}
