package reranker

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/crosve/Csphere/internal/config"
	"github.com/crosve/Csphere/internal/folders"
	"go.uber.org/zap"
)

// Weights scale each scoring layer.
type Weights struct {
	Keyword  float64
	Fuzzy    float64
	Semantic float64
}

// DefaultWeights returns the stock layer weights.
func DefaultWeights() Weights {
	return WeightsFrom(config.DefaultMatching())
}

// WeightsFrom extracts the layer weights from matching configuration.
func WeightsFrom(cfg config.MatchingConfig) Weights {
	return Weights{
		Keyword:  cfg.KeywordWeight,
		Fuzzy:    cfg.FuzzyWeight,
		Semantic: cfg.SemanticWeight,
	}
}

// Scorer scores candidates. Weights can be swapped while scoring is in
// flight; each Score call sees one consistent set.
type Scorer struct {
	weights  atomic.Pointer[Weights]
	patterns *PatternCache
	logger   *zap.Logger
}

// NewScorer creates a scorer.
func NewScorer(w Weights, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scorer{patterns: NewPatternCache(), logger: logger}
	s.weights.Store(&w)
	return s
}

// SetWeights replaces the layer weights.
func (s *Scorer) SetWeights(w Weights) { s.weights.Store(&w) }

// Weights returns the current layer weights.
func (s *Scorer) Weights() Weights { return *s.weights.Load() }

// MatchPattern returns the first of f's URL patterns that matches the
// lower-cased url. Malformed patterns are logged and skipped.
func (s *Scorer) MatchPattern(f *folders.Folder, url string) (string, bool) {
	if url == "" || len(f.URLPatterns) == 0 {
		return "", false
	}
	lower := strings.ToLower(url)
	for _, p := range f.URLPatterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := s.patterns.Compile(p)
		if err != nil {
			s.logger.Warn("skipping malformed url pattern",
				zap.String("folder_id", f.ID),
				zap.String("pattern", p),
				zap.Error(err),
			)
			continue
		}
		if re.MatchString(lower) {
			return p, true
		}
	}
	return "", false
}

// KeywordRatio is the fraction of non-blank keywords that occur in text,
// case-insensitively. Zero without keywords.
func KeywordRatio(keywords []string, text string) float64 {
	lower := strings.ToLower(text)
	total, matched := 0, 0
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		total++
		if strings.Contains(lower, k) {
			matched++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}

// Score computes the layered score of c for the given content. A candidate
// without a similarity is returned Skipped. A failure inside the fuzzy or
// semantic layer zeroes that layer only.
func (s *Scorer) Score(c folders.MatchCandidate, text, url string) folders.ScoreBreakdown {
	w := s.Weights()
	b := folders.ScoreBreakdown{
		FolderID:   c.Folder.ID,
		FolderName: c.Folder.Name,
	}
	if c.Similarity == nil {
		b.Skipped = true
		b.SkipReason = "no similarity"
		return b
	}
	sim := *c.Similarity
	b.Similarity = sim

	b.Keyword = KeywordRatio(c.Folder.Keywords, text) * w.Keyword

	if strings.TrimSpace(c.Folder.Description) != "" {
		b.Fuzzy = s.layer(c.Folder.ID, "fuzzy", func() float64 {
			return TokenSetRatio(c.Folder.Description, text) * w.Fuzzy
		})
	}

	b.Semantic = s.layer(c.Folder.ID, "semantic", func() float64 {
		if sim < -1-1e-9 || sim > 1+1e-9 {
			panic(fmt.Sprintf("similarity %v outside [-1, 1]", sim))
		}
		return sim * w.Semantic
	})

	b.Total = b.Keyword + b.Fuzzy + b.Semantic
	return b
}

// layer runs fn, turning a panic or a non-finite result into 0.
func (s *Scorer) layer(folderID, name string, fn func() float64) (v float64) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("scoring layer failed",
				zap.String("folder_id", folderID),
				zap.String("layer", name),
				zap.Any("panic", r),
			)
			v = 0
		}
	}()
	v = fn()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		s.logger.Warn("scoring layer produced non-finite value",
			zap.String("folder_id", folderID),
			zap.String("layer", name),
		)
		return 0
	}
	return v
}
