package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zricethezav/gitleaks/v8/detect"
	"go.uber.org/zap"
)

// Finding is one detected secret. The secret value itself is not kept.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Line        int    `json:"line,omitempty"`
}

// Result is the outcome of a Scrub call.
type Result struct {
	Text     string         `json:"-"`
	Findings []Finding      `json:"findings,omitempty"`
	ByRule   map[string]int `json:"by_rule,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// HasFindings reports whether anything was redacted.
func (r *Result) HasFindings() bool { return len(r.Findings) > 0 }

type extraRule struct {
	id          string
	description string
	pattern     *regexp.Regexp
}

// extraRules catch key=value style credentials in free text. The first
// capture group is the secret.
var extraRules = []extraRule{
	{
		id:          "generic-secret-assignment",
		description: "Password or secret assignment",
		pattern:     regexp.MustCompile(`(?i)(?:secret|password|passwd|pwd)\s*[:=]\s*['"]?([^\s'"]{8,})['"]?`),
	},
	{
		id:          "generic-api-key-assignment",
		description: "API key assignment",
		pattern:     regexp.MustCompile(`(?i)(?:api[_-]?key|apikey|access[_-]?token)\s*[:=]\s*['"]?([A-Za-z0-9_\-]{16,})['"]?`),
	},
	{
		id:          "bearer-token",
		description: "Bearer token",
		pattern:     regexp.MustCompile(`(?i)bearer\s+([A-Za-z0-9_\-.=]{20,})`),
	},
	{
		id:          "github-token",
		description: "GitHub token",
		pattern:     regexp.MustCompile(`\b(gh[pousr]_[A-Za-z0-9]{36,})`),
	},
	{
		id:          "private-key",
		description: "Private key block",
		pattern:     regexp.MustCompile(`(-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----)`),
	},
}

// Scrubber redacts secrets. It is safe for concurrent use.
type Scrubber struct {
	enabled bool
	logger  *zap.Logger

	mu       sync.Mutex
	detector *detect.Detector
}

// New builds a scrubber. A disabled scrubber returns text unchanged.
func New(enabled bool, logger *zap.Logger) (*Scrubber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scrubber{enabled: enabled, logger: logger}
	if !enabled {
		return s, nil
	}
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	s.detector = d
	return s, nil
}

// Enabled reports whether scrubbing is active.
func (s *Scrubber) Enabled() bool { return s.enabled }

type hit struct {
	secret string
	rule   string
}

// Scrub replaces every detected secret with a [REDACTED:rule-id] marker.
func (s *Scrubber) Scrub(text string) *Result {
	start := time.Now()
	res := &Result{Text: text, ByRule: map[string]int{}}
	if !s.enabled || strings.TrimSpace(text) == "" {
		res.Duration = time.Since(start)
		return res
	}

	var hits []hit

	s.mu.Lock()
	found := s.detector.DetectString(text)
	s.mu.Unlock()
	for _, f := range found {
		secret := f.Secret
		if secret == "" {
			secret = f.Match
		}
		hits = append(hits, hit{secret: secret, rule: f.RuleID})
		res.Findings = append(res.Findings, Finding{RuleID: f.RuleID, Description: f.Description, Line: f.StartLine})
	}

	for _, r := range extraRules {
		for _, m := range r.pattern.FindAllStringSubmatchIndex(text, -1) {
			secret := text[m[2]:m[3]]
			hits = append(hits, hit{secret: secret, rule: r.id})
			res.Findings = append(res.Findings, Finding{
				RuleID:      r.id,
				Description: r.description,
				Line:        strings.Count(text[:m[2]], "\n") + 1,
			})
		}
	}

	if len(hits) == 0 {
		res.Duration = time.Since(start)
		return res
	}

	// longest first so a secret containing another is replaced whole
	sort.SliceStable(hits, func(i, j int) bool { return len(hits[i].secret) > len(hits[j].secret) })
	out := text
	for _, h := range hits {
		if h.secret == "" {
			continue
		}
		out = strings.ReplaceAll(out, h.secret, "[REDACTED:"+h.rule+"]")
	}
	for _, f := range res.Findings {
		res.ByRule[f.RuleID]++
	}
	res.Text = out
	res.Duration = time.Since(start)

	s.logger.Debug("redacted secrets",
		zap.Int("findings", len(res.Findings)),
		zap.Duration("duration", res.Duration),
	)
	return res
}

// ScrubText is Scrub returning only the redacted text.
func (s *Scrubber) ScrubText(text string) string {
	return s.Scrub(text).Text
}
