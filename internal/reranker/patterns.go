package reranker

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/crosve/Csphere/internal/folders"
)

// PatternCache compiles URL patterns once per pattern string. Failed
// compilations are cached too so a bad pattern is only reported once.
type PatternCache struct {
	mu  sync.RWMutex
	res map[string]*regexp.Regexp
	bad map[string]error
}

// NewPatternCache returns an empty cache.
func NewPatternCache() *PatternCache {
	return &PatternCache{
		res: make(map[string]*regexp.Regexp),
		bad: make(map[string]error),
	}
}

// Compile returns the compiled pattern or an error wrapping
// folders.ErrMalformedPattern.
func (c *PatternCache) Compile(pattern string) (*regexp.Regexp, error) {
	c.mu.RLock()
	re, ok := c.res[pattern]
	bad := c.bad[pattern]
	c.mu.RUnlock()
	if ok {
		return re, nil
	}
	if bad != nil {
		return nil, bad
	}

	re, err := regexp.Compile(pattern)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		bad = fmt.Errorf("%w: %q: %v", folders.ErrMalformedPattern, pattern, err)
		c.bad[pattern] = bad
		return nil, bad
	}
	c.res[pattern] = re
	return re, nil
}

// Len reports how many patterns (good or bad) are cached.
func (c *PatternCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.res) + len(c.bad)
}

// ValidatePatterns compiles every non-blank pattern and returns the first
// failure. Used when folders are written.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: %q: %v", folders.ErrMalformedPattern, p, err)
		}
	}
	return nil
}
