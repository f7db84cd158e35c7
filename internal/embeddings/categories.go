package embeddings

import "strings"

// Categories is the fixed label set content may be tagged with.
var Categories = []string{
	"Science & Technology",
	"Arts & Entertainment",
	"News & Politics",
	"History & Culture",
	"Health & Wellness",
	"Business & Finance",
	"Education & Learning",
	"Home & Lifestyle",
	"Nature & Environment",
	"Sports & Recreation",
}

// MaxCategories caps the labels kept per content.
const MaxCategories = 3

var categoryIndex = func() map[string]string {
	m := make(map[string]string, len(Categories))
	for _, c := range Categories {
		m[foldCategory(c)] = c
	}
	return m
}()

func foldCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " and ", " & ")
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeCategories maps labels onto Categories case-insensitively,
// dropping unknown labels and duplicates, and keeps at most MaxCategories.
func NormalizeCategories(labels []string) []string {
	out := make([]string, 0, MaxCategories)
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		c, ok := categoryIndex[foldCategory(l)]
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		if len(out) == MaxCategories {
			break
		}
	}
	return out
}
