package reranker

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Tokens lower-cases s and splits it on anything that is not a letter or
// digit.
func Tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
// Two empty strings are dissimilar.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// TokenSetRatio compares the token sets of a and b, ignoring order and
// repetition. With s the sorted intersection and dA, dB the sorted
// remainders, it returns the best Similarity among (s, s+dA), (s, s+dB)
// and (s+dA, s+dB). The result is in [0, 1]; 1 when one token set
// contains the other.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var inter, onlyA, onlyB []string
	for t := range ta {
		if tb[t] {
			inter = append(inter, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tb {
		if !ta[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	s := strings.Join(inter, " ")
	sa := join(s, strings.Join(onlyA, " "))
	sb := join(s, strings.Join(onlyB, " "))

	best := Similarity(sa, sb)
	if s != "" {
		if r := Similarity(s, sa); r > best {
			best = r
		}
		if r := Similarity(s, sb); r > best {
			best = r
		}
	}
	return best
}

func tokenSet(s string) map[string]bool {
	toks := Tokens(s)
	set := make(map[string]bool, len(toks))
	for _, t := range toks {
		set[t] = true
	}
	return set
}

func join(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
