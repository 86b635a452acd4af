// Package textsim implements the normalized token-overlap similarity used by
// deduplication, actor matching, traceability enrichment, coverage and the
// expected-stories evaluator. Every call site must share this exact behavior
// or the score thresholds stop being comparable.
package textsim

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// minTokenLen is the minimum token length that participates in scoring.
const minTokenLen = 3

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases the text, strips diacritics, replaces every
// non-alphanumeric rune with a space and collapses runs of whitespace.
func Normalize(text string) string {
	lowered := strings.ToLower(text)
	stripped, _, err := transform.String(deaccent, lowered)
	if err != nil {
		stripped = lowered
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens returns the set of normalized tokens of length >= 3.
// Duplicates collapse.
func Tokens(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(Normalize(text)) {
		if len(tok) >= minTokenLen {
			set[tok] = struct{}{}
		}
	}
	return set
}

// Overlap computes |intersection| / max(|tokens(a)|, |tokens(b)|).
// Returns 0 when either token set is empty.
func Overlap(a, b string) float64 {
	ta := Tokens(a)
	tb := Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}

	maxLen := len(ta)
	if len(tb) > maxLen {
		maxLen = len(tb)
	}
	return float64(inter) / float64(maxLen)
}
