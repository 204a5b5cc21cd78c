// Package tokens estimates how many model tokens a text will consume.
package tokens

import "unicode"

// DefaultCharsPerToken is the heuristic ratio for alphabetic scripts.
// 1 token ~ 4 characters is accurate enough for budget management.
const DefaultCharsPerToken = 4

// Heuristic estimates tokens without a tokenizer. Han, Hiragana, Katakana and
// Hangul runes count as one token each; every other rune counts as
// 1/CharsPerToken of a token, rounded up over the whole text.
//
// The estimate is deterministic and subadditive: the cost of a concatenation
// never exceeds the sum of the costs of its parts.
type Heuristic struct {
	CharsPerToken int
}

// Estimate returns the estimated token count of text.
func (h Heuristic) Estimate(text string) int {
	if text == "" {
		return 0
	}
	cpt := h.CharsPerToken
	if cpt <= 0 {
		cpt = DefaultCharsPerToken
	}
	wide, narrow := 0, 0
	for _, r := range text {
		if isWide(r) {
			wide++
		} else {
			narrow++
		}
	}
	return wide + (narrow+cpt-1)/cpt
}

func isWide(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
