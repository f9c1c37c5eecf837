// Package tokens provides token counting for context budget decisions.
package tokens

import "unicode/utf8"

// charsPerToken is the rough average for English prose across common
// tokenizers. Good enough for budgeting; exact counts come from the
// caller when available.
const charsPerToken = 4

// Estimator counts tokens in a piece of text.
type Estimator interface {
	Estimate(text string) int
}

// Heuristic estimates tokens as characters divided by four.
type Heuristic struct{}

// Estimate returns the estimated token count for text. Empty text
// costs zero; any non-empty text costs at least one token.
func (Heuristic) Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text) / charsPerToken
	if n < 1 {
		return 1
	}
	return n
}

// Count returns the explicit count when positive, otherwise an
// estimate from text.
func Count(explicit int, text string, est Estimator) int {
	if explicit > 0 {
		return explicit
	}
	if est == nil {
		est = Heuristic{}
	}
	return est.Estimate(text)
}
