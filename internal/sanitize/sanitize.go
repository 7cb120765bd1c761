// Package sanitize reduces arbitrary extracted text to a short snippet the
// synthesis backend will accept.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Default policy values. Texts longer than DefaultThreshold runes are cut
// down to a single sentence which is then capped at DefaultMaxChars runes.
const (
	DefaultThreshold     = 100
	DefaultSentenceIndex = 15
	DefaultMaxChars      = 100
)

// markupPattern matches Gutenberg style emphasis such as __Title__ or _word_,
// including trailing whitespace.
var markupPattern = regexp.MustCompile(`__[\p{L}\p{N}_]+__\s*|_[\p{L}\p{N}_]+_\s*`)

// Policy controls the truncation heuristic.
//
// A text with fewer than SentenceIndex+1 sentences that exceeds Threshold
// yields an empty string. That is intentional and left to the caller.
type Policy struct {
	Threshold     int
	SentenceIndex int
	MaxChars      int
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:     DefaultThreshold,
		SentenceIndex: DefaultSentenceIndex,
		MaxChars:      DefaultMaxChars,
	}
}

// Apply truncates text according to p and strips markup tokens.
func (p Policy) Apply(text string) string {
	return StripMarkup(p.Truncate(text))
}

// Truncate returns text unchanged when it is within the threshold. Longer
// text is split on "." and only the sentence at SentenceIndex is kept,
// capped at MaxChars runes.
func (p Policy) Truncate(text string) string {
	if utf8.RuneCountInString(text) <= p.Threshold {
		return text
	}

	sentences := strings.Split(text, ".")
	if p.SentenceIndex < 0 || p.SentenceIndex >= len(sentences) {
		return ""
	}
	return truncateRunes(sentences[p.SentenceIndex], p.MaxChars)
}

// StripMarkup removes __word__ and _word_ tokens.
func StripMarkup(text string) string {
	return markupPattern.ReplaceAllString(text, "")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
