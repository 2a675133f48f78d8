// Package textmatch holds the query normalization and plain-text scoring
// used across the answer pipeline. The additive Score is only for ranking
// manifest entries; the knowledge index uses its own fuzzy scorer.
package textmatch

import (
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

const (
	maxTopicLength   = 120
	maxQuestionRunes = 500

	scoreExact        = 200
	scoreSubstring    = 80
	scorePerToken     = 10
	scoreTokenOverlap = 40
)

// acronyms maps short all-caps tokens to their expanded phrases. Questions
// like "what is PTSD" need the expansion to match page titles written out
// in full.
var acronyms = map[string][]string{
	"ptsd": {"post-traumatic stress disorder"},
	"adhd": {"attention deficit hyperactivity disorder"},
	"ocd":  {"obsessive compulsive disorder"},
	"asd":  {"autism spectrum disorder", "autism"},
}

var questionPrefixes = []string{
	"what is a",
	"what is an",
	"what is",
	"what are",
	"what's",
	"tell me about",
	"explain",
	"how do i deal with",
	"how do i cope with",
	"can you tell me about",
	"i want to know about",
}

var (
	sanitizeOnce   sync.Once
	sanitizePolicy *bluemonday.Policy
)

// Sanitize strips HTML from an inbound question and caps its length. It runs
// before anything else looks at the text.
func Sanitize(text string) string {
	sanitizeOnce.Do(func() {
		sanitizePolicy = bluemonday.StrictPolicy()
	})
	text = strings.TrimSpace(sanitizePolicy.Sanitize(text))
	runes := []rune(text)
	if len(runes) > maxQuestionRunes {
		text = string(runes[:maxQuestionRunes])
	}
	return text
}

// Normalize lowercases text, drops everything but alphanumerics, spaces and
// hyphens, and collapses runs of whitespace.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// TopicCandidates turns a free-text question into the phrases worth
// searching for: the question minus its interrogative prefix, truncated,
// plus acronym expansions when the remainder is a known short form.
func TopicCandidates(question string) []string {
	topic := Normalize(question)
	for _, prefix := range questionPrefixes {
		if strings.HasPrefix(topic, prefix+" ") {
			topic = strings.TrimSpace(strings.TrimPrefix(topic, prefix))
			break
		}
	}
	if runes := []rune(topic); len(runes) > maxTopicLength {
		topic = strings.TrimSpace(string(runes[:maxTopicLength]))
	}
	if topic == "" {
		return nil
	}

	candidates := []string{topic}
	if expansions, ok := acronyms[topic]; ok {
		candidates = append(candidates, expansions...)
	}
	return candidates
}

// Score rates how well haystack matches any of the needle phrases. Both
// sides are normalized. An exact match is worth 200, containment 80, and
// token overlap up to 40 on top (10 per matched token). The best needle
// wins.
func Score(haystack string, needles []string) int {
	hay := Normalize(haystack)
	if hay == "" {
		return 0
	}
	hayTokens := make(map[string]bool)
	for _, tok := range strings.Fields(hay) {
		hayTokens[tok] = true
	}

	best := 0
	for _, needle := range needles {
		n := Normalize(needle)
		if n == "" {
			continue
		}
		score := 0
		switch {
		case hay == n:
			score = scoreExact
		case strings.Contains(hay, n):
			score = scoreSubstring
		}
		overlap := 0
		for _, tok := range strings.Fields(n) {
			if hayTokens[tok] {
				overlap += scorePerToken
			}
		}
		if overlap > scoreTokenOverlap {
			overlap = scoreTokenOverlap
		}
		score += overlap
		if score > best {
			best = score
		}
	}
	return best
}
