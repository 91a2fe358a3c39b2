// Package phonetic recognises spoken answers that speech-to-text spelled
// differently from the expected words, such as "bal" for "ball" or
// "rubber duk" for "rubber duck".
//
// For each accepted answer of n words, every run of n consecutive transcript
// words is compared in two stages:
//
//  1. Phonetic filtering: Double Metaphone codes of the window and of the
//     answer must share at least one code. Such a window is accepted when its
//     Jaro-Winkler similarity to the answer reaches the phonetic threshold.
//
//  2. Fuzzy fallback: when no window is a phonetic candidate, a plain
//     Jaro-Winkler similarity above the higher fuzzy threshold is accepted.
//
// The best scoring answer wins. Phonetic candidates always beat fuzzy ones.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a window
// whose phonetic codes overlap the answer. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// overlap exists. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher matches transcripts against accepted answers. It is read-only
// after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match reports the answer that transcript most plausibly contains. When
// matched is false, answer is empty and confidence is 0.
func (m *Matcher) Match(transcript string, answers []string) (answer string, confidence float64, matched bool) {
	words := tokenize(transcript)
	if len(words) == 0 || len(answers) == 0 {
		return "", 0, false
	}

	type candidate struct {
		answer   string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, a := range answers {
		target := tokenize(a)
		if len(target) == 0 || len(target) > len(words) || !hasLetter(target) {
			continue
		}
		targetCodes := codesFor(target)
		targetFull := strings.Join(target, " ")

		for i := 0; i+len(target) <= len(words); i++ {
			window := words[i : i+len(target)]
			score := matchr.JaroWinkler(strings.Join(window, " "), targetFull, false)
			if overlap(codesFor(window), targetCodes) {
				if score >= m.phoneticThreshold && (!best.phonetic || score > best.score) {
					best = candidate{answer: a, score: score, phonetic: true}
				}
				continue
			}
			if !best.phonetic && score >= m.fuzzyThreshold && score > best.score {
				best = candidate{answer: a, score: score}
			}
		}
	}

	if best.answer == "" {
		return "", 0, false
	}
	return best.answer, best.score, true
}

// tokenize lower-cases s and splits it into words, dropping punctuation.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// hasLetter reports whether any word contains a letter. Pure numbers have no
// pronunciation to compare.
func hasLetter(words []string) bool {
	for _, w := range words {
		if strings.IndexFunc(w, unicode.IsLetter) >= 0 {
			return true
		}
	}
	return false
}

// codesFor returns the union of the Double Metaphone codes of words, without
// empty codes.
func codesFor(words []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(words)*2)
	for _, w := range words {
		p, s := matchr.DoubleMetaphone(w)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
