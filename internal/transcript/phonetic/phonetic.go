// Package phonetic snaps misrecognized words to a known vocabulary.
//
// Every vocabulary entry is encoded once with Double Metaphone. A phrase is
// compared only with entries of the same word count, and it is a phonetic
// candidate for an entry when the two share at least one code. Among the
// candidates the entry with the best Jaro-Winkler similarity wins, provided
// it reaches the phonetic threshold. Without any phonetic candidate a
// stricter fuzzy threshold applies to plain string similarity.
//
// Multi-word phrases score as their weakest aligned word pair, so a phrase
// only matches when every word resembles its counterpart.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// minRunes keeps short function words ("a", "to") from being snapped.
	minRunes = 3
)

// Option configures a [Vocabulary].
type Option func(*Vocabulary)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching entry. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(v *Vocabulary) { v.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no entry
// matches phonetically. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(v *Vocabulary) { v.fuzzyThreshold = threshold }
}

type entry struct {
	text   string // as configured
	lower  string
	tokens []string
	codes  map[string]struct{}
}

// Vocabulary is a prepared word list. It is read-only after [New] and safe
// for concurrent use.
type Vocabulary struct {
	entries  []entry
	maxWords int

	phoneticThreshold float64
	fuzzyThreshold    float64
}

// Match is the result of a successful lookup.
type Match struct {
	// Entry is the vocabulary entry as configured.
	Entry string

	// Score is the Jaro-Winkler similarity in [0, 1].
	Score float64

	// Phonetic is true when the entry shared a Double Metaphone code with
	// the phrase.
	Phonetic bool
}

// New prepares words for matching. Blank entries are skipped.
func New(words []string, opts ...Option) *Vocabulary {
	v := &Vocabulary{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(v)
	}
	for _, w := range words {
		lower := strings.ToLower(strings.TrimSpace(w))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		v.entries = append(v.entries, entry{
			text:   strings.TrimSpace(w),
			lower:  strings.Join(tokens, " "),
			tokens: tokens,
			codes:  codes(tokens),
		})
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// Len returns the number of entries.
func (v *Vocabulary) Len() int { return len(v.entries) }

// MaxWords returns the word count of the longest entry, or 0 when empty.
func (v *Vocabulary) MaxWords() int { return v.maxWords }

// Match looks up the entry closest to phrase, which may span several words.
// An exact case-insensitive hit has score 1.
func (v *Vocabulary) Match(phrase string) (Match, bool) {
	tokens := strings.Fields(strings.ToLower(phrase))
	if len(tokens) == 0 || len(v.entries) == 0 {
		return Match{}, false
	}
	lower := strings.Join(tokens, " ")
	if len([]rune(strings.Join(tokens, ""))) < minRunes {
		return Match{}, false
	}

	in := codes(tokens)
	var best Match
	found := false
	for i := range v.entries {
		e := &v.entries[i]
		if len(e.tokens) != len(tokens) {
			continue
		}
		if e.lower == lower {
			return Match{Entry: e.text, Score: 1, Phonetic: true}, true
		}
		score := similarity(tokens, e.tokens)
		phonetic := overlaps(in, e.codes)

		switch {
		case phonetic && score >= v.phoneticThreshold:
			if !best.Phonetic || score > best.Score {
				best = Match{Entry: e.text, Score: score, Phonetic: true}
				found = true
			}
		case !phonetic && !best.Phonetic && score >= v.fuzzyThreshold:
			if score > best.Score {
				best = Match{Entry: e.text, Score: score}
				found = true
			}
		}
	}
	return best, found
}

func codes(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			out[p] = struct{}{}
		}
		if s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity scores two phrases of equal word count: the Jaro-Winkler
// similarity for single words, otherwise the weakest aligned word pair.
func similarity(a, b []string) float64 {
	score := 1.0
	for i := range a {
		score = min(score, matchr.JaroWinkler(a[i], b[i], false))
	}
	return score
}
