package transcript

import (
	"strings"
	"unicode"

	"github.com/MrWong99/pushtalk/internal/transcript/phonetic"
)

// Correction records one substitution made by a [Corrector].
type Correction struct {
	Original  string
	Corrected string
	Score     float64
}

// Corrector replaces words and phrases that sound like a vocabulary entry
// with that entry. Longer entries take precedence over shorter ones at the
// same position. Punctuation around a replaced phrase is kept.
type Corrector struct {
	vocab *phonetic.Vocabulary
}

// NewCorrector prepares words for correction. A nil or empty list yields a
// corrector that returns its input unchanged.
func NewCorrector(words []string, opts ...phonetic.Option) *Corrector {
	return &Corrector{vocab: phonetic.New(words, opts...)}
}

// Len returns the vocabulary size.
func (c *Corrector) Len() int { return c.vocab.Len() }

// Correct returns text with matching spans replaced, and the replacements
// made in order. Whitespace between tokens is normalized to single spaces.
func (c *Corrector) Correct(text string) (string, []Correction) {
	maxN := c.vocab.MaxWords()
	if maxN == 0 {
		return text, nil
	}
	toks := tokenize(text)
	if len(toks) == 0 {
		return text, nil
	}

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(toks); {
		n, m, ok := c.longestMatch(toks[i:], maxN)
		if !ok {
			out = append(out, toks[i].raw)
			i++
			continue
		}
		span := toks[i : i+n]
		original := joinCores(span)
		if m.Entry != original {
			corrections = append(corrections, Correction{Original: original, Corrected: m.Entry, Score: m.Score})
		}
		out = append(out, span[0].prefix+m.Entry+span[n-1].suffix)
		i += n
	}
	return strings.Join(out, " "), corrections
}

// longestMatch tries windows of maxN words down to one. A window may not
// extend past a token that ends in punctuation.
func (c *Corrector) longestMatch(toks []token, maxN int) (int, phonetic.Match, bool) {
	limit := min(maxN, len(toks))
	for i := range limit {
		if i > 0 && toks[i].prefix != "" {
			limit = i
			break
		}
		if toks[i].suffix != "" {
			limit = i + 1
			break
		}
	}
	for n := limit; n >= 1; n-- {
		if m, ok := c.vocab.Match(joinCores(toks[:n])); ok {
			return n, m, true
		}
	}
	return 0, phonetic.Match{}, false
}

// token is one whitespace-separated word split into leading punctuation,
// the word itself and trailing punctuation.
type token struct {
	raw    string
	prefix string
	core   string
	suffix string
}

func tokenize(text string) []token {
	fields := strings.Fields(text)
	out := make([]token, 0, len(fields))
	for _, f := range fields {
		core := strings.TrimFunc(f, unicode.IsPunct)
		if core == "" {
			out = append(out, token{raw: f, prefix: f})
			continue
		}
		start := strings.Index(f, core)
		out = append(out, token{
			raw:    f,
			prefix: f[:start],
			core:   core,
			suffix: f[start+len(core):],
		})
	}
	return out
}

func joinCores(toks []token) string {
	parts := make([]string, 0, len(toks))
	for _, t := range toks {
		if t.core != "" {
			parts = append(parts, t.core)
		}
	}
	return strings.Join(parts, " ")
}
