// Package moderation screens the free text a participant attaches to a chat
// request (display name and interest tags) before it is shown to a partner.
// Relayed signaling and chat payloads are never inspected.
package moderation

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// FilterResult is the outcome of screening one piece of text.
type FilterResult struct {
	Blocked bool
	Reason  string // "blocked_keyword" or "spam_pattern"
	Term    string // matched term or spam check name
}

// defaultTerms is the built-in blocklist. A term matches when it starts and
// ends on word boundaries; spacing and punctuation inside it are ignored.
var defaultTerms = []string{
	"kys", "pedo", "rape", "nudes",
	"kill yourself", "go die", "send nudes", "child porn",
	"heil hitler", "bomb threat", "free bitcoin", "crypto giveaway",
}

// Filter holds a compiled blocklist automaton. It is immutable after
// construction and safe for concurrent use.
type Filter struct {
	matcher *goahocorasick.Machine
	terms   map[string]string // normalized pattern -> term as configured
}

// textMapping is normalized text plus the word boundaries of each rune.
type textMapping struct {
	normalized []rune
	wordStart  []bool
	wordEnd    []bool
}

// NewFilter returns a filter with the built-in blocklist.
func NewFilter() *Filter {
	f, err := NewFilterWithTerms(defaultTerms)
	if err != nil {
		panic(err)
	}
	return f
}

// NewFilterWithTerms builds the automaton for the given terms. Blank terms
// are ignored.
func NewFilterWithTerms(terms []string) (*Filter, error) {
	f := &Filter{terms: make(map[string]string)}
	for _, term := range terms {
		display := strings.Join(tokenizePlain(term), " ")
		if display == "" {
			continue
		}
		f.terms[string(normalizeRunes([]rune(display)))] = display
	}
	if len(f.terms) == 0 {
		return f, nil
	}

	keys := lo.Keys(f.terms)
	slices.Sort(keys)
	patterns := lo.Map(keys, func(k string, _ int) []rune { return []rune(k) })

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, fmt.Errorf("moderation: build blocklist: %w", err)
	}
	f.matcher = m
	return f, nil
}

// Check screens text against the blocklist, first as written and then with
// leetspeak undone, and finally against the spam patterns.
func (f *Filter) Check(text string) FilterResult {
	if text == "" {
		return FilterResult{}
	}
	for _, simplify := range []func(rune) rune{keepRune, simplifyRune} {
		if term, ok := f.match(normalize(text, simplify)); ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: term}
		}
	}
	return checkSpamPatterns(text)
}

// CheckName returns name unchanged when it is acceptable and "" otherwise, so
// the caller falls back to the anonymous default.
func (f *Filter) CheckName(name string) string {
	if f.Check(name).Blocked {
		return ""
	}
	return name
}

// CheckInterests returns the interests that pass Check, in order.
func (f *Filter) CheckInterests(interests []string) []string {
	clean := make([]string, 0, len(interests))
	for _, interest := range interests {
		if !f.Check(interest).Blocked {
			clean = append(clean, interest)
		}
	}
	return clean
}

// match returns the first blocklist hit that covers whole words.
func (f *Filter) match(text textMapping) (string, bool) {
	if f.matcher == nil || len(text.normalized) == 0 {
		return "", false
	}
	for _, span := range f.matcher.MultiPatternSearch(text.normalized, false) {
		start, end := span.Pos, span.Pos+len(span.Word)-1
		if start < 0 || end >= len(text.normalized) {
			continue
		}
		if text.wordStart[start] && text.wordEnd[end] {
			return f.terms[string(span.Word)], true
		}
	}
	return "", false
}

// normalize lowercases text, drops noise runes and records which of the
// remaining runes open or close a word.
func normalize(text string, simplify func(rune) rune) textMapping {
	var m textMapping
	afterNoise := true
	for _, r := range text {
		r = simplify(r)
		if isNoise(r) {
			if n := len(m.normalized); n > 0 {
				m.wordEnd[n-1] = true
			}
			afterNoise = true
			continue
		}
		m.normalized = append(m.normalized, unicode.ToLower(r))
		m.wordStart = append(m.wordStart, afterNoise)
		m.wordEnd = append(m.wordEnd, false)
		afterNoise = false
	}
	if n := len(m.normalized); n > 0 {
		m.wordEnd[n-1] = true
	}
	return m
}

// normalizeRunes turns a blocklist term into its automaton pattern.
func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

func normalizeLeet(s string) string {
	return strings.Map(simplifyRune, s)
}

// simplifyRune maps common leetspeak characters back to letters.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	case '7':
		return 't'
	default:
		return r
	}
}

func keepRune(r rune) rune { return r }

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) || unicode.IsControl(r)
}

// tokenizePlain lowercases text and splits it on anything that is not a
// letter or digit.
func tokenizePlain(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
