// Package matcher implements the consecutive-token matcher (C3): it
// scans a title and description for keyword alias and phrase hits, and
// annotates each hit as negated or not. Intentionally O(N·K) per spec
// §9's design note — a trie/Aho-Corasick automaton is a valid future
// optimization this API does not preclude.
package matcher

import (
	"github.com/banasa44/fxsignal/internal/catalog"
	"github.com/banasa44/fxsignal/internal/normalize"
)

// Field identifies which offer field a hit was found in.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
)

// Hit is one matched alias or phrase occurrence.
type Hit struct {
	KeywordID    string // empty for phrase hits
	PhraseID     string // empty for keyword hits
	CategoryID   string // empty for phrase hits
	Field        Field
	TokenIndex   int
	MatchedTokens []string
	IsNegated    bool
}

// Result is the matcher's full output for one offer.
type Result struct {
	Hits             []Hit
	UniqueCategories int
	UniqueKeywords   int
}

// negationWindow controls how many tokens before/after a hit are
// scanned for a negation cue. Both are fixed, positive configuration
// per spec §4.3 (typical value 3).
const (
	windowBefore = 3
	windowAfter  = 3
)

// negationCues is the hand-curated list of English and Spanish
// negation markers.
var negationCues = map[string]bool{
	"no":      true,
	"not":     true,
	"without": true,
	"sin":     true,
	"never":   true,
	"none":    true,
	"excludes": true,
	"excluding": true,
}

// Match runs the matcher over an offer's title and description.
func Match(cat *catalog.Catalog, title, description string) Result {
	titleTokens := normalize.Tokens(title)
	descTokens := normalize.Tokens(description)

	var hits []Hit
	hits = append(hits, scanField(cat, FieldTitle, titleTokens)...)
	hits = append(hits, scanField(cat, FieldDescription, descTokens)...)

	uniqueCategories := make(map[string]bool)
	uniqueKeywords := make(map[string]bool)
	for _, h := range hits {
		if h.CategoryID != "" {
			uniqueCategories[h.CategoryID] = true
		}
		if h.KeywordID != "" {
			uniqueKeywords[h.KeywordID] = true
		}
	}

	return Result{
		Hits:             hits,
		UniqueCategories: len(uniqueCategories),
		UniqueKeywords:   len(uniqueKeywords),
	}
}

func scanField(cat *catalog.Catalog, field Field, tokens []string) []Hit {
	var hits []Hit

	for i := range tokens {
		for _, kw := range cat.Keywords {
			for _, aliasTokens := range kw.AliasTokens {
				if matchesAt(tokens, i, aliasTokens) {
					hits = append(hits, Hit{
						KeywordID:     kw.ID,
						CategoryID:    kw.CategoryID,
						Field:         field,
						TokenIndex:    i,
						MatchedTokens: aliasTokens,
						IsNegated:     isNegated(tokens, i, len(aliasTokens)),
					})
				}
			}
		}
		for _, ph := range cat.Phrases {
			if matchesAt(tokens, i, ph.Tokens) {
				hits = append(hits, Hit{
					PhraseID:      ph.ID,
					Field:         field,
					TokenIndex:    i,
					MatchedTokens: ph.Tokens,
					IsNegated:     isNegated(tokens, i, len(ph.Tokens)),
				})
			}
		}
	}

	return hits
}

func matchesAt(tokens []string, i int, pattern []string) bool {
	if len(pattern) == 0 || i+len(pattern) > len(tokens) {
		return false
	}
	for j, want := range pattern {
		if tokens[i+j] != want {
			return false
		}
	}
	return true
}

func isNegated(tokens []string, start, length int) bool {
	lo := start - windowBefore
	if lo < 0 {
		lo = 0
	}
	hi := start + length + windowAfter
	if hi > len(tokens) {
		hi = len(tokens)
	}

	for i := lo; i < start; i++ {
		if negationCues[tokens[i]] {
			return true
		}
	}
	for i := start + length; i < hi; i++ {
		if negationCues[tokens[i]] {
			return true
		}
	}
	return false
}
