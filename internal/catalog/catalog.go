// Package catalog loads and compiles the static keyword/phrase/category
// document (C2) that the matcher and scorer run against.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/banasa44/fxsignal/internal/errs"
	"github.com/banasa44/fxsignal/internal/normalize"
)

// Tier is one of the three scoring tiers; validated to {1,2,3} on load.
type Tier int

// Category groups keywords under a tier and a bucket-determining id
// prefix (see internal/scorer for the prefix→bucket mapping).
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Tier Tier   `json:"tier"`
}

// Keyword is a concept with one canonical form and one or more
// surface aliases.
type Keyword struct {
	ID         string   `json:"id"`
	CategoryID string   `json:"categoryId"`
	Canonical  string   `json:"canonical"`
	Aliases    []string `json:"aliases"`
}

// Phrase is a tier-weighted multi-word cue independent of any category.
type Phrase struct {
	ID     string `json:"id"`
	Phrase string `json:"phrase"`
	Tier   Tier   `json:"tier"`
}

// document is the raw, uncompiled wire shape.
type document struct {
	Version    string     `json:"version"`
	Categories []Category `json:"categories"`
	Keywords   []Keyword  `json:"keywords"`
	Phrases    []Phrase   `json:"phrases"`
}

// CompiledKeyword carries the keyword plus, per surviving (deduped)
// alias, its token sequence.
type CompiledKeyword struct {
	Keyword
	AliasTokens [][]string
}

// CompiledPhrase carries the phrase plus its token sequence.
type CompiledPhrase struct {
	Phrase
	Tokens []string
}

// Catalog is the runtime, compiled form consumed by the matcher/scorer.
type Catalog struct {
	Version    string
	Categories map[string]Category
	// CategoryOrder preserves the document's original category order,
	// used to break scoring ties deterministically (§4.4 step 10).
	CategoryOrder []string
	Keywords      []CompiledKeyword
	Phrases       []CompiledPhrase
}

// Load reads, validates, and compiles a catalog document from r.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, errs.Config("catalog", fmt.Errorf("decode catalog document: %w", err))
	}
	return compile(&doc)
}

func validate(doc *document) error {
	if len(doc.Categories) == 0 {
		return fmt.Errorf("categories: must be non-empty")
	}
	if len(doc.Keywords) == 0 {
		return fmt.Errorf("keywords: must be non-empty")
	}
	// phrases is required as a key but may be empty — doc.Phrases being
	// nil after JSON decode of a missing key is indistinguishable from
	// `"phrases": []`, so there is nothing further to enforce here.

	seenCategoryIDs := make(map[string]bool, len(doc.Categories))
	for i, c := range doc.Categories {
		path := fmt.Sprintf("categories[%d]", i)
		if c.ID == "" {
			return fmt.Errorf("%s.id: must be non-empty", path)
		}
		if c.Name == "" {
			return fmt.Errorf("%s.name: must be non-empty", path)
		}
		if c.Tier != 1 && c.Tier != 2 && c.Tier != 3 {
			return fmt.Errorf("%s.tier: must be 1, 2, or 3, got %d", path, c.Tier)
		}
		if seenCategoryIDs[c.ID] {
			return fmt.Errorf("%s.id: duplicate category id %q", path, c.ID)
		}
		seenCategoryIDs[c.ID] = true
	}

	seenKeywordIDs := make(map[string]bool, len(doc.Keywords))
	for i, k := range doc.Keywords {
		path := fmt.Sprintf("keywords[%d]", i)
		if k.ID == "" {
			return fmt.Errorf("%s.id: must be non-empty", path)
		}
		if k.CategoryID == "" {
			return fmt.Errorf("%s.categoryId: must be non-empty", path)
		}
		if k.Canonical == "" {
			return fmt.Errorf("%s.canonical: must be non-empty", path)
		}
		if len(k.Aliases) == 0 {
			return fmt.Errorf("%s.aliases: must be non-empty", path)
		}
		if seenKeywordIDs[k.ID] {
			return fmt.Errorf("%s.id: duplicate keyword id %q", path, k.ID)
		}
		seenKeywordIDs[k.ID] = true
		if !seenCategoryIDs[k.CategoryID] {
			return fmt.Errorf("%s.categoryId: unknown category %q", path, k.CategoryID)
		}
	}

	seenPhraseIDs := make(map[string]bool, len(doc.Phrases))
	for i, p := range doc.Phrases {
		path := fmt.Sprintf("phrases[%d]", i)
		if p.ID == "" {
			return fmt.Errorf("%s.id: must be non-empty", path)
		}
		if p.Phrase == "" {
			return fmt.Errorf("%s.phrase: must be non-empty", path)
		}
		if p.Tier != 1 && p.Tier != 2 && p.Tier != 3 {
			return fmt.Errorf("%s.tier: must be 1, 2, or 3, got %d", path, p.Tier)
		}
		if seenPhraseIDs[p.ID] {
			return fmt.Errorf("%s.id: duplicate phrase id %q", path, p.ID)
		}
		seenPhraseIDs[p.ID] = true
	}

	return nil
}

func compile(doc *document) (*Catalog, error) {
	if err := validate(doc); err != nil {
		return nil, errs.Config("catalog", err)
	}

	categories := make(map[string]Category, len(doc.Categories))
	categoryOrder := make([]string, 0, len(doc.Categories))
	for _, c := range doc.Categories {
		categories[c.ID] = c
		categoryOrder = append(categoryOrder, c.ID)
	}

	keywords := make([]CompiledKeyword, 0, len(doc.Keywords))
	for _, k := range doc.Keywords {
		seen := make(map[string]bool)
		var aliasTokens [][]string
		for _, alias := range k.Aliases {
			tokens := normalize.Tokens(alias)
			if len(tokens) == 0 {
				return nil, errs.Config("catalog", fmt.Errorf(
					"keyword %q alias %q normalizes to zero tokens", k.ID, alias))
			}
			key := fmt.Sprintf("%v", tokens)
			if seen[key] {
				continue
			}
			seen[key] = true
			aliasTokens = append(aliasTokens, tokens)
		}
		keywords = append(keywords, CompiledKeyword{Keyword: k, AliasTokens: aliasTokens})
	}

	phrases := make([]CompiledPhrase, 0, len(doc.Phrases))
	for _, p := range doc.Phrases {
		tokens := normalize.Tokens(p.Phrase)
		if len(tokens) == 0 {
			return nil, errs.Config("catalog", fmt.Errorf(
				"phrase %q normalizes to zero tokens", p.ID))
		}
		phrases = append(phrases, CompiledPhrase{Phrase: p, Tokens: tokens})
	}

	return &Catalog{
		Version:       doc.Version,
		Categories:    categories,
		CategoryOrder: categoryOrder,
		Keywords:      keywords,
		Phrases:       phrases,
	}, nil
}
