package matcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banasa44/fxsignal/internal/catalog"
)

func mustCatalog(t *testing.T, doc string) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load(strings.NewReader(doc))
	require.NoError(t, err)
	return cat
}

const testCatalog = `{
  "version": "v1",
  "categories": [{"id": "cat_fx_rates", "name": "FX", "tier": 3}],
  "keywords": [
    {"id": "kw_fx", "categoryId": "cat_fx_rates", "canonical": "fx trading", "aliases": ["fx trading"]}
  ],
  "phrases": [
    {"id": "ph_usd", "phrase": "paid in usd", "tier": 2}
  ]
}`

func TestMatch_FindsKeywordAndPhrase(t *testing.T) {
	cat := mustCatalog(t, testCatalog)
	res := Match(cat, "FX Trading Analyst", "You will be paid in USD monthly.")

	var keywordHits, phraseHits int
	for _, h := range res.Hits {
		if h.KeywordID == "kw_fx" {
			keywordHits++
			assert.Equal(t, FieldTitle, h.Field)
		}
		if h.PhraseID == "ph_usd" {
			phraseHits++
			assert.Equal(t, FieldDescription, h.Field)
		}
	}
	assert.Equal(t, 1, keywordHits)
	assert.Equal(t, 1, phraseHits)
	assert.Equal(t, 1, res.UniqueCategories)
	assert.Equal(t, 1, res.UniqueKeywords)
}

func TestMatch_NoHits(t *testing.T) {
	cat := mustCatalog(t, testCatalog)
	res := Match(cat, "Sales Representative", "Join our retail team.")
	assert.Empty(t, res.Hits)
	assert.Equal(t, 0, res.UniqueCategories)
}

func TestMatch_NegationWithinWindow(t *testing.T) {
	cat := mustCatalog(t, testCatalog)
	res := Match(cat, "Analyst", "This role does not involve fx trading at all.")
	require.Len(t, res.Hits, 1)
	assert.True(t, res.Hits[0].IsNegated)
}

func TestMatch_NegationOutsideWindow(t *testing.T) {
	cat := mustCatalog(t, testCatalog)
	// "not" is far more than windowBefore=3 tokens away from the hit.
	res := Match(cat, "Analyst", "Not a requirement at all for this particular fx trading role.")
	require.Len(t, res.Hits, 1)
	assert.False(t, res.Hits[0].IsNegated)
}

func TestMatch_MetadataCountedBeforeNegationFilter(t *testing.T) {
	cat := mustCatalog(t, testCatalog)
	res := Match(cat, "No fx trading here", "")
	require.Len(t, res.Hits, 1)
	assert.True(t, res.Hits[0].IsNegated)
	assert.Equal(t, 1, res.UniqueKeywords)
	assert.Equal(t, 1, res.UniqueCategories)
}
