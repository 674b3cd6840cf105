package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `{
  "version": "v1",
  "categories": [
    {"id": "cat_fx_rates", "name": "FX rates", "tier": 3},
    {"id": "cat_proxy_backend", "name": "Backend proxy", "tier": 1}
  ],
  "keywords": [
    {"id": "kw_fx", "categoryId": "cat_fx_rates", "canonical": "fx trading", "aliases": ["FX trading", "fx-trading", "forex trading"]},
    {"id": "kw_go", "categoryId": "cat_proxy_backend", "canonical": "golang", "aliases": ["Go", "Golang"]}
  ],
  "phrases": [
    {"id": "ph_remote_usd", "phrase": "paid in USD", "tier": 2}
  ]
}`

func TestLoad_Valid(t *testing.T) {
	cat, err := Load(strings.NewReader(validDoc))
	require.NoError(t, err)
	assert.Equal(t, "v1", cat.Version)
	assert.Len(t, cat.Categories, 2)
	require.Len(t, cat.Keywords, 2)
	require.Len(t, cat.Phrases, 1)

	fxKW := cat.Keywords[0]
	// "FX trading" and "fx-trading" both normalize to [fx trading] and
	// are deduplicated; "forex trading" survives as a distinct sequence.
	assert.Len(t, fxKW.AliasTokens, 2)
}

func TestLoad_DuplicateCategoryID(t *testing.T) {
	doc := `{"version":"v1","categories":[{"id":"a","name":"A","tier":1},{"id":"a","name":"B","tier":2}],"keywords":[{"id":"k","categoryId":"a","canonical":"x","aliases":["x"]}],"phrases":[]}`
	_, err := Load(strings.NewReader(doc))
	assert.Error(t, err)
}

func TestLoad_UnknownCategoryReference(t *testing.T) {
	doc := `{"version":"v1","categories":[{"id":"a","name":"A","tier":1}],"keywords":[{"id":"k","categoryId":"missing","canonical":"x","aliases":["x"]}],"phrases":[]}`
	_, err := Load(strings.NewReader(doc))
	assert.Error(t, err)
}

func TestLoad_BadTier(t *testing.T) {
	doc := `{"version":"v1","categories":[{"id":"a","name":"A","tier":4}],"keywords":[{"id":"k","categoryId":"a","canonical":"x","aliases":["x"]}],"phrases":[]}`
	_, err := Load(strings.NewReader(doc))
	assert.Error(t, err)
}

func TestLoad_AliasNormalizesToZeroTokens(t *testing.T) {
	doc := `{"version":"v1","categories":[{"id":"a","name":"A","tier":1}],"keywords":[{"id":"k","categoryId":"a","canonical":"x","aliases":["---"]}],"phrases":[]}`
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zero tokens")
}

func TestLoad_EmptyPhrasesAllowed(t *testing.T) {
	doc := `{"version":"v1","categories":[{"id":"a","name":"A","tier":1}],"keywords":[{"id":"k","categoryId":"a","canonical":"x","aliases":["x"]}],"phrases":[]}`
	cat, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Empty(t, cat.Phrases)
}
