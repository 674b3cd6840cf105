package aggregate

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptrTime(t time.Time) *time.Time { return &t }
func ptrInt64(v int64) *int64        { return &v }

// S5: no canonical offers yields the empty shape.
func TestAggregate_EmptyShape(t *testing.T) {
	res := Aggregate(nil)
	assert.Equal(t, 0, res.UniqueOfferCount)
	assert.Equal(t, 0, res.OfferCount)
	assert.Equal(t, 0, res.MaxScore)
	assert.False(t, res.HasTopOffer)
	assert.Equal(t, 0, res.StrongOfferCount)
	assert.False(t, res.HasAvgStrongScore)
	assert.Nil(t, res.LastStrongAt)
	assert.Empty(t, res.CategoryMaxScores)
}

func TestAggregate_OnlyRepostsNoCanonical(t *testing.T) {
	dup := ptrInt64(99)
	res := Aggregate([]OfferView{
		{OfferID: 1, Score: 9, CanonicalOfferID: dup},
	})
	assert.Equal(t, 0, res.UniqueOfferCount)
	assert.False(t, res.HasTopOffer)
}

// S6: activity-weighted offer count. Three canonical offers with repost
// counts 3, 0, 2 give offerCount = (1+3)+(1+0)+(1+2) = 8, uniqueOfferCount = 3.
func TestAggregate_ActivityWeightedCount(t *testing.T) {
	res := Aggregate([]OfferView{
		{OfferID: 1, Score: 2, RepostCount: 3},
		{OfferID: 2, Score: 5, RepostCount: 0},
		{OfferID: 3, Score: 8, RepostCount: 2},
	})
	assert.Equal(t, 3, res.UniqueOfferCount)
	assert.Equal(t, 8, res.OfferCount)
	assert.Equal(t, 8, res.MaxScore)
	assert.True(t, res.HasTopOffer)
	assert.Equal(t, int64(3), res.TopOfferID)
}

func TestAggregate_TopOfferRecencyTieBreak(t *testing.T) {
	older := ptrTime(time.Now().Add(-48 * time.Hour))
	newer := ptrTime(time.Now())

	res := Aggregate([]OfferView{
		{OfferID: 1, Score: 7, TopCategoryID: "cat_a", PublishedAt: older},
		{OfferID: 2, Score: 7, TopCategoryID: "cat_b", PublishedAt: newer},
	})
	assert.True(t, res.HasTopOffer)
	assert.Equal(t, int64(2), res.TopOfferID)
	assert.Equal(t, "cat_b", res.TopCategoryID)
}

func TestAggregate_TopOfferNullsLast(t *testing.T) {
	withTime := ptrTime(time.Now().Add(-time.Hour))

	res := Aggregate([]OfferView{
		{OfferID: 1, Score: 5, PublishedAt: nil, UpdatedAt: nil},
		{OfferID: 2, Score: 5, PublishedAt: withTime},
	})
	assert.Equal(t, int64(2), res.TopOfferID)
}

func TestAggregate_CategoryMaxScores(t *testing.T) {
	res := Aggregate([]OfferView{
		{OfferID: 1, Score: 3, TopCategoryID: "cat_fx_rates"},
		{OfferID: 2, Score: 9, TopCategoryID: "cat_fx_rates"},
		{OfferID: 3, Score: 6, TopCategoryID: "cat_proxy_backend"},
	})
	assert.Equal(t, map[string]int{"cat_fx_rates": 9, "cat_proxy_backend": 6}, res.CategoryMaxScores)
}

func TestAggregate_StrongOfferAvgAndLastStrongAt(t *testing.T) {
	early := ptrTime(time.Now().Add(-72 * time.Hour))
	late := ptrTime(time.Now())

	res := Aggregate([]OfferView{
		{OfferID: 1, Score: 8, PublishedAt: early},
		{OfferID: 2, Score: 5, PublishedAt: late},
		{OfferID: 3, Score: 10, PublishedAt: late},
	})
	assert.Equal(t, 2, res.StrongOfferCount)
	assert.True(t, res.HasAvgStrongScore)
	assert.InDelta(t, 9.0, res.AvgStrongScore, 1e-9)
	assert.Equal(t, late, res.LastStrongAt)
}

func TestAggregate_LastStrongAtPrefersPublishedOverUpdated(t *testing.T) {
	published := ptrTime(time.Now().Add(-time.Hour))
	updated := ptrTime(time.Now())

	res := Aggregate([]OfferView{
		{OfferID: 1, Score: 8, PublishedAt: published, UpdatedAt: updated},
	})
	assert.Equal(t, published, res.LastStrongAt)
}

func TestAggregate_NoStrongOffers(t *testing.T) {
	res := Aggregate([]OfferView{
		{OfferID: 1, Score: 2},
		{OfferID: 2, Score: 6},
	})
	assert.Equal(t, 0, res.StrongOfferCount)
	assert.False(t, res.HasAvgStrongScore)
	assert.Nil(t, res.LastStrongAt)
}

// P8: the aggregate is a pure function of the multiset of canonical
// offers; permuting input order never changes the result.
func TestAggregate_PermutationInvariant(t *testing.T) {
	now := time.Now()
	base := []OfferView{
		{OfferID: 1, Score: 8, TopCategoryID: "cat_fx_rates", RepostCount: 1, PublishedAt: ptrTime(now.Add(-time.Hour))},
		{OfferID: 2, Score: 8, TopCategoryID: "cat_proxy_backend", RepostCount: 0, PublishedAt: ptrTime(now)},
		{OfferID: 3, Score: 3, TopCategoryID: "cat_fx_rates", RepostCount: 4, PublishedAt: ptrTime(now.Add(-2 * time.Hour))},
		{OfferID: 4, Score: 9, CanonicalOfferID: ptrInt64(1), RepostCount: 0},
	}

	want := Aggregate(base)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		perm := append([]OfferView{}, base...)
		rng.Shuffle(len(perm), func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })
		got := Aggregate(perm)
		assert.Equal(t, want, got)
	}
}
