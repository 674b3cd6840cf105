// Package scorer implements the catalog-driven scorer (C4): tier ×
// field weighting, per-category dedup, bucket caps, and the no-FX
// guard, operating purely on a matcher.Result and a compiled catalog.
package scorer

import (
	"sort"
	"strings"

	"github.com/banasa44/fxsignal/internal/catalog"
	"github.com/banasa44/fxsignal/internal/matcher"
)

// Bucket is one of the four category buckets determined by category id
// prefix (spec §4.4 step 3).
type Bucket string

const (
	BucketDirectFX       Bucket = "direct_fx"
	BucketIntlFootprint  Bucket = "intl_footprint"
	BucketBusinessModel  Bucket = "business_model"
	BucketTechProxy      Bucket = "tech_proxy"
)

// Tuning holds every numeric knob spec §9 leaves implementation-defined.
// Values are fixed in DESIGN.md's Open Question resolutions.
type Tuning struct {
	TierWeight       map[catalog.Tier]float64
	FieldWeight      map[matcher.Field]float64
	PhraseTierWeight map[catalog.Tier]float64
	BucketCap        map[Bucket]float64

	FXCoreThreshold float64
	NoFXMaxScore    float64
}

// DefaultTuning is the scoring configuration used in production runs.
func DefaultTuning() Tuning {
	return Tuning{
		TierWeight: map[catalog.Tier]float64{1: 1.0, 2: 1.5, 3: 2.2},
		FieldWeight: map[matcher.Field]float64{
			matcher.FieldTitle:       1.5,
			matcher.FieldDescription: 1.0,
		},
		PhraseTierWeight: map[catalog.Tier]float64{1: 1.2, 2: 1.8, 3: 2.5},
		BucketCap: map[Bucket]float64{
			BucketDirectFX:      5,
			BucketIntlFootprint: 3,
			BucketBusinessModel: 2,
			BucketTechProxy:     2,
		},
		FXCoreThreshold: 3.0,
		NoFXMaxScore:    4,
	}
}

// CategoryContribution is one category's surviving score contribution.
type CategoryContribution struct {
	CategoryID string
	HitCount   int
	Points     float64
}

// PhraseContribution is one phrase's surviving score contribution.
type PhraseContribution struct {
	PhraseID string
	HitCount int
	Points   float64
}

// Reasons is the full audit trail the scorer attaches to each result.
type Reasons struct {
	RawScore   float64
	FinalScore int

	CategoryContributions []CategoryContribution
	PhraseContributions   []PhraseContribution

	UniqueCategories int
	UniqueKeywords   int
	NegatedKeywords  int
	NegatedPhrases   int

	BucketScores map[Bucket]float64
	FXCore       bool
	NoFXGuardHit bool
}

// Result is the scorer's output for one offer.
type Result struct {
	Score         int
	TopCategoryID string
	Reasons       Reasons
}

// BucketFor maps a category id to its bucket by prefix (§4.4 step 3).
func BucketFor(categoryID string) Bucket {
	switch {
	case strings.HasPrefix(categoryID, "cat_fx_"):
		return BucketDirectFX
	case strings.HasPrefix(categoryID, "cat_intl_"):
		return BucketIntlFootprint
	case strings.HasPrefix(categoryID, "cat_biz_"):
		return BucketBusinessModel
	default:
		return BucketTechProxy
	}
}

// Score runs the full C4 pipeline over a matcher.Result.
func Score(cat *catalog.Catalog, res matcher.Result, tuning Tuning) Result {
	// Step 1: negation gating, with counts preserved for the audit trail.
	var liveKeywordHits, livePhraseHits []matcher.Hit
	negatedKeywords, negatedPhrases := 0, 0
	for _, h := range res.Hits {
		isPhrase := h.PhraseID != ""
		if h.IsNegated {
			if isPhrase {
				negatedPhrases++
			} else {
				negatedKeywords++
			}
			continue
		}
		if isPhrase {
			livePhraseHits = append(livePhraseHits, h)
		} else {
			liveKeywordHits = append(liveKeywordHits, h)
		}
	}

	// Step 2: per-category contribution, keeping only the max per hit,
	// then step 3: bucket sums (pre-cap) for FX-core detection.
	categoryOrder, categoryHitCount, categoryPoints := perCategoryMax(cat, liveKeywordHits, tuning)

	bucketSums := make(map[Bucket]float64)
	for _, catID := range categoryOrder {
		bucketSums[BucketFor(catID)] += categoryPoints[catID]
	}

	// Step 4: FX core detection, computed before caps are applied.
	fxCore := bucketSums[BucketDirectFX] >= tuning.FXCoreThreshold

	// Step 5: bucket caps.
	cappedBuckets := make(map[Bucket]float64, len(bucketSums))
	for b, sum := range bucketSums {
		cap := tuning.BucketCap[b]
		if sum > cap {
			sum = cap
		}
		cappedBuckets[b] = sum
	}

	// Step 6: phrase contribution.
	phraseOrder, phraseHitCount, phrasePoints := perPhraseMax(livePhraseHits, cat, tuning)
	var phraseSum float64
	for _, id := range phraseOrder {
		phraseSum += phrasePoints[id]
	}

	// Step 7: raw score.
	var raw float64
	for _, v := range cappedBuckets {
		raw += v
	}
	raw += phraseSum

	// Step 8: no-FX guard.
	noFXGuardHit := false
	if !fxCore && raw > tuning.NoFXMaxScore {
		raw = tuning.NoFXMaxScore
		noFXGuardHit = true
	}

	// Step 9: final score.
	final := clampRound(raw)

	// Step 10: top category, by points desc then catalog insertion order.
	topCategoryID := topCategory(cat, categoryOrder, categoryPoints)

	contributions := make([]CategoryContribution, 0, len(categoryOrder))
	for _, id := range categoryOrder {
		contributions = append(contributions, CategoryContribution{
			CategoryID: id,
			HitCount:   categoryHitCount[id],
			Points:     categoryPoints[id],
		})
	}
	sort.SliceStable(contributions, func(i, j int) bool {
		return contributions[i].Points > contributions[j].Points
	})

	phraseContribs := make([]PhraseContribution, 0, len(phraseOrder))
	for _, id := range phraseOrder {
		phraseContribs = append(phraseContribs, PhraseContribution{
			PhraseID: id,
			HitCount: phraseHitCount[id],
			Points:   phrasePoints[id],
		})
	}
	sort.SliceStable(phraseContribs, func(i, j int) bool {
		return phraseContribs[i].Points > phraseContribs[j].Points
	})

	return Result{
		Score:         final,
		TopCategoryID: topCategoryID,
		Reasons: Reasons{
			RawScore:              raw,
			FinalScore:            final,
			CategoryContributions: contributions,
			PhraseContributions:   phraseContribs,
			UniqueCategories:      res.UniqueCategories,
			UniqueKeywords:        res.UniqueKeywords,
			NegatedKeywords:       negatedKeywords,
			NegatedPhrases:        negatedPhrases,
			BucketScores:          cappedBuckets,
			FXCore:                fxCore,
			NoFXGuardHit:          noFXGuardHit,
		},
	}
}

// perCategoryMax keeps, per category, only the hit with the maximum
// tier×field points, and returns ids in first-seen (catalog scan)
// order so downstream tie-breaks are stable.
func perCategoryMax(cat *catalog.Catalog, hits []matcher.Hit, tuning Tuning) (order []string, count map[string]int, points map[string]float64) {
	count = make(map[string]int)
	points = make(map[string]float64)
	seen := make(map[string]bool)

	for _, h := range hits {
		category, ok := cat.Categories[h.CategoryID]
		if !ok {
			continue
		}
		p := tuning.TierWeight[category.Tier] * tuning.FieldWeight[h.Field]
		if !seen[h.CategoryID] {
			seen[h.CategoryID] = true
			order = append(order, h.CategoryID)
		}
		count[h.CategoryID]++
		if p > points[h.CategoryID] {
			points[h.CategoryID] = p
		}
	}
	return order, count, points
}

func perPhraseMax(hits []matcher.Hit, cat *catalog.Catalog, tuning Tuning) (order []string, count map[string]int, points map[string]float64) {
	phraseTier := make(map[string]catalog.Tier, len(cat.Phrases))
	for _, p := range cat.Phrases {
		phraseTier[p.ID] = p.Tier
	}

	count = make(map[string]int)
	points = make(map[string]float64)
	seen := make(map[string]bool)

	for _, h := range hits {
		tier, ok := phraseTier[h.PhraseID]
		if !ok {
			continue
		}
		p := tuning.PhraseTierWeight[tier] * tuning.FieldWeight[h.Field]
		if !seen[h.PhraseID] {
			seen[h.PhraseID] = true
			order = append(order, h.PhraseID)
		}
		count[h.PhraseID]++
		if p > points[h.PhraseID] {
			points[h.PhraseID] = p
		}
	}
	return order, count, points
}

// topCategory picks the category with the highest contribution,
// breaking ties by the catalog document's own category order (§4.4
// step 10: "insertion order of the sorted category list").
func topCategory(cat *catalog.Catalog, order []string, points map[string]float64) string {
	if len(order) == 0 {
		return ""
	}

	rank := make(map[string]int, len(cat.CategoryOrder))
	for i, id := range cat.CategoryOrder {
		rank[id] = i
	}

	best := order[0]
	bestPoints := points[best]
	for _, id := range order[1:] {
		switch {
		case points[id] > bestPoints:
			best, bestPoints = id, points[id]
		case points[id] == bestPoints && rank[id] < rank[best]:
			best = id
		}
	}
	return best
}

func clampRound(raw float64) int {
	if raw < 0 {
		raw = 0
	}
	if raw > 10 {
		raw = 10
	}
	return int(raw + 0.5)
}
