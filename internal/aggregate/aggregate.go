// Package aggregate implements the per-company aggregator (C6): a pure
// function over a company's offers (each already scored) producing the
// activity-weighted counts, top offer, category profile, and freshness
// signals persisted on the Company row.
package aggregate

import "time"

// OfferView is the minimal per-offer projection the aggregator needs.
// CanonicalOfferID is nil for canonical offers.
type OfferView struct {
	OfferID          int64
	Score            int
	TopCategoryID    string
	CanonicalOfferID *int64
	RepostCount      int
	PublishedAt      *time.Time
	UpdatedAt        *time.Time
}

// StrongThreshold is the minimum score (§4.6, §GLOSSARY) for an offer
// to count as "strong".
const StrongThreshold = 7

// Result is the full aggregate shape persisted on Company (§4.6).
type Result struct {
	UniqueOfferCount  int
	OfferCount        int
	MaxScore          int
	TopOfferID        int64
	HasTopOffer       bool
	TopCategoryID     string
	StrongOfferCount  int
	AvgStrongScore    float64
	HasAvgStrongScore bool
	CategoryMaxScores map[string]int
	LastStrongAt      *time.Time
}

// Aggregate computes Result over all of a company's offers. It is pure:
// given the same multiset of OfferView it returns the same Result
// regardless of input order (§8 P8); only tie-breaks consult timestamps
// and ids, which are themselves stable.
func Aggregate(offers []OfferView) Result {
	canonical := make([]OfferView, 0, len(offers))
	for _, o := range offers {
		if o.CanonicalOfferID == nil {
			canonical = append(canonical, o)
		}
	}

	result := Result{CategoryMaxScores: map[string]int{}}
	if len(canonical) == 0 {
		return result
	}

	result.UniqueOfferCount = len(canonical)

	var topOffer *OfferView
	var strongScoreSum int
	var lastStrongAt *time.Time

	for i := range canonical {
		o := &canonical[i]
		result.OfferCount += 1 + o.RepostCount

		switch {
		case topOffer == nil || o.Score > topOffer.Score:
			topOffer = o
		case o.Score == topOffer.Score && isMoreRecent(o, topOffer):
			topOffer = o
		}

		if o.TopCategoryID != "" {
			if cur, ok := result.CategoryMaxScores[o.TopCategoryID]; !ok || o.Score > cur {
				result.CategoryMaxScores[o.TopCategoryID] = o.Score
			}
		}

		if o.Score >= StrongThreshold {
			result.StrongOfferCount++
			strongScoreSum += o.Score

			candidate := preferPublished(o)
			if candidate != nil && (lastStrongAt == nil || candidate.After(*lastStrongAt)) {
				lastStrongAt = candidate
			}
		}
	}

	if topOffer != nil {
		result.HasTopOffer = true
		result.TopOfferID = topOffer.OfferID
		result.TopCategoryID = topOffer.TopCategoryID
		result.MaxScore = topOffer.Score
	}

	if result.StrongOfferCount > 0 {
		result.HasAvgStrongScore = true
		result.AvgStrongScore = float64(strongScoreSum) / float64(result.StrongOfferCount)
	}

	result.LastStrongAt = lastStrongAt

	return result
}

// isMoreRecent breaks the top-offer tie by publishedAt then updatedAt,
// nulls last (§4.6), and finally by the smaller OfferID.
func isMoreRecent(a, b *OfferView) bool {
	at, aok := preferPublishedThenUpdated(a)
	bt, bok := preferPublishedThenUpdated(b)
	switch {
	case aok && !bok:
		return true
	case !aok && bok:
		return false
	case aok && bok && !at.Equal(*bt):
		return at.After(*bt)
	default:
		return a.OfferID < b.OfferID
	}
}

func preferPublishedThenUpdated(o *OfferView) (*time.Time, bool) {
	if o.PublishedAt != nil {
		return o.PublishedAt, true
	}
	if o.UpdatedAt != nil {
		return o.UpdatedAt, true
	}
	return nil, false
}

// preferPublished implements lastStrongAt's "publishedAt ?? updatedAt".
func preferPublished(o *OfferView) *time.Time {
	if o.PublishedAt != nil {
		return o.PublishedAt
	}
	return o.UpdatedAt
}
