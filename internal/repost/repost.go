// Package repost implements the repost/duplicate detector (C5): an
// exact-title fast path followed by a multiset description-overlap
// fallback. The fast path picks the first exact-title candidate in
// input order; the fallback is deterministic under permutation of the
// candidate set (ties broken by timestamp, then id).
package repost

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/banasa44/fxsignal/internal/normalize"
)

// DescSimThreshold is the minimum description similarity (§4.5 step 4)
// required to call a candidate a duplicate via the fallback path.
const DescSimThreshold = 0.90

// Reason names why a decision was reached, for observability.
type Reason string

const (
	ReasonNoCandidates       Reason = "no_candidates"
	ReasonExactTitle         Reason = "exact_title"
	ReasonMissingDescription Reason = "missing_description"
	ReasonDescSimilarity     Reason = "desc_similarity"
	ReasonDescBelowThreshold Reason = "desc_below_threshold"
	ReasonTitleMismatch      Reason = "title_mismatch"
)

// Candidate is the minimal projection of a canonical offer the store
// hands to the detector (§4.5: scoped to the same company, preselected
// by fingerprint).
type Candidate struct {
	ID          int64
	Title       string
	Description string
	LastSeenAt  *time.Time
	PublishedAt *time.Time
	UpdatedAt   *time.Time
}

// Incoming is the new offer being evaluated for duplication.
type Incoming struct {
	Title       string
	Description string
}

// Decision is the detector's output.
type Decision struct {
	IsDuplicate bool
	Reason      Reason
	// CandidateID is the chosen canonical offer's id; zero when
	// IsDuplicate is false.
	CandidateID int64
	Similarity  float64
}

// Detect runs the full C5 decision procedure. candidates must already
// be scoped to the same company and preselected by content fingerprint
// per §4.5; Detect itself does no store access.
func Detect(incoming Incoming, candidates []Candidate) Decision {
	if len(candidates) == 0 {
		return Decision{IsDuplicate: false, Reason: ReasonNoCandidates}
	}

	incomingTitleTokens := normalize.Tokens(incoming.Title)
	for _, c := range candidates {
		if tokensEqual(incomingTitleTokens, normalize.Tokens(c.Title)) {
			return Decision{IsDuplicate: true, Reason: ReasonExactTitle, CandidateID: c.ID, Similarity: 1.0}
		}
	}

	if strings.TrimSpace(incoming.Description) == "" {
		return Decision{IsDuplicate: false, Reason: ReasonMissingDescription}
	}

	incomingDescTokens := normalize.Tokens(incoming.Description)
	incomingCounts := tokenCounts(incomingDescTokens)

	var best *Candidate
	var bestSim float64 = -1

	for i := range candidates {
		c := &candidates[i]
		if strings.TrimSpace(c.Description) == "" {
			continue
		}
		candTokens := normalize.Tokens(c.Description)
		sim := similarity(incomingCounts, len(incomingDescTokens), tokenCounts(candTokens), len(candTokens))

		if best == nil {
			best, bestSim = c, sim
			continue
		}
		switch {
		case sim > bestSim:
			best, bestSim = c, sim
		case sim == bestSim:
			if isMoreRecentOrSmallerID(c, best) {
				best, bestSim = c, sim
			}
		}
	}

	if best == nil {
		return Decision{IsDuplicate: false, Reason: ReasonTitleMismatch}
	}

	if bestSim >= DescSimThreshold {
		return Decision{IsDuplicate: true, Reason: ReasonDescSimilarity, CandidateID: best.ID, Similarity: bestSim}
	}
	return Decision{IsDuplicate: false, Reason: ReasonDescBelowThreshold, Similarity: bestSim}
}

// Fingerprint computes the deterministic content fingerprint used by
// the store to preselect duplicate candidates (§4.5). It returns
// ("", false) when either normalized component is empty.
func Fingerprint(title, description string) (string, bool) {
	titleNorm := strings.Join(normalize.Tokens(title), " ")
	descNorm := strings.Join(normalize.Tokens(description), " ")
	if titleNorm == "" || descNorm == "" {
		return "", false
	}

	h := sha256.Sum256([]byte(titleNorm + "\x1f" + descNorm))
	return hex.EncodeToString(h[:]), true
}

func tokensEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func tokenCounts(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}

func similarity(countsA map[string]int, lenA int, countsB map[string]int, lenB int) float64 {
	if lenA == 0 || lenB == 0 {
		return 0
	}
	var overlap int
	for tok, ca := range countsA {
		if cb, ok := countsB[tok]; ok {
			if ca < cb {
				overlap += ca
			} else {
				overlap += cb
			}
		}
	}
	maxLen := lenA
	if lenB > maxLen {
		maxLen = lenB
	}
	return float64(overlap) / float64(maxLen)
}

// isMoreRecentOrSmallerID implements the tie-break of §4.5 step 4:
// most recent of (lastSeenAt, publishedAt, updatedAt), then smallest id.
func isMoreRecentOrSmallerID(candidate, current *Candidate) bool {
	ct, ok1 := bestTimestamp(candidate)
	cur, ok2 := bestTimestamp(current)

	switch {
	case ok1 && !ok2:
		return true
	case !ok1 && ok2:
		return false
	case ok1 && ok2 && !ct.Equal(cur):
		return ct.After(cur)
	default:
		return candidate.ID < current.ID
	}
}

func bestTimestamp(c *Candidate) (time.Time, bool) {
	if c.LastSeenAt != nil {
		return *c.LastSeenAt, true
	}
	if c.PublishedAt != nil {
		return *c.PublishedAt, true
	}
	if c.UpdatedAt != nil {
		return *c.UpdatedAt, true
	}
	return time.Time{}, false
}
