// Package identity implements the identity resolver (C7): company name
// normalization, website domain extraction, and a preferred-URL picker.
// It is pure — no store access — producing the evidence upsertCompany
// keys on (§3: website_domain strong, normalized_name fallback).
package identity

import (
	"net/url"
	"strings"

	"github.com/banasa44/fxsignal/internal/normalize"
)

// Evidence is the identity key pair a company is resolved by. At least
// one field is non-empty by the time it reaches the store; Resolve
// itself may return both empty when given nothing usable.
type Evidence struct {
	WebsiteDomain  string
	NormalizedName string
}

// NormalizedName collapses a raw display name to its normalized form:
// the same token pipeline used for offer text, rejoined with single
// spaces, so "Acme, Inc." and "ACME INC" resolve to the same identity.
func NormalizedName(rawName string) string {
	tokens := normalize.Tokens(rawName)
	return strings.Join(tokens, " ")
}

// Domain extracts the strong identity key from a website URL: lowercase
// host, leading "www." stripped, must contain a dot. Returns ("", false)
// if the URL has no usable host or the host has no dot.
func Domain(rawURL string) (string, bool) {
	host := rawURL
	if strings.Contains(rawURL, "://") {
		parsed, err := url.Parse(rawURL)
		if err != nil || parsed.Host == "" {
			return "", false
		}
		host = parsed.Host
	}

	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	host = strings.TrimPrefix(host, "www.")

	if host == "" || !strings.Contains(host, ".") {
		return "", false
	}
	return host, true
}

// Resolve builds the identity Evidence for a company from whatever raw
// material a directory scraper or ATS discovery pass found. websiteURL
// may be empty; rawName should not be, but Resolve degrades gracefully
// either way (the caller is responsible for the "at least one key
// present" invariant — see errs.ErrMissingIdentity).
func Resolve(rawName, websiteURL string) Evidence {
	var ev Evidence
	if d, ok := Domain(websiteURL); ok {
		ev.WebsiteDomain = d
	}
	ev.NormalizedName = NormalizedName(rawName)
	return ev
}

// PreferredURL picks the canonical website URL to store when more than
// one candidate is known (e.g. a directory listing URL and an ATS
// tenant's "company site" link): prefer https over http, then prefer
// the bare host without a "www." prefix, then prefer the shorter URL.
func PreferredURL(candidates ...string) string {
	var best string
	var bestScore int
	first := true

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		score := urlScore(c)
		if first || score > bestScore || (score == bestScore && len(c) < len(best)) {
			best, bestScore, first = c, score, false
		}
	}
	return best
}

func urlScore(rawURL string) int {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	score := 0
	if parsed.Scheme == "https" {
		score += 2
	}
	if !strings.HasPrefix(strings.ToLower(parsed.Host), "www.") {
		score++
	}
	return score
}
