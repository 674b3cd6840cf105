// Package discovery implements the ATS discovery crawler (C9): URL
// candidate generation, a bounded primary sweep, a 1-hop anchor follow,
// and provider detection, per §4.9. Discover itself does no store
// access; the batch runner persists Found results.
package discovery

import (
	"context"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/banasa44/fxsignal/internal/discovery/detect"
)

// MaxHTMLChars bounds how much of a fetched page is scanned by the
// provider detectors (§4.9 step 3).
const MaxHTMLChars = 200_000

// MaxURLLength bounds follow-candidate URLs (§4.9 step 4).
const MaxURLLength = 300

// MaxLinksToFollow caps the 1-hop follow set (§4.9 step 4).
const MaxLinksToFollow = 8

// MaxConcurrentFetches bounds the primary sweep's HTTP concurrency
// (§5: a small, bounded number of concurrent requests per logical op).
const MaxConcurrentFetches = 4

// CandidatePaths is the fixed, ordered list of career-page paths tried
// against a company's normalized base URL (§4.9 step 2).
var CandidatePaths = []string{
	"/careers",
	"/careers/",
	"/jobs",
	"/jobs/",
	"/company/careers",
	"/about/careers",
	"/company/jobs",
	"/work-with-us",
	"/join-us",
}

// DiscoveryLinkKeywords — a follow candidate's URL must contain at
// least one of these substrings, case-insensitive (§4.9 step 4).
var DiscoveryLinkKeywords = []string{"career", "jobs", "job", "hiring", "join", "openings", "positions"}

// ATSAllowedExternalHosts lists hosts a follow candidate may point to
// even when they are not the base host (ATS vendors themselves).
var ATSAllowedExternalHosts = map[string]bool{
	"jobs.lever.co":           true,
	"jobs-api.lever.co":       true,
	"boards.greenhouse.io":    true,
	"boards-api.greenhouse.io": true,
}

var ignoredExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".ico": true,
	".webp": true, ".css": true, ".js": true, ".zip": true, ".tar": true, ".gz": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".woff": true, ".woff2": true,
}

// Status is the outcome kind of a Discover call.
type Status string

const (
	StatusFound    Status = "found"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Result is the discovery outcome for one company (§4.9).
type Result struct {
	Status      Status
	Provider    detect.Provider
	TenantKey   string
	EvidenceURL string
	Message     string
}

// Fetcher retrieves a page's HTML body. Per-URL errors are the
// caller's to interpret; Discover treats any error as "skip this URL".
type Fetcher interface {
	FetchHTML(ctx context.Context, rawURL string) (string, error)
}

// Discover runs the full C9 pipeline against a company's website URL.
func Discover(ctx context.Context, fetcher Fetcher, websiteURL string) Result {
	base, ok := normalizeBase(websiteURL)
	if !ok {
		return Result{Status: StatusError, Message: "unparseable url or host without a dot: " + websiteURL}
	}

	candidates := make([]string, len(CandidatePaths))
	for i, p := range CandidatePaths {
		candidates[i] = base + p
	}

	pages := fetchAll(ctx, fetcher, candidates)

	for _, c := range candidates {
		html, ok := pages[c]
		if !ok {
			continue
		}
		if m, found := detect.DetectAny(truncate(html, MaxHTMLChars)); found {
			return Result{Status: StatusFound, Provider: m.Provider, TenantKey: m.TenantKey, EvidenceURL: c}
		}
	}

	baseHost := mustHost(base)
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		seen[c] = true
	}

	var followCandidates []string
	for _, c := range candidates {
		html, ok := pages[c]
		if !ok {
			continue
		}
		for _, href := range extractAnchors(html) {
			abs, ok := resolveFollowCandidate(c, href, baseHost)
			if !ok {
				continue
			}
			if seen[abs] {
				continue
			}
			seen[abs] = true
			followCandidates = append(followCandidates, abs)
		}
	}

	sort.Strings(followCandidates)
	if len(followCandidates) > MaxLinksToFollow {
		followCandidates = followCandidates[:MaxLinksToFollow]
	}

	followPages := fetchAll(ctx, fetcher, followCandidates)
	for _, c := range followCandidates {
		html, ok := followPages[c]
		if !ok {
			continue
		}
		if m, found := detect.DetectAny(truncate(html, MaxHTMLChars)); found {
			return Result{Status: StatusFound, Provider: m.Provider, TenantKey: m.TenantKey, EvidenceURL: c}
		}
	}

	return Result{Status: StatusNotFound}
}

// fetchAll fetches every URL with bounded concurrency; per-URL errors
// are dropped without logging, never propagated.
func fetchAll(ctx context.Context, fetcher Fetcher, urls []string) map[string]string {
	results := make(map[string]string, len(urls))
	if len(urls) == 0 {
		return results
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentFetches)

	for _, u := range urls {
		u := u
		g.Go(func() error {
			html, err := fetcher.FetchHTML(gctx, u)
			if err != nil {
				return nil
			}
			mu.Lock()
			results[u] = html
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func normalizeBase(rawURL string) (string, bool) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || !strings.Contains(u.Host, ".") {
		return "", false
	}
	return u.Scheme + "://" + u.Host, true
}

func mustHost(base string) string {
	u, _ := url.Parse(base)
	return u.Host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func extractAnchors(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}

// resolveFollowCandidate applies §4.9 step 4's full filter chain,
// returning the absolute URL iff the href qualifies as a follow
// candidate.
func resolveFollowCandidate(pageURL, href, baseHost string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "javascript:") {
		return "", false
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)

	absStr := abs.String()
	if len(absStr) > MaxURLLength {
		return "", false
	}

	ext := strings.ToLower(path.Ext(abs.Path))
	if ignoredExtensions[ext] {
		return "", false
	}

	if abs.Host != baseHost && !ATSAllowedExternalHosts[strings.ToLower(abs.Host)] {
		return "", false
	}

	lowerAbs := strings.ToLower(absStr)
	hasKeyword := false
	for _, kw := range DiscoveryLinkKeywords {
		if strings.Contains(lowerAbs, kw) {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return "", false
	}

	return absStr, true
}
