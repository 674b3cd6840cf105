// Package directory implements the two company-discovery scraper
// patterns (§6 "Directory sources"): single-page anchor extraction and
// listing+detail page crawling, both goquery-based and both enforcing
// URL length/extension filters, the excluded-domain set, exclusion of
// the source host, and per-source caps.
package directory

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/banasa44/fxsignal/internal/errs"
	"github.com/banasa44/fxsignal/internal/identity"
)

// MaxCompaniesPerSource caps how many companies one source contributes
// per run (§6 "per-source company cap").
const MaxCompaniesPerSource = 500

// MaxWebsitesPerDetailPage caps external links accepted from a single
// detail page (§6 "per-detail-page website cap").
const MaxWebsitesPerDetailPage = 5

// MaxURLLength and ignoredExtensions mirror internal/discovery's filter
// chain — directory sources hit arbitrary third-party HTML too.
const MaxURLLength = 300

var ignoredExtensions = map[string]bool{
	".pdf": true, ".zip": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".svg": true, ".css": true, ".js": true, ".ico": true,
}

// ExcludedDomains is the fixed exclusion set (§6): social platforms and
// code hosts are never company websites.
var ExcludedDomains = map[string]bool{
	"linkedin.com": true, "twitter.com": true, "x.com": true,
	"facebook.com": true, "instagram.com": true, "youtube.com": true,
	"github.com": true,
}

// Company is a discovery candidate, not yet persisted.
type Company struct {
	RawName     string
	DisplayName string
	WebsiteURL  string
}

// Fetcher retrieves a page's HTML. Shared with internal/discovery so a
// single httpclient-backed implementation serves both.
type Fetcher interface {
	FetchHTML(ctx context.Context, rawURL string) (string, error)
}

// Source is one directory scraper.
type Source interface {
	FetchCompanies(ctx context.Context, fetcher Fetcher) ([]Company, error)
}

func hostOf(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Hostname()), true
}

func isAcceptableLink(rawURL string, sourceHost string) bool {
	if len(rawURL) == 0 || len(rawURL) > MaxURLLength {
		return false
	}
	if strings.HasPrefix(rawURL, "mailto:") || strings.HasPrefix(rawURL, "tel:") || strings.HasPrefix(rawURL, "javascript:") {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" && u.Scheme != "http" {
		return false
	}

	if ext := strings.ToLower(path.Ext(u.Path)); ignoredExtensions[ext] {
		return false
	}

	host, ok := hostOf(rawURL)
	if !ok {
		return false
	}
	if host == sourceHost || strings.HasSuffix(host, "."+sourceHost) {
		return false
	}
	for excluded := range ExcludedDomains {
		if host == excluded || strings.HasSuffix(host, "."+excluded) {
			return false
		}
	}
	return true
}

func anchors(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, strings.TrimSpace(href))
		}
	})
	return hrefs
}

// SinglePageSource implements pattern (a): one listing page, external
// links filtered directly into candidates (§6).
type SinglePageSource struct {
	Name       string
	ListingURL string
}

func (s *SinglePageSource) FetchCompanies(ctx context.Context, fetcher Fetcher) ([]Company, error) {
	sourceHost, ok := hostOf(s.ListingURL)
	if !ok {
		return nil, errs.Config("directory source", fmt.Errorf("unparseable listing url %q", s.ListingURL))
	}

	html, err := fetcher.FetchHTML(ctx, s.ListingURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []Company
	for _, href := range anchors(html) {
		resolved := resolveAgainst(s.ListingURL, href)
		if resolved == "" || !isAcceptableLink(resolved, sourceHost) {
			continue
		}
		domain, ok := identity.Domain(resolved)
		if !ok || seen[domain] {
			continue
		}
		seen[domain] = true

		out = append(out, Company{WebsiteURL: resolved})
		if len(out) >= MaxCompaniesPerSource {
			break
		}
	}
	return out, nil
}

// ListingDetailSource implements pattern (b): a listing page whose
// matching anchors are detail pages, each of which is fetched for its
// own external website links (§6).
type ListingDetailSource struct {
	Name       string
	ListingURL string
	// DetailPathPrefix identifies which anchors on the listing page are
	// detail pages worth following (e.g. "/company/").
	DetailPathPrefix string
}

func (s *ListingDetailSource) FetchCompanies(ctx context.Context, fetcher Fetcher) ([]Company, error) {
	sourceHost, ok := hostOf(s.ListingURL)
	if !ok {
		return nil, errs.Config("directory source", fmt.Errorf("unparseable listing url %q", s.ListingURL))
	}

	listingHTML, err := fetcher.FetchHTML(ctx, s.ListingURL)
	if err != nil {
		return nil, err
	}

	var detailURLs []string
	seenDetail := make(map[string]bool)
	for _, href := range anchors(listingHTML) {
		resolved := resolveAgainst(s.ListingURL, href)
		if resolved == "" {
			continue
		}
		u, err := url.Parse(resolved)
		if err != nil || !strings.Contains(u.Path, s.DetailPathPrefix) {
			continue
		}
		if seenDetail[resolved] {
			continue
		}
		seenDetail[resolved] = true
		detailURLs = append(detailURLs, resolved)
	}

	seenDomain := make(map[string]bool)
	var out []Company
	for _, detailURL := range detailURLs {
		if len(out) >= MaxCompaniesPerSource {
			break
		}

		detailHTML, err := fetcher.FetchHTML(ctx, detailURL)
		if err != nil {
			continue
		}

		rawName := extractTitleName(detailHTML)

		found := 0
		for _, href := range anchors(detailHTML) {
			if found >= MaxWebsitesPerDetailPage {
				break
			}
			resolved := resolveAgainst(detailURL, href)
			if resolved == "" || !isAcceptableLink(resolved, sourceHost) {
				continue
			}
			domain, ok := identity.Domain(resolved)
			if !ok || seenDomain[domain] {
				continue
			}
			seenDomain[domain] = true
			found++

			out = append(out, Company{RawName: rawName, WebsiteURL: resolved})
			if len(out) >= MaxCompaniesPerSource {
				break
			}
		}
	}
	return out, nil
}

func resolveAgainst(base, href string) string {
	if href == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(ref).String()
}

// extractTitleName pulls a best-effort company name off a detail page's
// <h1>, falling back to <title>.
func extractTitleName(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
