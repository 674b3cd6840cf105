// Package aggregator implements a generic paginated JSON job-board
// provider (§4.8's aggregator variant): a page-cursor search endpoint
// returning fully-hydrated postings, unlike the two-call ATS providers.
//
// Wire shape (Open Question resolution, recorded in DESIGN.md):
//
//	GET {base}/jobs?search={query}&page={n}
//	{"jobs": [{"id","title","company_name","company_url","url",
//	  "description","location","category","published_at"}], "has_more": bool}
package aggregator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/banasa44/fxsignal/internal/errs"
	"github.com/banasa44/fxsignal/internal/httpclient"
	"github.com/banasa44/fxsignal/internal/ingest"
	"github.com/banasa44/fxsignal/internal/store"
)

// MaxPagesPerSearch bounds pagination depth for a single search query
// (§4.8 step 3's MaxPagesPerUnit applies per unit, not per provider).
const MaxPagesPerSearch = ingest.MaxPagesPerUnit

type posting struct {
	ID          string
	Title       string
	CompanyName string
	CompanyURL  string
	URL         string
	Description string
	Location    string
	Category    string
	PublishedAt string
}

// Provider implements ingest.Provider for a single aggregator search API.
// Each search query is its own unit, since the aggregator has no
// pre-known company_id per posting (§4.8 step 2).
type Provider struct {
	BaseURL string
	HTTP    *httpclient.Client
	Queries []string

	cache map[string][]posting
}

// New builds an aggregator Provider. baseURL is AGGREGATOR_API_BASE_URL.
func New(baseURL string, http *httpclient.Client, queries []string) *Provider {
	return &Provider{BaseURL: baseURL, HTTP: http, Queries: queries, cache: map[string][]posting{}}
}

func (p *Provider) Kind() store.Provider { return store.ProviderAggregator }

func (p *Provider) Units(ctx context.Context, _ store.Store) ([]ingest.Unit, error) {
	units := make([]ingest.Unit, len(p.Queries))
	for i, q := range p.Queries {
		units[i] = ingest.Unit{TenantKey: q}
	}
	return units, nil
}

func (p *Provider) ListOffers(ctx context.Context, unit ingest.Unit) ([]string, error) {
	var all []posting

	for page := 1; page <= MaxPagesPerSearch; page++ {
		resp, err := p.HTTP.Do(ctx, httpclient.Request{
			Method: "GET", URL: p.BaseURL + "/jobs",
			Query: map[string][]string{
				"search": {unit.TenantKey},
				"page":   {strconv.Itoa(page)},
			},
		})
		if err != nil {
			return nil, err
		}

		items, hasMore, err := decodePage(resp.JSON)
		if err != nil {
			return nil, errs.Mapping("decode aggregator page", err)
		}
		all = append(all, items...)

		if !hasMore || len(items) == 0 {
			break
		}
	}

	p.cache[unit.TenantKey] = all

	ids := make([]string, len(all))
	for i, pst := range all {
		ids[i] = pst.ID
	}
	return ids, nil
}

// HydrateDetails is a no-op fetch: the list page already carried full
// content, so this just filters the cache down to the requested ids.
func (p *Provider) HydrateDetails(ctx context.Context, unit ingest.Unit, offerIDs []string) ([]ingest.CanonicalOffer, error) {
	postings := p.cache[unit.TenantKey]

	wanted := make(map[string]bool, len(offerIDs))
	for _, id := range offerIDs {
		wanted[id] = true
	}

	var out []ingest.CanonicalOffer
	for _, pst := range postings {
		if !wanted[pst.ID] {
			continue
		}
		if pst.Title == "" || pst.CompanyName == "" {
			continue
		}

		var published *time.Time
		if pst.PublishedAt != "" {
			if t, err := time.Parse(time.RFC3339, pst.PublishedAt); err == nil {
				t = t.UTC()
				published = &t
			}
		}

		var location *string
		if pst.Location != "" {
			loc := pst.Location
			location = &loc
		}
		var category *string
		if pst.Category != "" {
			cat := pst.Category
			category = &cat
		}

		out = append(out, ingest.CanonicalOffer{
			ProviderOfferID:   pst.ID,
			Title:             pst.Title,
			Description:       pst.Description,
			PublishedAt:       published,
			Location:          location,
			Metadata:          store.OfferMetadata{Category: category},
			CompanyWebsiteURL: pst.CompanyURL,
			CompanyRawName:    pst.CompanyName,
			ProviderSourceURL: pst.URL,
		})
	}
	return out, nil
}

func decodePage(v interface{}) ([]posting, bool, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false, fmt.Errorf("expected a JSON object with a jobs array")
	}
	raw, ok := m["jobs"].([]interface{})
	if !ok {
		return nil, false, fmt.Errorf("missing jobs array")
	}

	hasMore, _ := m["has_more"].(bool)

	out := make([]posting, 0, len(raw))
	for _, item := range raw {
		jm, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, posting{
			ID:          asString(jm["id"]),
			Title:       asString(jm["title"]),
			CompanyName: asString(jm["company_name"]),
			CompanyURL:  asString(jm["company_url"]),
			URL:         asString(jm["url"]),
			Description: asString(jm["description"]),
			Location:    asString(jm["location"]),
			Category:    asString(jm["category"]),
			PublishedAt: asString(jm["published_at"]),
		})
	}
	return out, hasMore, nil
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}
