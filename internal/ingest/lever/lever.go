// Package lever implements the Lever ATS provider (§6 "Provider list
// endpoints"): GET {base}/postings/{tenantKey}?mode=json.
package lever

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/banasa44/fxsignal/internal/errs"
	"github.com/banasa44/fxsignal/internal/httpclient"
	"github.com/banasa44/fxsignal/internal/ingest"
	"github.com/banasa44/fxsignal/internal/store"
)

// MaxJobsPerTenant caps a tenant's posting list after ascending-id sort.
const MaxJobsPerTenant = 300

type posting struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	HostedURL   string `json:"hostedUrl"`
	CreatedAt   int64  `json:"createdAt"`
	Categories  struct {
		Location   string `json:"location"`
		Department string `json:"department"`
		Team       string `json:"team"`
		Commitment string `json:"commitment"`
	} `json:"categories"`
	Description     string `json:"description"`
	DescriptionPlain string `json:"descriptionPlain"`
	Lists           []struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	} `json:"lists"`
	Additional      string `json:"additional"`
	AdditionalPlain string `json:"additionalPlain"`
}

// Provider implements ingest.Provider for Lever tenants.
type Provider struct {
	BaseURL string
	HTTP    *httpclient.Client
	Tenants []ingest.Unit

	cache map[string][]posting
}

// New builds a Lever Provider. baseURL is LEVER_API_BASE_URL.
func New(baseURL string, http *httpclient.Client, tenants []ingest.Unit) *Provider {
	return &Provider{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: http, Tenants: tenants, cache: map[string][]posting{}}
}

func (p *Provider) Kind() store.Provider { return store.ProviderLever }

func (p *Provider) Units(ctx context.Context, _ store.Store) ([]ingest.Unit, error) {
	return p.Tenants, nil
}

func (p *Provider) ListOffers(ctx context.Context, unit ingest.Unit) ([]string, error) {
	url := fmt.Sprintf("%s/postings/%s", p.BaseURL, unit.TenantKey)
	resp, err := p.HTTP.Do(ctx, httpclient.Request{
		Method: "GET", URL: url,
		Query: map[string][]string{"mode": {"json"}},
	})
	if err != nil {
		return nil, err
	}

	postings, err := decodePostings(resp.JSON)
	if err != nil {
		return nil, errs.Mapping("decode lever postings", err)
	}

	sort.Slice(postings, func(i, j int) bool { return postings[i].ID < postings[j].ID })
	if len(postings) > MaxJobsPerTenant {
		postings = postings[:MaxJobsPerTenant]
	}

	p.cache[unit.TenantKey] = postings

	ids := make([]string, len(postings))
	for i, pst := range postings {
		ids[i] = pst.ID
	}
	return ids, nil
}

func (p *Provider) HydrateDetails(ctx context.Context, unit ingest.Unit, offerIDs []string) ([]ingest.CanonicalOffer, error) {
	postings := p.cache[unit.TenantKey]
	byID := make(map[string]posting, len(postings))
	for _, pst := range postings {
		byID[pst.ID] = pst
	}

	wanted := make(map[string]bool, len(offerIDs))
	for _, id := range offerIDs {
		wanted[id] = true
	}

	var out []ingest.CanonicalOffer
	for _, pst := range postings {
		if !wanted[pst.ID] {
			continue
		}
		if pst.Text == "" || pst.HostedURL == "" {
			continue
		}

		var published *time.Time
		if pst.CreatedAt > 0 {
			t := time.UnixMilli(pst.CreatedAt).UTC()
			published = &t
		}

		desc := mapDescription(pst)

		var location *string
		if pst.Categories.Location != "" {
			loc := pst.Categories.Location
			location = &loc
		}
		var dept, team, commitment *string
		if pst.Categories.Department != "" {
			dept = &pst.Categories.Department
		}
		if pst.Categories.Team != "" {
			team = &pst.Categories.Team
		}
		if pst.Categories.Commitment != "" {
			commitment = &pst.Categories.Commitment
		}

		out = append(out, ingest.CanonicalOffer{
			ProviderOfferID: pst.ID,
			Title:           pst.Text,
			Description:     desc,
			PublishedAt:     published,
			Location:        location,
			Metadata: store.OfferMetadata{
				Category:     dept,
				Subcategory:  team,
				ContractType: commitment,
			},
			CompanyWebsiteURL: pst.HostedURL,
			CompanyRawName:    unit.TenantKey,
			KnownCompanyID:    unit.CompanyID,
			ProviderCompanyID: &unit.TenantKey,
			ProviderSourceURL: pst.HostedURL,
		})
	}
	return out, nil
}

func mapDescription(pst posting) string {
	var b strings.Builder
	if pst.DescriptionPlain != "" {
		b.WriteString(pst.DescriptionPlain)
	} else {
		b.WriteString(pst.Description)
	}
	for _, l := range pst.Lists {
		if l.Text != "" {
			b.WriteString("\n")
			b.WriteString(l.Text)
		}
		if l.Content != "" {
			b.WriteString("\n")
			b.WriteString(l.Content)
		}
	}
	if pst.AdditionalPlain != "" {
		b.WriteString("\n")
		b.WriteString(pst.AdditionalPlain)
	} else if pst.Additional != "" {
		b.WriteString("\n")
		b.WriteString(pst.Additional)
	}
	return b.String()
}

// decodePostings converts the generic JSON the http client already
// decoded into the typed posting shape, field by field.
func decodePostings(v interface{}) ([]posting, error) {
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a JSON array of postings")
	}

	out := make([]posting, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, postingFromMap(m))
	}
	return out, nil
}

func postingFromMap(m map[string]interface{}) posting {
	var p posting
	p.ID = asString(m["id"])
	p.Text = asString(m["text"])
	p.HostedURL = asString(m["hostedUrl"])
	p.CreatedAt = asInt64(m["createdAt"])
	p.Description = asString(m["description"])
	p.DescriptionPlain = asString(m["descriptionPlain"])
	p.Additional = asString(m["additional"])
	p.AdditionalPlain = asString(m["additionalPlain"])

	if cats, ok := m["categories"].(map[string]interface{}); ok {
		p.Categories.Location = asString(cats["location"])
		p.Categories.Department = asString(cats["department"])
		p.Categories.Team = asString(cats["team"])
		p.Categories.Commitment = asString(cats["commitment"])
	}

	if lists, ok := m["lists"].([]interface{}); ok {
		for _, l := range lists {
			lm, ok := l.(map[string]interface{})
			if !ok {
				continue
			}
			p.Lists = append(p.Lists, struct {
				Text    string `json:"text"`
				Content string `json:"content"`
			}{Text: asString(lm["text"]), Content: asString(lm["content"])})
		}
	}

	return p
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}
