// Package greenhouse implements the Greenhouse ATS provider (§6):
// GET {base}/boards/{boardToken}/jobs?content=true.
package greenhouse

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

// MaxJobsPerTenant caps a board's job list after ascending-id sort.
const MaxJobsPerTenant = 300

type metadatum struct {
	Name  string
	Value string
}

type job struct {
	ID          int64
	Title       string
	AbsoluteURL string
	UpdatedAt   string
	Location    string
	Content     string
	Metadata    []metadatum
}

// Provider implements ingest.Provider for Greenhouse boards.
type Provider struct {
	BaseURL string
	HTTP    *httpclient.Client
	Tenants []ingest.Unit

	cache map[string][]job
}

// New builds a Greenhouse Provider. baseURL is GREENHOUSE_API_BASE_URL.
func New(baseURL string, http *httpclient.Client, tenants []ingest.Unit) *Provider {
	return &Provider{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: http, Tenants: tenants, cache: map[string][]job{}}
}

func (p *Provider) Kind() store.Provider { return store.ProviderGreenhouse }

func (p *Provider) Units(ctx context.Context, _ store.Store) ([]ingest.Unit, error) {
	return p.Tenants, nil
}

func (p *Provider) ListOffers(ctx context.Context, unit ingest.Unit) ([]string, error) {
	url := fmt.Sprintf("%s/boards/%s/jobs", p.BaseURL, unit.TenantKey)
	resp, err := p.HTTP.Do(ctx, httpclient.Request{
		Method: "GET", URL: url,
		Query: map[string][]string{"content": {"true"}},
	})
	if err != nil {
		return nil, err
	}

	jobs, err := decodeJobs(resp.JSON)
	if err != nil {
		return nil, errs.Mapping("decode greenhouse jobs", err)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	if len(jobs) > MaxJobsPerTenant {
		jobs = jobs[:MaxJobsPerTenant]
	}

	p.cache[unit.TenantKey] = jobs

	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = strconv.FormatInt(j.ID, 10)
	}
	return ids, nil
}

func (p *Provider) HydrateDetails(ctx context.Context, unit ingest.Unit, offerIDs []string) ([]ingest.CanonicalOffer, error) {
	jobs := p.cache[unit.TenantKey]

	wanted := make(map[string]bool, len(offerIDs))
	for _, id := range offerIDs {
		wanted[id] = true
	}

	var out []ingest.CanonicalOffer
	for _, j := range jobs {
		idStr := strconv.FormatInt(j.ID, 10)
		if !wanted[idStr] {
			continue
		}
		if j.Title == "" || j.AbsoluteURL == "" {
			continue
		}

		var updated *time.Time
		if j.UpdatedAt != "" {
			if t, err := time.Parse(time.RFC3339, j.UpdatedAt); err == nil {
				t = t.UTC()
				updated = &t
			}
		}

		var location *string
		if j.Location != "" {
			loc := j.Location
			location = &loc
		}

		var department, team, commitment *string
		for _, md := range j.Metadata {
			switch strings.ToLower(md.Name) {
			case "department":
				v := md.Value
				department = &v
			case "team":
				v := md.Value
				team = &v
			case "employment type", "commitment":
				v := md.Value
				commitment = &v
			}
		}

		out = append(out, ingest.CanonicalOffer{
			ProviderOfferID: idStr,
			Title:           j.Title,
			Description:     j.Content,
			UpdatedAt:       updated,
			Location:        location,
			Metadata: store.OfferMetadata{
				Category:     department,
				Subcategory:  team,
				ContractType: commitment,
			},
			CompanyWebsiteURL: j.AbsoluteURL,
			CompanyRawName:    unit.TenantKey,
			KnownCompanyID:    unit.CompanyID,
			ProviderCompanyID: &unit.TenantKey,
			ProviderSourceURL: j.AbsoluteURL,
		})
	}
	return out, nil
}

func decodeJobs(v interface{}) ([]job, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a JSON object with a jobs array")
	}
	raw, ok := m["jobs"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("missing jobs array")
	}

	out := make([]job, 0, len(raw))
	for _, item := range raw {
		jm, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, jobFromMap(jm))
	}
	return out, nil
}

func jobFromMap(m map[string]interface{}) job {
	var j job
	j.ID = asInt64(m["id"])
	j.Title = asString(m["title"])
	j.AbsoluteURL = asString(m["absolute_url"])
	j.UpdatedAt = asString(m["updated_at"])
	j.Content = asString(m["content"])

	if loc, ok := m["location"].(map[string]interface{}); ok {
		j.Location = asString(loc["name"])
	}

	if mds, ok := m["metadata"].([]interface{}); ok {
		for _, md := range mds {
			mdm, ok := md.(map[string]interface{})
			if !ok {
				continue
			}
			name := asString(mdm["name"])
			var value string
			switch v := mdm["value"].(type) {
			case string:
				value = v
			case []interface{}:
				parts := make([]string, 0, len(v))
				for _, e := range v {
					if s, ok := e.(string); ok {
						parts = append(parts, s)
					}
				}
				value = strings.Join(parts, ", ")
			}
			if name != "" && value != "" {
				j.Metadata = append(j.Metadata, metadatum{Name: name, Value: value})
			}
		}
	}

	return j
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
