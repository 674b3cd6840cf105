package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banasa44/fxsignal/internal/catalog"
	"github.com/banasa44/fxsignal/internal/directory"
	"github.com/banasa44/fxsignal/internal/ingest"
	"github.com/banasa44/fxsignal/internal/scorer"
	"github.com/banasa44/fxsignal/internal/sheetsexport"
	"github.com/banasa44/fxsignal/internal/store"
)

const testCatalogJSON = `{
  "version": "test",
  "categories": [{"id": "cat_fx_rates", "name": "FX rates", "tier": 3}],
  "keywords": [{"id": "kw_usd", "categoryId": "cat_fx_rates", "canonical": "USD", "aliases": ["USD"]}],
  "phrases": []
}`

type fakeFetcher struct{ pages map[string]string }

func (f fakeFetcher) FetchHTML(ctx context.Context, rawURL string) (string, error) {
	html, ok := f.pages[rawURL]
	if !ok {
		return "", assertErr("no fixture")
	}
	return html, nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

type fakeDirectorySource struct{ companies []directory.Company }

func (f fakeDirectorySource) FetchCompanies(ctx context.Context, _ directory.Fetcher) ([]directory.Company, error) {
	return f.companies, nil
}

type fakeIngestProvider struct {
	kind    store.Provider
	units   []ingest.Unit
	details map[string][]ingest.CanonicalOffer
}

func (p fakeIngestProvider) Kind() store.Provider { return p.kind }
func (p fakeIngestProvider) Units(ctx context.Context, _ store.Store) ([]ingest.Unit, error) {
	return p.units, nil
}
func (p fakeIngestProvider) ListOffers(ctx context.Context, unit ingest.Unit) ([]string, error) {
	var ids []string
	for _, o := range p.details[unit.TenantKey] {
		ids = append(ids, o.ProviderOfferID)
	}
	return ids, nil
}
func (p fakeIngestProvider) HydrateDetails(ctx context.Context, unit ingest.Unit, offerIDs []string) ([]ingest.CanonicalOffer, error) {
	return p.details[unit.TenantKey], nil
}

type fakeExporter struct{ synced []sheetsexport.CompanyRow }

func (f *fakeExporter) SyncCompanies(ctx context.Context, rows []sheetsexport.CompanyRow) error {
	f.synced = rows
	return nil
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	cat, err := catalog.Load(strings.NewReader(testCatalogJSON))
	require.NoError(t, err)

	st, err := store.Open(context.Background(), "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return Deps{
		Store: st, Catalog: cat, Tuning: scorer.DefaultTuning(), Logger: zerolog.Nop(),
		RunLockTTL: time.Minute,
	}
}

func TestRun_FullPipelineHappyPath(t *testing.T) {
	deps := testDeps(t)
	deps.Fetcher = fakeFetcher{}

	deps.Directory = []directory.Source{fakeDirectorySource{companies: []directory.Company{
		{RawName: "Acme Corp", WebsiteURL: "https://acme.com/careers"},
	}}}

	deps.Providers = []ingest.Provider{fakeIngestProvider{
		kind:  store.ProviderLever,
		units: []ingest.Unit{{TenantKey: "acme"}},
		details: map[string][]ingest.CanonicalOffer{
			"acme": {{
				ProviderOfferID:   "1",
				Title:             "USD Treasury Analyst",
				Description:       "manage USD exposure",
				CompanyRawName:    "Acme Corp",
				CompanyWebsiteURL: "https://acme.com",
			}},
		},
	}}

	exporter := &fakeExporter{}
	deps.Exporter = exporter

	result, err := Run(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CompaniesDiscovered)
	assert.Equal(t, 1, result.AffectedCompanies)
	assert.True(t, result.Exported)
	require.Len(t, exporter.synced, 1)
	assert.Equal(t, "Acme Corp", exporter.synced[0].DisplayName)
}

func TestRun_RefusesConcurrentRun(t *testing.T) {
	deps := testDeps(t)

	ok, err := deps.Store.AcquireRunLock(context.Background(), "someone-else", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = Run(context.Background(), deps)
	require.Error(t, err)
	assert.Equal(t, errAlreadyRunning, err)
}
