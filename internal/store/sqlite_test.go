package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banasa44/fxsignal/internal/errs"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(context.Background(), "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strp(s string) *string { return &s }

func TestUpsertCompany_MissingIdentity(t *testing.T) {
	s := openTestStore(t)
	_, err := s.UpsertCompany(context.Background(), CompanyEvidence{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindIdentity))
}

// P1: ids partition calls by website_domain when present.
func TestUpsertCompany_PartitionsByDomain(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.UpsertCompany(ctx, CompanyEvidence{WebsiteDomain: strp("acme.com"), RawName: strp("Acme")})
	require.NoError(t, err)

	id2, err := s.UpsertCompany(ctx, CompanyEvidence{WebsiteDomain: strp("acme.com"), DisplayName: strp("Acme Inc")})
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

// P2: monotone enrichment — non-null incoming fields fill nulls, never
// overwrite an existing non-null field with null.
func TestUpsertCompany_MonotoneEnrichment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertCompany(ctx, CompanyEvidence{WebsiteDomain: strp("acme.com"), RawName: strp("Acme")})
	require.NoError(t, err)

	_, err = s.UpsertCompany(ctx, CompanyEvidence{WebsiteDomain: strp("acme.com"), DisplayName: strp("Acme Inc"), RawName: nil})
	require.NoError(t, err)

	companies, err := s.CompaniesNeedingDiscovery(ctx, []Provider{ProviderLever}, 10)
	require.NoError(t, err)
	require.Len(t, companies, 0) // no website_url set, so not eligible

	// verify via direct enrichment behavior: re-upsert with website_url now set
	_, err = s.UpsertCompany(ctx, CompanyEvidence{WebsiteDomain: strp("acme.com"), WebsiteURL: strp("https://acme.com")})
	require.NoError(t, err)

	var rawName, displayName, websiteURL string
	row := s.db.QueryRowContext(ctx, `SELECT raw_name, display_name, website_url FROM companies WHERE id = ?`, id)
	require.NoError(t, row.Scan(&rawName, &displayName, &websiteURL))
	assert.Equal(t, "Acme", rawName) // not overwritten with null
	assert.Equal(t, "Acme Inc", displayName)
	assert.Equal(t, "https://acme.com", websiteURL)
}

func TestUpsertCompany_FallbackToNormalizedName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.UpsertCompany(ctx, CompanyEvidence{NormalizedName: strp("acme")})
	require.NoError(t, err)
	id2, err := s.UpsertCompany(ctx, CompanyEvidence{NormalizedName: strp("acme")})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestOfferLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	companyID, err := s.UpsertCompany(ctx, CompanyEvidence{WebsiteDomain: strp("acme.com")})
	require.NoError(t, err)

	offerID, isNew, err := s.UpsertOffer(ctx, Offer{
		CompanyID: companyID, Provider: ProviderLever, ProviderOfferID: "123",
		Title: "Engineer", Description: "Build things",
	})
	require.NoError(t, err)
	assert.True(t, isNew)

	// idempotent re-upsert
	sameID, sameIsNew, err := s.UpsertOffer(ctx, Offer{
		CompanyID: companyID, Provider: ProviderLever, ProviderOfferID: "123",
		Title: "Senior Engineer", Description: "Build bigger things",
	})
	require.NoError(t, err)
	assert.Equal(t, offerID, sameID)
	assert.False(t, sameIsNew)

	require.NoError(t, s.SetCanonical(ctx, offerID, strp("fp1")))

	candidates, err := s.FindCanonicalOffersByFingerprint(ctx, "fp1", companyID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, offerID, candidates[0].ID)

	dupID, _, err := s.UpsertOffer(ctx, Offer{
		CompanyID: companyID, Provider: ProviderLever, ProviderOfferID: "456",
		Title: "Engineer Repost", Description: "Build things again",
	})
	require.NoError(t, err)

	require.NoError(t, s.MarkDuplicate(ctx, dupID, offerID))
	require.NoError(t, s.BumpCanonical(ctx, offerID, time.Now()))

	require.NoError(t, s.UpsertMatch(ctx, Match{OfferID: offerID, Score: 7, TopCategoryID: strp("cat_fx_rates"), Reasons: "{}"}))

	views, err := s.ListCompanyOffersForAggregation(ctx, companyID)
	require.NoError(t, err)
	require.Len(t, views, 2)
}

func TestCompanySourceUpsert_ConflictUpdatesURL(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	companyID, err := s.UpsertCompany(ctx, CompanyEvidence{WebsiteDomain: strp("acme.com")})
	require.NoError(t, err)

	id1, err := s.UpsertCompanySourceByCompanyProvider(ctx, companyID, ProviderLever, "acme", "https://jobs.lever.co/acme")
	require.NoError(t, err)

	id2, err := s.UpsertCompanySourceByCompanyProvider(ctx, companyID, ProviderLever, "acme", "https://jobs.lever.co/acme/careers")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestCompanySourceUpsert_ConflictAcrossCompaniesIsUniqueConstraint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	companyA, err := s.UpsertCompany(ctx, CompanyEvidence{WebsiteDomain: strp("acme.com")})
	require.NoError(t, err)
	companyB, err := s.UpsertCompany(ctx, CompanyEvidence{WebsiteDomain: strp("other.com")})
	require.NoError(t, err)

	_, err = s.UpsertCompanySourceByCompanyProvider(ctx, companyA, ProviderLever, "shared-tenant", "https://jobs.lever.co/shared-tenant")
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, `INSERT INTO company_sources(company_id, provider, provider_company_id, url, hidden, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`, companyB, ProviderLever, "shared-tenant", "https://jobs.lever.co/shared-tenant", nowStr(), nowStr())
	require.Error(t, err)
}

func TestRunLock_AcquireRefreshRelease(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.AcquireRunLock(ctx, "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireRunLock(ctx, "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	refreshed, err := s.RefreshRunLock(ctx, "owner-a", 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, refreshed)

	require.NoError(t, s.ReleaseRunLock(ctx, "owner-a"))

	ok, err = s.AcquireRunLock(ctx, "owner-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIngestionRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID, err := s.OpenIngestionRun(ctx, ProviderLever, nil)
	require.NoError(t, err)

	require.NoError(t, s.CloseIngestionRun(ctx, runID, RunStatusSuccess, RunCounters{OffersFetched: 3}))
}

func TestCompaniesWithOffers_OrderedByMaxScoreDescending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	companyA, err := s.UpsertCompany(ctx, CompanyEvidence{WebsiteDomain: strp("low.com")})
	require.NoError(t, err)
	companyB, err := s.UpsertCompany(ctx, CompanyEvidence{WebsiteDomain: strp("high.com")})
	require.NoError(t, err)
	_, err = s.UpsertCompany(ctx, CompanyEvidence{WebsiteDomain: strp("untouched.com")})
	require.NoError(t, err)

	require.NoError(t, s.PersistAggregate(ctx, companyA, CompanyAggregateWrite{OfferCount: 1, MaxScore: 2}))
	require.NoError(t, s.PersistAggregate(ctx, companyB, CompanyAggregateWrite{OfferCount: 3, MaxScore: 9}))

	companies, err := s.CompaniesWithOffers(ctx)
	require.NoError(t, err)
	require.Len(t, companies, 2)
	assert.Equal(t, companyB, companies[0].ID)
	assert.Equal(t, companyA, companies[1].ID)
}
