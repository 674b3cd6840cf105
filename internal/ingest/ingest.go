// Package ingest implements the provider-agnostic ingestion pipeline
// (C8): enumerate work units, fetch/hydrate offers, map to canonical
// shape, resolve identity, run the repost detector, score, and persist
// — all per §4.8.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/banasa44/fxsignal/internal/aggregate"
	"github.com/banasa44/fxsignal/internal/catalog"
	"github.com/banasa44/fxsignal/internal/errs"
	"github.com/banasa44/fxsignal/internal/identity"
	"github.com/banasa44/fxsignal/internal/matcher"
	"github.com/banasa44/fxsignal/internal/repost"
	"github.com/banasa44/fxsignal/internal/scorer"
	"github.com/banasa44/fxsignal/internal/store"
)

// MaxOffersPerUnit and MaxPagesPerUnit bound total work per unit (§4.8
// step 3).
const (
	MaxOffersPerUnit = 500
	MaxPagesPerUnit  = 20
)

// MaxDescriptionChars truncates hydrated offer descriptions (§6).
const MaxDescriptionChars = 20_000

// CanonicalOffer is a provider-mapped offer ready for identity
// resolution and upsert (§4.8 step 4).
type CanonicalOffer struct {
	ProviderOfferID  string
	Title            string
	Description      string
	MinRequirements     *string
	DesiredRequirements *string
	PublishedAt      *time.Time
	UpdatedAt        *time.Time
	ApplicationCount *int
	Location         *string
	Metadata         store.OfferMetadata

	// Company identity evidence, as surfaced by the provider mapper.
	CompanyRawName    string
	CompanyWebsiteURL string

	// KnownCompanyID, when set, takes precedence over identity
	// resolution (§4.8 step 4: "unless a known company_id is supplied").
	KnownCompanyID *int64

	// ProviderCompanyID is the tenant-scoped id used for the optional
	// company_source best-effort upsert.
	ProviderCompanyID *string
	ProviderSourceURL string
}

// Unit is one work item: an ATS tenant or an aggregator search page set.
type Unit struct {
	CompanyID *int64 // pre-known for ATS tenants; nil for aggregator units
	TenantKey string
}

// Provider is the tagged-variant dispatch contract (§4.8, §9): no
// ambient registry, callers hold a concrete Provider value.
type Provider interface {
	Kind() store.Provider
	Units(ctx context.Context, store store.Store) ([]Unit, error)
	ListOffers(ctx context.Context, unit Unit) ([]string, error)
	HydrateDetails(ctx context.Context, unit Unit, offerIDs []string) ([]CanonicalOffer, error)
}

// Deps bundles the pure components the pipeline drives.
type Deps struct {
	Store   store.Store
	Catalog *catalog.Catalog
	Tuning  scorer.Tuning
	Logger  zerolog.Logger
}

// Run executes the full C8 pipeline for one provider and returns the
// set of company ids affected (for C6 aggregation) plus run counters.
func Run(ctx context.Context, deps Deps, p Provider) ([]int64, store.RunCounters, error) {
	var counters store.RunCounters
	affected := make(map[int64]bool)

	runID, err := deps.Store.OpenIngestionRun(ctx, p.Kind(), nil)
	if err != nil {
		return nil, counters, err
	}

	status := store.RunStatusSuccess
	units, err := p.Units(ctx, deps.Store)
	if err != nil {
		status = store.RunStatusFailure
		closeErr := deps.Store.CloseIngestionRun(ctx, runID, status, counters)
		if closeErr != nil {
			deps.Logger.Warn().Err(closeErr).Msg("failed to close ingestion run after enumeration error")
		}
		return nil, counters, err
	}

	for _, unit := range units {
		counters.PagesFetched++

		offerIDs, err := p.ListOffers(ctx, unit)
		if err != nil {
			// 401/403 halts the run only for the aggregator provider;
			// for ATS providers a non-retryable error just empties this
			// unit's result and the run continues (§4.8 "Failure
			// semantics", §7 item 3).
			if p.Kind() == store.ProviderAggregator && isAuthFailure(err) {
				status = store.RunStatusFailure
				deps.Store.CloseIngestionRun(ctx, runID, status, counters)
				return affectedSlice(affected), counters, err
			}
			counters.ErrorsCount++
			deps.Logger.Warn().Err(err).Str("tenant", unit.TenantKey).Msg("list offers failed")
			continue
		}
		counters.RequestsCount++

		if len(offerIDs) > MaxOffersPerUnit {
			offerIDs = offerIDs[:MaxOffersPerUnit]
		}

		details, err := p.HydrateDetails(ctx, unit, offerIDs)
		if err != nil {
			counters.ErrorsCount++
			deps.Logger.Warn().Err(err).Str("tenant", unit.TenantKey).Msg("hydrate details failed")
			continue
		}
		counters.OffersFetched += len(details)
		counters.RequestsCount++

		for _, d := range details {
			companyID, err := resolveCompany(ctx, deps.Store, d)
			if err != nil {
				counters.SkippedCount++
				deps.Logger.Warn().Err(err).Str("provider_offer_id", d.ProviderOfferID).Msg("skipping offer: insufficient identity")
				continue
			}

			if d.ProviderCompanyID != nil {
				if _, err := deps.Store.UpsertCompanySource(ctx, store.CompanySource{
					CompanyID:         companyID,
					Provider:          p.Kind(),
					ProviderCompanyID: d.ProviderCompanyID,
					URL:               d.ProviderSourceURL,
				}); err != nil {
					deps.Logger.Warn().Err(err).Msg("company source upsert failed, continuing")
				}
			}

			offerID, err := processOffer(ctx, deps, p.Kind(), companyID, d)
			if err != nil {
				if errs.Is(err, errs.KindStoreConflict) {
					continue
				}
				counters.ErrorsCount++
				deps.Logger.Warn().Err(err).Msg("store error processing offer")
				continue
			}
			_ = offerID

			affected[companyID] = true
		}
	}

	closeErr := deps.Store.CloseIngestionRun(ctx, runID, status, counters)
	return affectedSlice(affected), counters, closeErr
}

func affectedSlice(m map[int64]bool) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

// statusCoder is implemented by httpclient.HTTPError.
type statusCoder interface{ HTTPStatus() int }

// isAuthFailure reports whether err carries an HTTP 401/403 — on an
// aggregator provider this halts the run (§4.8).
func isAuthFailure(err error) bool {
	for err != nil {
		if hs, ok := err.(statusCoder); ok {
			s := hs.HTTPStatus()
			return s == 401 || s == 403
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// resolveCompany implements §4.8 step 4's identity derivation: a known
// company_id takes precedence; otherwise resolve strong domain / fallback
// normalized name and upsert.
func resolveCompany(ctx context.Context, st store.Store, d CanonicalOffer) (int64, error) {
	if d.KnownCompanyID != nil {
		return *d.KnownCompanyID, nil
	}

	ev := identity.Resolve(d.CompanyRawName, d.CompanyWebsiteURL)
	if ev.WebsiteDomain == "" && ev.NormalizedName == "" {
		return 0, errs.Identity("resolve company", errs.ErrMissingIdentity)
	}

	var rawName, websiteURL, domain, normName *string
	if d.CompanyRawName != "" {
		rawName = &d.CompanyRawName
	}
	if d.CompanyWebsiteURL != "" {
		websiteURL = &d.CompanyWebsiteURL
	}
	if ev.WebsiteDomain != "" {
		domain = &ev.WebsiteDomain
	}
	if ev.NormalizedName != "" {
		normName = &ev.NormalizedName
	}

	return st.UpsertCompany(ctx, store.CompanyEvidence{
		RawName:        rawName,
		WebsiteURL:     websiteURL,
		WebsiteDomain:  domain,
		NormalizedName: normName,
	})
}

// processOffer implements §4.8 steps 4 (upsert offer) through 6
// (score + upsert match).
func processOffer(ctx context.Context, deps Deps, provider store.Provider, companyID int64, d CanonicalOffer) (int64, error) {
	description := d.Description
	if len(description) > MaxDescriptionChars {
		description = description[:MaxDescriptionChars]
	}

	offerID, isNew, err := deps.Store.UpsertOffer(ctx, store.Offer{
		CompanyID:           companyID,
		Provider:            provider,
		ProviderOfferID:     d.ProviderOfferID,
		Title:               d.Title,
		Description:         description,
		MinRequirements:     d.MinRequirements,
		DesiredRequirements: d.DesiredRequirements,
		PublishedAt:         d.PublishedAt,
		UpdatedAt:           d.UpdatedAt,
		ApplicationCount:    d.ApplicationCount,
		Location:            d.Location,
		Metadata:            d.Metadata,
	})
	if err != nil {
		return 0, err
	}

	// Repost lookup only runs for newly-seen offers (§4.8 step 5): a
	// re-upsert of an already-canonicalized offer on an unchanged run
	// must be a no-op, not another BumpCanonical.
	if isNew {
		if err := runRepostDetection(ctx, deps.Store, companyID, offerID, d.Title, description); err != nil {
			deps.Logger.Warn().Err(err).Int64("offer_id", offerID).Msg("repost detection failed, leaving offer uncanonicalized")
		}
	}

	res := matcher.Match(deps.Catalog, d.Title, description)
	scored := scorer.Score(deps.Catalog, res, deps.Tuning)

	reasonsJSON, err := json.Marshal(scored.Reasons)
	if err != nil {
		return offerID, errs.Mapping("marshal scorer reasons", err)
	}

	var topCat *string
	if scored.TopCategoryID != "" {
		topCat = &scored.TopCategoryID
	}

	if err := deps.Store.UpsertMatch(ctx, store.Match{
		OfferID:       offerID,
		Score:         scored.Score,
		TopCategoryID: topCat,
		Reasons:       string(reasonsJSON),
	}); err != nil {
		return offerID, err
	}

	return offerID, nil
}

// runRepostDetection implements §4.8 step 5.
func runRepostDetection(ctx context.Context, st store.Store, companyID, offerID int64, title, description string) error {
	fingerprint, ok := repost.Fingerprint(title, description)
	if !ok {
		return st.SetCanonical(ctx, offerID, nil)
	}

	candidates, err := st.FindCanonicalOffersByFingerprint(ctx, fingerprint, companyID)
	if err != nil {
		return err
	}

	repostCandidates := make([]repost.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == offerID {
			continue
		}
		repostCandidates = append(repostCandidates, repost.Candidate{
			ID: c.ID, Title: title, Description: description,
			LastSeenAt: c.LastSeenAt, PublishedAt: c.PublishedAt, UpdatedAt: c.UpdatedAt,
		})
	}

	decision := repost.Detect(repost.Incoming{Title: title, Description: description}, repostCandidates)
	if decision.IsDuplicate {
		if err := st.MarkDuplicate(ctx, offerID, decision.CandidateID); err != nil {
			return err
		}
		return st.BumpCanonical(ctx, decision.CandidateID, time.Now())
	}

	fp := fingerprint
	return st.SetCanonical(ctx, offerID, &fp)
}

// Aggregate runs C6 over a company's offers and persists the result
// (§4.8 step 8).
func Aggregate(ctx context.Context, st store.Store, companyID int64) error {
	views, err := st.ListCompanyOffersForAggregation(ctx, companyID)
	if err != nil {
		return err
	}

	offerViews := make([]aggregate.OfferView, 0, len(views))
	for _, v := range views {
		var topCat string
		if v.TopCategoryID != nil {
			topCat = *v.TopCategoryID
		}
		offerViews = append(offerViews, aggregate.OfferView{
			OfferID:          v.OfferID,
			Score:            v.Score,
			TopCategoryID:    topCat,
			CanonicalOfferID: v.CanonicalOfferID,
			RepostCount:      v.RepostCount,
			PublishedAt:      v.PublishedAt,
			UpdatedAt:        v.UpdatedAt,
		})
	}

	result := aggregate.Aggregate(offerViews)

	var topOfferID *int64
	if result.HasTopOffer {
		id := result.TopOfferID
		topOfferID = &id
	}
	var topCategoryID *string
	if result.TopCategoryID != "" {
		topCategoryID = &result.TopCategoryID
	}
	var avgStrong *float64
	if result.HasAvgStrongScore {
		v := result.AvgStrongScore
		avgStrong = &v
	}

	return st.PersistAggregate(ctx, companyID, store.CompanyAggregateWrite{
		UniqueOfferCount: result.UniqueOfferCount,
		OfferCount:       result.OfferCount,
		MaxScore:         result.MaxScore,
		TopOfferID:       topOfferID,
		TopCategoryID:    topCategoryID,
		StrongOfferCount: result.StrongOfferCount,
		AvgStrongScore:   avgStrong,
		LastStrongAt:     result.LastStrongAt,
	})
}
