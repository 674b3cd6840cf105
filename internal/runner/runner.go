// Package runner implements the orchestrator (C11): one pipeline
// invocation sequencing directory discovery, company upsert, ATS
// discovery, per-provider ingestion, aggregation, and spreadsheet sync,
// guarded by an advisory run lock released on every exit path —
// modeled on the teacher's SiteContextManager defer-cleanup discipline
// (acquire a resource up front, guarantee release via defer regardless
// of how the run ends).
package runner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/banasa44/fxsignal/internal/catalog"
	"github.com/banasa44/fxsignal/internal/directory"
	"github.com/banasa44/fxsignal/internal/discovery"
	"github.com/banasa44/fxsignal/internal/discovery/detect"
	"github.com/banasa44/fxsignal/internal/identity"
	"github.com/banasa44/fxsignal/internal/ingest"
	"github.com/banasa44/fxsignal/internal/scorer"
	"github.com/banasa44/fxsignal/internal/sheetsexport"
	"github.com/banasa44/fxsignal/internal/store"
)

// MaxCompaniesPerDiscoveryBatch bounds how many not-yet-discovered
// companies one run attempts ATS discovery for.
const MaxCompaniesPerDiscoveryBatch = 200

// RefreshInterval controls how often the run lock is refreshed while a
// run is in progress, keeping its TTL from expiring under a long run.
const RefreshInterval = 2 * time.Minute

// Deps bundles every collaborator a run touches.
type Deps struct {
	Store      store.Store
	Catalog    *catalog.Catalog
	Tuning     scorer.Tuning
	Logger     zerolog.Logger
	Fetcher    discovery.Fetcher
	Directory  []directory.Source
	Providers  []ingest.Provider
	Exporter   sheetsexport.Exporter // nil disables the export stage (§6: optional)
	RunLockTTL time.Duration
}

// Result summarizes one completed run for observability/logging.
type Result struct {
	CompaniesDiscovered int
	ATSFound            int
	ATSNotFound         int
	AffectedCompanies   int
	Exported            bool
}

// Run executes one full pipeline pass. It acquires the advisory run
// lock first and releases it on every exit path.
func Run(ctx context.Context, deps Deps) (Result, error) {
	var result Result

	ownerID := uuid.NewString()
	ttl := deps.RunLockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	acquired, err := deps.Store.AcquireRunLock(ctx, ownerID, ttl)
	if err != nil {
		return result, err
	}
	if !acquired {
		return result, errAlreadyRunning
	}

	stopRefresh := make(chan struct{})
	go refreshLoop(ctx, deps.Store, ownerID, ttl, stopRefresh, deps.Logger)
	defer func() {
		close(stopRefresh)
		if err := deps.Store.ReleaseRunLock(context.Background(), ownerID); err != nil {
			deps.Logger.Warn().Err(err).Msg("failed to release run lock")
		}
	}()

	if err := runDirectoryStage(ctx, deps, &result); err != nil {
		deps.Logger.Warn().Err(err).Msg("directory stage failed, continuing with existing companies")
	}

	if err := runDiscoveryStage(ctx, deps, &result); err != nil {
		deps.Logger.Warn().Err(err).Msg("ats discovery stage failed, continuing with known tenants")
	}

	affected := make(map[int64]bool)
	for _, p := range deps.Providers {
		ids, counters, err := ingest.Run(ctx, ingest.Deps{
			Store: deps.Store, Catalog: deps.Catalog, Tuning: deps.Tuning, Logger: deps.Logger,
		}, p)
		if err != nil {
			deps.Logger.Warn().Err(err).Str("provider", string(p.Kind())).Msg("ingestion run failed")
		}
		deps.Logger.Info().
			Str("provider", string(p.Kind())).
			Int("offers_fetched", counters.OffersFetched).
			Int("errors", counters.ErrorsCount).
			Msg("ingestion run complete")
		for _, id := range ids {
			affected[id] = true
		}
	}
	result.AffectedCompanies = len(affected)

	for companyID := range affected {
		if err := ingest.Aggregate(ctx, deps.Store, companyID); err != nil {
			deps.Logger.Warn().Err(err).Int64("company_id", companyID).Msg("aggregation failed")
		}
	}

	if deps.Exporter != nil {
		if err := runExportStage(ctx, deps); err != nil {
			deps.Logger.Warn().Err(err).Msg("spreadsheet export failed")
		} else {
			result.Exported = true
		}
	}

	return result, nil
}

func refreshLoop(ctx context.Context, st store.Store, ownerID string, ttl time.Duration, stop <-chan struct{}, logger zerolog.Logger) {
	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := st.RefreshRunLock(ctx, ownerID, ttl); err != nil {
				logger.Warn().Err(err).Msg("failed to refresh run lock")
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runDirectoryStage fetches candidates from every configured directory
// source and upserts them as companies (§4.11 stage 1).
func runDirectoryStage(ctx context.Context, deps Deps, result *Result) error {
	for _, src := range deps.Directory {
		companies, err := src.FetchCompanies(ctx, deps.Fetcher)
		if err != nil {
			deps.Logger.Warn().Err(err).Msg("directory source failed")
			continue
		}

		for _, c := range companies {
			ev := identity.Resolve(c.RawName, c.WebsiteURL)
			if ev.WebsiteDomain == "" && ev.NormalizedName == "" {
				continue
			}

			var rawName, displayName, websiteURL, domain, normName *string
			if c.RawName != "" {
				rawName = &c.RawName
			}
			if c.DisplayName != "" {
				displayName = &c.DisplayName
			}
			if c.WebsiteURL != "" {
				websiteURL = &c.WebsiteURL
			}
			if ev.WebsiteDomain != "" {
				domain = &ev.WebsiteDomain
			}
			if ev.NormalizedName != "" {
				normName = &ev.NormalizedName
			}

			if _, err := deps.Store.UpsertCompany(ctx, store.CompanyEvidence{
				RawName: rawName, DisplayName: displayName, WebsiteURL: websiteURL,
				WebsiteDomain: domain, NormalizedName: normName,
			}); err != nil {
				deps.Logger.Warn().Err(err).Msg("company upsert failed during directory stage")
				continue
			}
			result.CompaniesDiscovered++
		}
	}
	return nil
}

// runDiscoveryStage runs C9 against companies with a website but no
// known ATS tenant yet, persisting every Found result (§4.11 stage 2).
func runDiscoveryStage(ctx context.Context, deps Deps, result *Result) error {
	companies, err := deps.Store.CompaniesNeedingDiscovery(ctx, []store.Provider{store.ProviderLever, store.ProviderGreenhouse}, MaxCompaniesPerDiscoveryBatch)
	if err != nil {
		return err
	}

	for _, c := range companies {
		if c.WebsiteURL == nil {
			continue
		}

		res := discovery.Discover(ctx, deps.Fetcher, *c.WebsiteURL)
		switch res.Status {
		case discovery.StatusFound:
			result.ATSFound++
			provider := mapDetectProvider(res.Provider)
			if _, err := deps.Store.UpsertCompanySourceByCompanyProvider(ctx, c.ID, provider, res.TenantKey, res.EvidenceURL); err != nil {
				deps.Logger.Warn().Err(err).Int64("company_id", c.ID).Msg("failed to persist discovered ats tenant")
			}
		case discovery.StatusNotFound:
			result.ATSNotFound++
		case discovery.StatusError:
			deps.Logger.Debug().Int64("company_id", c.ID).Str("message", res.Message).Msg("discovery skipped company")
		}
	}
	return nil
}

func mapDetectProvider(p detect.Provider) store.Provider {
	switch p {
	case detect.ProviderGreenhouse:
		return store.ProviderGreenhouse
	default:
		return store.ProviderLever
	}
}

// runExportStage reads every company's current aggregate signal and
// syncs it to the configured spreadsheet (§4.11 stage 5, §6).
func runExportStage(ctx context.Context, deps Deps) error {
	rows, err := companyRows(ctx, deps.Store)
	if err != nil {
		return err
	}
	return deps.Exporter.SyncCompanies(ctx, rows)
}

// companyRows projects every company with at least one offer into the
// export stage's row shape.
func companyRows(ctx context.Context, st store.Store) ([]sheetsexport.CompanyRow, error) {
	companies, err := st.CompaniesWithOffers(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]sheetsexport.CompanyRow, 0, len(companies))
	for _, c := range companies {
		row := sheetsexport.CompanyRow{
			CompanyID:        c.ID,
			UniqueOfferCount: c.UniqueOfferCount,
			OfferCount:       c.OfferCount,
			MaxScore:         c.MaxScore,
			StrongOfferCount: c.StrongOfferCount,
		}
		if c.DisplayName != nil {
			row.DisplayName = *c.DisplayName
		} else if c.RawName != nil {
			row.DisplayName = *c.RawName
		}
		if c.WebsiteURL != nil {
			row.WebsiteURL = *c.WebsiteURL
		}
		if c.TopCategoryID != nil {
			row.TopCategoryID = *c.TopCategoryID
		}
		if c.AvgStrongScore != nil {
			row.AvgStrongScore = *c.AvgStrongScore
		}
		if c.LastStrongAt != nil {
			row.LastStrongAt = c.LastStrongAt.Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

var errAlreadyRunning = runErr("another run already holds the pipeline lock")

type runErr string

func (e runErr) Error() string { return string(e) }
