// Command fxsignal runs one pass of the job-market signal pipeline:
// directory discovery, ATS discovery, ingestion, aggregation, and
// spreadsheet export (§4.11). It is invoked once per run, typically
// from a scheduler; there is no long-running server loop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/banasa44/fxsignal/internal/catalog"
	"github.com/banasa44/fxsignal/internal/config"
	"github.com/banasa44/fxsignal/internal/directory"
	"github.com/banasa44/fxsignal/internal/httpclient"
	"github.com/banasa44/fxsignal/internal/ingest"
	"github.com/banasa44/fxsignal/internal/ingest/aggregator"
	"github.com/banasa44/fxsignal/internal/ingest/greenhouse"
	"github.com/banasa44/fxsignal/internal/ingest/lever"
	"github.com/banasa44/fxsignal/internal/logging"
	"github.com/banasa44/fxsignal/internal/runner"
	"github.com/banasa44/fxsignal/internal/scorer"
	"github.com/banasa44/fxsignal/internal/sheetsexport"
	"github.com/banasa44/fxsignal/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fxsignal: failed to load config:", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Options{JSON: cfg.LogJSON, Debug: cfg.LogDebug})

	if cfg.LiveSmokeTest {
		logger.Info().Msg("LIVE_SMOKE_TEST enabled: this run performs real network requests")
	}

	catalogFile, err := os.Open(cfg.CatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("failed to open catalog file")
	}
	cat, err := catalog.Load(catalogFile)
	catalogFile.Close()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load catalog")
	}

	st, err := store.Open(ctx, cfg.StorePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	httpOpts := httpclient.Options{
		Timeout:       cfg.HTTPTimeout,
		MaxRetries:    cfg.HTTPMaxRetries,
		BaseDelay:     cfg.HTTPBaseDelay,
		MaxDelay:      cfg.HTTPMaxDelay,
		MaxRetryAfter: cfg.HTTPMaxRetryAfter,
		Logger:        logger,
	}
	httpClient := httpclient.New(httpOpts)

	fetcher := &htmlFetcher{client: httpClient}

	deps := runner.Deps{
		Store:      st,
		Catalog:    cat,
		Tuning:     scorer.DefaultTuning(),
		Logger:     logger,
		Fetcher:    fetcher,
		RunLockTTL: cfg.RunLockTTL,
	}

	for _, listingURL := range cfg.DirectoryListingURLs {
		deps.Directory = append(deps.Directory, &directory.SinglePageSource{Name: listingURL, ListingURL: listingURL})
	}

	if cfg.LeverAPIBaseURL != "" {
		tenants, err := loadUnits(ctx, st, store.ProviderLever)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load lever tenants")
		}
		deps.Providers = append(deps.Providers, lever.New(cfg.LeverAPIBaseURL, httpclient.New(httpOpts), tenants))
	}

	if cfg.GreenhouseAPIBaseURL != "" {
		tenants, err := loadUnits(ctx, st, store.ProviderGreenhouse)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load greenhouse tenants")
		}
		deps.Providers = append(deps.Providers, greenhouse.New(cfg.GreenhouseAPIBaseURL, httpclient.New(httpOpts), tenants))
	}

	if cfg.AggregatorAPIBaseURL != "" && len(cfg.AggregatorQueries) > 0 {
		deps.Providers = append(deps.Providers, aggregator.New(cfg.AggregatorAPIBaseURL, httpclient.New(httpOpts), cfg.AggregatorQueries))
	}

	if cfg.SheetsCredentialsPath != "" && cfg.SheetID != "" {
		exporter, err := sheetsexport.New(ctx, cfg.SheetsCredentialsPath, cfg.SheetID, "Signals")
		if err != nil {
			logger.Warn().Err(err).Msg("failed to build spreadsheet exporter, export stage disabled")
		} else {
			deps.Exporter = exporter
		}
	}

	result, err := runner.Run(ctx, deps)
	if err != nil {
		logger.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}

	logger.Info().
		Int("companies_discovered", result.CompaniesDiscovered).
		Int("ats_found", result.ATSFound).
		Int("ats_not_found", result.ATSNotFound).
		Int("affected_companies", result.AffectedCompanies).
		Bool("exported", result.Exported).
		Msg("run complete")
}

// maxTenantsPerProvider bounds how many company_sources one run loads
// as ingestion units for a single ATS provider.
const maxTenantsPerProvider = 2000

// loadUnits turns the company_sources already on record for a provider
// into the ingestion units that provider's Units step iterates over
// (§4.8 step 2: "the unit is a company_source").
func loadUnits(ctx context.Context, st store.Store, provider store.Provider) ([]ingest.Unit, error) {
	sources, err := st.CompanySourcesForProvider(ctx, provider, maxTenantsPerProvider)
	if err != nil {
		return nil, err
	}

	units := make([]ingest.Unit, 0, len(sources))
	for _, src := range sources {
		if src.ProviderCompanyID == nil {
			continue
		}
		companyID := src.CompanyID
		units = append(units, ingest.Unit{CompanyID: &companyID, TenantKey: *src.ProviderCompanyID})
	}
	return units, nil
}

// htmlFetcher adapts httpclient.Client to discovery.Fetcher and
// directory.Fetcher (both declare the same single-method shape).
type htmlFetcher struct {
	client *httpclient.Client
}

func (f *htmlFetcher) FetchHTML(ctx context.Context, rawURL string) (string, error) {
	resp, err := f.client.Do(ctx, httpclient.Request{Method: "GET", URL: rawURL})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
