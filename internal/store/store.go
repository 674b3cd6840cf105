package store

import (
	"context"
	"time"
)

// Store is the abstract offer store contract (§4.7). Any embedded
// relational store satisfying it is acceptable; SQLite (sqlite.go) is
// the implementation shipped with this module.
type Store interface {
	UpsertCompany(ctx context.Context, evidence CompanyEvidence) (int64, error)
	UpsertCompanySource(ctx context.Context, src CompanySource) (int64, error)
	UpsertCompanySourceByCompanyProvider(ctx context.Context, companyID int64, provider Provider, tenantKey, url string) (int64, error)

	// UpsertOffer returns the offer id and whether this call inserted a
	// new row (true) or updated an existing one (false) — callers use
	// isNew to gate repost detection to newly-seen offers only (§4.8
	// step 5: "if present and the offer is new").
	UpsertOffer(ctx context.Context, offer Offer) (id int64, isNew bool, err error)
	MarkDuplicate(ctx context.Context, newID, canonicalID int64) error
	BumpCanonical(ctx context.Context, canonicalID int64, lastSeenAt time.Time) error
	SetCanonical(ctx context.Context, offerID int64, fingerprint *string) error
	FindCanonicalOffersByFingerprint(ctx context.Context, fingerprint string, companyID int64) ([]RepostCandidate, error)
	ListCompanyOffersForAggregation(ctx context.Context, companyID int64) ([]CompanyOfferView, error)

	UpsertMatch(ctx context.Context, m Match) error

	PersistAggregate(ctx context.Context, companyID int64, agg CompanyAggregateWrite) error

	OpenIngestionRun(ctx context.Context, provider Provider, queryFingerprint *string) (int64, error)
	CloseIngestionRun(ctx context.Context, runID int64, status RunStatus, counters RunCounters) error

	AcquireRunLock(ctx context.Context, ownerID string, ttl time.Duration) (bool, error)
	RefreshRunLock(ctx context.Context, ownerID string, ttl time.Duration) (bool, error)
	ReleaseRunLock(ctx context.Context, ownerID string) error

	AppendFeedbackEvent(ctx context.Context, ev FeedbackEvent) (int64, error)

	CompaniesNeedingDiscovery(ctx context.Context, providers []Provider, limit int) ([]Company, error)
	CompanySourcesForProvider(ctx context.Context, provider Provider, limit int) ([]CompanySource, error)

	// CompaniesWithOffers lists every company that has at least one
	// offer on record, aggregate signal fields populated — the export
	// stage's source of CompanyRow data (§6).
	CompaniesWithOffers(ctx context.Context) ([]Company, error)

	Close() error
}

// RunCounters are the IngestionRun counters bumped during a pipeline run.
type RunCounters struct {
	PagesFetched  int
	OffersFetched int
	RequestsCount int
	HTTP429Count  int
	ErrorsCount   int
	SkippedCount  int
}

// CompanyAggregateWrite is what C6's Result becomes once it is about to
// be persisted on the Company row: never nulls an unchanged column
// (§4.6: "partial writes allowed only at the column level").
type CompanyAggregateWrite struct {
	UniqueOfferCount int
	OfferCount       int
	MaxScore         int
	TopOfferID       *int64
	TopCategoryID    *string
	StrongOfferCount int
	AvgStrongScore   *float64
	LastStrongAt     *time.Time
}
