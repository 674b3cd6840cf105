// Package store defines the offer store contract (C10) and its SQLite
// implementation: Companies, CompanySources, Offers, Matches,
// IngestionRuns, RunLock, and FeedbackEvents, per §3 and §4.7.
package store

import "time"

// Company is the provider-independent identity row (§3 Company).
type Company struct {
	ID             int64
	RawName        *string
	DisplayName    *string
	NormalizedName *string
	WebsiteURL     *string
	WebsiteDomain  *string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Aggregate signals (§4.6), refreshed by the aggregator.
	UniqueOfferCount int
	OfferCount       int
	MaxScore         int
	TopOfferID       *int64
	TopCategoryID    *string
	StrongOfferCount int
	AvgStrongScore   *float64
	LastStrongAt     *time.Time
}

// CompanyEvidence is the identity pair passed to UpsertCompany (§3, §4.7).
type CompanyEvidence struct {
	RawName        *string
	DisplayName    *string
	NormalizedName *string
	WebsiteURL     *string
	WebsiteDomain  *string
}

// Provider names a supported data source.
type Provider string

const (
	ProviderLever      Provider = "lever"
	ProviderGreenhouse Provider = "greenhouse"
	ProviderAggregator Provider = "aggregator"
)

// CompanySource links a Company to a provider-scoped tenant or record
// (§3 CompanySource).
type CompanySource struct {
	ID              int64
	CompanyID       int64
	Provider        Provider
	ProviderCompanyID *string
	URL             string
	Hidden          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OfferMetadata holds the loosely-typed posting attributes that vary
// by provider (§3 Offer "metadata").
type OfferMetadata struct {
	Category     *string
	Subcategory  *string
	ContractType *string
	Workday      *string
	Experience   *string
	Salary       *string
}

// Offer is a normalized job posting (§3 Offer).
type Offer struct {
	ID               int64
	CompanyID        int64
	Provider         Provider
	ProviderOfferID  string
	Title            string
	Description      string
	MinRequirements  *string
	DesiredRequirements *string
	PublishedAt      *time.Time
	UpdatedAt        *time.Time
	CreatedAt        time.Time
	ApplicationCount *int
	Location         *string
	Metadata         OfferMetadata

	ContentFingerprint *string
	CanonicalOfferID   *int64
	RepostCount        int
	LastSeenAt         *time.Time
}

// Match is 1:1 with Offer, written by the scorer (§3 Match).
type Match struct {
	OfferID       int64
	Score         int
	TopCategoryID *string
	Reasons       string // serialized scorer.Reasons (JSON)
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RunStatus is an IngestionRun's terminal status.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailure RunStatus = "failure"
)

// IngestionRun is an audit record per pipeline invocation (§3 IngestionRun).
type IngestionRun struct {
	ID             int64
	Provider       Provider
	QueryFingerprint *string
	StartedAt      time.Time
	EndedAt        *time.Time
	PagesFetched   int
	OffersFetched  int
	RequestsCount  int
	HTTP429Count   int
	ErrorsCount    int
	SkippedCount   int
	Status         *RunStatus
}

// RunLockName is the single fixed key for the advisory lock row.
const RunLockName = "fxsignal_pipeline"

// RunLock is the single-row advisory lock (§3 RunLock, §5).
type RunLock struct {
	Name      string
	OwnerID   string
	AcquiredAt time.Time
	ExpiresAt time.Time
}

// FeedbackEvent is an append-only human-entered signal (§3 FeedbackEvent).
type FeedbackEvent struct {
	ID        int64
	CompanyID int64
	Value     string
	Note      *string
	CreatedAt time.Time
}

// CompanyOfferView is the minimal aggregation projection (§4.7
// listCompanyOffersForAggregation), mapped straight into aggregate.OfferView.
type CompanyOfferView struct {
	OfferID          int64
	Score            int
	TopCategoryID    *string
	CanonicalOfferID *int64
	RepostCount      int
	PublishedAt      *time.Time
	UpdatedAt        *time.Time
}

// RepostCandidate is the minimal projection handed to the repost
// detector (§4.5, §4.7 findCanonicalOffersByFingerprint).
type RepostCandidate struct {
	ID          int64
	Title       string
	Description string
	LastSeenAt  *time.Time
	PublishedAt *time.Time
	UpdatedAt   *time.Time
}
