package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/mattn/go-sqlite3"

	"github.com/banasa44/fxsignal/internal/errs"
	"github.com/banasa44/fxsignal/internal/store/migrations"
)

const timeLayout = time.RFC3339Nano

// SQLite is the embedded relational Store implementation (§4.7).
type SQLite struct {
	db      *sql.DB
	dialect goqu.DialectWrapper
}

// Open creates (or reuses) a SQLite-backed Store at path, applying
// every pending migration before returning.
func Open(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, errs.StoreError("open sqlite", err)
	}
	db.SetMaxOpenConns(1) // single-writer per §5

	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, errs.StoreError("apply migrations", err)
	}

	return &SQLite{db: db, dialect: goqu.Dialect("sqlite3")}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func nowStr() string { return time.Now().UTC().Format(timeLayout) }

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func timeStr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func strPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// UpsertCompany implements §3/§4.7: domain is the strong key, normalized
// name the fallback; non-null incoming fields fill null existing ones,
// never the reverse.
func (s *SQLite) UpsertCompany(ctx context.Context, ev CompanyEvidence) (int64, error) {
	hasDomain := ev.WebsiteDomain != nil && *ev.WebsiteDomain != ""
	hasName := ev.NormalizedName != nil && *ev.NormalizedName != ""
	if !hasDomain && !hasName {
		return 0, errs.Identity("upsert company", errs.ErrMissingIdentity)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errs.StoreError("begin upsert company", err)
	}
	defer tx.Rollback()

	var id int64
	var found bool
	if hasDomain {
		row := tx.QueryRowContext(ctx, `SELECT id FROM companies WHERE website_domain = ?`, *ev.WebsiteDomain)
		if err := row.Scan(&id); err == nil {
			found = true
		} else if err != sql.ErrNoRows {
			return 0, errs.StoreError("lookup company by domain", err)
		}
	}
	if !found && hasName {
		row := tx.QueryRowContext(ctx, `SELECT id FROM companies WHERE normalized_name = ? AND website_domain IS NULL`, *ev.NormalizedName)
		if err := row.Scan(&id); err == nil {
			found = true
		} else if err != sql.ErrNoRows {
			return 0, errs.StoreError("lookup company by normalized name", err)
		}
	}

	now := nowStr()
	if !found {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO companies(raw_name, display_name, normalized_name, website_url, website_domain, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			nullStr(ev.RawName), nullStr(ev.DisplayName), nullStr(ev.NormalizedName), nullStr(ev.WebsiteURL), nullStr(ev.WebsiteDomain), now, now)
		if err != nil {
			return 0, errs.StoreError("insert company", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, errs.StoreError("insert company", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, errs.StoreError("commit upsert company", err)
		}
		return id, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE companies SET
			raw_name = COALESCE(raw_name, ?),
			display_name = COALESCE(display_name, ?),
			normalized_name = COALESCE(normalized_name, ?),
			website_url = COALESCE(website_url, ?),
			website_domain = COALESCE(website_domain, ?),
			updated_at = ?
		WHERE id = ?`,
		nullStr(ev.RawName), nullStr(ev.DisplayName), nullStr(ev.NormalizedName), nullStr(ev.WebsiteURL), nullStr(ev.WebsiteDomain), now, id)
	if err != nil {
		return 0, errs.StoreError("update company", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, errs.StoreError("commit upsert company", err)
	}
	return id, nil
}

// UpsertCompanySource implements §4.7: conflict on (provider,
// provider_company_id) updates url/hidden; a NULL provider_company_id
// always inserts a new row.
func (s *SQLite) UpsertCompanySource(ctx context.Context, src CompanySource) (int64, error) {
	now := nowStr()

	if src.ProviderCompanyID != nil {
		row := s.db.QueryRowContext(ctx, `SELECT id FROM company_sources WHERE provider = ? AND provider_company_id = ?`, src.Provider, *src.ProviderCompanyID)
		var id int64
		switch err := row.Scan(&id); err {
		case nil:
			_, err := s.db.ExecContext(ctx, `UPDATE company_sources SET url = ?, hidden = ?, updated_at = ? WHERE id = ?`, src.URL, boolInt(src.Hidden), now, id)
			if err != nil {
				return 0, errs.StoreError("update company source", err)
			}
			return id, nil
		case sql.ErrNoRows:
			// fall through to insert
		default:
			return 0, errs.StoreError("lookup company source", err)
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO company_sources(company_id, provider, provider_company_id, url, hidden, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		src.CompanyID, src.Provider, nullStr(src.ProviderCompanyID), src.URL, boolInt(src.Hidden), now, now)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return 0, errs.StoreConflict("insert company source", errs.ErrUniqueConstraint)
		}
		return 0, errs.StoreError("insert company source", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errs.StoreError("insert company source", err)
	}
	return id, nil
}

// UpsertCompanySourceByCompanyProvider is the C9 persistence entry
// point: a unique-constraint conflict (another company already claimed
// this tenant) surfaces as errs.KindStoreConflict (§4.9).
func (s *SQLite) UpsertCompanySourceByCompanyProvider(ctx context.Context, companyID int64, provider Provider, tenantKey, url string) (int64, error) {
	var owner int64
	err := s.db.QueryRowContext(ctx, `SELECT company_id FROM company_sources WHERE provider = ? AND provider_company_id = ?`, provider, tenantKey).Scan(&owner)
	switch {
	case err == nil && owner != companyID:
		return 0, errs.StoreConflict("upsert company source by company provider", errs.ErrUniqueConstraint)
	case err != nil && err != sql.ErrNoRows:
		return 0, errs.StoreError("lookup company source owner", err)
	}

	tk := tenantKey
	return s.UpsertCompanySource(ctx, CompanySource{
		CompanyID:         companyID,
		Provider:          provider,
		ProviderCompanyID: &tk,
		URL:               url,
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && (containsFold(err.Error(), "UNIQUE constraint failed") || containsFold(err.Error(), "constraint failed: UNIQUE"))
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	sl, subl := []rune(toLowerASCII(s)), []rune(toLowerASCII(substr))
	if len(subl) == 0 {
		return 0
	}
	for i := 0; i+len(subl) <= len(sl); i++ {
		match := true
		for j := range subl {
			if sl[i+j] != subl[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// UpsertOffer writes scalar fields and never touches canonicalization
// fields (§4.7). Idempotent on (provider, provider_offer_id). The
// second return value reports whether this call inserted a new row.
func (s *SQLite) UpsertOffer(ctx context.Context, o Offer) (int64, bool, error) {
	now := nowStr()

	row := s.db.QueryRowContext(ctx, `SELECT id FROM offers WHERE provider = ? AND provider_offer_id = ?`, o.Provider, o.ProviderOfferID)
	var id int64
	err := row.Scan(&id)
	switch err {
	case nil:
		_, err := s.db.ExecContext(ctx, `
			UPDATE offers SET
				company_id = ?, title = ?, description = ?, min_requirements = ?, desired_requirements = ?,
				published_at = ?, offer_updated_at = ?, application_count = ?, location = ?,
				category = ?, subcategory = ?, contract_type = ?, workday = ?, experience = ?, salary = ?
			WHERE id = ?`,
			o.CompanyID, o.Title, o.Description, nullStr(o.MinRequirements), nullStr(o.DesiredRequirements),
			timeStr(o.PublishedAt), timeStr(o.UpdatedAt), nullInt(o.ApplicationCount), nullStr(o.Location),
			nullStr(o.Metadata.Category), nullStr(o.Metadata.Subcategory), nullStr(o.Metadata.ContractType),
			nullStr(o.Metadata.Workday), nullStr(o.Metadata.Experience), nullStr(o.Metadata.Salary), id)
		if err != nil {
			return 0, false, errs.StoreError("update offer", err)
		}
		return id, false, nil
	case sql.ErrNoRows:
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO offers(
				company_id, provider, provider_offer_id, title, description, min_requirements, desired_requirements,
				published_at, offer_updated_at, created_at, application_count, location,
				category, subcategory, contract_type, workday, experience, salary,
				content_fingerprint, canonical_offer_id, repost_count, last_seen_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, 0, NULL)`,
			o.CompanyID, o.Provider, o.ProviderOfferID, o.Title, o.Description, nullStr(o.MinRequirements), nullStr(o.DesiredRequirements),
			timeStr(o.PublishedAt), timeStr(o.UpdatedAt), now, nullInt(o.ApplicationCount), nullStr(o.Location),
			nullStr(o.Metadata.Category), nullStr(o.Metadata.Subcategory), nullStr(o.Metadata.ContractType),
			nullStr(o.Metadata.Workday), nullStr(o.Metadata.Experience), nullStr(o.Metadata.Salary))
		if err != nil {
			return 0, false, errs.StoreError("insert offer", err)
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return 0, false, errs.StoreError("insert offer", err)
		}
		return newID, true, nil
	default:
		return 0, false, errs.StoreError("lookup offer", err)
	}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// MarkDuplicate sets the new row's canonicalization fields (§4.8 step 5).
func (s *SQLite) MarkDuplicate(ctx context.Context, newID, canonicalID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE offers SET canonical_offer_id = ? WHERE id = ?`, canonicalID, newID)
	if err != nil {
		return errs.StoreError("mark duplicate", err)
	}
	return nil
}

// BumpCanonical increments repost_count and advances last_seen_at on the
// canonical row (§4.8 step 5).
func (s *SQLite) BumpCanonical(ctx context.Context, canonicalID int64, lastSeenAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE offers SET repost_count = repost_count + 1, last_seen_at = ? WHERE id = ?`, lastSeenAt.UTC().Format(timeLayout), canonicalID)
	if err != nil {
		return errs.StoreError("bump canonical", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.StoreError("bump canonical", err)
	}
	if n == 0 {
		return errs.StoreError("bump canonical", errs.ErrNotFound)
	}
	return nil
}

// SetCanonical marks an offer as canonical (no duplicate) and records
// its own content fingerprint (§4.8 step 5 "not_duplicate" branch).
func (s *SQLite) SetCanonical(ctx context.Context, offerID int64, fingerprint *string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE offers SET canonical_offer_id = NULL, content_fingerprint = ? WHERE id = ?`, nullStr(fingerprint), offerID)
	if err != nil {
		return errs.StoreError("set canonical", err)
	}
	return nil
}

// FindCanonicalOffersByFingerprint preselects repost.Detect's candidate
// set: canonical offers in the same company sharing a fingerprint (§4.5).
func (s *SQLite) FindCanonicalOffersByFingerprint(ctx context.Context, fingerprint string, companyID int64) ([]RepostCandidate, error) {
	q, args, err := s.dialect.From("offers").
		Select("id", "title", "description", "last_seen_at", "published_at", "offer_updated_at").
		Where(goqu.Ex{
			"content_fingerprint":  fingerprint,
			"company_id":           companyID,
			"canonical_offer_id":   nil,
		}).ToSQL()
	if err != nil {
		return nil, errs.StoreError("build fingerprint query", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errs.StoreError("find canonical offers by fingerprint", err)
	}
	defer rows.Close()

	var out []RepostCandidate
	for rows.Next() {
		var rc RepostCandidate
		var lastSeen, published, updated sql.NullString
		if err := rows.Scan(&rc.ID, &rc.Title, &rc.Description, &lastSeen, &published, &updated); err != nil {
			return nil, errs.StoreError("scan repost candidate", err)
		}
		rc.LastSeenAt = parseTime(lastSeen)
		rc.PublishedAt = parseTime(published)
		rc.UpdatedAt = parseTime(updated)
		out = append(out, rc)
	}
	return out, rows.Err()
}

// ListCompanyOffersForAggregation returns the minimal projection C6
// needs (§4.7).
func (s *SQLite) ListCompanyOffersForAggregation(ctx context.Context, companyID int64) ([]CompanyOfferView, error) {
	q, args, err := s.dialect.From("offers").
		LeftJoin(goqu.T("matches"), goqu.On(goqu.Ex{"offers.id": goqu.I("matches.offer_id")})).
		Select(
			goqu.I("offers.id"),
			goqu.COALESCE(goqu.I("matches.score"), 0),
			goqu.I("matches.top_category_id"),
			goqu.I("offers.canonical_offer_id"),
			goqu.I("offers.repost_count"),
			goqu.I("offers.published_at"),
			goqu.I("offers.offer_updated_at"),
		).
		Where(goqu.Ex{"offers.company_id": companyID}).
		ToSQL()
	if err != nil {
		return nil, errs.StoreError("build aggregation query", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errs.StoreError("list company offers for aggregation", err)
	}
	defer rows.Close()

	var out []CompanyOfferView
	for rows.Next() {
		var v CompanyOfferView
		var topCategory sql.NullString
		var canonicalID sql.NullInt64
		var published, updated sql.NullString
		if err := rows.Scan(&v.OfferID, &v.Score, &topCategory, &canonicalID, &v.RepostCount, &published, &updated); err != nil {
			return nil, errs.StoreError("scan company offer view", err)
		}
		v.TopCategoryID = strPtr(topCategory)
		if canonicalID.Valid {
			id := canonicalID.Int64
			v.CanonicalOfferID = &id
		}
		v.PublishedAt = parseTime(published)
		v.UpdatedAt = parseTime(updated)
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpsertMatch writes the scorer's result for an offer (§3 Match).
func (s *SQLite) UpsertMatch(ctx context.Context, m Match) error {
	now := nowStr()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches(offer_id, score, top_category_id, reasons, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(offer_id) DO UPDATE SET
			score = excluded.score,
			top_category_id = excluded.top_category_id,
			reasons = excluded.reasons,
			updated_at = excluded.updated_at`,
		m.OfferID, m.Score, nullStr(m.TopCategoryID), m.Reasons, now, now)
	if err != nil {
		return errs.StoreError("upsert match", err)
	}
	return nil
}

// PersistAggregate writes C6's output atomically per company, never
// nulling an unchanged column (§4.6).
func (s *SQLite) PersistAggregate(ctx context.Context, companyID int64, agg CompanyAggregateWrite) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE companies SET
			unique_offer_count = ?,
			offer_count = ?,
			max_score = ?,
			top_offer_id = ?,
			top_category_id = ?,
			strong_offer_count = ?,
			avg_strong_score = ?,
			last_strong_at = ?,
			updated_at = ?
		WHERE id = ?`,
		agg.UniqueOfferCount, agg.OfferCount, agg.MaxScore, nullInt64(agg.TopOfferID), nullStr(agg.TopCategoryID),
		agg.StrongOfferCount, nullFloat(agg.AvgStrongScore), timeStr(agg.LastStrongAt), nowStr(), companyID)
	if err != nil {
		return errs.StoreError("persist aggregate", err)
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// OpenIngestionRun creates the audit record for a new pipeline
// invocation (§4.8 step 1).
func (s *SQLite) OpenIngestionRun(ctx context.Context, provider Provider, queryFingerprint *string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_runs(provider, query_fingerprint, started_at)
		VALUES (?, ?, ?)`, provider, nullStr(queryFingerprint), nowStr())
	if err != nil {
		return 0, errs.StoreError("open ingestion run", err)
	}
	return res.LastInsertId()
}

// CloseIngestionRun closes the run exactly once with its terminal
// status and final counters (§4.8 step 9).
func (s *SQLite) CloseIngestionRun(ctx context.Context, runID int64, status RunStatus, c RunCounters) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingestion_runs SET
			ended_at = ?, pages_fetched = ?, offers_fetched = ?, requests_count = ?,
			http_429_count = ?, errors_count = ?, skipped_count = ?, status = ?
		WHERE id = ?`,
		nowStr(), c.PagesFetched, c.OffersFetched, c.RequestsCount, c.HTTP429Count, c.ErrorsCount, c.SkippedCount, status, runID)
	if err != nil {
		return errs.StoreError("close ingestion run", err)
	}
	return nil
}

// AcquireRunLock is an atomic insert-or-takeover-if-expired (§5).
func (s *SQLite) AcquireRunLock(ctx context.Context, ownerID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expires := now.Add(ttl)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errs.StoreError("begin acquire run lock", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT owner_id, expires_at FROM run_locks WHERE name = ?`, RunLockName)
	var curOwner string
	var curExpires string
	switch err := row.Scan(&curOwner, &curExpires); err {
	case sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_locks(name, owner_id, acquired_at, expires_at) VALUES (?, ?, ?, ?)`,
			RunLockName, ownerID, now.Format(timeLayout), expires.Format(timeLayout)); err != nil {
			return false, errs.StoreError("insert run lock", err)
		}
		return true, tx.Commit()
	case nil:
		expiresAt, parseErr := time.Parse(timeLayout, curExpires)
		if parseErr != nil || now.After(expiresAt) || curOwner == ownerID {
			if _, err := tx.ExecContext(ctx, `UPDATE run_locks SET owner_id = ?, acquired_at = ?, expires_at = ? WHERE name = ?`,
				ownerID, now.Format(timeLayout), expires.Format(timeLayout), RunLockName); err != nil {
				return false, errs.StoreError("takeover run lock", err)
			}
			return true, tx.Commit()
		}
		return false, tx.Commit()
	default:
		return false, errs.StoreError("lookup run lock", err)
	}
}

// RefreshRunLock extends the TTL iff ownerID currently holds it (§5).
func (s *SQLite) RefreshRunLock(ctx context.Context, ownerID string, ttl time.Duration) (bool, error) {
	expires := time.Now().UTC().Add(ttl).Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `UPDATE run_locks SET expires_at = ? WHERE name = ? AND owner_id = ?`, expires, RunLockName, ownerID)
	if err != nil {
		return false, errs.StoreError("refresh run lock", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.StoreError("refresh run lock", err)
	}
	return n > 0, nil
}

// ReleaseRunLock deletes the row iff the caller owns it (§5).
func (s *SQLite) ReleaseRunLock(ctx context.Context, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM run_locks WHERE name = ? AND owner_id = ?`, RunLockName, ownerID)
	if err != nil {
		return errs.StoreError("release run lock", err)
	}
	return nil
}

// AppendFeedbackEvent records a human-entered signal (§3 FeedbackEvent).
func (s *SQLite) AppendFeedbackEvent(ctx context.Context, ev FeedbackEvent) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_events(company_id, value, note, created_at)
		VALUES (?, ?, ?, ?)`, ev.CompanyID, ev.Value, nullStr(ev.Note), nowStr())
	if err != nil {
		return 0, errs.StoreError("append feedback event", err)
	}
	return res.LastInsertId()
}

// CompaniesNeedingDiscovery lists companies with a website URL and no
// existing company_source for any of the given providers (§4.9 "Persistence").
func (s *SQLite) CompaniesNeedingDiscovery(ctx context.Context, providers []Provider, limit int) ([]Company, error) {
	placeholders := ""
	providerVals := make([]interface{}, len(providers))
	for i, p := range providers {
		providerVals[i] = p
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
	}

	q, args, err := s.dialect.From("companies").
		Select("id", "raw_name", "display_name", "normalized_name", "website_url", "website_domain", "created_at", "updated_at").
		Where(
			goqu.C("website_url").IsNotNull(),
			goqu.L("NOT EXISTS (SELECT 1 FROM company_sources cs WHERE cs.company_id = companies.id AND cs.provider IN ("+placeholders+"))", providerVals...),
		).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, errs.StoreError("build discovery query", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errs.StoreError("companies needing discovery", err)
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		var c Company
		var raw, display, norm, websiteURL, domain, createdAt, updatedAt sql.NullString
		if err := rows.Scan(&c.ID, &raw, &display, &norm, &websiteURL, &domain, &createdAt, &updatedAt); err != nil {
			return nil, errs.StoreError("scan company", err)
		}
		c.RawName, c.DisplayName, c.NormalizedName, c.WebsiteURL, c.WebsiteDomain = strPtr(raw), strPtr(display), strPtr(norm), strPtr(websiteURL), strPtr(domain)
		if t := parseTime(createdAt); t != nil {
			c.CreatedAt = *t
		}
		if t := parseTime(updatedAt); t != nil {
			c.UpdatedAt = *t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CompanySourcesForProvider lists the tenants an ATS/aggregator
// ingestion unit enumeration iterates over (§4.8 step 2).
func (s *SQLite) CompanySourcesForProvider(ctx context.Context, provider Provider, limit int) ([]CompanySource, error) {
	q, args, err := s.dialect.From("company_sources").
		Select("id", "company_id", "provider", "provider_company_id", "url", "hidden", "created_at", "updated_at").
		Where(goqu.Ex{"provider": provider, "hidden": 0}).
		Order(goqu.I("id").Asc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, errs.StoreError("build company sources query", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errs.StoreError("company sources for provider", err)
	}
	defer rows.Close()

	var out []CompanySource
	for rows.Next() {
		var cs CompanySource
		var tenantID sql.NullString
		var hidden int
		var createdAt, updatedAt string
		var providerStr string
		if err := rows.Scan(&cs.ID, &cs.CompanyID, &providerStr, &tenantID, &cs.URL, &hidden, &createdAt, &updatedAt); err != nil {
			return nil, errs.StoreError("scan company source", err)
		}
		cs.Provider = Provider(providerStr)
		cs.ProviderCompanyID = strPtr(tenantID)
		cs.Hidden = hidden != 0
		if t, err := time.Parse(timeLayout, createdAt); err == nil {
			cs.CreatedAt = t
		}
		if t, err := time.Parse(timeLayout, updatedAt); err == nil {
			cs.UpdatedAt = t
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// CompaniesWithOffers lists companies that have accumulated at least
// one offer, with every aggregate signal column populated.
func (s *SQLite) CompaniesWithOffers(ctx context.Context) ([]Company, error) {
	q, args, err := s.dialect.From("companies").
		Select("id", "raw_name", "display_name", "normalized_name", "website_url", "website_domain",
			"created_at", "updated_at", "unique_offer_count", "offer_count", "max_score",
			"top_offer_id", "top_category_id", "strong_offer_count", "avg_strong_score", "last_strong_at").
		Where(goqu.C("offer_count").Gt(0)).
		Order(goqu.I("max_score").Desc()).
		ToSQL()
	if err != nil {
		return nil, errs.StoreError("build companies with offers query", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errs.StoreError("companies with offers", err)
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		var c Company
		var raw, display, norm, websiteURL, domain, createdAt, updatedAt, topCategoryID, lastStrongAt sql.NullString
		var topOfferID sql.NullInt64
		var avgStrongScore sql.NullFloat64
		if err := rows.Scan(&c.ID, &raw, &display, &norm, &websiteURL, &domain, &createdAt, &updatedAt,
			&c.UniqueOfferCount, &c.OfferCount, &c.MaxScore, &topOfferID, &topCategoryID,
			&c.StrongOfferCount, &avgStrongScore, &lastStrongAt); err != nil {
			return nil, errs.StoreError("scan company with offers", err)
		}

		c.RawName, c.DisplayName, c.NormalizedName = strPtr(raw), strPtr(display), strPtr(norm)
		c.WebsiteURL, c.WebsiteDomain = strPtr(websiteURL), strPtr(domain)
		c.TopCategoryID = strPtr(topCategoryID)
		if t := parseTime(createdAt); t != nil {
			c.CreatedAt = *t
		}
		if t := parseTime(updatedAt); t != nil {
			c.UpdatedAt = *t
		}
		if topOfferID.Valid {
			id := topOfferID.Int64
			c.TopOfferID = &id
		}
		if avgStrongScore.Valid {
			v := avgStrongScore.Float64
			c.AvgStrongScore = &v
		}
		if t := parseTime(lastStrongAt); t != nil {
			c.LastStrongAt = t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
