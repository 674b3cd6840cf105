// Package migrations holds the SQLite schema migrations for the
// offer store (C10). Migrations are plain SQL, applied in order,
// tracked in a schema_migrations table so re-running Apply is a no-op.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one forward-only schema step.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// All is the ordered list of migrations applied to a fresh or
// existing database.
var All = []Migration{
	{Version: 1, Name: "init", SQL: initSQL},
}

const initSQL = `
CREATE TABLE companies (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	raw_name TEXT,
	display_name TEXT,
	normalized_name TEXT,
	website_url TEXT,
	website_domain TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	unique_offer_count INTEGER NOT NULL DEFAULT 0,
	offer_count INTEGER NOT NULL DEFAULT 0,
	max_score INTEGER NOT NULL DEFAULT 0,
	top_offer_id INTEGER,
	top_category_id TEXT,
	strong_offer_count INTEGER NOT NULL DEFAULT 0,
	avg_strong_score REAL,
	last_strong_at TEXT
);

CREATE UNIQUE INDEX idx_companies_website_domain ON companies(website_domain) WHERE website_domain IS NOT NULL;
CREATE UNIQUE INDEX idx_companies_normalized_name ON companies(normalized_name) WHERE website_domain IS NULL AND normalized_name IS NOT NULL;

CREATE TABLE company_sources (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id INTEGER NOT NULL REFERENCES companies(id),
	provider TEXT NOT NULL,
	provider_company_id TEXT,
	url TEXT NOT NULL,
	hidden INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE UNIQUE INDEX idx_company_sources_provider_tenant ON company_sources(provider, provider_company_id) WHERE provider_company_id IS NOT NULL;
CREATE INDEX idx_company_sources_company ON company_sources(company_id);

CREATE TABLE offers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id INTEGER NOT NULL REFERENCES companies(id),
	provider TEXT NOT NULL,
	provider_offer_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	min_requirements TEXT,
	desired_requirements TEXT,
	published_at TEXT,
	offer_updated_at TEXT,
	created_at TEXT NOT NULL,
	application_count INTEGER,
	location TEXT,
	category TEXT,
	subcategory TEXT,
	contract_type TEXT,
	workday TEXT,
	experience TEXT,
	salary TEXT,
	content_fingerprint TEXT,
	canonical_offer_id INTEGER REFERENCES offers(id),
	repost_count INTEGER NOT NULL DEFAULT 0,
	last_seen_at TEXT
);

CREATE UNIQUE INDEX idx_offers_provider_offer ON offers(provider, provider_offer_id);
CREATE INDEX idx_offers_company ON offers(company_id);
CREATE INDEX idx_offers_fingerprint ON offers(content_fingerprint, company_id);

CREATE TABLE matches (
	offer_id INTEGER PRIMARY KEY REFERENCES offers(id),
	score INTEGER NOT NULL,
	top_category_id TEXT,
	reasons TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE ingestion_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	query_fingerprint TEXT,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	pages_fetched INTEGER NOT NULL DEFAULT 0,
	offers_fetched INTEGER NOT NULL DEFAULT 0,
	requests_count INTEGER NOT NULL DEFAULT 0,
	http_429_count INTEGER NOT NULL DEFAULT 0,
	errors_count INTEGER NOT NULL DEFAULT 0,
	skipped_count INTEGER NOT NULL DEFAULT 0,
	status TEXT
);

CREATE TABLE run_locks (
	name TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	acquired_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);

CREATE TABLE feedback_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id INTEGER NOT NULL REFERENCES companies(id),
	value TEXT NOT NULL,
	note TEXT,
	created_at TEXT NOT NULL
);
`

// Apply runs every migration in All not yet recorded in
// schema_migrations, each inside its own transaction.
func Apply(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range All {
		if applied[m.Version] {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
