// Package config loads process configuration the way the teacher's
// internal/config/config.go does: godotenv.Load for local .env files,
// then os.Getenv for every field, with required fields validated
// fail-fast against a single wrapped error.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/banasa44/fxsignal/internal/errs"
)

// Config holds everything the runner needs for one pipeline invocation.
type Config struct {
	// StorePath is the filesystem path to the embedded SQLite database.
	StorePath string
	// CatalogPath is the filesystem path to the scoring catalog JSON.
	CatalogPath string

	// SheetsCredentialsPath, when set together with SheetID, enables the
	// spreadsheet export stage. An empty value of either skips export
	// entirely (it is optional per §6 — the exporter is described only at
	// interface level).
	SheetsCredentialsPath string
	SheetID               string

	// LeverAPIBaseURL and GreenhouseAPIBaseURL are the ATS provider
	// list-endpoint hosts (§6 "Provider list endpoints"). Empty skips
	// that provider.
	LeverAPIBaseURL      string
	GreenhouseAPIBaseURL string

	// AggregatorAPIBaseURL and AggregatorQueries configure the
	// aggregator provider; empty base URL or no queries skips it.
	AggregatorAPIBaseURL string
	AggregatorQueries    []string

	// DirectoryListingURLs seeds one SinglePageSource per URL (§6
	// "Directory sources", pattern (a)).
	DirectoryListingURLs []string

	HTTPTimeout       time.Duration
	HTTPMaxRetries    int
	HTTPBaseDelay     time.Duration
	HTTPMaxDelay      time.Duration
	HTTPMaxRetryAfter time.Duration

	RunLockTTL time.Duration

	// LiveSmokeTest is read from LIVE_SMOKE_TEST (default false). The CLI
	// only logs that it is set; no test in the repository reads it, so
	// it does not enable any integration test path.
	LiveSmokeTest bool

	LogJSON  bool
	LogDebug bool
}

func getDurationOrDefault(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getCSV(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads a .env file (if present) and then the process environment,
// returning a validated Config or a ConfigError naming the missing field.
func Load() (*Config, error) {
	// godotenv.Load is best-effort: a missing .env file in production
	// is normal, so unlike the teacher we do not treat that as fatal.
	_ = godotenv.Load()

	storePath := os.Getenv("FXSIGNAL_STORE_PATH")
	if storePath == "" {
		return nil, errs.Config("FXSIGNAL_STORE_PATH", errMissingEnv("FXSIGNAL_STORE_PATH"))
	}

	catalogPath := os.Getenv("FXSIGNAL_CATALOG_PATH")
	if catalogPath == "" {
		return nil, errs.Config("FXSIGNAL_CATALOG_PATH", errMissingEnv("FXSIGNAL_CATALOG_PATH"))
	}

	return &Config{
		StorePath:             storePath,
		CatalogPath:           catalogPath,
		SheetsCredentialsPath: os.Getenv("FXSIGNAL_SHEETS_CREDENTIALS_PATH"),
		SheetID:               os.Getenv("FXSIGNAL_SHEET_ID"),

		LeverAPIBaseURL:      os.Getenv("LEVER_API_BASE_URL"),
		GreenhouseAPIBaseURL: os.Getenv("GREENHOUSE_API_BASE_URL"),

		AggregatorAPIBaseURL: os.Getenv("AGGREGATOR_API_BASE_URL"),
		AggregatorQueries:    getCSV("AGGREGATOR_SEARCH_QUERIES"),

		DirectoryListingURLs: getCSV("FXSIGNAL_DIRECTORY_LISTING_URLS"),

		HTTPTimeout:       getDurationOrDefault("FXSIGNAL_HTTP_TIMEOUT", 10*time.Second),
		HTTPMaxRetries:    getIntOrDefault("FXSIGNAL_HTTP_MAX_RETRIES", 4),
		HTTPBaseDelay:     getDurationOrDefault("FXSIGNAL_HTTP_BASE_DELAY", 500*time.Millisecond),
		HTTPMaxDelay:      getDurationOrDefault("FXSIGNAL_HTTP_MAX_DELAY", 20*time.Second),
		HTTPMaxRetryAfter: getDurationOrDefault("FXSIGNAL_HTTP_MAX_RETRY_AFTER", 60*time.Second),

		RunLockTTL: getDurationOrDefault("FXSIGNAL_RUN_LOCK_TTL", 10*time.Minute),

		LiveSmokeTest: getBoolOrDefault("LIVE_SMOKE_TEST", false),

		LogJSON:  getBoolOrDefault("FXSIGNAL_LOG_JSON", false),
		LogDebug: getBoolOrDefault("FXSIGNAL_LOG_DEBUG", false),
	}, nil
}

func errMissingEnv(key string) error {
	return &missingEnvError{key: key}
}

type missingEnvError struct{ key string }

func (e *missingEnvError) Error() string {
	return e.key + " environment variable is required but not set"
}
