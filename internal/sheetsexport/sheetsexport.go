// Package sheetsexport syncs company signal rows to an external
// spreadsheet. Deliberately thin per spec.md §1: this component is
// scoped to interface level plus one concrete implementation, serving
// only the runner's last stage and the human-in-the-loop resolution
// workflow that reads the sheet downstream.
package sheetsexport

import (
	"context"
	"fmt"
	"sort"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// CompanyRow is one line of the synced sheet — the subset of a
// company's aggregate signal a human reviewer needs (§4.6, §6).
type CompanyRow struct {
	CompanyID        int64
	DisplayName      string
	WebsiteURL       string
	UniqueOfferCount int
	OfferCount       int
	MaxScore         int
	TopCategoryID    string
	StrongOfferCount int
	AvgStrongScore   float64
	LastStrongAt     string
}

// Exporter is the narrow contract the runner depends on.
type Exporter interface {
	SyncCompanies(ctx context.Context, rows []CompanyRow) error
}

// SheetsExporter writes rows to a single sheet tab via the Sheets v4
// API, replacing its entire contents on every sync (§6: the sheet
// itself is the only persisted view of the export — no diffing).
type SheetsExporter struct {
	SpreadsheetID string
	SheetName     string

	svc *sheets.Service
}

// New builds a SheetsExporter authenticated from a service-account
// credentials file.
func New(ctx context.Context, credentialsPath, spreadsheetID, sheetName string) (*SheetsExporter, error) {
	svc, err := sheets.NewService(ctx, option.WithCredentialsFile(credentialsPath), option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("build sheets client: %w", err)
	}

	return &SheetsExporter{SpreadsheetID: spreadsheetID, SheetName: sheetName, svc: svc}, nil
}

var header = []interface{}{
	"company_id", "display_name", "website_url", "unique_offer_count",
	"offer_count", "max_score", "top_category_id", "strong_offer_count",
	"avg_strong_score", "last_strong_at",
}

// SyncCompanies clears the sheet and rewrites it with rows, header
// first, ordered by descending max_score so reviewers see the
// strongest signals first.
func (e *SheetsExporter) SyncCompanies(ctx context.Context, rows []CompanyRow) error {
	values := buildValues(rows)

	rangeName := e.SheetName + "!A1:Z"
	if _, err := e.svc.Spreadsheets.Values.Clear(e.SpreadsheetID, rangeName, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet %s: %w", e.SheetName, err)
	}

	vr := &sheets.ValueRange{Values: values}
	if _, err := e.svc.Spreadsheets.Values.Update(e.SpreadsheetID, e.SheetName+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write sheet %s: %w", e.SheetName, err)
	}

	return nil
}

// buildValues orders rows by descending max_score and prepends the
// header row, producing the exact grid the Sheets API write expects.
func buildValues(rows []CompanyRow) [][]interface{} {
	sorted := make([]CompanyRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MaxScore > sorted[j].MaxScore })

	values := make([][]interface{}, 0, len(sorted)+1)
	values = append(values, header)
	for _, r := range sorted {
		values = append(values, []interface{}{
			r.CompanyID, r.DisplayName, r.WebsiteURL, r.UniqueOfferCount,
			r.OfferCount, r.MaxScore, r.TopCategoryID, r.StrongOfferCount,
			r.AvgStrongScore, r.LastStrongAt,
		})
	}
	return values
}
