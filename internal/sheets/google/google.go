// Package google exports ledger expenses to a Google Sheets spreadsheet.
//
// Each calendar year gets its own tab named "<year> <sheet>" with the columns
// date, description, amount, category, user id and expense id. Values are
// written RAW so amounts keep their exact decimal text.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"ledger/internal/aggregate"
	"ledger/internal/core"
)

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *slog.Logger

	mu     sync.Mutex
	titles map[string]bool
}

// New creates an Exporter authenticated with service account credentials.
// Inline JSON wins over a file; GOOGLE_APPLICATION_CREDENTIALS is the last fallback.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	credentialsJSON, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName, logger), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Expenses"
	}
	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     strings.TrimSpace(sheetName),
		logger:        logger,
		titles:        make(map[string]bool),
	}
}

func loadCredentials(cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Append writes one expense and returns the updated range.
func (x *Exporter) Append(ctx context.Context, e core.Expense) (string, error) {
	ranges, err := x.append(ctx, []core.Expense{e})
	if err != nil {
		return "", err
	}
	return ranges[0], nil
}

// AppendBatch writes expenses, one API call per year tab, and returns the
// number of rows written.
func (x *Exporter) AppendBatch(ctx context.Context, expenses []core.Expense) (int, error) {
	if len(expenses) == 0 {
		return 0, nil
	}
	if _, err := x.append(ctx, expenses); err != nil {
		return 0, err
	}
	return len(expenses), nil
}

func (x *Exporter) append(ctx context.Context, expenses []core.Expense) ([]string, error) {
	if x.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}

	byYear := map[int][][]any{}
	var years []int
	for _, e := range expenses {
		y := e.Date.Year()
		if _, ok := byYear[y]; !ok {
			years = append(years, y)
		}
		byYear[y] = append(byYear[y], toRow(e))
	}

	ranges := make([]string, 0, len(years))
	for _, y := range years {
		title := yearPrefixedName(x.sheetName, y)
		if err := x.ensureSheet(ctx, title); err != nil {
			return nil, err
		}

		rng := fmt.Sprintf("'%s'!A:F", title)
		resp, err := x.svc.Spreadsheets.Values.Append(x.spreadsheetID, rng, &gsheet.ValueRange{Values: byYear[y]}).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("append %s: %w", rng, err)
		}

		updated := rng
		if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
			updated = resp.Updates.UpdatedRange
		}
		ranges = append(ranges, updated)
		x.logger.InfoContext(ctx, "Exported expenses to Google Sheets",
			"sheet", title,
			"rows", len(byYear[y]),
			"range", updated)
	}
	return ranges, nil
}

// ListExpenses reads back the rows exported for userID in the given month.
// Rows that do not parse (headers, hand edits) are skipped.
func (x *Exporter) ListExpenses(ctx context.Context, userID int64, year, month int) ([]core.Expense, error) {
	if x.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month: %d", month)
	}

	title := yearPrefixedName(x.sheetName, year)
	exists, err := x.sheetExists(ctx, title)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	rng := fmt.Sprintf("'%s'!A:F", title)
	resp, err := x.svc.Spreadsheets.Values.Get(x.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	var out []core.Expense
	for _, row := range resp.Values {
		e, ok := parseRow(toStrings(row))
		if !ok || e.UserID != userID || int(e.Date.Month()) != month || e.Date.Year() != year {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ReadMonthOverview totals the exported rows of one user by category.
func (x *Exporter) ReadMonthOverview(ctx context.Context, userID int64, year, month int) (core.MonthOverview, error) {
	expenses, err := x.ListExpenses(ctx, userID, year, month)
	if err != nil {
		return core.MonthOverview{}, err
	}
	return aggregate.MonthOverview(expenses, month, year), nil
}

func (x *Exporter) ensureSheet(ctx context.Context, title string) error {
	exists, err := x.sheetExists(ctx, title)
	if err != nil || exists {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := x.svc.Spreadsheets.BatchUpdate(x.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", title, err)
	}

	hdr := &gsheet.ValueRange{Values: [][]any{header}}
	if _, err := x.svc.Spreadsheets.Values.Update(x.spreadsheetID, fmt.Sprintf("'%s'!A1:F1", title), hdr).
		ValueInputOption("RAW").
		Context(ctx).
		Do(); err != nil {
		return fmt.Errorf("write header %q: %w", title, err)
	}

	x.mu.Lock()
	x.titles[title] = true
	x.mu.Unlock()
	x.logger.InfoContext(ctx, "Created export sheet", "sheet", title)
	return nil
}

func (x *Exporter) sheetExists(ctx context.Context, title string) (bool, error) {
	x.mu.Lock()
	known := x.titles[title]
	x.mu.Unlock()
	if known {
		return true, nil
	}

	ss, err := x.svc.Spreadsheets.Get(x.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return false, fmt.Errorf("read spreadsheet: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			x.titles[s.Properties.Title] = true
		}
	}
	return x.titles[title], nil
}
