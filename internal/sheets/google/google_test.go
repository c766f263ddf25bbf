package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"ledger/internal/core"
)

// fakeSheets serves the handful of Sheets endpoints the exporter uses.
type fakeSheets struct {
	mu       sync.Mutex
	tabs     map[string][][]any
	order    []string
	addCalls int
	fail     bool
}

func newFakeSheets() *fakeSheets { return &fakeSheets{tabs: map[string][][]any{}} }

func tabOf(rng string) string {
	title, _, _ := strings.Cut(rng, "!")
	return strings.Trim(title, "'")
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"Unable to parse range","status":"INVALID_ARGUMENT"}}`)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/sheet-1")
	var body struct {
		Values   [][]any `json:"values"`
		Requests []struct {
			AddSheet struct {
				Properties struct {
					Title string `json:"title"`
				} `json:"properties"`
			} `json:"addSheet"`
		} `json:"requests"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	var resp any
	switch {
	case r.Method == http.MethodGet && path == "":
		sheets := []map[string]any{}
		for _, t := range f.order {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		resp = map[string]any{"sheets": sheets}
	case r.Method == http.MethodPost && path == ":batchUpdate":
		f.addCalls++
		for _, req := range body.Requests {
			title := req.AddSheet.Properties.Title
			f.tabs[title] = nil
			f.order = append(f.order, title)
		}
		resp = map[string]any{"spreadsheetId": "sheet-1"}
	case strings.HasPrefix(path, "/values/") && strings.HasSuffix(path, ":append"):
		rng := strings.TrimSuffix(strings.TrimPrefix(path, "/values/"), ":append")
		tab := tabOf(rng)
		start := len(f.tabs[tab]) + 1
		f.tabs[tab] = append(f.tabs[tab], body.Values...)
		resp = map[string]any{"updates": map[string]any{
			"updatedRange": fmt.Sprintf("'%s'!A%d:F%d", tab, start, start+len(body.Values)-1),
			"updatedRows":  len(body.Values),
		}}
	case r.Method == http.MethodPut && strings.HasPrefix(path, "/values/"):
		tab := tabOf(strings.TrimPrefix(path, "/values/"))
		f.tabs[tab] = append(body.Values, f.tabs[tab]...)
		resp = map[string]any{"updatedRows": len(body.Values)}
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/values/"):
		resp = map[string]any{"values": f.tabs[tabOf(strings.TrimPrefix(path, "/values/"))]}
	default:
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestExporter(t *testing.T, fake *fakeSheets) *Exporter {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	require.NoError(t, err)

	return NewWithService(svc, "sheet-1", "Expenses", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sampleExpense(id, userID int64, date time.Time, amount string) core.Expense {
	return core.Expense{
		ID:          id,
		UserID:      userID,
		Description: fmt.Sprintf("expense %d", id),
		Amount:      decimal.RequireFromString(amount),
		Category:    "Food",
		Date:        date,
	}
}

func TestExporter_AppendCreatesYearSheetOnce(t *testing.T) {
	fake := newFakeSheets()
	x := newTestExporter(t, fake)
	ctx := context.Background()
	march := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	rng, err := x.Append(ctx, sampleExpense(1, 7, march, "12.30"))
	require.NoError(t, err)
	assert.Equal(t, "'2026 Expenses'!A2:F2", rng)

	_, err = x.Append(ctx, sampleExpense(2, 7, march, "5"))
	require.NoError(t, err)

	assert.Equal(t, 1, fake.addCalls)
	rows := fake.tabs["2026 Expenses"]
	require.Len(t, rows, 3)
	assert.Equal(t, []any{"Date", "Description", "Amount", "Category", "User", "ID"}, rows[0])
	assert.Equal(t, []any{"2026-03-04", "expense 1", "12.30", "Food", "7", "1"}, rows[1])
	assert.Equal(t, "5.00", rows[2][2])
}

func TestExporter_AppendBatchSplitsByYear(t *testing.T) {
	fake := newFakeSheets()
	x := newTestExporter(t, fake)

	n, err := x.AppendBatch(context.Background(), []core.Expense{
		sampleExpense(1, 7, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), "1"),
		sampleExpense(2, 7, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "2"),
		sampleExpense(3, 7, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), "3"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"2025 Expenses", "2026 Expenses"}, fake.order)
	assert.Len(t, fake.tabs["2025 Expenses"], 3)
	assert.Len(t, fake.tabs["2026 Expenses"], 2)

	n, err = x.AppendBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExporter_ListExpensesAndOverview(t *testing.T) {
	fake := newFakeSheets()
	x := newTestExporter(t, fake)
	ctx := context.Background()

	_, err := x.AppendBatch(ctx, []core.Expense{
		sampleExpense(1, 7, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), "10.10"),
		sampleExpense(2, 7, time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC), "0.20"),
		sampleExpense(3, 8, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), "99"),
		sampleExpense(4, 7, time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC), "1"),
	})
	require.NoError(t, err)

	got, err := x.ListExpenses(ctx, 7, 2026, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("10.10")))
	assert.Equal(t, time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC), got[1].Date)

	ov, err := x.ReadMonthOverview(ctx, 7, 2026, 3)
	require.NoError(t, err)
	assert.True(t, ov.Total.Equal(decimal.RequireFromString("10.30")), "total %s", ov.Total)
	require.Len(t, ov.ByCategory, 1)
	assert.Equal(t, "Food", ov.ByCategory[0].Name)
}

func TestExporter_ListExpensesMissingSheet(t *testing.T) {
	x := newTestExporter(t, newFakeSheets())

	got, err := x.ListExpenses(context.Background(), 7, 2019, 1)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = x.ListExpenses(context.Background(), 7, 2019, 13)
	assert.Error(t, err)
}

func TestExporter_UpstreamError(t *testing.T) {
	fake := newFakeSheets()
	fake.fail = true
	x := newTestExporter(t, fake)

	_, err := x.Append(context.Background(), sampleExpense(1, 7, time.Now(), "1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read spreadsheet")
}

func TestNew_Configuration(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := New(context.Background(), Config{}, nil)
	require.EqualError(t, err, "missing GOOGLE_SPREADSHEET_ID")

	_, err = New(context.Background(), Config{SpreadsheetID: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")

	_, err = New(context.Background(), Config{SpreadsheetID: "x", ServiceAccountFile: t.TempDir() + "/nope.json"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read service account file")
}

func TestExporter_NilService(t *testing.T) {
	x := NewWithService(nil, "sheet-1", "", nil)
	_, err := x.Append(context.Background(), core.Expense{})
	assert.Error(t, err)
	_, err = x.ListExpenses(context.Background(), 1, 2026, 1)
	assert.Error(t, err)
}
