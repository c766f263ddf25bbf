package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/ledger/memory"
)

type fakeSink struct {
	rows      []core.Expense
	batches   int
	appendErr error
}

func (s *fakeSink) Append(ctx context.Context, e core.Expense) (string, error) {
	if s.appendErr != nil {
		return "", s.appendErr
	}
	s.rows = append(s.rows, e)
	return "A1", nil
}

func (s *fakeSink) AppendBatch(ctx context.Context, es []core.Expense) (int, error) {
	if s.appendErr != nil {
		return 0, s.appendErr
	}
	s.batches++
	s.rows = append(s.rows, es...)
	return len(es), nil
}

func (s *fakeSink) ListExpenses(ctx context.Context, userID int64, year, month int) ([]core.Expense, error) {
	var out []core.Expense
	for _, e := range s.rows {
		if e.UserID == userID && e.Date.Year() == year && int(e.Date.Month()) == month {
			out = append(out, e)
		}
	}
	return out, nil
}

func setup(t *testing.T, batchSize int) (*ExportWorker, *memory.Store, *fakeSink, int64) {
	t.Helper()
	store := memory.New()
	u, err := store.CreateUser(context.Background(), core.NewUser{Username: "ada", PasswordHash: "x"})
	require.NoError(t, err)
	sink := &fakeSink{}
	w := NewExportWorker(store, sink, batchSize, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return w, store, sink, u.ID
}

func addExpense(t *testing.T, store *memory.Store, userID int64, date time.Time) core.Expense {
	t.Helper()
	e, err := store.CreateExpense(context.Background(), userID, core.NewExpense{
		Description: "Coffee",
		Amount:      decimal.RequireFromString("2.50"),
		Category:    "Food",
		Date:        date,
	})
	require.NoError(t, err)
	return e
}

func TestHandleEvent_ExportsCreatedExpense(t *testing.T) {
	w, store, sink, uid := setup(t, 10)
	e := addExpense(t, store, uid, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	err := w.HandleEvent(context.Background(), amqp.NewLedgerEvent(amqp.ExpenseCreated, uid, e.ID))
	require.NoError(t, err)
	require.Len(t, sink.rows, 1)
	assert.Equal(t, e.ID, sink.rows[0].ID)
}

func TestHandleEvent_SkipsWhatItCannotExport(t *testing.T) {
	w, store, sink, uid := setup(t, 10)
	e := addExpense(t, store, uid, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	tests := map[string]*amqp.LedgerEvent{
		"missing expense": amqp.NewLedgerEvent(amqp.ExpenseCreated, uid, 9999),
		"other user":      amqp.NewLedgerEvent(amqp.ExpenseCreated, uid+1, e.ID),
		"deleted expense": amqp.NewLedgerEvent(amqp.ExpenseDeleted, uid, e.ID),
		"invoice event":   amqp.NewLedgerEvent(amqp.InvoiceCreated, uid, 1),
	}
	for name, ev := range tests {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, w.HandleEvent(context.Background(), ev))
		})
	}
	assert.Empty(t, sink.rows)
}

func TestHandleEvent_SinkFailureIsRetried(t *testing.T) {
	w, store, sink, uid := setup(t, 10)
	e := addExpense(t, store, uid, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	sink.appendErr = errors.New("quota exceeded")

	err := w.HandleEvent(context.Background(), amqp.NewLedgerEvent(amqp.ExpenseCreated, uid, e.ID))
	require.Error(t, err)
	assert.ErrorIs(t, err, sink.appendErr)
}

func TestExportMonth(t *testing.T) {
	w, store, sink, uid := setup(t, 2)
	march := func(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }

	e3 := addExpense(t, store, uid, march(3))
	e1 := addExpense(t, store, uid, march(1))
	addExpense(t, store, uid, march(2))
	addExpense(t, store, uid, march(31))
	addExpense(t, store, uid, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))

	// Already exported through an event.
	require.NoError(t, w.HandleEvent(context.Background(), amqp.NewLedgerEvent(amqp.ExpenseCreated, uid, e3.ID)))

	n, err := w.ExportMonth(context.Background(), uid, 3, 2026)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, sink.batches)
	require.Len(t, sink.rows, 4)
	assert.Equal(t, e1.ID, sink.rows[1].ID, "backfill is ordered by date")

	// A second run finds nothing left to do.
	n, err = w.ExportMonth(context.Background(), uid, 3, 2026)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, sink.rows, 4)
}

func TestExportMonth_SinkFailure(t *testing.T) {
	w, store, sink, uid := setup(t, 10)
	addExpense(t, store, uid, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	sink.appendErr = errors.New("boom")

	n, err := w.ExportMonth(context.Background(), uid, 3, 2026)
	require.Error(t, err)
	assert.Zero(t, n)
}
