// Package worker exports ledger expenses to an external spreadsheet as they
// are created, with a month backfill for events that were missed.
package worker

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
)

// ExpenseSink is where exported expenses end up.
type ExpenseSink interface {
	Append(ctx context.Context, e core.Expense) (string, error)
	AppendBatch(ctx context.Context, expenses []core.Expense) (int, error)
	ListExpenses(ctx context.Context, userID int64, year, month int) ([]core.Expense, error)
}

type ExportWorker struct {
	store     ledger.Store
	sink      ExpenseSink
	batchSize int
	logger    *slog.Logger
}

func NewExportWorker(store ledger.Store, sink ExpenseSink, batchSize int, logger *slog.Logger) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportWorker{
		store:     store,
		sink:      sink,
		batchSize: batchSize,
		logger:    logger,
	}
}

// HandleEvent processes one ledger event from AMQP. Returning an error makes
// the consumer requeue the delivery, so only transient failures do.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	fields := applog.NewFields().
		WithComponent(applog.ComponentWorker).
		WithEntity(ev.UserID, string(ev.Kind), ev.EntityID)

	switch ev.Kind {
	case amqp.ExpenseCreated:
	case amqp.ExpenseDeleted:
		// Exported rows are an append-only log.
		w.logger.InfoContext(ctx, "Expense deleted, exported row kept", fields.ToSlice()...)
		return nil
	default:
		w.logger.DebugContext(ctx, "Ignoring event", fields.ToSlice()...)
		return nil
	}

	e, found, err := w.store.GetExpense(ctx, ev.UserID, ev.EntityID)
	if err != nil {
		return fmt.Errorf("get expense from store: %w", err)
	}
	if !found {
		// Deleted before we got to it, or the event names someone else's expense.
		w.logger.WarnContext(ctx, "Expense not found, skipping export", fields.ToSlice()...)
		return nil
	}

	ref, err := w.sink.Append(ctx, e)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to export expense", fields.WithError(err).ToSlice()...)
		return fmt.Errorf("export expense: %w", err)
	}

	w.logger.InfoContext(ctx, "Successfully exported expense",
		fields.WithOperation(applog.OpExport).
			With("sheets_ref", ref).
			With("amount", e.Amount.StringFixed(2)).
			ToSlice()...)
	return nil
}

// ExportMonth appends every expense of userID dated in month/year that the
// sink does not already hold, in batches. It returns the number of rows
// written and is safe to run repeatedly.
func (w *ExportWorker) ExportMonth(ctx context.Context, userID int64, month, year int) (int, error) {
	all, err := w.store.ListExpenses(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list expenses: %w", err)
	}

	exported, err := w.sink.ListExpenses(ctx, userID, year, month)
	if err != nil {
		return 0, fmt.Errorf("list exported expenses: %w", err)
	}
	seen := make(map[int64]bool, len(exported))
	for _, e := range exported {
		seen[e.ID] = true
	}

	var pending []core.Expense
	for _, e := range all {
		if e.Date.Year() != year || int(e.Date.Month()) != month || seen[e.ID] {
			continue
		}
		pending = append(pending, e)
	}
	slices.SortFunc(pending, func(a, b core.Expense) int {
		return cmp.Or(a.Date.Compare(b.Date), cmp.Compare(a.ID, b.ID))
	})

	fields := applog.NewFields().
		WithComponent(applog.ComponentWorker).
		WithOperation(applog.OpBackfill).
		WithPeriod(userID, month, year)

	if len(pending) == 0 {
		w.logger.InfoContext(ctx, "No pending expenses to export", fields.ToSlice()...)
		return 0, nil
	}

	written := 0
	for batch := range slices.Chunk(pending, w.batchSize) {
		n, err := w.sink.AppendBatch(ctx, batch)
		written += n
		if err != nil {
			return written, fmt.Errorf("export batch: %w", err)
		}
	}

	w.logger.InfoContext(ctx, "Month export completed",
		fields.With(applog.FieldCount, written).With("already_exported", len(seen)).ToSlice()...)
	return written, nil
}
