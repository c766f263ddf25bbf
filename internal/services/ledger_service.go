package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
)

// EventPublisher delivers ledger events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event *amqp.LedgerEvent) error
	Close() error
}

// LedgerService wraps a ledger.Store and announces created and deleted
// expenses and invoices. The store write always wins: a publish failure is
// logged and never turned into a failed request.
type LedgerService struct {
	ledger.Store
	publisher EventPublisher
	logger    *slog.Logger
}

var _ ledger.Store = (*LedgerService)(nil)

// NewLedgerService decorates store. publisher may be nil, in which case no
// events are sent.
func NewLedgerService(store ledger.Store, publisher EventPublisher, logger *slog.Logger) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{
		Store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *LedgerService) CreateExpense(ctx context.Context, userID int64, in core.NewExpense) (core.Expense, error) {
	e, err := s.Store.CreateExpense(ctx, userID, in)
	if err != nil {
		return core.Expense{}, err
	}
	s.publish(ctx, amqp.ExpenseCreated, userID, e.ID)
	return e, nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, userID, id int64) (bool, error) {
	found, err := s.Store.DeleteExpense(ctx, userID, id)
	if err != nil || !found {
		return found, err
	}
	s.publish(ctx, amqp.ExpenseDeleted, userID, id)
	return true, nil
}

func (s *LedgerService) CreateInvoice(ctx context.Context, userID int64, in core.NewInvoice) (core.Invoice, error) {
	inv, err := s.Store.CreateInvoice(ctx, userID, in)
	if err != nil {
		return core.Invoice{}, err
	}
	s.publish(ctx, amqp.InvoiceCreated, userID, inv.ID)
	return inv, nil
}

func (s *LedgerService) publish(ctx context.Context, kind amqp.EventKind, userID, id int64) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not available, skipping event", "kind", kind, "id", id)
		return
	}
	// The write is already committed; a caller giving up must not suppress the event.
	if err := s.publisher.Publish(context.WithoutCancel(ctx), amqp.NewLedgerEvent(kind, userID, id)); err != nil {
		fields := applog.NewFields().
			WithComponent(applog.ComponentLedger).
			WithOperation(applog.OpPublish).
			WithEntity(userID, string(kind), id).
			WithError(err)
		s.logger.ErrorContext(ctx, "Failed to publish ledger event", fields.ToSlice()...)
	}
}

// Close closes both the store and the publisher.
func (s *LedgerService) Close() error {
	var errs []error

	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}
	return nil
}
