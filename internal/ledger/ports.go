// Package ledger defines the storage contract shared by the volatile and the
// durable backend. Callers hold a Store and never a concrete backend type.
//
// Every "by user" read is scoped to the supplied user id. A missing entity and
// an entity owned by someone else are reported the same way: found == false
// with a nil error.
package ledger

import (
	"context"

	"ledger/internal/core"
)

// Ports for the ledger entity kinds.
type (
	UserStore interface {
		GetUser(ctx context.Context, id int64) (u core.User, found bool, err error)
		GetUserByUsername(ctx context.Context, username string) (u core.User, found bool, err error)
		CreateUser(ctx context.Context, in core.NewUser) (core.User, error)
	}

	CategoryStore interface {
		ListCategories(ctx context.Context, userID int64) ([]core.Category, error)
		CreateCategory(ctx context.Context, userID int64, in core.NewCategory) (core.Category, error)
	}

	InvoiceStore interface {
		ListInvoices(ctx context.Context, userID int64) ([]core.Invoice, error)
		GetInvoice(ctx context.Context, userID, id int64) (inv core.Invoice, found bool, err error)
		CreateInvoice(ctx context.Context, userID int64, in core.NewInvoice) (core.Invoice, error)
		DeleteInvoice(ctx context.Context, userID, id int64) (found bool, err error)
	}

	ExpenseStore interface {
		ListExpenses(ctx context.Context, userID int64) ([]core.Expense, error)
		GetExpense(ctx context.Context, userID, id int64) (e core.Expense, found bool, err error)
		CreateExpense(ctx context.Context, userID int64, in core.NewExpense) (core.Expense, error)
		DeleteExpense(ctx context.Context, userID, id int64) (found bool, err error)
	}

	BudgetStore interface {
		ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error)
		// ListBudgetsByPeriod matches month and year exactly.
		ListBudgetsByPeriod(ctx context.Context, userID int64, month, year int) ([]core.Budget, error)
		CreateBudget(ctx context.Context, userID int64, in core.NewBudget) (core.Budget, error)
		DeleteBudget(ctx context.Context, userID, id int64) (found bool, err error)
	}

	GoalStore interface {
		ListGoals(ctx context.Context, userID int64) ([]core.Goal, error)
		GetGoal(ctx context.Context, userID, id int64) (g core.Goal, found bool, err error)
		CreateGoal(ctx context.Context, userID int64, in core.NewGoal) (core.Goal, error)
		// UpdateGoal merges only the fields set in patch.
		UpdateGoal(ctx context.Context, userID, id int64, patch core.GoalPatch) (g core.Goal, found bool, err error)
		DeleteGoal(ctx context.Context, userID, id int64) (found bool, err error)
	}

	TipStore interface {
		ListTips(ctx context.Context, tipType core.TipType) ([]core.Tip, error)
		CreateTip(ctx context.Context, in core.NewTip) (core.Tip, error)
	}
)

// Store is the full ledger contract.
type Store interface {
	UserStore
	CategoryStore
	InvoiceStore
	ExpenseStore
	BudgetStore
	GoalStore
	TipStore
	Close() error
}
