// Package memory is the volatile ledger backend. Rows live in process memory
// and vanish on restart; it backs tests and ephemeral runs.
package memory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

// table keeps rows in insertion order and hands out ids from a running counter.
type table[T any] struct {
	next int64
	ids  []int64
	rows map[int64]T
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[int64]T)}
}

func (t *table[T]) insert(build func(id int64) T) T {
	t.next++
	row := build(t.next)
	t.ids = append(t.ids, t.next)
	t.rows[t.next] = row
	return row
}

func (t *table[T]) filter(keep func(T) bool) []T {
	out := make([]T, 0)
	for _, id := range t.ids {
		if row := t.rows[id]; keep(row) {
			out = append(out, row)
		}
	}
	return out
}

func (t *table[T]) remove(id int64) {
	delete(t.rows, id)
	if i := slices.Index(t.ids, id); i >= 0 {
		t.ids = slices.Delete(t.ids, i, i+1)
	}
}

type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	users      *table[core.User]
	categories *table[core.Category]
	invoices   *table[core.Invoice]
	expenses   *table[core.Expense]
	budgets    *table[core.Budget]
	goals      *table[core.Goal]
	tips       *table[core.Tip]
}

func New() *Store {
	return &Store{
		now:        func() time.Time { return time.Now().UTC() },
		users:      newTable[core.User](),
		categories: newTable[core.Category](),
		invoices:   newTable[core.Invoice](),
		expenses:   newTable[core.Expense](),
		budgets:    newTable[core.Budget](),
		goals:      newTable[core.Goal](),
		tips:       newTable[core.Tip](),
	}
}

// NewFromFiles creates a store seeded with tips read from base/seed_tips.txt.
// Each line has the form "<type>: <message>"; blank lines and # comments are
// skipped. A missing file yields an empty store. Lines that do not parse into a
// valid tip are logged and skipped.
func NewFromFiles(base string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path := filepath.Join(base, "seed_tips.txt")
	lines, err := readLines(path)
	if err != nil {
		return nil, fmt.Errorf("seed tips: %w", err)
	}

	s := New()
	for n, line := range lines {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kind, msg, ok := strings.Cut(line, ":")
		if !ok {
			logger.Warn("Skipping seed tip without type", "file", path, "line", n+1)
			continue
		}
		tip := core.NewTip{Type: core.TipType(strings.TrimSpace(kind)), Message: strings.TrimSpace(msg)}
		if _, err := s.CreateTip(context.Background(), tip); err != nil {
			logger.Warn("Skipping invalid seed tip", "file", path, "line", n+1, "error", err)
		}
	}
	return s, nil
}

func (s *Store) Close() error { return nil }

// checkOwner rejects rows for users that were never created. Callers hold mu.
func (s *Store) checkOwner(userID int64) error {
	if _, ok := s.users.rows[userID]; !ok {
		return core.NewValidationError("UserID", "does not reference a known user")
	}
	return nil
}

// Users

func (s *Store) GetUser(_ context.Context, id int64) (core.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users.rows[id]
	return u, ok, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (core.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users.rows {
		if u.Username == username {
			return u, true, nil
		}
	}
	return core.User{}, false, nil
}

func (s *Store) CreateUser(_ context.Context, in core.NewUser) (core.User, error) {
	if err := core.Validate(in); err != nil {
		return core.User{}, fmt.Errorf("user: create: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users.rows {
		if u.Username == in.Username {
			return core.User{}, fmt.Errorf("user: create %q: %w", in.Username, core.ErrAlreadyExists)
		}
	}
	return s.users.insert(func(id int64) core.User {
		return core.User{ID: id, Username: in.Username, PasswordHash: in.PasswordHash}
	}), nil
}

// Categories

func (s *Store) ListCategories(_ context.Context, userID int64) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categories.filter(func(c core.Category) bool { return c.UserID == userID }), nil
}

func (s *Store) CreateCategory(_ context.Context, userID int64, in core.NewCategory) (core.Category, error) {
	if err := core.Validate(in); err != nil {
		return core.Category{}, fmt.Errorf("category: create: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwner(userID); err != nil {
		return core.Category{}, fmt.Errorf("category: create: %w", err)
	}
	return s.categories.insert(func(id int64) core.Category {
		return core.Category{ID: id, UserID: userID, Name: in.Name}
	}), nil
}

// Invoices

func (s *Store) ListInvoices(_ context.Context, userID int64) ([]core.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.invoices.filter(func(i core.Invoice) bool { return i.UserID == userID }), nil
}

func (s *Store) GetInvoice(_ context.Context, userID, id int64) (core.Invoice, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices.rows[id]
	if !ok || inv.UserID != userID {
		return core.Invoice{}, false, nil
	}
	return inv, true, nil
}

func (s *Store) CreateInvoice(_ context.Context, userID int64, in core.NewInvoice) (core.Invoice, error) {
	if err := core.Validate(in); err != nil {
		return core.Invoice{}, fmt.Errorf("invoice: create: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwner(userID); err != nil {
		return core.Invoice{}, fmt.Errorf("invoice: create: %w", err)
	}
	return s.invoices.insert(func(id int64) core.Invoice {
		return core.Invoice{
			ID:           id,
			UserID:       userID,
			CustomerName: in.CustomerName,
			Description:  in.Description,
			Amount:       in.Amount,
			DueDate:      in.DueDate,
			Status:       in.Status,
			CreatedAt:    s.now(),
		}
	}), nil
}

func (s *Store) DeleteInvoice(_ context.Context, userID, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices.rows[id]
	if !ok || inv.UserID != userID {
		return false, nil
	}
	s.invoices.remove(id)
	return true, nil
}

// Expenses

func (s *Store) ListExpenses(_ context.Context, userID int64) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expenses.filter(func(e core.Expense) bool { return e.UserID == userID }), nil
}

func (s *Store) GetExpense(_ context.Context, userID, id int64) (core.Expense, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses.rows[id]
	if !ok || e.UserID != userID {
		return core.Expense{}, false, nil
	}
	return e, true, nil
}

func (s *Store) CreateExpense(_ context.Context, userID int64, in core.NewExpense) (core.Expense, error) {
	if err := core.Validate(in); err != nil {
		return core.Expense{}, fmt.Errorf("expense: create: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwner(userID); err != nil {
		return core.Expense{}, fmt.Errorf("expense: create: %w", err)
	}
	return s.expenses.insert(func(id int64) core.Expense {
		return core.Expense{
			ID:          id,
			UserID:      userID,
			Description: in.Description,
			Amount:      in.Amount,
			Category:    in.Category,
			Date:        in.Date,
			CreatedAt:   s.now(),
		}
	}), nil
}

func (s *Store) DeleteExpense(_ context.Context, userID, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses.rows[id]
	if !ok || e.UserID != userID {
		return false, nil
	}
	s.expenses.remove(id)
	return true, nil
}

// Budgets

func (s *Store) ListBudgets(_ context.Context, userID int64) ([]core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.budgets.filter(func(b core.Budget) bool { return b.UserID == userID }), nil
}

func (s *Store) ListBudgetsByPeriod(_ context.Context, userID int64, month, year int) ([]core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.budgets.filter(func(b core.Budget) bool {
		return b.UserID == userID && b.Month == month && b.Year == year
	}), nil
}

func (s *Store) CreateBudget(_ context.Context, userID int64, in core.NewBudget) (core.Budget, error) {
	if err := core.Validate(in); err != nil {
		return core.Budget{}, fmt.Errorf("budget: create: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwner(userID); err != nil {
		return core.Budget{}, fmt.Errorf("budget: create: %w", err)
	}
	for _, b := range s.budgets.rows {
		if b.UserID == userID && b.Category == in.Category && b.Month == in.Month && b.Year == in.Year {
			return core.Budget{}, fmt.Errorf("budget: create %s %02d/%d: %w", in.Category, in.Month, in.Year, core.ErrAlreadyExists)
		}
	}
	return s.budgets.insert(func(id int64) core.Budget {
		return core.Budget{
			ID:       id,
			UserID:   userID,
			Category: in.Category,
			Amount:   in.Amount,
			Month:    in.Month,
			Year:     in.Year,
		}
	}), nil
}

func (s *Store) DeleteBudget(_ context.Context, userID, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets.rows[id]
	if !ok || b.UserID != userID {
		return false, nil
	}
	s.budgets.remove(id)
	return true, nil
}

// Goals. Breakdown maps are cloned on the way in and out so callers never
// share state with the store.

func (s *Store) ListGoals(_ context.Context, userID int64) ([]core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	goals := s.goals.filter(func(g core.Goal) bool { return g.UserID == userID })
	for i := range goals {
		goals[i] = goals[i].Clone()
	}
	return goals, nil
}

func (s *Store) GetGoal(_ context.Context, userID, id int64) (core.Goal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals.rows[id]
	if !ok || g.UserID != userID {
		return core.Goal{}, false, nil
	}
	return g.Clone(), true, nil
}

func (s *Store) CreateGoal(_ context.Context, userID int64, in core.NewGoal) (core.Goal, error) {
	if err := core.Validate(in); err != nil {
		return core.Goal{}, fmt.Errorf("goal: create: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwner(userID); err != nil {
		return core.Goal{}, fmt.Errorf("goal: create: %w", err)
	}
	g := s.goals.insert(func(id int64) core.Goal {
		return core.Goal{
			ID:            id,
			UserID:        userID,
			Name:          in.Name,
			TargetAmount:  in.TargetAmount,
			CurrentAmount: in.CurrentAmount,
			Deadline:      in.Deadline,
			Breakdown:     in.Breakdown,
			CreatedAt:     s.now(),
		}.Clone()
	})
	return g.Clone(), nil
}

func (s *Store) UpdateGoal(_ context.Context, userID, id int64, patch core.GoalPatch) (core.Goal, bool, error) {
	if err := patch.Validate(); err != nil {
		return core.Goal{}, false, fmt.Errorf("goal: update %d: %w", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals.rows[id]
	if !ok || g.UserID != userID {
		return core.Goal{}, false, nil
	}
	g = patch.Apply(g.Clone())
	s.goals.rows[id] = g
	return g.Clone(), true, nil
}

func (s *Store) DeleteGoal(_ context.Context, userID, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals.rows[id]
	if !ok || g.UserID != userID {
		return false, nil
	}
	s.goals.remove(id)
	return true, nil
}

// Tips

func (s *Store) ListTips(_ context.Context, tipType core.TipType) ([]core.Tip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tips.filter(func(t core.Tip) bool { return tipType == "" || t.Type == tipType }), nil
}

func (s *Store) CreateTip(_ context.Context, in core.NewTip) (core.Tip, error) {
	if err := core.Validate(in); err != nil {
		return core.Tip{}, fmt.Errorf("tip: create: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tips.insert(func(id int64) core.Tip {
		return core.Tip{ID: id, Type: in.Type, Message: in.Message}
	}), nil
}

// readLines returns the trimmed lines of path. A missing file is not an error;
// any other read failure is.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
