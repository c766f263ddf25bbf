// Package storage is the durable ledger backend: one SQLite table per entity
// kind, schema managed by golang-migrate, queries built with squirrel.
//
// Every create and update is a single INSERT/UPDATE ... RETURNING statement so
// the database assigns ids and creation timestamps and no partial row is ever
// visible.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

var _ ledger.Store = (*SQLiteRepository)(nil)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

const (
	userColumns     = "id, username, password_hash"
	categoryColumns = "id, user_id, name"
	invoiceColumns  = "id, user_id, customer_name, description, amount, due_date, status, created_at"
	expenseColumns  = "id, user_id, description, amount, category, date, created_at"
	budgetColumns   = "id, user_id, category, amount, month, year"
	goalColumns     = "id, user_id, name, target_amount, current_amount, deadline, breakdown, created_at"
	tipColumns      = "id, type, message"
)

type SQLiteRepository struct {
	db *sql.DB
}

// DSN returns the connection string used for dbPath: foreign keys enforced,
// WAL journal and a busy timeout so concurrent writers wait instead of failing.
func DSN(dbPath string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + dbPath + "?" + q.Encode()
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := MigrateUp(dsn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("Database schema ready", "path", dbPath, "version", version)

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// DB exposes the underlying handle for adapters that share the database file.
func (r *SQLiteRepository) DB() *sql.DB { return r.db }

// Users

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, bool, error) {
	u, found, err := queryOne(ctx, r.db, psql.Select(userColumns).From("users").Where(sq.Eq{"id": id}), scanUser)
	if err != nil {
		return core.User{}, false, fmt.Errorf("user: get %d: %w", id, err)
	}
	return u, found, nil
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, bool, error) {
	u, found, err := queryOne(ctx, r.db, psql.Select(userColumns).From("users").Where(sq.Eq{"username": username}), scanUser)
	if err != nil {
		return core.User{}, false, fmt.Errorf("user: get by username: %w", err)
	}
	return u, found, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, in core.NewUser) (core.User, error) {
	if err := core.Validate(in); err != nil {
		return core.User{}, fmt.Errorf("user: create: %w", err)
	}
	b := psql.Insert("users").
		Columns("username", "password_hash").
		Values(in.Username, in.PasswordHash).
		Suffix("RETURNING " + userColumns)
	u, err := insertOne(ctx, r.db, b, scanUser)
	if err != nil {
		return core.User{}, fmt.Errorf("user: create %q: %w", in.Username, err)
	}
	slog.InfoContext(ctx, "User saved to SQLite", "id", u.ID, "username", u.Username)
	return u, nil
}

// Categories

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	cats, err := queryAll(ctx, r.db, psql.Select(categoryColumns).From("categories").Where(sq.Eq{"user_id": userID}).OrderBy("id"), scanCategory)
	if err != nil {
		return nil, fmt.Errorf("category: list: %w", err)
	}
	return cats, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, userID int64, in core.NewCategory) (core.Category, error) {
	if err := core.Validate(in); err != nil {
		return core.Category{}, fmt.Errorf("category: create: %w", err)
	}
	b := psql.Insert("categories").
		Columns("user_id", "name").
		Values(userID, in.Name).
		Suffix("RETURNING " + categoryColumns)
	c, err := insertOne(ctx, r.db, b, scanCategory)
	if err != nil {
		return core.Category{}, fmt.Errorf("category: create: %w", err)
	}
	return c, nil
}

// Invoices

func (r *SQLiteRepository) ListInvoices(ctx context.Context, userID int64) ([]core.Invoice, error) {
	invs, err := queryAll(ctx, r.db, psql.Select(invoiceColumns).From("invoices").Where(sq.Eq{"user_id": userID}).OrderBy("id"), scanInvoice)
	if err != nil {
		return nil, fmt.Errorf("invoice: list: %w", err)
	}
	return invs, nil
}

func (r *SQLiteRepository) GetInvoice(ctx context.Context, userID, id int64) (core.Invoice, bool, error) {
	inv, found, err := queryOne(ctx, r.db, psql.Select(invoiceColumns).From("invoices").Where(sq.Eq{"id": id, "user_id": userID}), scanInvoice)
	if err != nil {
		return core.Invoice{}, false, fmt.Errorf("invoice: get %d: %w", id, err)
	}
	return inv, found, nil
}

func (r *SQLiteRepository) CreateInvoice(ctx context.Context, userID int64, in core.NewInvoice) (core.Invoice, error) {
	if err := core.Validate(in); err != nil {
		return core.Invoice{}, fmt.Errorf("invoice: create: %w", err)
	}
	b := psql.Insert("invoices").
		Columns("user_id", "customer_name", "description", "amount", "due_date", "status").
		Values(userID, in.CustomerName, in.Description, in.Amount.String(), formatTime(in.DueDate), string(in.Status)).
		Suffix("RETURNING " + invoiceColumns)
	inv, err := insertOne(ctx, r.db, b, scanInvoice)
	if err != nil {
		return core.Invoice{}, fmt.Errorf("invoice: create: %w", err)
	}
	slog.InfoContext(ctx, "Invoice saved to SQLite", "id", inv.ID, "user_id", userID, "amount", inv.Amount.String())
	return inv, nil
}

func (r *SQLiteRepository) DeleteInvoice(ctx context.Context, userID, id int64) (bool, error) {
	found, err := deleteOwned(ctx, r.db, "invoices", userID, id)
	if err != nil {
		return false, fmt.Errorf("invoice: delete %d: %w", id, err)
	}
	return found, nil
}

// Expenses

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64) ([]core.Expense, error) {
	exps, err := queryAll(ctx, r.db, psql.Select(expenseColumns).From("expenses").Where(sq.Eq{"user_id": userID}).OrderBy("id"), scanExpense)
	if err != nil {
		return nil, fmt.Errorf("expense: list: %w", err)
	}
	return exps, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, userID, id int64) (core.Expense, bool, error) {
	e, found, err := queryOne(ctx, r.db, psql.Select(expenseColumns).From("expenses").Where(sq.Eq{"id": id, "user_id": userID}), scanExpense)
	if err != nil {
		return core.Expense{}, false, fmt.Errorf("expense: get %d: %w", id, err)
	}
	return e, found, nil
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, userID int64, in core.NewExpense) (core.Expense, error) {
	if err := core.Validate(in); err != nil {
		return core.Expense{}, fmt.Errorf("expense: create: %w", err)
	}
	b := psql.Insert("expenses").
		Columns("user_id", "description", "amount", "category", "date").
		Values(userID, in.Description, in.Amount.String(), in.Category, formatTime(in.Date)).
		Suffix("RETURNING " + expenseColumns)
	e, err := insertOne(ctx, r.db, b, scanExpense)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense: create: %w", err)
	}
	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"user_id", userID,
		"description", e.Description,
		"amount", e.Amount.String(),
		"category", e.Category)
	return e, nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id int64) (bool, error) {
	found, err := deleteOwned(ctx, r.db, "expenses", userID, id)
	if err != nil {
		return false, fmt.Errorf("expense: delete %d: %w", id, err)
	}
	return found, nil
}

// Budgets

func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	bs, err := queryAll(ctx, r.db, psql.Select(budgetColumns).From("budgets").Where(sq.Eq{"user_id": userID}).OrderBy("id"), scanBudget)
	if err != nil {
		return nil, fmt.Errorf("budget: list: %w", err)
	}
	return bs, nil
}

func (r *SQLiteRepository) ListBudgetsByPeriod(ctx context.Context, userID int64, month, year int) ([]core.Budget, error) {
	b := psql.Select(budgetColumns).From("budgets").
		Where(sq.Eq{"user_id": userID, "month": month, "year": year}).
		OrderBy("id")
	bs, err := queryAll(ctx, r.db, b, scanBudget)
	if err != nil {
		return nil, fmt.Errorf("budget: list %02d/%d: %w", month, year, err)
	}
	return bs, nil
}

func (r *SQLiteRepository) CreateBudget(ctx context.Context, userID int64, in core.NewBudget) (core.Budget, error) {
	if err := core.Validate(in); err != nil {
		return core.Budget{}, fmt.Errorf("budget: create: %w", err)
	}
	b := psql.Insert("budgets").
		Columns("user_id", "category", "amount", "month", "year").
		Values(userID, in.Category, in.Amount.String(), in.Month, in.Year).
		Suffix("RETURNING " + budgetColumns)
	bud, err := insertOne(ctx, r.db, b, scanBudget)
	if err != nil {
		return core.Budget{}, fmt.Errorf("budget: create %s %02d/%d: %w", in.Category, in.Month, in.Year, err)
	}
	return bud, nil
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, userID, id int64) (bool, error) {
	found, err := deleteOwned(ctx, r.db, "budgets", userID, id)
	if err != nil {
		return false, fmt.Errorf("budget: delete %d: %w", id, err)
	}
	return found, nil
}

// Goals

func (r *SQLiteRepository) ListGoals(ctx context.Context, userID int64) ([]core.Goal, error) {
	gs, err := queryAll(ctx, r.db, psql.Select(goalColumns).From("goals").Where(sq.Eq{"user_id": userID}).OrderBy("id"), scanGoal)
	if err != nil {
		return nil, fmt.Errorf("goal: list: %w", err)
	}
	return gs, nil
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, userID, id int64) (core.Goal, bool, error) {
	g, found, err := queryOne(ctx, r.db, psql.Select(goalColumns).From("goals").Where(sq.Eq{"id": id, "user_id": userID}), scanGoal)
	if err != nil {
		return core.Goal{}, false, fmt.Errorf("goal: get %d: %w", id, err)
	}
	return g, found, nil
}

func (r *SQLiteRepository) CreateGoal(ctx context.Context, userID int64, in core.NewGoal) (core.Goal, error) {
	if err := core.Validate(in); err != nil {
		return core.Goal{}, fmt.Errorf("goal: create: %w", err)
	}
	breakdown, err := encodeBreakdown(in.Breakdown)
	if err != nil {
		return core.Goal{}, fmt.Errorf("goal: create: %w", err)
	}
	b := psql.Insert("goals").
		Columns("user_id", "name", "target_amount", "current_amount", "deadline", "breakdown").
		Values(userID, in.Name, in.TargetAmount.String(), in.CurrentAmount.String(), formatTime(in.Deadline), breakdown).
		Suffix("RETURNING " + goalColumns)
	g, err := insertOne(ctx, r.db, b, scanGoal)
	if err != nil {
		return core.Goal{}, fmt.Errorf("goal: create: %w", err)
	}
	return g, nil
}

func (r *SQLiteRepository) UpdateGoal(ctx context.Context, userID, id int64, patch core.GoalPatch) (core.Goal, bool, error) {
	if err := patch.Validate(); err != nil {
		return core.Goal{}, false, fmt.Errorf("goal: update %d: %w", id, err)
	}
	if patch.IsEmpty() {
		return r.GetGoal(ctx, userID, id)
	}

	b := psql.Update("goals").Where(sq.Eq{"id": id, "user_id": userID})
	if patch.Name != nil {
		b = b.Set("name", *patch.Name)
	}
	if patch.TargetAmount != nil {
		b = b.Set("target_amount", patch.TargetAmount.String())
	}
	if patch.CurrentAmount != nil {
		b = b.Set("current_amount", patch.CurrentAmount.String())
	}
	if patch.Deadline != nil {
		b = b.Set("deadline", formatTime(*patch.Deadline))
	}
	if patch.Breakdown != nil {
		breakdown, err := encodeBreakdown(patch.Breakdown)
		if err != nil {
			return core.Goal{}, false, fmt.Errorf("goal: update %d: %w", id, err)
		}
		b = b.Set("breakdown", breakdown)
	}

	g, found, err := queryOne(ctx, r.db, b.Suffix("RETURNING "+goalColumns), scanGoal)
	if err != nil {
		return core.Goal{}, false, fmt.Errorf("goal: update %d: %w", id, mapConstraint(err))
	}
	return g, found, nil
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, userID, id int64) (bool, error) {
	found, err := deleteOwned(ctx, r.db, "goals", userID, id)
	if err != nil {
		return false, fmt.Errorf("goal: delete %d: %w", id, err)
	}
	return found, nil
}

// Tips

func (r *SQLiteRepository) ListTips(ctx context.Context, tipType core.TipType) ([]core.Tip, error) {
	b := psql.Select(tipColumns).From("tips").OrderBy("id")
	if tipType != "" {
		b = b.Where(sq.Eq{"type": string(tipType)})
	}
	tips, err := queryAll(ctx, r.db, b, scanTip)
	if err != nil {
		return nil, fmt.Errorf("tip: list: %w", err)
	}
	return tips, nil
}

func (r *SQLiteRepository) CreateTip(ctx context.Context, in core.NewTip) (core.Tip, error) {
	if err := core.Validate(in); err != nil {
		return core.Tip{}, fmt.Errorf("tip: create: %w", err)
	}
	b := psql.Insert("tips").
		Columns("type", "message").
		Values(string(in.Type), in.Message).
		Suffix("RETURNING " + tipColumns)
	tip, err := insertOne(ctx, r.db, b, scanTip)
	if err != nil {
		return core.Tip{}, fmt.Errorf("tip: create: %w", err)
	}
	return tip, nil
}

// Query helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func queryAll[T any](ctx context.Context, db *sql.DB, b sq.Sqlizer, scan func(rowScanner) (T, error)) ([]T, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func queryOne[T any](ctx context.Context, db *sql.DB, b sq.Sqlizer, scan func(rowScanner) (T, error)) (T, bool, error) {
	var zero T
	query, args, err := b.ToSql()
	if err != nil {
		return zero, false, fmt.Errorf("build query: %w", err)
	}
	v, err := scan(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func insertOne[T any](ctx context.Context, db *sql.DB, b sq.Sqlizer, scan func(rowScanner) (T, error)) (T, error) {
	v, found, err := queryOne(ctx, db, b, scan)
	if err != nil {
		var zero T
		return zero, mapConstraint(err)
	}
	if !found {
		var zero T
		return zero, errors.New("insert returned no row")
	}
	return v, nil
}

func deleteOwned(ctx context.Context, db *sql.DB, table string, userID, id int64) (bool, error) {
	query, args, err := psql.Delete(table).Where(sq.Eq{"id": id, "user_id": userID}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// mapConstraint translates SQLite constraint violations into ledger errors.
func mapConstraint(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %s", core.ErrAlreadyExists, se.Error())
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return core.NewValidationError("UserID", "does not reference a known user")
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL, sqlite3.SQLITE_CONSTRAINT_CHECK:
		return &core.ValidationError{Errors: []core.FieldError{{Field: "row", Message: se.Error()}}}
	default:
		return err
	}
}

// Row mapping

func scanUser(row rowScanner) (core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash)
	return u, err
}

func scanCategory(row rowScanner) (core.Category, error) {
	var c core.Category
	err := row.Scan(&c.ID, &c.UserID, &c.Name)
	return c, err
}

func scanInvoice(row rowScanner) (core.Invoice, error) {
	var (
		inv                       core.Invoice
		amount, due, status, crAt string
	)
	if err := row.Scan(&inv.ID, &inv.UserID, &inv.CustomerName, &inv.Description, &amount, &due, &status, &crAt); err != nil {
		return core.Invoice{}, err
	}
	inv.Status = core.InvoiceStatus(status)
	var err error
	if inv.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Invoice{}, fmt.Errorf("parse amount: %w", err)
	}
	if inv.DueDate, err = parseTime(due); err != nil {
		return core.Invoice{}, err
	}
	if inv.CreatedAt, err = parseTime(crAt); err != nil {
		return core.Invoice{}, err
	}
	return inv, nil
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e                  core.Expense
		amount, date, crAt string
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Description, &amount, &e.Category, &date, &crAt); err != nil {
		return core.Expense{}, err
	}
	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Expense{}, fmt.Errorf("parse amount: %w", err)
	}
	if e.Date, err = parseTime(date); err != nil {
		return core.Expense{}, err
	}
	if e.CreatedAt, err = parseTime(crAt); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

func scanBudget(row rowScanner) (core.Budget, error) {
	var (
		b      core.Budget
		amount string
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.Category, &amount, &b.Month, &b.Year); err != nil {
		return core.Budget{}, err
	}
	var err error
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Budget{}, fmt.Errorf("parse amount: %w", err)
	}
	return b, nil
}

func scanGoal(row rowScanner) (core.Goal, error) {
	var (
		g                                      core.Goal
		target, current, deadline, bdown, crAt string
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.Name, &target, &current, &deadline, &bdown, &crAt); err != nil {
		return core.Goal{}, err
	}
	var err error
	if g.TargetAmount, err = decimal.NewFromString(target); err != nil {
		return core.Goal{}, fmt.Errorf("parse target amount: %w", err)
	}
	if g.CurrentAmount, err = decimal.NewFromString(current); err != nil {
		return core.Goal{}, fmt.Errorf("parse current amount: %w", err)
	}
	if g.Deadline, err = parseTime(deadline); err != nil {
		return core.Goal{}, err
	}
	if g.CreatedAt, err = parseTime(crAt); err != nil {
		return core.Goal{}, err
	}
	if err := json.Unmarshal([]byte(bdown), &g.Breakdown); err != nil {
		return core.Goal{}, fmt.Errorf("parse breakdown: %w", err)
	}
	return g, nil
}

func scanTip(row rowScanner) (core.Tip, error) {
	var (
		t    core.Tip
		kind string
	)
	err := row.Scan(&t.ID, &kind, &t.Message)
	t.Type = core.TipType(kind)
	return t, err
}

func encodeBreakdown(b map[string]decimal.Decimal) (string, error) {
	if b == nil {
		b = map[string]decimal.Decimal{}
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode breakdown: %w", err)
	}
	return string(raw), nil
}

// formatTime keeps the caller's offset so calendar fields read back unchanged.
func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
