// Package ledgertest holds the behaviour every ledger.Store backend must share.
// Backend packages call Run from their own tests.
package ledgertest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/aggregate"
	"ledger/internal/core"
	"ledger/internal/ledger"
)

// Factory returns an empty store. Cleanup is the factory's responsibility.
type Factory func(t *testing.T) ledger.Store

func Run(t *testing.T, newStore Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, f fixture)
	}{
		{"UniqueIDs", testUniqueIDs},
		{"ConcurrentCreates", testConcurrentCreates},
		{"UserScoping", testUserScoping},
		{"Users", testUsers},
		{"BudgetsByPeriod", testBudgetsByPeriod},
		{"BudgetUniqueness", testBudgetUniqueness},
		{"GoalUpdate", testGoalUpdate},
		{"GoalUpdateOtherUser", testGoalUpdateOtherUser},
		{"GoalOvershoot", testGoalOvershoot},
		{"Deletes", testDeletes},
		{"Validation", testValidation},
		{"Tips", testTips},
		{"InvoiceRoundTrip", testInvoiceRoundTrip},
		{"UnknownOwner", testUnknownOwner},
		{"DatesKeepTheirZone", testDatesKeepTheirZone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			tc.fn(t, seed(t, s))
		})
	}
}

// fixture is a store with three registered users.
type fixture struct {
	s          ledger.Store
	u1, u2, u3 int64
}

func seed(t *testing.T, s ledger.Store) fixture {
	t.Helper()
	ids := make([]int64, 3)
	for i, name := range []string{"alice", "bob", "carol"} {
		u, err := s.CreateUser(context.Background(), core.NewUser{Username: name, PasswordHash: "x"})
		require.NoError(t, err)
		ids[i] = u.ID
	}
	return fixture{s: s, u1: ids[0], u2: ids[1], u3: ids[2]}
}

func (f fixture) users() []int64 { return []int64{f.u1, f.u2, f.u3} }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func expense(desc, category, amount string, date time.Time) core.NewExpense {
	return core.NewExpense{
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		Category:    category,
		Date:        date,
	}
}

func testUniqueIDs(t *testing.T, f fixture) {
	s, ctx := f.s, context.Background()
	seen := map[int64]bool{}
	for i := 0; i < 20; i++ {
		e, err := s.CreateExpense(ctx, f.users()[i%3], expense("x", "Food", "1.50", day(2025, 1, 1)))
		require.NoError(t, err)
		assert.False(t, seen[e.ID], "duplicate id %d", e.ID)
		seen[e.ID] = true
		assert.False(t, e.CreatedAt.IsZero(), "created_at must be stamped")
	}
}

func testConcurrentCreates(t *testing.T, f fixture) {
	s, ctx := f.s, context.Background()
	const workers, perWorker = 8, 10

	var (
		mu   sync.Mutex
		ids  = map[int64]bool{}
		wg   sync.WaitGroup
		errs = make(chan error, workers*perWorker)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c, err := s.CreateCategory(ctx, f.users()[w%3], core.NewCategory{Name: "cat"})
				if err != nil {
					errs <- err
					continue
				}
				mu.Lock()
				if ids[c.ID] {
					errs <- errors.New("duplicate id under concurrency")
				}
				ids[c.ID] = true
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, ids, workers*perWorker)
}

func testUserScoping(t *testing.T, f fixture) {
	s, ctx := f.s, context.Background()
	for n, u := range f.users() {
		for i := 0; i <= n; i++ {
			_, err := s.CreateExpense(ctx, u, expense("e", "Food", "10", day(2025, 2, 1)))
			require.NoError(t, err)
			_, err = s.CreateCategory(ctx, u, core.NewCategory{Name: "Food"})
			require.NoError(t, err)
			_, err = s.CreateGoal(ctx, u, core.NewGoal{Name: "g", TargetAmount: decimal.NewFromInt(10), Deadline: day(2026, 1, 1)})
			require.NoError(t, err)
		}
	}

	for n, u := range f.users() {
		exps, err := s.ListExpenses(ctx, u)
		require.NoError(t, err)
		assert.Len(t, exps, n+1)
		for _, e := range exps {
			assert.Equal(t, u, e.UserID)
		}
		cats, err := s.ListCategories(ctx, u)
		require.NoError(t, err)
		assert.Len(t, cats, n+1)
		for _, c := range cats {
			assert.Equal(t, u, c.UserID)
		}
		goals, err := s.ListGoals(ctx, u)
		require.NoError(t, err)
		assert.Len(t, goals, n+1)
		for _, g := range goals {
			assert.Equal(t, u, g.UserID)
		}
	}

	none, err := s.ListExpenses(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, none)

	exps, err := s.ListExpenses(ctx, f.u1)
	require.NoError(t, err)
	_, found, err := s.GetExpense(ctx, f.u2, exps[0].ID)
	require.NoError(t, err)
	assert.False(t, found, "expense of one user must not be visible to another")
}

func testUsers(t *testing.T, f fixture) {
	s, ctx := f.s, context.Background()
	u, err := s.CreateUser(ctx, core.NewUser{Username: "ada", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)

	got, found, err := s.GetUserByUsername(ctx, "ada")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, u, got)

	got, found, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = s.CreateUser(ctx, core.NewUser{Username: "ada", PasswordHash: "other"})
	assert.ErrorIs(t, err, core.ErrAlreadyExists)

	_, found, err = s.GetUserByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, found)
}

func testBudgetsByPeriod(t *testing.T, f fixture) {
	s, ctx := f.s, context.Background()
	for _, b := range []core.NewBudget{
		{Category: "Food", Amount: decimal.NewFromInt(100), Month: 3, Year: 2025},
		{Category: "Rent", Amount: decimal.NewFromInt(900), Month: 3, Year: 2025},
		{Category: "Food", Amount: decimal.NewFromInt(120), Month: 4, Year: 2025},
		{Category: "Food", Amount: decimal.NewFromInt(80), Month: 3, Year: 2024},
	} {
		_, err := s.CreateBudget(ctx, f.u1, b)
		require.NoError(t, err)
	}
	_, err := s.CreateBudget(ctx, f.u2, core.NewBudget{Category: "Food", Amount: decimal.NewFromInt(5), Month: 3, Year: 2025})
	require.NoError(t, err)

	got, err := s.ListBudgetsByPeriod(ctx, f.u1, 3, 2025)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, b := range got {
		assert.Equal(t, 3, b.Month)
		assert.Equal(t, 2025, b.Year)
		assert.Equal(t, f.u1, b.UserID)
	}

	all, err := s.ListBudgets(ctx, f.u1)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func testBudgetUniqueness(t *testing.T, f fixture) {
	s, ctx := f.s, context.Background()
	in := core.NewBudget{Category: "Food", Amount: decimal.NewFromInt(100), Month: 5, Year: 2025}
	_, err := s.CreateBudget(ctx, f.u1, in)
	require.NoError(t, err)

	_, err = s.CreateBudget(ctx, f.u1, in)
	assert.ErrorIs(t, err, core.ErrAlreadyExists)

	_, err = s.CreateBudget(ctx, f.u2, in)
	assert.NoError(t, err, "uniqueness is per user")
}

func testGoalUpdate(t *testing.T, f fixture) {
	s, ctx := f.s, context.Background()
	g, err := s.CreateGoal(ctx, f.u1, core.NewGoal{
		Name:         "Bike",
		TargetAmount: decimal.NewFromInt(1200),
		Deadline:     day(2026, 6, 1),
		Breakdown:    map[string]decimal.Decimal{"frame": decimal.NewFromInt(800)},
	})
	require.NoError(t, err)
	assert.True(t, g.CurrentAmount.IsZero(), "current amount defaults to 0")

	current := decimal.NewFromInt(200)
	updated, found, err := s.UpdateGoal(ctx, f.u1, g.ID, core.GoalPatch{CurrentAmount: &current})
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, updated.CurrentAmount.Equal(current))
	assert.Equal(t, "Bike", updated.Name)
	assert.True(t, updated.TargetAmount.Equal(decimal.NewFromInt(1200)))
	assert.True(t, updated.Breakdown["frame"].Equal(decimal.NewFromInt(800)))
	assert.True(t, updated.Deadline.Equal(g.Deadline))

	// Mutating a returned goal must not leak into the store.
	updated.Breakdown["frame"] = decimal.NewFromInt(1)
	reread, found, err := s.GetGoal(ctx, f.u1, g.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, reread.Breakdown["frame"].Equal(decimal.NewFromInt(800)))

	_, found, err = s.UpdateGoal(ctx, f.u1, g.ID+1000, core.GoalPatch{CurrentAmount: &current})
	require.NoError(t, err)
	assert.False(t, found)
}

func testGoalUpdateOtherUser(t *testing.T, f fixture) {
	s, ctx := f.s, context.Background()
	g, err := s.CreateGoal(ctx, f.u1, core.NewGoal{Name: "Trip", TargetAmount: decimal.NewFromInt(500), Deadline: day(2026, 1, 1)})
	require.NoError(t, err)

	name := "stolen"
	_, found, err := s.UpdateGoal(ctx, f.u2, g.ID, core.GoalPatch{Name: &name})
	require.NoError(t, err)
	assert.False(t, found)

	orig, found, err := s.GetGoal(ctx, f.u1, g.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Trip", orig.Name)
}

func testGoalOvershoot(t *testing.T, f fixture) {
	s, ctx := f.s, context.Background()
	g, err := s.CreateGoal(ctx, f.u1, core.NewGoal{
		Name:          "Phone",
		TargetAmount:  decimal.NewFromInt(100),
		CurrentAmount: decimal.NewFromInt(150),
		Deadline:      day(2026, 1, 1),
	})
	require.NoError(t, err)
	assert.True(t, g.CurrentAmount.GreaterThan(g.TargetAmount))
}

func testDeletes(t *testing.T, f fixture) {
	s, ctx := f.s, context.Background()
	e, err := s.CreateExpense(ctx, f.u1, expense("coffee", "Food", "3.20", day(2025, 1, 2)))
	require.NoError(t, err)

	found, err := s.DeleteExpense(ctx, f.u2, e.ID)
	require.NoError(t, err)
	assert.False(t, found, "other users cannot delete")

	found, err = s.DeleteExpense(ctx, f.u1, e.ID)
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = s.GetExpense(ctx, f.u1, e.ID)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = s.DeleteExpense(ctx, f.u1, e.ID)
	require.NoError(t, err)
	assert.False(t, found)

	next, err := s.CreateExpense(ctx, f.u1, expense("tea", "Food", "2", day(2025, 1, 3)))
	require.NoError(t, err)
	assert.Greater(t, next.ID, e.ID, "ids are never reused")
}

func testValidation(t *testing.T, f fixture) {
	s, ctx := f.s, context.Background()
	_, err := s.CreateExpense(ctx, f.u1, core.NewExpense{Description: "", Amount: decimal.NewFromInt(1), Category: "x", Date: day(2025, 1, 1)})
	assert.ErrorIs(t, err, core.ErrValidation)

	var verr *core.ValidationError
	_, err = s.CreateInvoice(ctx, f.u1, core.NewInvoice{})
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Errors)

	exps, err := s.ListExpenses(ctx, f.u1)
	require.NoError(t, err)
	assert.Empty(t, exps, "failed creates must not persist anything")
}

func testTips(t *testing.T, f fixture) {
	s, ctx := f.s, context.Background()
	_, err := s.CreateTip(ctx, core.NewTip{Type: core.TipDaily, Message: "Track every coffee."})
	require.NoError(t, err)
	_, err = s.CreateTip(ctx, core.NewTip{Type: core.TipChallenge, Message: "No takeaway this week."})
	require.NoError(t, err)

	daily, err := s.ListTips(ctx, core.TipDaily)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, "Track every coffee.", daily[0].Message)

	_, err = s.CreateTip(ctx, core.NewTip{Type: "monthly", Message: "x"})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func testInvoiceRoundTrip(t *testing.T, f fixture) {
	s, ctx := f.s, context.Background()
	in := core.NewInvoice{
		CustomerName: "ACME",
		Description:  "Consulting",
		Amount:       decimal.RequireFromString("1234.56"),
		DueDate:      day(2025, 7, 31),
		Status:       core.InvoicePending,
	}
	inv, err := s.CreateInvoice(ctx, f.u1, in)
	require.NoError(t, err)

	got, found, err := s.GetInvoice(ctx, f.u1, inv.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ACME", got.CustomerName)
	assert.True(t, got.Amount.Equal(in.Amount), "amount %s", got.Amount)
	assert.True(t, got.DueDate.Equal(in.DueDate))
	assert.Equal(t, core.InvoicePending, got.Status)

	_, found, err = s.GetInvoice(ctx, f.u2, inv.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func testUnknownOwner(t *testing.T, f fixture) {
	s, ctx := f.s, context.Background()
	const nobody = 999
	checks := map[string]func() error{
		"category": func() error {
			_, err := s.CreateCategory(ctx, nobody, core.NewCategory{Name: "Food"})
			return err
		},
		"invoice": func() error {
			_, err := s.CreateInvoice(ctx, nobody, core.NewInvoice{
				CustomerName: "ACME", Description: "x", Amount: decimal.NewFromInt(1),
				DueDate: day(2025, 1, 1), Status: core.InvoicePending,
			})
			return err
		},
		"expense": func() error {
			_, err := s.CreateExpense(ctx, nobody, expense("x", "Food", "1", day(2025, 1, 1)))
			return err
		},
		"budget": func() error {
			_, err := s.CreateBudget(ctx, nobody, core.NewBudget{Category: "Food", Amount: decimal.NewFromInt(1), Month: 1, Year: 2025})
			return err
		},
		"goal": func() error {
			_, err := s.CreateGoal(ctx, nobody, core.NewGoal{Name: "g", TargetAmount: decimal.NewFromInt(1), Deadline: day(2026, 1, 1)})
			return err
		},
	}
	for kind, create := range checks {
		err := create()
		var verr *core.ValidationError
		if assert.ErrorAs(t, err, &verr, kind) {
			assert.ErrorIs(t, err, core.ErrValidation, kind)
		}
	}

	exps, err := s.ListExpenses(ctx, nobody)
	require.NoError(t, err)
	assert.Empty(t, exps)
}

// A local midnight east of UTC is the previous day in UTC; the stored date must
// still fall in the caller's month.
func testDatesKeepTheirZone(t *testing.T, f fixture) {
	s, ctx := f.s, context.Background()
	cet := time.FixedZone("CET", 3600)
	march1 := time.Date(2025, 3, 1, 0, 0, 0, 0, cet)

	_, err := s.CreateExpense(ctx, f.u1, expense("market", "Food", "30", march1))
	require.NoError(t, err)
	inv, err := s.CreateInvoice(ctx, f.u1, core.NewInvoice{
		CustomerName: "ACME", Description: "x", Amount: decimal.NewFromInt(1),
		DueDate: march1, Status: core.InvoicePending,
	})
	require.NoError(t, err)
	g, err := s.CreateGoal(ctx, f.u1, core.NewGoal{Name: "g", TargetAmount: decimal.NewFromInt(1), Deadline: march1})
	require.NoError(t, err)

	exps, err := s.ListExpenses(ctx, f.u1)
	require.NoError(t, err)
	require.Len(t, exps, 1)
	got := exps[0].Date
	assert.True(t, got.Equal(march1))
	assert.Equal(t, []int{2025, 3, 1}, []int{got.Year(), int(got.Month()), got.Day()})

	rows := aggregate.BudgetVsExpense(exps, nil, 3, 2025, f.u1)
	require.Len(t, rows, 1)
	assert.Equal(t, "Food", rows[0].Category)
	assert.True(t, rows[0].TotalExpenses.Equal(decimal.NewFromInt(30)))
	assert.Empty(t, aggregate.BudgetVsExpense(exps, nil, 2, 2025, f.u1))

	gotInv, found, err := s.GetInvoice(ctx, f.u1, inv.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, gotInv.DueDate.Day())

	gotGoal, found, err := s.GetGoal(ctx, f.u1, g.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, time.March, gotGoal.Deadline.Month())
	assert.Equal(t, 1, gotGoal.Deadline.Day())
}
