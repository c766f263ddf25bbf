package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 12, 0, 0, 0, time.UTC)
}

func TestBudgetVsExpense(t *testing.T) {
	expenses := []core.Expense{
		{UserID: 1, Category: "Food", Amount: d("30"), Date: day(2026, 3, 2)},
		{UserID: 1, Category: "Food", Amount: d("20"), Date: day(2026, 3, 28)},
		{UserID: 1, Category: "Taxi", Amount: d("12.50"), Date: day(2026, 3, 10)},
		{UserID: 1, Category: "Food", Amount: d("99"), Date: day(2026, 4, 1)},  // other month
		{UserID: 1, Category: "Food", Amount: d("99"), Date: day(2025, 3, 15)}, // other year
		{UserID: 2, Category: "Food", Amount: d("99"), Date: day(2026, 3, 15)}, // other user
	}
	budgets := []core.Budget{
		{UserID: 1, Category: "Food", Amount: d("100"), Month: 3, Year: 2026},
		{UserID: 1, Category: "Rent", Amount: d("900"), Month: 3, Year: 2026},
		{UserID: 1, Category: "Food", Amount: d("500"), Month: 4, Year: 2026},
		{UserID: 2, Category: "Taxi", Amount: d("40"), Month: 3, Year: 2026},
	}

	got := BudgetVsExpense(expenses, budgets, 3, 2026, 1)

	want := []struct {
		category, spent, budget string
	}{
		{"Food", "50", "100"},
		{"Rent", "0", "900"},
		{"Taxi", "12.5", "0"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d rows, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		r := got[i]
		if r.Category != w.category {
			t.Errorf("row %d category = %q, want %q", i, r.Category, w.category)
		}
		if !r.TotalExpenses.Equal(d(w.spent)) {
			t.Errorf("%s spent = %s, want %s", w.category, r.TotalExpenses, w.spent)
		}
		if !r.Budget.Equal(d(w.budget)) {
			t.Errorf("%s budget = %s, want %s", w.category, r.Budget, w.budget)
		}
	}

	if !got[2].OverBudget() {
		t.Error("Taxi has no budget and should be over it")
	}
	if !got[0].Remaining().Equal(d("50")) {
		t.Errorf("Food remaining = %s, want 50", got[0].Remaining())
	}
}

func TestBudgetVsExpenseSumsDuplicateBudgets(t *testing.T) {
	budgets := []core.Budget{
		{UserID: 1, Category: "Food", Amount: d("100"), Month: 3, Year: 2026},
		{UserID: 1, Category: "Food", Amount: d("50"), Month: 3, Year: 2026},
	}
	got := BudgetVsExpense(nil, budgets, 3, 2026, 1)
	if len(got) != 1 || !got[0].Budget.Equal(d("150")) {
		t.Fatalf("got %+v, want one Food row with budget 150", got)
	}
}

func TestBudgetVsExpenseEmpty(t *testing.T) {
	got := BudgetVsExpense(nil, nil, 1, 2026, 1)
	if got == nil || len(got) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", got)
	}
}

func TestGoalPace(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		target   string
		current  string
		deadline time.Time
		months   int
		monthly  string
	}{
		{"exact five months", "1200", "200", now.AddDate(0, 5, 0), 5, "200"},
		{"reached", "1200", "1200", now.AddDate(0, 5, 0), 5, "0"},
		{"overshoot", "1200", "1500", now.AddDate(0, 5, 0), 5, "0"},
		{"deadline passed", "1000", "400", now.AddDate(0, -2, 0), 1, "600"},
		{"less than a month", "300", "0", now.AddDate(0, 0, 20), 1, "300"},
		{"partial month not counted", "1000", "0", now.AddDate(0, 3, -1), 2, "500"},
		{"rounded to cents", "100", "0", now.AddDate(0, 3, 0), 3, "33.33"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := GoalPace(core.Goal{
				TargetAmount:  d(tt.target),
				CurrentAmount: d(tt.current),
				Deadline:      tt.deadline,
			}, now)
			if p.MonthsRemaining != tt.months {
				t.Errorf("MonthsRemaining = %d, want %d", p.MonthsRemaining, tt.months)
			}
			if !p.MonthlySavingsNeeded.Equal(d(tt.monthly)) {
				t.Errorf("MonthlySavingsNeeded = %s, want %s", p.MonthlySavingsNeeded, tt.monthly)
			}
			if p.MonthlySavingsNeeded.IsNegative() {
				t.Error("monthly savings must never be negative")
			}
		})
	}
}

func TestWholeMonthsBetween(t *testing.T) {
	tests := []struct {
		start, end time.Time
		want       int
	}{
		{day(2026, 1, 15), day(2026, 1, 15), 0},
		{day(2026, 1, 15), day(2026, 2, 14), 0},
		{day(2026, 1, 15), day(2026, 2, 15), 1},
		{day(2026, 1, 31), day(2026, 2, 28), 1},
		{day(2026, 1, 31), day(2026, 2, 27), 0},
		{day(2025, 11, 1), day(2026, 2, 1), 3},
		{day(2026, 6, 1), day(2026, 1, 1), -5},
		{time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC), time.Date(2026, 2, 15, 9, 0, 0, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		if got := WholeMonthsBetween(tt.start, tt.end); got != tt.want {
			t.Errorf("WholeMonthsBetween(%s, %s) = %d, want %d",
				tt.start.Format(time.DateTime), tt.end.Format(time.DateTime), got, tt.want)
		}
	}
}

func TestMonthOverview(t *testing.T) {
	expenses := []core.Expense{
		{Category: "Taxi", Amount: d("10"), Date: day(2026, 3, 1)},
		{Category: "Food", Amount: d("5.25"), Date: day(2026, 3, 2)},
		{Category: "Taxi", Amount: d("4.75"), Date: day(2026, 3, 3)},
		{Category: "Food", Amount: d("100"), Date: day(2026, 2, 3)},
	}
	ov := MonthOverview(expenses, 3, 2026)

	if !ov.Total.Equal(d("20")) {
		t.Errorf("Total = %s, want 20", ov.Total)
	}
	if len(ov.ByCategory) != 2 || ov.ByCategory[0].Name != "Taxi" || ov.ByCategory[1].Name != "Food" {
		t.Fatalf("ByCategory = %+v, want Taxi then Food", ov.ByCategory)
	}
	if !ov.ByCategory[0].Amount.Equal(d("14.75")) {
		t.Errorf("Taxi = %s, want 14.75", ov.ByCategory[0].Amount)
	}
}
