// Package aggregate derives reports from ledger query results. Every function
// is pure: callers load the rows from a ledger.Store and pass them in.
package aggregate

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// CategoryTotal compares the money spent in a category with its budget for one month.
type CategoryTotal struct {
	Category      string
	TotalExpenses decimal.Decimal
	Budget        decimal.Decimal // zero when no budget row exists
}

// Remaining is Budget minus TotalExpenses; negative when over budget.
func (t CategoryTotal) Remaining() decimal.Decimal {
	return t.Budget.Sub(t.TotalExpenses)
}

func (t CategoryTotal) OverBudget() bool {
	return t.TotalExpenses.GreaterThan(t.Budget)
}

// Pace is the savings rate a goal needs to reach its target by the deadline.
type Pace struct {
	Remaining            decimal.Decimal // target - current, negative on overshoot
	MonthsRemaining      int             // at least 1
	MonthlySavingsNeeded decimal.Decimal // never negative, rounded to cents
}

func inPeriod(t time.Time, month, year int) bool {
	return t.Year() == year && int(t.Month()) == month
}

// BudgetVsExpense produces one row per category that has either a budget or an
// expense for userID in the given month. Rows are sorted by category name.
// Several budget rows for the same category are summed.
func BudgetVsExpense(expenses []core.Expense, budgets []core.Budget, month, year int, userID int64) []CategoryTotal {
	rows := map[string]*CategoryTotal{}
	row := func(category string) *CategoryTotal {
		r, ok := rows[category]
		if !ok {
			r = &CategoryTotal{Category: category}
			rows[category] = r
		}
		return r
	}

	for _, b := range budgets {
		if b.UserID != userID || b.Month != month || b.Year != year {
			continue
		}
		r := row(b.Category)
		r.Budget = r.Budget.Add(b.Amount)
	}
	for _, e := range expenses {
		if e.UserID != userID || !inPeriod(e.Date, month, year) {
			continue
		}
		r := row(e.Category)
		r.TotalExpenses = r.TotalExpenses.Add(e.Amount)
	}

	out := make([]CategoryTotal, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b CategoryTotal) int {
		switch {
		case a.Category < b.Category:
			return -1
		case a.Category > b.Category:
			return 1
		}
		return 0
	})
	return out
}

// GoalPace computes how much must be saved each month from now on to reach
// the goal target by its deadline.
func GoalPace(g core.Goal, now time.Time) Pace {
	months := max(1, WholeMonthsBetween(now, g.Deadline))
	remaining := g.TargetAmount.Sub(g.CurrentAmount)

	monthly := decimal.Zero
	if remaining.IsPositive() {
		monthly = core.RoundCents(remaining.Div(decimal.NewFromInt(int64(months))))
	}
	return Pace{
		Remaining:            remaining,
		MonthsRemaining:      months,
		MonthlySavingsNeeded: monthly,
	}
}

// WholeMonthsBetween counts the full calendar months from start to end. The
// result is negative when end precedes start. A month only counts once end has
// reached the same day and time of day in the later month; when that day does
// not exist the last day of the month is used.
func WholeMonthsBetween(start, end time.Time) int {
	if end.Before(start) {
		return -WholeMonthsBetween(end, start)
	}
	end = end.In(start.Location())
	months := (end.Year()-start.Year())*12 + int(end.Month()-start.Month())
	if months > 0 && end.Before(addMonthsClamped(start, months)) {
		months--
	}
	return months
}

func addMonthsClamped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(t.Day(), lastDay)-1)
}

// MonthOverview totals the expenses dated in the given month, per category in
// first-seen order.
func MonthOverview(expenses []core.Expense, month, year int) core.MonthOverview {
	byCat := map[string]decimal.Decimal{}
	order := make([]string, 0)
	total := decimal.Zero
	for _, e := range expenses {
		if !inPeriod(e.Date, month, year) {
			continue
		}
		if _, seen := byCat[e.Category]; !seen {
			order = append(order, e.Category)
		}
		byCat[e.Category] = byCat[e.Category].Add(e.Amount)
		total = total.Add(e.Amount)
	}

	list := make([]core.CategoryAmount, 0, len(order))
	for _, name := range order {
		list = append(list, core.CategoryAmount{Name: name, Amount: byCat[name]})
	}
	return core.MonthOverview{Year: year, Month: month, Total: total, ByCategory: list}
}
