package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/aggregate"
	"ledger/internal/ledger"
	"ledger/internal/rates"
)

type reportOptions struct {
	UserID int64
	Month  int
	Year   int
	Now    time.Time

	// Currency restates totals and invoices when set. Ledger amounts are
	// held in BaseCurrency.
	Currency     string
	BaseCurrency string
}

// writeReport prints the budget, goal and invoice overview of one user for
// one month. conv may be nil when no currency conversion was requested.
func writeReport(ctx context.Context, out io.Writer, store ledger.Store, conv *rates.Cache, opts reportOptions) error {
	expenses, err := store.ListExpenses(ctx, opts.UserID)
	if err != nil {
		return fmt.Errorf("list expenses: %w", err)
	}
	budgets, err := store.ListBudgetsByPeriod(ctx, opts.UserID, opts.Month, opts.Year)
	if err != nil {
		return fmt.Errorf("list budgets: %w", err)
	}
	goals, err := store.ListGoals(ctx, opts.UserID)
	if err != nil {
		return fmt.Errorf("list goals: %w", err)
	}
	invoices, err := store.ListInvoices(ctx, opts.UserID)
	if err != nil {
		return fmt.Errorf("list invoices: %w", err)
	}

	convert := conv != nil && opts.Currency != ""
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Budget vs expenses %04d-%02d\n", opts.Year, opts.Month)
	fmt.Fprintln(tw, "CATEGORY\tSPENT\tBUDGET\tREMAINING\t")
	total := decimal.Zero
	for _, row := range aggregate.BudgetVsExpense(expenses, budgets, opts.Month, opts.Year, opts.UserID) {
		flag := ""
		if row.OverBudget() {
			flag = "over"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", row.Category,
			row.TotalExpenses.StringFixed(2), row.Budget.StringFixed(2), row.Remaining().StringFixed(2), flag)
		total = total.Add(row.TotalExpenses)
	}
	fmt.Fprintf(tw, "TOTAL\t%s\t\t\t\n", total.StringFixed(2))

	if convert {
		converted, err := conv.Convert(ctx, total, opts.BaseCurrency, opts.Currency)
		switch {
		case err == nil:
			fmt.Fprintf(tw, "TOTAL %s\t%s\t\t\t\n", strings.ToUpper(opts.Currency), converted.StringFixed(2))
		case errors.Is(err, rates.ErrUpstreamUnavailable):
			fmt.Fprintf(tw, "TOTAL %s\tunavailable\t\t\t\n", strings.ToUpper(opts.Currency))
			convert = false
		default:
			return fmt.Errorf("convert total: %w", err)
		}
	}

	if len(goals) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "GOAL\tTARGET\tSAVED\tMONTHS\tPER MONTH")
		for _, g := range goals {
			p := aggregate.GoalPace(g, opts.Now)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", g.Name,
				g.TargetAmount.StringFixed(2), g.CurrentAmount.StringFixed(2), p.MonthsRemaining, p.MonthlySavingsNeeded.StringFixed(2))
		}
	}

	if len(invoices) > 0 {
		fmt.Fprintln(tw)
		if convert {
			fmt.Fprintf(tw, "INVOICE\tCUSTOMER\tSTATUS\tAMOUNT\t%s\n", strings.ToUpper(opts.Currency))
		} else {
			fmt.Fprintln(tw, "INVOICE\tCUSTOMER\tSTATUS\tAMOUNT\t")
		}
		for _, inv := range invoices {
			restated := ""
			if convert {
				c, err := conv.ConvertInvoice(ctx, inv, opts.BaseCurrency, opts.Currency)
				if err != nil {
					return fmt.Errorf("convert invoice %d: %w", inv.ID, err)
				}
				restated = c.Converted.StringFixed(2)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", inv.ID, inv.CustomerName, inv.Status, inv.Amount.StringFixed(2), restated)
		}
	}

	return tw.Flush()
}
