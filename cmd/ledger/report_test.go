package main

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/ledger/memory"
	"ledger/internal/rates"
)

func seedStore(t *testing.T) (*memory.Store, int64) {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	u, err := s.CreateUser(ctx, core.NewUser{Username: "ada", PasswordHash: "x"})
	require.NoError(t, err)

	day := func(m time.Month, d int) time.Time { return time.Date(2026, m, d, 0, 0, 0, 0, time.UTC) }
	for _, e := range []core.NewExpense{
		{Description: "Groceries", Amount: decimal.RequireFromString("25.50"), Category: "Food", Date: day(3, 2)},
		{Description: "Dinner", Amount: decimal.RequireFromString("4.50"), Category: "Food", Date: day(3, 9)},
		{Description: "Rent", Amount: decimal.NewFromInt(900), Category: "Housing", Date: day(3, 1)},
		{Description: "Rent", Amount: decimal.NewFromInt(900), Category: "Housing", Date: day(4, 1)},
	} {
		_, err := s.CreateExpense(ctx, u.ID, e)
		require.NoError(t, err)
	}
	for _, b := range []core.NewBudget{
		{Category: "Food", Amount: decimal.NewFromInt(20), Month: 3, Year: 2026},
		{Category: "Housing", Amount: decimal.NewFromInt(1000), Month: 3, Year: 2026},
	} {
		_, err := s.CreateBudget(ctx, u.ID, b)
		require.NoError(t, err)
	}
	_, err = s.CreateGoal(ctx, u.ID, core.NewGoal{
		Name:          "Bike",
		TargetAmount:  decimal.NewFromInt(1200),
		CurrentAmount: decimal.NewFromInt(200),
		Deadline:      day(7, 15),
	})
	require.NoError(t, err)
	_, err = s.CreateInvoice(ctx, u.ID, core.NewInvoice{
		CustomerName: "ACME",
		Description:  "Consulting",
		Amount:       decimal.NewFromInt(100),
		DueDate:      day(4, 30),
		Status:       core.InvoicePending,
	})
	require.NoError(t, err)
	return s, u.ID
}

// fieldsOf returns the cells of the first output line starting with prefix.
func fieldsOf(out, prefix string) []string {
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.Fields(line)
		}
	}
	return nil
}

// rowWith returns the cells of the first output line that has cell as one of them.
func rowWith(out, cell string) []string {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if slices.Contains(fields, cell) {
			return fields
		}
	}
	return nil
}

func opts(userID int64, currency string) reportOptions {
	return reportOptions{
		UserID:       userID,
		Month:        3,
		Year:         2026,
		Now:          time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Currency:     currency,
		BaseCurrency: "USD",
	}
}

func TestWriteReport(t *testing.T) {
	store, uid := seedStore(t)
	var buf bytes.Buffer

	require.NoError(t, writeReport(context.Background(), &buf, store, nil, opts(uid, "")))
	out := buf.String()

	assert.Equal(t, []string{"Food", "30.00", "20.00", "-10.00", "over"}, fieldsOf(out, "Food"))
	assert.Equal(t, []string{"Housing", "900.00", "1000.00", "100.00"}, fieldsOf(out, "Housing"))
	assert.Equal(t, []string{"TOTAL", "930.00"}, fieldsOf(out, "TOTAL"))
	// 1000 left over 4 whole months.
	assert.Equal(t, []string{"Bike", "1200.00", "200.00", "4", "250.00"}, fieldsOf(out, "Bike"))
	assert.Contains(t, out, "ACME")
}

func TestWriteReport_WithCurrency(t *testing.T) {
	store, uid := seedStore(t)
	conv := rates.NewCache(rates.SourceFunc(func(ctx context.Context) (rates.Snapshot, error) {
		return rates.Snapshot{
			Base: "USD",
			Rates: map[string]decimal.Decimal{
				"USD": decimal.NewFromInt(1),
				"EUR": decimal.RequireFromString("0.9"),
			},
		}, nil
	}))

	var buf bytes.Buffer
	require.NoError(t, writeReport(context.Background(), &buf, store, conv, opts(uid, "eur")))
	out := buf.String()

	assert.Equal(t, []string{"TOTAL", "EUR", "837.00"}, fieldsOf(out, "TOTAL EUR"))
	row := rowWith(out, "ACME")
	require.Len(t, row, 5)
	assert.Equal(t, []string{"ACME", "pending", "100.00", "90.00"}, row[1:])
}

func TestWriteReport_RatesUnavailable(t *testing.T) {
	store, uid := seedStore(t)
	conv := rates.NewCache(rates.SourceFunc(func(ctx context.Context) (rates.Snapshot, error) {
		return rates.Snapshot{}, rates.ErrUpstreamUnavailable
	}))

	var buf bytes.Buffer
	require.NoError(t, writeReport(context.Background(), &buf, store, conv, opts(uid, "EUR")))
	assert.Equal(t, []string{"TOTAL", "EUR", "unavailable"}, fieldsOf(buf.String(), "TOTAL EUR"))
}

func TestWriteReport_UnknownCurrency(t *testing.T) {
	store, uid := seedStore(t)
	conv := rates.NewCache(rates.SourceFunc(func(ctx context.Context) (rates.Snapshot, error) {
		return rates.Snapshot{Base: "USD", Rates: map[string]decimal.Decimal{"USD": decimal.NewFromInt(1)}}, nil
	}))

	err := writeReport(context.Background(), &bytes.Buffer{}, store, conv, opts(uid, "XXX"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, rates.ErrUnknownCurrency))
}
