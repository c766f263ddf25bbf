package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"ledger/internal/core"
)

const dateLayout = "2006-01-02"

var header = []any{"Date", "Description", "Amount", "Category", "User", "ID"}

func toRow(e core.Expense) []any {
	return []any{
		e.Date.Format(dateLayout),
		e.Description,
		e.Amount.StringFixed(2),
		e.Category,
		strconv.FormatInt(e.UserID, 10),
		strconv.FormatInt(e.ID, 10),
	}
}

// parseRow is the inverse of toRow. It reports false for anything that is not
// a complete expense row, the header included.
func parseRow(cols []string) (core.Expense, bool) {
	if len(cols) < 6 {
		return core.Expense{}, false
	}
	date, err := time.Parse(dateLayout, cols[0])
	if err != nil {
		return core.Expense{}, false
	}
	amount, err := core.ParseAmount(cols[2])
	if err != nil {
		return core.Expense{}, false
	}
	userID, err := strconv.ParseInt(cols[4], 10, 64)
	if err != nil {
		return core.Expense{}, false
	}
	id, err := strconv.ParseInt(cols[5], 10, 64)
	if err != nil {
		return core.Expense{}, false
	}
	return core.Expense{
		ID:          id,
		UserID:      userID,
		Description: cols[1],
		Amount:      amount,
		Category:    cols[3],
		Date:        date,
	}, true
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
