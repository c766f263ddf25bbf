package rates

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// InvoiceConversion is an invoice amount restated in another currency.
type InvoiceConversion struct {
	InvoiceID int64
	Original  decimal.Decimal
	Converted decimal.Decimal
	Currency  string
}

// ConvertInvoice restates inv.Amount, held in currency from, in currency to.
// The converted value is rounded to cents.
func (c *Cache) ConvertInvoice(ctx context.Context, inv core.Invoice, from, to string) (InvoiceConversion, error) {
	converted, err := c.Convert(ctx, inv.Amount, from, to)
	if err != nil {
		return InvoiceConversion{}, err
	}
	return InvoiceConversion{
		InvoiceID: inv.ID,
		Original:  inv.Amount,
		Converted: core.RoundCents(converted),
		Currency:  strings.ToUpper(to),
	}, nil
}
