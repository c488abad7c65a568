package totals

import (
	"pharmacy-cart-api-server/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the pharmacy's flat GST rate.
var DefaultTaxRate = decimal.RequireFromString("0.05")

// Totals are derived on every read and never stored.
type Totals struct {
	ItemCount   int             `json:"itemCount"`
	UniqueCount int             `json:"uniqueCount"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	Discount    decimal.Decimal `json:"discount"`
	GrandTotal  decimal.Decimal `json:"grandTotal"`
}

type Calculator struct {
	TaxRate decimal.Decimal
}

func NewCalculator(taxRate float64) Calculator {
	if taxRate <= 0 {
		return Calculator{TaxRate: DefaultTaxRate}
	}
	return Calculator{TaxRate: decimal.NewFromFloat(taxRate)}
}

// Compute totals over the active lines of items. Saved lines are skipped.
// discount is clamped to [0, subtotal].
func (c Calculator) Compute(items []models.LineItem, discount decimal.Decimal) Totals {
	t := Totals{Subtotal: decimal.Zero}
	for _, item := range items {
		if item.SavedForLater {
			continue
		}
		t.ItemCount += item.Quantity
		t.UniqueCount++
		t.Subtotal = t.Subtotal.Add(item.LineTotal())
	}

	t.Tax = t.Subtotal.Mul(c.TaxRate).Round(2)

	switch {
	case discount.IsNegative():
		t.Discount = decimal.Zero
	case discount.GreaterThan(t.Subtotal):
		t.Discount = t.Subtotal
	default:
		t.Discount = discount
	}

	t.GrandTotal = t.Subtotal.Add(t.Tax).Sub(t.Discount)
	return t
}
