// server/internal/models/common.go
package models

import (
	"github.com/shopspring/decimal"
)

func init() {
	// The SPA and the backend both speak plain JSON numbers for money.
	decimal.MarshalJSONWithoutQuotes = true
}

// FormatRupees renders an amount the way the pharmacy UI does, e.g. ₹50.00.
func FormatRupees(amount decimal.Decimal) string {
	return "₹" + amount.StringFixed(2)
}
