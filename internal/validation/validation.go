// Package validation checks cart lines against the last known product data.
// It is read-only: nothing here mutates a line.
package validation

import (
	"fmt"

	"pharmacy-cart-api-server/internal/models"
)

type Kind string

const (
	KindOutOfStock        Kind = "out_of_stock"
	KindInsufficientStock Kind = "insufficient_stock"
	KindItemInactive      Kind = "inactive"
	KindPriceChanged      Kind = "price_change"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type State string

const (
	StateUnvalidated State = "unvalidated"
	StateValid       State = "valid"
	StateFlagged     State = "flagged"
)

type Warning struct {
	ProductID string   `json:"productId"`
	Kind      Kind     `json:"kind"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
}

type ItemState struct {
	State State  `json:"state"`
	Kinds []Kind `json:"kinds,omitempty"`
}

type Report struct {
	Warnings []Warning           `json:"warnings"`
	States   map[string]ItemState `json:"states"`
}

// Blocking reports whether any warning must stop checkout.
func (r Report) Blocking() bool {
	for _, w := range r.Warnings {
		if w.Severity == SeverityError {
			return true
		}
	}
	return false
}

// For returns the warnings raised against productID.
func (r Report) For(productID string) []Warning {
	var out []Warning
	for _, w := range r.Warnings {
		if w.ProductID == productID {
			out = append(out, w)
		}
	}
	return out
}

// Validate evaluates every active line. Lines without a product snapshot stay
// Unvalidated until the next sync brings authoritative data.
func Validate(items []models.LineItem) Report {
	report := Report{
		Warnings: []Warning{},
		States:   make(map[string]ItemState, len(items)),
	}
	for _, item := range items {
		if item.SavedForLater {
			continue
		}
		if item.Product == nil {
			report.States[item.ProductID] = ItemState{State: StateUnvalidated}
			continue
		}

		found := check(item)
		if len(found) == 0 {
			report.States[item.ProductID] = ItemState{State: StateValid}
			continue
		}
		st := ItemState{State: StateFlagged}
		for _, w := range found {
			st.Kinds = append(st.Kinds, w.Kind)
		}
		report.States[item.ProductID] = st
		report.Warnings = append(report.Warnings, found...)
	}
	return report
}

func check(item models.LineItem) []Warning {
	p := item.Product
	name := item.DisplayName()
	var out []Warning

	switch {
	case p.Stock <= 0:
		out = append(out, Warning{
			ProductID: item.ProductID,
			Kind:      KindOutOfStock,
			Message:   fmt.Sprintf("%s is out of stock", name),
			Severity:  SeverityError,
		})
	case p.Stock < item.Quantity:
		out = append(out, Warning{
			ProductID: item.ProductID,
			Kind:      KindInsufficientStock,
			Message:   fmt.Sprintf("Only %d %s available, but %d requested", p.Stock, name, item.Quantity),
			Severity:  SeverityWarning,
		})
	}

	if !p.IsActive {
		out = append(out, Warning{
			ProductID: item.ProductID,
			Kind:      KindItemInactive,
			Message:   fmt.Sprintf("%s is no longer available", name),
			Severity:  SeverityWarning,
		})
	}

	if !item.PriceAtTime.IsZero() && !p.Price.Equal(item.PriceAtTime) {
		direction := "decreased"
		if p.Price.GreaterThan(item.PriceAtTime) {
			direction = "increased"
		}
		out = append(out, Warning{
			ProductID: item.ProductID,
			Kind:      KindPriceChanged,
			Message: fmt.Sprintf("Price of %s has %s from %s to %s",
				name, direction, models.FormatRupees(item.PriceAtTime), models.FormatRupees(p.Price)),
			Severity: SeverityInfo,
		})
	}
	return out
}
