package session

import (
	"fmt"
	"time"

	"pharmacy-cart-api-server/internal/models"
	"pharmacy-cart-api-server/internal/totals"
	"pharmacy-cart-api-server/internal/validation"

	"github.com/shopspring/decimal"
)

// View is everything the worker's UI renders for the cart. It is rebuilt on
// every read and pushed after every change.
type View struct {
	Items        []models.LineItem               `json:"items"`
	SavedItems   []models.LineItem               `json:"savedItems"`
	Totals       totals.Totals                   `json:"totals"`
	Warnings     []validation.Warning            `json:"warnings"`
	States       map[string]validation.ItemState `json:"states"`
	CanCheckout  bool                            `json:"canCheckout"`
	NeedsSync    bool                            `json:"needsSync"`
	LastSyncedAt *time.Time                      `json:"lastSyncedAt"`
	Summary      string                          `json:"summary"`
}

// BatchView is the worker's pending request batch.
type BatchView struct {
	Items      []models.RequestItem `json:"items"`
	Count      int                  `json:"count"`
	Submitting bool                 `json:"submitting"`
	Summary    string               `json:"summary"`
}

func buildView(s *Session) View {
	state := s.Cart.State()
	report := validation.Validate(state.Items)
	t := s.calc.Compute(state.Items, decimal.Zero)

	v := View{
		Items:       state.Items,
		SavedItems:  state.SavedItems,
		Totals:      t,
		Warnings:    report.Warnings,
		States:      report.States,
		CanCheckout: len(state.Items) > 0 && !report.Blocking(),
		NeedsSync:   state.NeedsSync,
		Summary:     Summary(t),
	}
	if !state.LastSyncedAt.IsZero() {
		at := state.LastSyncedAt
		v.LastSyncedAt = &at
	}
	return v
}

func buildBatchView(s *Session) BatchView {
	items := s.Batch.Items()
	return BatchView{
		Items:      items,
		Count:      len(items),
		Submitting: s.Batch.Busy(),
		Summary:    BatchSummary(len(items)),
	}
}

// Summary is the one-line cart description shown in the header.
func Summary(t totals.Totals) string {
	switch {
	case t.UniqueCount == 0:
		return "Your cart is empty"
	case t.UniqueCount == 1:
		return fmt.Sprintf("%d item%s in cart", t.ItemCount, plural(t.ItemCount))
	default:
		return fmt.Sprintf("%d medicines (%d items) in cart", t.UniqueCount, t.ItemCount)
	}
}

// BatchSummary is the one-line description of the request batch.
func BatchSummary(count int) string {
	if count == 0 {
		return "No medicines in request"
	}
	return fmt.Sprintf("%d medicine%s in request", count, plural(count))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
