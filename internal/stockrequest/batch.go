package stockrequest

import (
	"fmt"
	"strings"
	"sync"

	"pharmacy-cart-api-server/internal/apperror"
	"pharmacy-cart-api-server/internal/models"
)

const (
	DefaultMinStock       = 10
	MinSuggestedQuantity  = 10
	MinReasonLength       = 10
	DefaultUnit           = "strips"
	reasonOutOfStock      = "Out of stock - urgent restocking needed"
	reasonRoutineRestock  = "Routine restocking needed"
	reasonBelowMinPattern = "Stock below minimum level (%d/%d)"
)

// ItemPatch is a partial edit of a batch line. Nil fields are left alone.
type ItemPatch struct {
	RequestedQuantity *int                 `json:"quantity"`
	UrgencyLevel      *models.UrgencyLevel `json:"urgencyLevel"`
	Reason            *string              `json:"reason"`
}

// Batch is the worker's pending set of replenishment requests, one line per
// medicine. It is frozen while a submission is in flight.
type Batch struct {
	mu    sync.Mutex
	items map[string]*models.RequestItem
	order []string
	busy  bool
}

func NewBatch() *Batch {
	return &Batch{items: make(map[string]*models.RequestItem)}
}

// withDefaults fills what the worker left blank the way the request panel
// does: quantity, urgency and reason are derived from the stock position.
func withDefaults(item models.RequestItem) models.RequestItem {
	if item.CurrentStock < 0 {
		item.CurrentStock = 0
	}
	if item.MinStock <= 0 {
		item.MinStock = DefaultMinStock
	}
	if item.Unit == "" {
		item.Unit = DefaultUnit
	}
	if item.RequestedQuantity == 0 {
		item.RequestedQuantity = item.MinStock - item.CurrentStock
		if item.RequestedQuantity < MinSuggestedQuantity {
			item.RequestedQuantity = MinSuggestedQuantity
		}
	}
	if item.UrgencyLevel == "" {
		switch {
		case item.CurrentStock == 0:
			item.UrgencyLevel = models.UrgencyCritical
		case item.CurrentStock < 5:
			item.UrgencyLevel = models.UrgencyHigh
		default:
			item.UrgencyLevel = models.UrgencyMedium
		}
	}
	if strings.TrimSpace(item.Reason) == "" {
		switch {
		case item.CurrentStock == 0:
			item.Reason = reasonOutOfStock
		case item.CurrentStock < item.MinStock:
			item.Reason = fmt.Sprintf(reasonBelowMinPattern, item.CurrentStock, item.MinStock)
		default:
			item.Reason = reasonRoutineRestock
		}
	}
	return item
}

// Add puts a medicine in the batch. A medicine already present is rejected.
func (b *Batch) Add(item models.RequestItem) (models.RequestItem, error) {
	const op = "stockrequest.Add"
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.busy {
		return models.RequestItem{}, busy(op)
	}
	if item.ProductID == "" {
		return models.RequestItem{}, apperror.Validation(op, "", apperror.ErrItemNotFound, "tabletId is required")
	}
	if _, ok := b.items[item.ProductID]; ok {
		return models.RequestItem{}, apperror.Validation(op, item.ProductID, apperror.ErrAlreadyInBatch, "This medicine is already in your request cart")
	}
	if item.RequestedQuantity < 0 {
		return models.RequestItem{}, apperror.Validation(op, item.ProductID, apperror.ErrInvalidQuantity, "quantity must be at least 1, got %d", item.RequestedQuantity)
	}
	if item.UrgencyLevel != "" && !item.UrgencyLevel.Valid() {
		return models.RequestItem{}, apperror.Validation(op, item.ProductID, apperror.ErrValidation, "unknown urgency level %q", item.UrgencyLevel)
	}

	next := withDefaults(item)
	b.items[next.ProductID] = &next
	b.order = append(b.order, next.ProductID)
	return next, nil
}

func (b *Batch) Update(productID string, patch ItemPatch) (models.RequestItem, error) {
	const op = "stockrequest.Update"
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.busy {
		return models.RequestItem{}, busy(op)
	}
	item, ok := b.items[productID]
	if !ok {
		return models.RequestItem{}, apperror.Validation(op, productID, apperror.ErrItemNotFound, "medicine is not in the request cart")
	}
	next := *item
	if patch.RequestedQuantity != nil {
		if *patch.RequestedQuantity < 1 {
			return models.RequestItem{}, apperror.Validation(op, productID, apperror.ErrInvalidQuantity, "quantity must be at least 1, got %d", *patch.RequestedQuantity)
		}
		next.RequestedQuantity = *patch.RequestedQuantity
	}
	if patch.UrgencyLevel != nil {
		if !patch.UrgencyLevel.Valid() {
			return models.RequestItem{}, apperror.Validation(op, productID, apperror.ErrValidation, "unknown urgency level %q", *patch.UrgencyLevel)
		}
		next.UrgencyLevel = *patch.UrgencyLevel
	}
	if patch.Reason != nil {
		next.Reason = *patch.Reason
	}
	*item = next
	return next, nil
}

// Remove drops productID. Removing a missing medicine is a no-op.
func (b *Batch) Remove(productID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.busy {
		return false, busy("stockrequest.Remove")
	}
	if _, ok := b.items[productID]; !ok {
		return false, nil
	}
	delete(b.items, productID)
	for i, id := range b.order {
		if id == productID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (b *Batch) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.busy {
		return busy("stockrequest.Clear")
	}
	b.clearLocked()
	return nil
}

func (b *Batch) clearLocked() {
	b.items = make(map[string]*models.RequestItem)
	b.order = nil
}

func (b *Batch) Items() []models.RequestItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.itemsLocked()
}

func (b *Batch) itemsLocked() []models.RequestItem {
	out := make([]models.RequestItem, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.items[id])
	}
	return out
}

func (b *Batch) Get(productID string) (models.RequestItem, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	item, ok := b.items[productID]
	if !ok {
		return models.RequestItem{}, false
	}
	return *item, true
}

func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Busy reports whether a submission is in flight.
func (b *Batch) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.busy
}

// Validate checks the batch is ready to submit.
func (b *Batch) Validate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.validateLocked()
}

func (b *Batch) validateLocked() error {
	const op = "stockrequest.Submit"
	if len(b.items) == 0 {
		return apperror.Validation(op, "", apperror.ErrEmptyBatch, "Please add at least one medicine to your request cart")
	}
	for _, id := range b.order {
		item := b.items[id]
		if reasonTooShort(item.Reason) {
			return apperror.Validation(op, id, apperror.ErrReasonTooShort,
				"Please provide a detailed reason (at least %d characters) for %s", MinReasonLength, displayName(*item))
		}
	}
	return nil
}

// freeze validates the batch and locks it for submission, returning what to send.
func (b *Batch) freeze() ([]models.RequestItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.busy {
		return nil, busy("stockrequest.Submit")
	}
	if err := b.validateLocked(); err != nil {
		return nil, err
	}
	b.busy = true
	return b.itemsLocked(), nil
}

// thaw ends a submission. Only a successful one empties the batch.
func (b *Batch) thaw(submitted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.busy = false
	if submitted {
		b.clearLocked()
	}
}

func reasonTooShort(reason string) bool {
	return len([]rune(strings.TrimSpace(reason))) < MinReasonLength
}

func displayName(item models.RequestItem) string {
	if item.MedicineName != "" {
		return item.MedicineName
	}
	return item.ProductID
}

func busy(op string) error {
	return apperror.New(op, "", apperror.ErrBusy, "request cart is being submitted")
}
