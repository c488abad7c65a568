// Package cart holds the worker's line items. The Store is plain local state:
// it never talks to the network and is not safe for concurrent use. Its owner
// (cartsync.Adapter) serializes access.
package cart

import (
	"pharmacy-cart-api-server/internal/apperror"
	"pharmacy-cart-api-server/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultMaxQuantity caps a single line when no limit is configured.
const DefaultMaxQuantity = 100

// AddContext carries what the UI knows about a medicine when adding it.
type AddContext struct {
	Name    string
	Price   decimal.Decimal
	Product *models.ProductSnapshot
}

// Store maps productID to LineItem, keeping insertion order for stable views.
type Store struct {
	items       map[string]*models.LineItem
	order       []string
	maxQuantity int
}

// Snapshot is a deep copy of a Store's contents.
type Snapshot struct {
	items map[string]models.LineItem
	order []string
}

func NewStore(maxQuantity int) *Store {
	if maxQuantity < 1 {
		maxQuantity = DefaultMaxQuantity
	}
	return &Store{
		items:       make(map[string]*models.LineItem),
		maxQuantity: maxQuantity,
	}
}

func (s *Store) MaxQuantity() int {
	return s.maxQuantity
}

// limit is the highest quantity the line may hold right now.
func (s *Store) limit(item models.LineItem) int {
	limit := s.maxQuantity
	if stock, known := item.CurrentStock(); known && stock < limit {
		limit = stock
	}
	return limit
}

// Add inserts productID or increments its quantity. The result is clamped to
// the quantity cap and to the known stock, but never below what the line
// already holds.
func (s *Store) Add(productID string, quantity int, ctx AddContext) (models.LineItem, error) {
	const op = "cart.Add"
	if productID == "" {
		return models.LineItem{}, apperror.Validation(op, productID, apperror.ErrItemNotFound, "product id is required")
	}
	if quantity < 1 {
		return models.LineItem{}, apperror.Validation(op, productID, apperror.ErrInvalidQuantity, "quantity must be at least 1, got %d", quantity)
	}

	existing, ok := s.items[productID]
	if ok && existing.SavedForLater {
		return models.LineItem{}, apperror.Validation(op, productID, apperror.ErrItemSaved, "%s is saved for later; move it back to the cart first", existing.DisplayName())
	}

	var next models.LineItem
	if ok {
		next = existing.Clone()
		if ctx.Product != nil {
			p := *ctx.Product
			next.Product = &p
		}
	} else {
		next = models.LineItem{
			ProductID:   productID,
			Name:        ctx.Name,
			PriceAtTime: ctx.Price,
		}
		if ctx.Product != nil {
			p := *ctx.Product
			next.Product = &p
			if next.Name == "" {
				next.Name = p.Name
			}
			if next.PriceAtTime.IsZero() {
				next.PriceAtTime = p.Price
			}
		}
	}

	limit := s.limit(next)
	if limit < 1 {
		return models.LineItem{}, apperror.Validation(op, productID, apperror.ErrOutOfStock, "%s is out of stock", next.DisplayName())
	}
	held := next.Quantity
	next.Quantity += quantity
	if next.Quantity > limit {
		next.Quantity = limit
	}
	if next.Quantity < held {
		next.Quantity = held
	}

	s.Put(next)
	return next.Clone(), nil
}

// SetQuantity replaces the quantity of an existing line. Out-of-range values
// are rejected, never clamped.
func (s *Store) SetQuantity(productID string, quantity int) (models.LineItem, error) {
	const op = "cart.SetQuantity"
	item, ok := s.items[productID]
	if !ok {
		return models.LineItem{}, apperror.Validation(op, productID, apperror.ErrItemNotFound, "item is not in the cart")
	}
	if quantity < 1 {
		return models.LineItem{}, apperror.Validation(op, productID, apperror.ErrInvalidQuantity, "quantity must be at least 1, got %d", quantity)
	}
	if quantity > s.maxQuantity {
		return models.LineItem{}, apperror.Validation(op, productID, apperror.ErrInvalidQuantity, "quantity cannot exceed %d", s.maxQuantity)
	}
	if stock, known := item.CurrentStock(); known && quantity > stock {
		return models.LineItem{}, apperror.Validation(op, productID, apperror.ErrInvalidQuantity, "only %d of %s in stock", stock, item.DisplayName())
	}
	item.Quantity = quantity
	return item.Clone(), nil
}

// Remove deletes productID. Removing a missing id is a no-op.
func (s *Store) Remove(productID string) (models.LineItem, bool) {
	item, ok := s.items[productID]
	if !ok {
		return models.LineItem{}, false
	}
	delete(s.items, productID)
	for i, id := range s.order {
		if id == productID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return item.Clone(), true
}

// ToggleSaved moves a line between the active and saved partitions without
// touching its quantity or price snapshot.
func (s *Store) ToggleSaved(productID string) (models.LineItem, error) {
	item, ok := s.items[productID]
	if !ok {
		return models.LineItem{}, apperror.Validation("cart.ToggleSaved", productID, apperror.ErrItemNotFound, "item is not in the cart")
	}
	item.SavedForLater = !item.SavedForLater
	return item.Clone(), nil
}

func (s *Store) Clear() {
	s.items = make(map[string]*models.LineItem)
	s.order = nil
}

func (s *Store) Get(productID string) (models.LineItem, bool) {
	item, ok := s.items[productID]
	if !ok {
		return models.LineItem{}, false
	}
	return item.Clone(), true
}

// Put inserts or replaces a line as-is. Used when reconciling server state.
func (s *Store) Put(item models.LineItem) {
	cp := item.Clone()
	if _, ok := s.items[item.ProductID]; !ok {
		s.order = append(s.order, item.ProductID)
	}
	s.items[item.ProductID] = &cp
}

// PutAt is Put, but a new line is inserted at pos in insertion order rather
// than appended. Used to undo a removal without reordering the cart.
func (s *Store) PutAt(item models.LineItem, pos int) {
	if _, ok := s.items[item.ProductID]; ok || pos < 0 || pos >= len(s.order) {
		s.Put(item)
		return
	}
	cp := item.Clone()
	s.order = append(s.order, "")
	copy(s.order[pos+1:], s.order[pos:])
	s.order[pos] = item.ProductID
	s.items[item.ProductID] = &cp
}

// Position returns the index of productID in insertion order, or -1.
func (s *Store) Position(productID string) int {
	for i, id := range s.order {
		if id == productID {
			return i
		}
	}
	return -1
}

// Replace swaps the whole contents for items, in the given order.
func (s *Store) Replace(items []models.LineItem) {
	s.Clear()
	for _, item := range items {
		s.Put(item)
	}
}

// Items returns the active lines in insertion order.
func (s *Store) Items() []models.LineItem {
	return s.collect(false)
}

// SavedItems returns the saved-for-later lines in insertion order.
func (s *Store) SavedItems() []models.LineItem {
	return s.collect(true)
}

// All returns every line, active and saved.
func (s *Store) All() []models.LineItem {
	out := make([]models.LineItem, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].Clone())
	}
	return out
}

func (s *Store) collect(saved bool) []models.LineItem {
	out := make([]models.LineItem, 0, len(s.order))
	for _, id := range s.order {
		item := s.items[id]
		if item.SavedForLater == saved {
			out = append(out, item.Clone())
		}
	}
	return out
}

func (s *Store) Len() int {
	return len(s.items)
}

func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		items: make(map[string]models.LineItem, len(s.items)),
		order: append([]string(nil), s.order...),
	}
	for id, item := range s.items {
		snap.items[id] = item.Clone()
	}
	return snap
}

func (s *Store) Restore(snap Snapshot) {
	s.items = make(map[string]*models.LineItem, len(snap.items))
	for id, item := range snap.items {
		cp := item.Clone()
		s.items[id] = &cp
	}
	s.order = append([]string(nil), snap.order...)
}
