package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Shapes exchanged with the backend's /api/cart endpoints.

type RemoteTablet struct {
	ID       string          `json:"_id"`
	Name     string          `json:"name"`
	Brand    string          `json:"brand,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	IsActive *bool           `json:"isActive,omitempty"`
}

type RemoteCartItem struct {
	ID          string          `json:"_id"`
	TabletID    string          `json:"tabletId,omitempty"`
	Tablet      *RemoteTablet   `json:"tablet,omitempty"`
	Quantity    int             `json:"quantity"`
	PriceAtTime decimal.Decimal `json:"priceAtTime"`
}

type RemoteCart struct {
	Items        []RemoteCartItem `json:"items"`
	SavedItems   []RemoteCartItem `json:"savedItems"`
	TotalItems   int              `json:"totalItems"`
	TotalAmount  decimal.Decimal  `json:"totalAmount"`
	UpdatedAt    *time.Time       `json:"updatedAt,omitempty"`
	LastSyncedAt *time.Time       `json:"lastSyncedAt,omitempty"`
}

// CartEnvelope is the body every cart endpoint answers with.
type CartEnvelope struct {
	Cart       *RemoteCart `json:"cart"`
	Message    string      `json:"message,omitempty"`
	HasChanges bool        `json:"hasChanges,omitempty"`
}

// AddToCartPayload is the body of POST /cart/add.
type AddToCartPayload struct {
	TabletID string `json:"tabletId"`
	Quantity int    `json:"quantity"`
}

// ProductID resolves the key of a remote line: the populated tablet first, then the raw id.
func (ri RemoteCartItem) ProductID() string {
	if ri.Tablet != nil && ri.Tablet.ID != "" {
		return ri.Tablet.ID
	}
	return ri.TabletID
}

// ToLineItem converts a remote line into the local representation.
func (ri RemoteCartItem) ToLineItem(saved bool) LineItem {
	li := LineItem{
		ProductID:     ri.ProductID(),
		ItemID:        ri.ID,
		Quantity:      ri.Quantity,
		PriceAtTime:   ri.PriceAtTime,
		SavedForLater: saved,
	}
	if ri.Tablet != nil {
		active := ri.Tablet.IsActive == nil || *ri.Tablet.IsActive
		li.Name = ri.Tablet.Name
		li.Product = &ProductSnapshot{
			Name:     ri.Tablet.Name,
			Brand:    ri.Tablet.Brand,
			Price:    ri.Tablet.Price,
			Stock:    ri.Tablet.Stock,
			IsActive: active,
		}
		if li.PriceAtTime.IsZero() {
			li.PriceAtTime = ri.Tablet.Price
		}
	}
	return li
}

// LineItems flattens the cart into local items, active first. Lines without a
// product key cannot be tracked and are dropped.
func (rc *RemoteCart) LineItems() []LineItem {
	if rc == nil {
		return nil
	}
	out := make([]LineItem, 0, len(rc.Items)+len(rc.SavedItems))
	for _, ri := range rc.Items {
		if ri.ProductID() == "" {
			continue
		}
		out = append(out, ri.ToLineItem(false))
	}
	for _, ri := range rc.SavedItems {
		if ri.ProductID() == "" {
			continue
		}
		out = append(out, ri.ToLineItem(true))
	}
	return out
}

// Find returns the remote line for productID and whether it sits in the saved list.
func (rc *RemoteCart) Find(productID string) (RemoteCartItem, bool, bool) {
	if rc == nil {
		return RemoteCartItem{}, false, false
	}
	for _, ri := range rc.Items {
		if ri.ProductID() == productID {
			return ri, false, true
		}
	}
	for _, ri := range rc.SavedItems {
		if ri.ProductID() == productID {
			return ri, true, true
		}
	}
	return RemoteCartItem{}, false, false
}
