package models

import (
	"github.com/shopspring/decimal"
)

// ProductSnapshot is the last authoritative view of a medicine as reported by the backend.
type ProductSnapshot struct {
	Name     string          `json:"name"`
	Brand    string          `json:"brand,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	IsActive bool            `json:"isActive"`
}

// LineItem is one medicine + quantity entry in a worker's cart.
type LineItem struct {
	ProductID     string           `json:"productId"`
	ItemID        string           `json:"itemId,omitempty"`
	Name          string           `json:"name"`
	Quantity      int              `json:"quantity"`
	PriceAtTime   decimal.Decimal  `json:"priceAtTime"`
	Product       *ProductSnapshot `json:"product,omitempty"`
	SavedForLater bool             `json:"savedForLater"`
}

// CurrentStock returns the last known stock count and whether it is known at all.
func (li LineItem) CurrentStock() (int, bool) {
	if li.Product == nil {
		return 0, false
	}
	return li.Product.Stock, true
}

// EffectivePrice is the unit price used for every total: the live price when
// the product snapshot is present and active, otherwise the price at add time.
func (li LineItem) EffectivePrice() decimal.Decimal {
	if li.Product != nil && li.Product.IsActive {
		return li.Product.Price
	}
	return li.PriceAtTime
}

// LineTotal is Quantity × EffectivePrice.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.EffectivePrice().Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// DisplayName prefers the live product name.
func (li LineItem) DisplayName() string {
	if li.Product != nil && li.Product.Name != "" {
		return li.Product.Name
	}
	if li.Name != "" {
		return li.Name
	}
	return li.ProductID
}

// Clone returns a deep copy so snapshots never share the product pointer.
func (li LineItem) Clone() LineItem {
	if li.Product != nil {
		p := *li.Product
		li.Product = &p
	}
	return li
}
