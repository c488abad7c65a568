package models

import (
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "Cash"
	PaymentCard       PaymentMethod = "Card"
	PaymentUPI        PaymentMethod = "UPI"
	PaymentNetBanking PaymentMethod = "Net Banking"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCash, PaymentCard, PaymentUPI, PaymentNetBanking:
		return true
	}
	return false
}

type Customer struct {
	Name  string `json:"name" validate:"max=100"`
	Phone string `json:"phone" validate:"omitempty,max=20"`
	Email string `json:"email" validate:"omitempty,email"`
}

// BillForm is what the worker fills in at checkout.
type BillForm struct {
	Customer      Customer        `json:"customer"`
	PaymentMethod PaymentMethod   `json:"paymentMethod" validate:"required,payment_method"`
	Discount      decimal.Decimal `json:"discount"`
	Notes         string          `json:"notes" validate:"max=500"`
}

type BillItem struct {
	ID       string `json:"_id"`
	TabletID string `json:"tabletId"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// GenerateBillPayload is the body of POST /bills/generate.
type GenerateBillPayload struct {
	Items         []BillItem    `json:"items"`
	Customer      Customer      `json:"customer"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	Discount      float64       `json:"discount"`
	Notes         string        `json:"notes"`
}

// Bill is a bill as listed in the backend's history.
type Bill struct {
	ID            string          `json:"_id"`
	BillNumber    string          `json:"billNumber"`
	Customer      Customer        `json:"customer"`
	Items         []BillItem      `json:"items,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"totalAmount"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type BillHistoryPage struct {
	Bills      []Bill `json:"bills"`
	Page       int    `json:"page"`
	TotalPages int    `json:"totalPages"`
	TotalCount int    `json:"totalCount"`
}

type BillDetail struct {
	Bill *Bill `json:"bill"`
}

// BillHistoryQuery filters GET /bills/history.
type BillHistoryQuery struct {
	Status    string `form:"status"`
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
	Search    string `form:"search"`
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
}

// Values encodes the query, leaving out empty parameters.
func (q BillHistoryQuery) Values() url.Values {
	v := url.Values{}
	add := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	add("status", q.Status)
	add("startDate", q.StartDate)
	add("endDate", q.EndDate)
	add("search", q.Search)
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}
