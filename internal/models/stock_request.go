package models

import (
	"time"
)

type UrgencyLevel string

const (
	UrgencyCritical UrgencyLevel = "Critical"
	UrgencyHigh     UrgencyLevel = "High"
	UrgencyMedium   UrgencyLevel = "Medium"
	UrgencyLow      UrgencyLevel = "Low"
)

// Rank orders urgencies from most to least pressing.
func (u UrgencyLevel) Rank() int {
	switch u {
	case UrgencyCritical:
		return 0
	case UrgencyHigh:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 3
	default:
		return 4
	}
}

func (u UrgencyLevel) Valid() bool {
	return u.Rank() < 4
}

type RequestStatus string

const (
	StatusPending   RequestStatus = "Pending"
	StatusApproved  RequestStatus = "Approved"
	StatusRejected  RequestStatus = "Rejected"
	StatusOrdered   RequestStatus = "Ordered"
	StatusReceived  RequestStatus = "Received"
	StatusCancelled RequestStatus = "Cancelled"
)

// RequestItem is one line of a worker's replenishment batch. JSON tags follow
// the backend's create and create-bulk payloads.
type RequestItem struct {
	ProductID         string       `json:"tabletId" binding:"required"`
	MedicineName      string       `json:"medicineName"`
	Brand             string       `json:"brand,omitempty"`
	Company           string       `json:"company,omitempty"`
	Category          string       `json:"category,omitempty"`
	Unit              string       `json:"unit,omitempty"`
	CurrentStock      int          `json:"currentStock"`
	MinStock          int          `json:"minStock"`
	RequestedQuantity int          `json:"quantity"`
	UrgencyLevel      UrgencyLevel `json:"urgencyLevel"`
	Reason            string       `json:"reason"`
}

// RequestTablet is the medicine a stock request refers to, as populated by the backend.
type RequestTablet struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Brand string `json:"brand,omitempty"`
}

// StockRequest is a submitted replenishment request as stored by the backend.
type StockRequest struct {
	ID                string         `json:"_id"`
	RequestNumber     string         `json:"requestNumber"`
	Tablet            *RequestTablet `json:"tablet,omitempty"`
	RequestedQuantity int            `json:"requestedQuantity"`
	CurrentStock      int            `json:"currentStock"`
	UrgencyLevel      UrgencyLevel   `json:"urgencyLevel"`
	Reason            string         `json:"reason"`
	Status            RequestStatus  `json:"status"`
	AdminNotes        string         `json:"adminNotes,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// StockRequestList is the body of the list endpoints.
type StockRequestList struct {
	Requests []StockRequest `json:"requests"`
	Total    int            `json:"total,omitempty"`
}

// StockRequestResult is the body returned by create, review and lifecycle endpoints.
type StockRequestResult struct {
	Message  string         `json:"message,omitempty"`
	Request  *StockRequest  `json:"request,omitempty"`
	Requests []StockRequest `json:"requests,omitempty"`
}

// BulkRequestPayload is the body of POST /stock-requests/create-bulk.
type BulkRequestPayload struct {
	Requests []RequestItem `json:"requests"`
}

// ReviewPayload carries the owner's notes and order details for lifecycle transitions.
type ReviewPayload struct {
	AdminNotes           string     `json:"adminNotes,omitempty"`
	ApprovedQuantity     int        `json:"approvedQuantity,omitempty"`
	VendorID             string     `json:"vendorId,omitempty"`
	ExpectedDeliveryDate *time.Time `json:"expectedDeliveryDate,omitempty"`
	ReceivedQuantity     int        `json:"receivedQuantity,omitempty"`
}
