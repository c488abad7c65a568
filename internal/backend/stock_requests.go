package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"pharmacy-cart-api-server/internal/apperror"
	"pharmacy-cart-api-server/internal/models"
)

// Lifecycle transitions an owner can apply to a request.
const (
	ActionApprove      = "approve"
	ActionReject       = "reject"
	ActionMarkOrdered  = "mark-ordered"
	ActionMarkReceived = "mark-received"
)

func ValidAction(action string) bool {
	switch action {
	case ActionApprove, ActionReject, ActionMarkOrdered, ActionMarkReceived:
		return true
	}
	return false
}

func (c *Client) MyRequests(ctx context.Context) (*models.StockRequestList, error) {
	var list models.StockRequestList
	if err := c.doJSON(ctx, "backend.MyRequests", http.MethodGet, "/stock-requests/my-requests", nil, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) CreateRequest(ctx context.Context, item models.RequestItem) (*models.StockRequestResult, error) {
	var res models.StockRequestResult
	if err := c.doJSON(ctx, "backend.CreateRequest", http.MethodPost, "/stock-requests/create", nil, item, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateBulk submits a whole batch in a single call.
func (c *Client) CreateBulk(ctx context.Context, items []models.RequestItem) (*models.StockRequestResult, error) {
	var res models.StockRequestResult
	payload := models.BulkRequestPayload{Requests: items}
	if err := c.doJSON(ctx, "backend.CreateBulk", http.MethodPost, "/stock-requests/create-bulk", nil, payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AllRequests lists every worker's requests. The backend only allows owners.
func (c *Client) AllRequests(ctx context.Context, filters url.Values) (*models.StockRequestList, error) {
	var list models.StockRequestList
	if err := c.doJSON(ctx, "backend.AllRequests", http.MethodGet, "/stock-requests/all", filters, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) TransitionRequest(ctx context.Context, requestID, action string, payload models.ReviewPayload) (*models.StockRequestResult, error) {
	const op = "backend.TransitionRequest"
	if !ValidAction(action) {
		return nil, apperror.Validation(op, "", apperror.ErrValidation, "unknown action %q", action)
	}
	var res models.StockRequestResult
	path := fmt.Sprintf("/stock-requests/%s/%s", url.PathEscape(requestID), action)
	if err := c.doJSON(ctx, op, http.MethodPut, path, nil, payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
