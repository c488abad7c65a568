package backend

import (
	"context"
	"net/http"

	"pharmacy-cart-api-server/internal/models"
)

func (c *Client) ListVendors(ctx context.Context) (*models.VendorList, error) {
	var list models.VendorList
	if err := c.doJSON(ctx, "backend.ListVendors", http.MethodGet, "/vendors", nil, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) CreateVendor(ctx context.Context, v models.Vendor) (*models.VendorResult, error) {
	var res models.VendorResult
	if err := c.doJSON(ctx, "backend.CreateVendor", http.MethodPost, "/vendors/create", nil, v, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
