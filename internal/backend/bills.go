package backend

import (
	"context"
	"net/http"
	"net/url"

	"pharmacy-cart-api-server/internal/models"
)

// GenerateBill creates a bill and returns the rendered PDF.
func (c *Client) GenerateBill(ctx context.Context, payload models.GenerateBillPayload) ([]byte, error) {
	return c.do(ctx, "backend.GenerateBill", http.MethodPost, "/bills/generate", nil, payload)
}

func (c *Client) BillHistory(ctx context.Context, q models.BillHistoryQuery) (*models.BillHistoryPage, error) {
	var page models.BillHistoryPage
	if err := c.doJSON(ctx, "backend.BillHistory", http.MethodGet, "/bills/history", q.Values(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) GetBill(ctx context.Context, billID string) (*models.BillDetail, error) {
	var detail models.BillDetail
	if err := c.doJSON(ctx, "backend.GetBill", http.MethodGet, "/bills/"+url.PathEscape(billID), nil, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) DownloadBill(ctx context.Context, billID string) ([]byte, error) {
	return c.do(ctx, "backend.DownloadBill", http.MethodGet, "/bills/"+url.PathEscape(billID)+"/download", nil, nil)
}
