package backend

import (
	"context"
	"net/http"
	"net/url"

	"pharmacy-cart-api-server/internal/models"
)

func (c *Client) cartCall(ctx context.Context, op, method, path string, body interface{}) (*models.CartEnvelope, error) {
	var env models.CartEnvelope
	if err := c.doJSON(ctx, op, method, path, nil, body, &env); err != nil {
		return nil, err
	}
	if env.Cart == nil {
		env.Cart = &models.RemoteCart{}
	}
	return &env, nil
}

func (c *Client) GetCart(ctx context.Context) (*models.CartEnvelope, error) {
	return c.cartCall(ctx, "backend.GetCart", http.MethodGet, "/cart", nil)
}

func (c *Client) AddToCart(ctx context.Context, productID string, quantity int) (*models.CartEnvelope, error) {
	return c.cartCall(ctx, "backend.AddToCart", http.MethodPost, "/cart/add",
		models.AddToCartPayload{TabletID: productID, Quantity: quantity})
}

func (c *Client) UpdateCartItem(ctx context.Context, itemID string, quantity int) (*models.CartEnvelope, error) {
	return c.cartCall(ctx, "backend.UpdateCartItem", http.MethodPut, "/cart/update/"+url.PathEscape(itemID),
		map[string]int{"quantity": quantity})
}

func (c *Client) RemoveCartItem(ctx context.Context, itemID string) (*models.CartEnvelope, error) {
	return c.cartCall(ctx, "backend.RemoveCartItem", http.MethodDelete, "/cart/remove/"+url.PathEscape(itemID), nil)
}

func (c *Client) ClearCart(ctx context.Context) (*models.CartEnvelope, error) {
	return c.cartCall(ctx, "backend.ClearCart", http.MethodDelete, "/cart/clear", nil)
}

// SyncCart asks the backend to refresh prices and availability.
func (c *Client) SyncCart(ctx context.Context) (*models.CartEnvelope, error) {
	return c.cartCall(ctx, "backend.SyncCart", http.MethodPost, "/cart/sync", nil)
}

func (c *Client) SaveForLater(ctx context.Context, itemID string) (*models.CartEnvelope, error) {
	return c.cartCall(ctx, "backend.SaveForLater", http.MethodPost, "/cart/save-for-later",
		map[string]string{"itemId": itemID})
}

func (c *Client) MoveToCart(ctx context.Context, savedItemID string) (*models.CartEnvelope, error) {
	return c.cartCall(ctx, "backend.MoveToCart", http.MethodPost, "/cart/move-to-cart",
		map[string]string{"savedItemId": savedItemID})
}

// RemoveSavedItem deletes a saved-for-later line permanently.
func (c *Client) RemoveSavedItem(ctx context.Context, savedItemID string) (*models.CartEnvelope, error) {
	return c.cartCall(ctx, "backend.RemoveSavedItem", http.MethodDelete, "/cart/saved-items/remove",
		map[string]string{"savedItemId": savedItemID})
}
