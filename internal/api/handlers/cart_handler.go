// server/internal/api/handlers/cart_handler.go
package handlers

import (
	"net/http"

	"pharmacy-cart-api-server/internal/cart"
	"pharmacy-cart-api-server/internal/models"
	"pharmacy-cart-api-server/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type CartHandler struct {
	Sessions *session.Manager
}

type AddItemRequest struct {
	ProductID string          `json:"productId" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	// Stock and IsActive describe the medicine as the worker saw it in search.
	Stock    *int  `json:"stock"`
	IsActive *bool `json:"isActive"`
}

func (r AddItemRequest) addContext() cart.AddContext {
	actx := cart.AddContext{Name: r.Name, Price: r.Price}
	if r.Stock != nil {
		active := r.IsActive == nil || *r.IsActive
		actx.Product = &models.ProductSnapshot{Name: r.Name, Price: r.Price, Stock: *r.Stock, IsActive: active}
	}
	return actx
}

type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// CheckoutResponse is returned instead of the PDF when the client asks for JSON.
type CheckoutResponse struct {
	Message    string       `json:"message"`
	ArchiveURL string       `json:"archiveUrl,omitempty"`
	Cart       session.View `json:"cart"`
}

func (h *CartHandler) session(c *gin.Context) (*session.Session, bool) {
	return openSession(c, h.Sessions)
}

// GetCart returns the worker's cart view. The first read of a session loads
// the cart from the backend.
func (h *CartHandler) GetCart(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if s.Cart.LastSyncedAt().IsZero() {
		if err := s.Cart.FetchCurrent(forwardContext(c)); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, s.View())
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := s.Cart.Add(forwardContext(c), req.ProductID, req.Quantity, req.addContext()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View())
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := s.Cart.SetQuantity(forwardContext(c), c.Param("productId"), req.Quantity); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View())
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Cart.Remove(forwardContext(c), c.Param("productId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View())
}

func (h *CartHandler) ToggleSaved(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := s.Cart.ToggleSaved(forwardContext(c), c.Param("productId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View())
}

func (h *CartHandler) ClearCart(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Cart.Clear(forwardContext(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View())
}

// Refresh reloads the cart from the backend, discarding local state.
func (h *CartHandler) Refresh(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Cart.FetchCurrent(forwardContext(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View())
}

// Sync asks the backend to revalidate prices and stock.
func (h *CartHandler) Sync(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	res, err := s.Cart.Sync(forwardContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hasChanges": res.HasChanges, "message": res.Message, "cart": s.View()})
}

// Checkout generates the bill and streams the PDF back.
func (h *CartHandler) Checkout(c *gin.Context) {
	var form models.BillForm
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	receipt, err := s.Checkout.Run(forwardContext(c), form)
	if err != nil {
		respondError(c, err)
		return
	}

	if c.NegotiateFormat("application/pdf", gin.MIMEJSON) == gin.MIMEJSON {
		c.JSON(http.StatusOK, CheckoutResponse{Message: "Bill generated", ArchiveURL: receipt.ArchiveURL, Cart: s.View()})
		return
	}
	if receipt.ArchiveURL != "" {
		c.Header("X-Bill-Archive", receipt.ArchiveURL)
	}
	c.Header("Content-Disposition", `attachment; filename="bill.pdf"`)
	c.Data(http.StatusOK, "application/pdf", receipt.PDF)
}
