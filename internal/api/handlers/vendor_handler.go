// server/internal/api/handlers/vendor_handler.go
package handlers

import (
	"context"
	"net/http"

	"pharmacy-cart-api-server/internal/models"

	"github.com/gin-gonic/gin"
)

type VendorAPI interface {
	ListVendors(ctx context.Context) (*models.VendorList, error)
	CreateVendor(ctx context.Context, v models.Vendor) (*models.VendorResult, error)
}

type VendorHandler struct {
	Backend VendorAPI
}

func (h *VendorHandler) List(c *gin.Context) {
	list, err := h.Backend.ListVendors(forwardContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *VendorHandler) Create(c *gin.Context) {
	var v models.Vendor
	if err := c.ShouldBindJSON(&v); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Backend.CreateVendor(forwardContext(c), v)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
