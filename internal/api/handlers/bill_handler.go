// server/internal/api/handlers/bill_handler.go
package handlers

import (
	"context"
	"net/http"

	"pharmacy-cart-api-server/internal/models"

	"github.com/gin-gonic/gin"
)

type BillAPI interface {
	BillHistory(ctx context.Context, q models.BillHistoryQuery) (*models.BillHistoryPage, error)
	GetBill(ctx context.Context, billID string) (*models.BillDetail, error)
	DownloadBill(ctx context.Context, billID string) ([]byte, error)
}

type BillHandler struct {
	Backend BillAPI
}

func (h *BillHandler) History(c *gin.Context) {
	var q models.BillHistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	page, err := h.Backend.BillHistory(forwardContext(c), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *BillHandler) GetBill(c *gin.Context) {
	detail, err := h.Backend.GetBill(forwardContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *BillHandler) Download(c *gin.Context) {
	pdf, err := h.Backend.DownloadBill(forwardContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="bill-`+c.Param("id")+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}
