// server/internal/api/handlers/activity_handler.go
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"pharmacy-cart-api-server/internal/models"
	"pharmacy-cart-api-server/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ActivityReader interface {
	Recent(ctx context.Context, userID string, limit int64) ([]models.Activity, error)
}

type ActivityHandler struct {
	Sessions *session.Manager
	Journal  ActivityReader
	Log      *zap.Logger
}

// List returns the worker's own journal, newest first.
func (h *ActivityHandler) List(c *gin.Context) {
	s, ok := openSession(c, h.Sessions)
	if !ok {
		return
	}
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "0"), 10, 64)
	entries, err := h.Journal.Recent(c.Request.Context(), s.UserID, limit)
	if err != nil {
		h.Log.Error("failed to read activity", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load activity"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": entries})
}
