// server/internal/api/handlers/respond.go
package handlers

import (
	"context"
	"errors"
	"net/http"

	"pharmacy-cart-api-server/internal/api/middleware"
	"pharmacy-cart-api-server/internal/apperror"
	"pharmacy-cart-api-server/internal/backend"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	ProductID string `json:"productId,omitempty"`
	Retryable bool   `json:"retryable"`
}

// StatusFor maps an error kind onto the HTTP status returned to the UI.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperror.ErrStockConflict), errors.Is(err, apperror.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, apperror.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, apperror.ErrServerRejection):
		switch s := apperror.Status(err); s {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return s
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	body := ErrorResponse{
		Error:     apperror.Message(err),
		Kind:      apperror.Kind(err),
		Retryable: apperror.IsRetryable(err),
	}
	var e *apperror.Error
	if errors.As(err, &e) {
		body.ProductID = e.ProductID
	}
	if body.Kind == apperror.KindInternal {
		body.Error = "Internal server error"
	}
	c.AbortWithStatusJSON(StatusFor(err), body)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// forwardContext carries the worker's token to the backend client.
func forwardContext(c *gin.Context) context.Context {
	return backend.ContextWithToken(c.Request.Context(), c.GetString(middleware.KeyToken))
}
