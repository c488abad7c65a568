// server/internal/api/handlers/stock_request_handler.go
package handlers

import (
	"context"
	"net/http"
	"net/url"

	"pharmacy-cart-api-server/internal/models"
	"pharmacy-cart-api-server/internal/session"
	"pharmacy-cart-api-server/internal/stockrequest"

	"github.com/gin-gonic/gin"
)

// StockRequestAPI is the part of the backend the request list and lifecycle
// routes forward to.
type StockRequestAPI interface {
	MyRequests(ctx context.Context) (*models.StockRequestList, error)
	AllRequests(ctx context.Context, filters url.Values) (*models.StockRequestList, error)
	TransitionRequest(ctx context.Context, requestID, action string, payload models.ReviewPayload) (*models.StockRequestResult, error)
}

type StockRequestHandler struct {
	Sessions *session.Manager
	Backend  StockRequestAPI
}

func (h *StockRequestHandler) session(c *gin.Context) (*session.Session, bool) {
	return openSession(c, h.Sessions)
}

// batchChanged answers with the batch and pushes it to the worker's socket.
func (h *StockRequestHandler) batchChanged(c *gin.Context, s *session.Session, status int) {
	h.Sessions.PushBatch(s)
	c.JSON(status, s.BatchView())
}

func (h *StockRequestHandler) GetBatch(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.BatchView())
}

func (h *StockRequestHandler) AddBatchItem(c *gin.Context) {
	var item models.RequestItem
	if err := c.ShouldBindJSON(&item); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := s.Batch.Add(item); err != nil {
		respondError(c, err)
		return
	}
	h.batchChanged(c, s, http.StatusCreated)
}

func (h *StockRequestHandler) UpdateBatchItem(c *gin.Context) {
	var patch stockrequest.ItemPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := s.Batch.Update(c.Param("productId"), patch); err != nil {
		respondError(c, err)
		return
	}
	h.batchChanged(c, s, http.StatusOK)
}

func (h *StockRequestHandler) RemoveBatchItem(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := s.Batch.Remove(c.Param("productId")); err != nil {
		respondError(c, err)
		return
	}
	h.batchChanged(c, s, http.StatusOK)
}

func (h *StockRequestHandler) ClearBatch(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Batch.Clear(); err != nil {
		respondError(c, err)
		return
	}
	h.batchChanged(c, s, http.StatusOK)
}

// SubmitBatch sends the whole batch in one call. On failure the batch is
// returned unchanged so the worker can retry.
func (h *StockRequestHandler) SubmitBatch(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	res, err := s.Requests.Submit(forwardContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	h.Sessions.PushBatch(s)
	c.JSON(http.StatusCreated, res)
}

// CreateRequest sends a single request outside the batch.
func (h *StockRequestHandler) CreateRequest(c *gin.Context) {
	var item models.RequestItem
	if err := c.ShouldBindJSON(&item); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	res, err := s.Requests.SubmitOne(forwardContext(c), item)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// MyRequests lists the worker's requests, filtered and ordered for review.
func (h *StockRequestHandler) MyRequests(c *gin.Context) {
	var f stockrequest.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		badRequest(c, err)
		return
	}
	list, err := h.Backend.MyRequests(forwardContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	requests := stockrequest.FilterRequests(list.Requests, f)
	c.JSON(http.StatusOK, models.StockRequestList{Requests: requests, Total: len(requests)})
}

// AllRequests forwards the owner's list query as is.
func (h *StockRequestHandler) AllRequests(c *gin.Context) {
	list, err := h.Backend.AllRequests(forwardContext(c), c.Request.URL.Query())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Transition builds the handler for one lifecycle action.
func (h *StockRequestHandler) Transition(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload models.ReviewPayload
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&payload); err != nil {
				badRequest(c, err)
				return
			}
		}
		res, err := h.Backend.TransitionRequest(forwardContext(c), c.Param("id"), action, payload)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
