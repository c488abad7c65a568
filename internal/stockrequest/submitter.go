package stockrequest

import (
	"context"
	"errors"
	"time"

	"pharmacy-cart-api-server/internal/apperror"
	"pharmacy-cart-api-server/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RequestBackend is the part of the backend client submissions need.
type RequestBackend interface {
	CreateBulk(ctx context.Context, items []models.RequestItem) (*models.StockRequestResult, error)
	CreateRequest(ctx context.Context, item models.RequestItem) (*models.StockRequestResult, error)
}

// Recorder journals what the worker submitted.
type Recorder interface {
	Record(ctx context.Context, a models.Activity) error
}

// Submitter sends a worker's batch to the backend in a single call.
type Submitter struct {
	userID  string
	batch   *Batch
	api     RequestBackend
	journal Recorder
	log     *zap.Logger
	group   singleflight.Group
}

func NewSubmitter(userID string, batch *Batch, api RequestBackend, journal Recorder, log *zap.Logger) *Submitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Submitter{
		userID:  userID,
		batch:   batch,
		api:     api,
		journal: journal,
		log:     log.Named("stockrequest"),
	}
}

// Submit validates the batch locally, then sends every line in one create-bulk
// call. Success empties the batch; failure leaves it exactly as it was.
// Concurrent calls share the outcome of the one in flight.
func (s *Submitter) Submit(ctx context.Context) (*models.StockRequestResult, error) {
	v, err, shared := s.group.Do("submit", func() (interface{}, error) {
		return s.submit(ctx)
	})
	if shared {
		s.log.Debug("joined in-flight batch submission", zap.String("user_id", s.userID))
	}
	if err != nil {
		return nil, err
	}
	return v.(*models.StockRequestResult), nil
}

func (s *Submitter) submit(ctx context.Context) (*models.StockRequestResult, error) {
	const op = "stockrequest.Submit"

	items, err := s.batch.freeze()
	if err != nil {
		return nil, err
	}

	res, err := s.api.CreateBulk(ctx, items)
	s.batch.thaw(err == nil)
	s.record(ctx, models.ActivityBatchSubmit, len(items), err)

	if err != nil {
		var e *apperror.Error
		if !errors.As(err, &e) {
			err = apperror.FromContext(op, err)
		}
		err = apperror.WithOp(err, op, "")
		s.log.Warn("batch submission failed",
			zap.String("user_id", s.userID),
			zap.Int("items", len(items)),
			zap.Error(err))
		return nil, err
	}
	s.log.Info("batch submitted", zap.String("user_id", s.userID), zap.Int("items", len(items)))
	return res, nil
}

// SubmitOne sends a single request outside the batch.
func (s *Submitter) SubmitOne(ctx context.Context, item models.RequestItem) (*models.StockRequestResult, error) {
	const op = "stockrequest.SubmitOne"
	if item.ProductID == "" {
		return nil, apperror.Validation(op, "", apperror.ErrItemNotFound, "tabletId is required")
	}
	if item.UrgencyLevel != "" && !item.UrgencyLevel.Valid() {
		return nil, apperror.Validation(op, item.ProductID, apperror.ErrValidation, "unknown urgency level %q", item.UrgencyLevel)
	}
	if item.RequestedQuantity < 0 {
		return nil, apperror.Validation(op, item.ProductID, apperror.ErrInvalidQuantity, "quantity must be at least 1, got %d", item.RequestedQuantity)
	}
	item = withDefaults(item)
	if reasonTooShort(item.Reason) {
		return nil, apperror.Validation(op, item.ProductID, apperror.ErrReasonTooShort,
			"Please provide a detailed reason (at least %d characters)", MinReasonLength)
	}

	res, err := s.api.CreateRequest(ctx, item)
	s.record(ctx, models.ActivitySingleRequest, 1, err)
	if err != nil {
		var e *apperror.Error
		if !errors.As(err, &e) {
			err = apperror.FromContext(op, err)
		}
		return nil, apperror.WithOp(err, op, item.ProductID)
	}
	return res, nil
}

func (s *Submitter) record(ctx context.Context, kind models.ActivityKind, count int, err error) {
	if s.journal == nil {
		return
	}
	entry := models.Activity{
		UserID:    s.userID,
		Kind:      kind,
		Succeeded: err == nil,
		ItemCount: count,
		CreatedAt: time.Now().UTC(),
	}
	if err != nil {
		entry.Error = apperror.Message(err)
	}
	if jerr := s.journal.Record(context.WithoutCancel(ctx), entry); jerr != nil {
		s.log.Warn("failed to journal activity", zap.String("kind", string(kind)), zap.Error(jerr))
	}
}
