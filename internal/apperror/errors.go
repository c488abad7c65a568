package apperror

import (
	"context"
	"errors"
	"fmt"
)

// Kinds of failure surfaced to the UI. Compare with errors.Is.
var (
	// Local validation, rejected before any network call.
	ErrValidation      = errors.New("validation failed")
	ErrInvalidQuantity = fmt.Errorf("invalid quantity: %w", ErrValidation)
	ErrOutOfStock      = fmt.Errorf("out of stock: %w", ErrValidation)
	ErrItemSaved       = fmt.Errorf("item is saved for later: %w", ErrValidation)
	ErrItemNotFound    = fmt.Errorf("item not found: %w", ErrValidation)
	ErrAlreadyInBatch  = fmt.Errorf("already in request batch: %w", ErrValidation)
	ErrReasonTooShort  = fmt.Errorf("reason too short: %w", ErrValidation)
	ErrEmptyBatch      = fmt.Errorf("request batch is empty: %w", ErrValidation)
	ErrEmptyCart       = fmt.Errorf("cart is empty: %w", ErrValidation)
	ErrInvalidBill     = fmt.Errorf("invalid bill: %w", ErrValidation)
	ErrBlocking        = fmt.Errorf("cart has blocking warnings: %w", ErrValidation)
	ErrPendingSync     = fmt.Errorf("item is still syncing: %w", ErrValidation)

	// Remote outcomes.
	ErrStockConflict   = errors.New("stock conflict")
	ErrNetwork         = errors.New("network error")
	ErrTimeout         = errors.New("request timed out")
	ErrServerRejection = errors.New("rejected by server")

	// ErrBusy means the same logical action is already in flight.
	ErrBusy = errors.New("operation already in progress")
)

// Kind names used on the wire.
const (
	KindValidation      = "validation"
	KindStockConflict   = "stock_conflict"
	KindNetwork         = "network"
	KindTimeout         = "timeout"
	KindServerRejection = "server_rejection"
	KindBusy            = "busy"
	KindInternal        = "internal"
)

// Error carries the context of a failed cart or request operation.
type Error struct {
	Op        string // e.g. "cart.SetQuantity"
	ProductID string
	Status    int    // backend HTTP status, 0 when the call never completed
	Message   string // safe to show to the worker
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Op != "" && e.ProductID != "":
		return fmt.Sprintf("%s [%s]: %s", e.Op, e.ProductID, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error around one of the sentinel kinds.
func New(op, productID string, kind error, message string) *Error {
	return &Error{Op: op, ProductID: productID, Message: message, Err: kind}
}

// Validation is shorthand for a local rejection.
func Validation(op, productID string, kind error, format string, args ...interface{}) *Error {
	return New(op, productID, kind, fmt.Sprintf(format, args...))
}

// WithOp tags err with the operation and product it belongs to, keeping the
// original kind and message.
func WithOp(err error, op, productID string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		cp.Op = op
		if productID != "" {
			cp.ProductID = productID
		}
		return &cp
	}
	return &Error{Op: op, ProductID: productID, Err: err}
}

// FromContext maps context failures onto the taxonomy.
func FromContext(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Op: op, Message: "the pharmacy server did not respond in time", Err: ErrTimeout}
	case errors.Is(err, context.Canceled):
		return &Error{Op: op, Message: "request was cancelled", Err: ErrNetwork}
	default:
		return &Error{Op: op, Message: "could not reach the pharmacy server", Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}
}

// Kind returns the wire name of err's category.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrStockConflict):
		return KindStockConflict
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrServerRejection):
		return KindServerRejection
	case errors.Is(err, ErrBusy):
		return KindBusy
	default:
		return KindInternal
	}
}

// IsRetryable reports whether the worker should be offered a retry.
// Nothing in this module retries on its own.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}

// Status returns the backend HTTP status attached to err, if any.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// Message returns the worker-facing text for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
