// Package billing turns a worker's cart into a bill. The backend generates the
// PDF; this side validates the form and the cart first, archives the PDF and
// journals the outcome.
package billing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"pharmacy-cart-api-server/internal/apperror"
	"pharmacy-cart-api-server/internal/models"
	"pharmacy-cart-api-server/internal/totals"
	"pharmacy-cart-api-server/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const pdfContentType = "application/pdf"

// BillBackend generates the bill PDF.
type BillBackend interface {
	GenerateBill(ctx context.Context, payload models.GenerateBillPayload) ([]byte, error)
}

// Cart is what checkout reads from and clears.
type Cart interface {
	Items() []models.LineItem
	Revision() uint64
	ClearLocalIf(rev uint64) bool
	FetchCurrent(ctx context.Context) error
}

// Archiver stores a copy of the PDF and returns where it can be fetched.
type Archiver interface {
	UploadFile(ctx context.Context, body io.Reader, objectKey, contentType string) (string, error)
}

type Recorder interface {
	Record(ctx context.Context, a models.Activity) error
}

// Receipt is the outcome of a successful checkout.
type Receipt struct {
	PDF        []byte
	Totals     totals.Totals
	ArchiveURL string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		return models.PaymentMethod(fl.Field().String()).Valid()
	})
	return v
}

// ValidateForm checks the bill form on its own, before the cart is looked at.
func ValidateForm(form models.BillForm) error {
	const op = "billing.Checkout"
	if err := validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return apperror.Validation(op, "", apperror.ErrInvalidBill, "%s", strings.Join(msgs, "; "))
		}
		return apperror.Validation(op, "", apperror.ErrInvalidBill, "%s", err.Error())
	}
	if form.Discount.IsNegative() {
		return apperror.Validation(op, "", apperror.ErrInvalidBill, "discount cannot be negative")
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "payment_method":
		return fmt.Sprintf("unknown payment method %q", fe.Value())
	case "email":
		return "customer email is not valid"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// Checkout bills one worker's cart.
type Checkout struct {
	userID  string
	cart    Cart
	api     BillBackend
	calc    totals.Calculator
	archive Archiver
	journal Recorder
	log     *zap.Logger

	group    singleflight.Group
	mu       sync.Mutex
	inflight string
}

// NewCheckout wires a checkout. archive and journal may be nil.
func NewCheckout(userID string, cart Cart, api BillBackend, calc totals.Calculator, archive Archiver, journal Recorder, log *zap.Logger) *Checkout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checkout{
		userID:  userID,
		cart:    cart,
		api:     api,
		calc:    calc,
		archive: archive,
		journal: journal,
		log:     log.Named("billing"),
	}
}

// Run validates the form and the cart, asks the backend for the bill and, on
// success, empties the local cart. A repeat of the checkout in flight joins
// it; a different one is refused as busy.
func (c *Checkout) Run(ctx context.Context, form models.BillForm) (*Receipt, error) {
	key := fingerprint(form)

	c.mu.Lock()
	if c.inflight != "" && c.inflight != key {
		c.mu.Unlock()
		return nil, apperror.New("billing.Checkout", "", apperror.ErrBusy, "a checkout is already in progress")
	}
	c.inflight = key
	c.mu.Unlock()

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		defer func() {
			c.mu.Lock()
			c.inflight = ""
			c.mu.Unlock()
		}()
		return c.run(ctx, form)
	})
	if shared {
		c.log.Debug("joined in-flight checkout", zap.String("user_id", c.userID))
	}
	if err != nil {
		return nil, err
	}
	return v.(*Receipt), nil
}

func (c *Checkout) run(ctx context.Context, form models.BillForm) (*Receipt, error) {
	const op = "billing.Checkout"

	if err := ValidateForm(form); err != nil {
		return nil, err
	}

	rev := c.cart.Revision()
	items := c.cart.Items()
	if len(items) == 0 {
		return nil, apperror.Validation(op, "", apperror.ErrEmptyCart, "Cart is empty")
	}
	if report := validation.Validate(items); report.Blocking() {
		return nil, apperror.Validation(op, "", apperror.ErrBlocking, "Please resolve cart issues before checkout")
	}
	for _, item := range items {
		if item.ItemID == "" {
			return nil, apperror.Validation(op, item.ProductID, apperror.ErrPendingSync, "%s is still being added to the cart", item.DisplayName())
		}
	}

	t := c.calc.Compute(items, form.Discount)
	if !t.GrandTotal.IsPositive() {
		return nil, apperror.Validation(op, "", apperror.ErrInvalidBill, "Total amount must be greater than zero")
	}

	pdf, err := c.api.GenerateBill(ctx, payloadFor(items, form, t.Discount))
	if err != nil {
		var e *apperror.Error
		if !errors.As(err, &e) {
			err = apperror.FromContext(op, err)
		}
		err = apperror.WithOp(err, op, "")
		c.record(ctx, len(items), t, "", err)
		c.log.Warn("bill generation failed", zap.String("user_id", c.userID), zap.Error(err))
		return nil, err
	}

	receipt := &Receipt{PDF: pdf, Totals: t}
	if c.archive != nil {
		key := fmt.Sprintf("bills/%s/%s.pdf", c.userID, uuid.New().String())
		url, aerr := c.archive.UploadFile(context.WithoutCancel(ctx), bytes.NewReader(pdf), key, pdfContentType)
		if aerr != nil {
			c.log.Warn("failed to archive bill", zap.String("user_id", c.userID), zap.String("key", key), zap.Error(aerr))
		} else {
			receipt.ArchiveURL = url
		}
	}

	c.record(ctx, len(items), t, receipt.ArchiveURL, nil)
	c.settleCart(ctx, rev)
	c.log.Info("bill generated",
		zap.String("user_id", c.userID),
		zap.Int("items", len(items)),
		zap.String("total", t.GrandTotal.StringFixed(2)))
	return receipt, nil
}

// settleCart empties the billed cart. If it changed while the bill was being
// generated, the backend's cart is reloaded instead so lines added meanwhile
// are not lost.
func (c *Checkout) settleCart(ctx context.Context, rev uint64) {
	if c.cart.ClearLocalIf(rev) {
		return
	}
	c.log.Info("cart changed during checkout, reloading", zap.String("user_id", c.userID))
	if err := c.cart.FetchCurrent(context.WithoutCancel(ctx)); err != nil {
		c.log.Warn("failed to reload cart after checkout", zap.String("user_id", c.userID), zap.Error(err))
	}
}

func payloadFor(items []models.LineItem, form models.BillForm, discount decimal.Decimal) models.GenerateBillPayload {
	billItems := make([]models.BillItem, 0, len(items))
	for _, item := range items {
		billItems = append(billItems, models.BillItem{
			ID:       item.ItemID,
			TabletID: item.ProductID,
			Name:     item.DisplayName(),
			Quantity: item.Quantity,
		})
	}
	return models.GenerateBillPayload{
		Items:         billItems,
		Customer:      form.Customer,
		PaymentMethod: form.PaymentMethod,
		Discount:      discount.InexactFloat64(),
		Notes:         form.Notes,
	}
}

func (c *Checkout) record(ctx context.Context, count int, t totals.Totals, archiveURL string, err error) {
	if c.journal == nil {
		return
	}
	entry := models.Activity{
		UserID:     c.userID,
		Kind:       models.ActivityCheckout,
		Succeeded:  err == nil,
		ItemCount:  count,
		Amount:     t.GrandTotal.StringFixed(2),
		ArchiveURL: archiveURL,
		CreatedAt:  time.Now().UTC(),
	}
	if err != nil {
		entry.Error = apperror.Message(err)
	}
	if jerr := c.journal.Record(context.WithoutCancel(ctx), entry); jerr != nil {
		c.log.Warn("failed to journal checkout", zap.Error(jerr))
	}
}

func fingerprint(form models.BillForm) string {
	return strings.Join([]string{
		form.Customer.Name,
		form.Customer.Phone,
		form.Customer.Email,
		string(form.PaymentMethod),
		form.Discount.String(),
		form.Notes,
	}, "\x1f")
}
