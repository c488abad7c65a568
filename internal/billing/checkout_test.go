package billing

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"pharmacy-cart-api-server/internal/apperror"
	"pharmacy-cart-api-server/internal/models"
	"pharmacy-cart-api-server/internal/totals"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCart struct {
	mu      sync.Mutex
	items   []models.LineItem
	rev     uint64
	cleared bool
	// remote is what FetchCurrent loads.
	remote  []models.LineItem
	fetches int
}

func (f *fakeCart) Items() []models.LineItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.LineItem(nil), f.items...)
}

func (f *fakeCart) Revision() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rev
}

func (f *fakeCart) ClearLocalIf(rev uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rev != f.rev {
		return false
	}
	f.items = nil
	f.cleared = true
	f.rev++
	return true
}

func (f *fakeCart) FetchCurrent(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	f.items = append([]models.LineItem(nil), f.remote...)
	f.rev++
	return nil
}

func (f *fakeCart) add(item models.LineItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
	f.rev++
}

type fakeBills struct {
	mu      sync.Mutex
	calls   int
	payload models.GenerateBillPayload
	err     error
	entered chan struct{}
	release chan struct{}
}

func (f *fakeBills) GenerateBill(ctx context.Context, payload models.GenerateBillPayload) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.payload = payload
	err := f.err
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	if err != nil {
		return nil, err
	}
	return []byte("%PDF-1.4 bill"), nil
}

type fakeArchive struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (f *fakeArchive) UploadFile(ctx context.Context, body io.Reader, objectKey, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.key = objectKey
	f.contentType = contentType
	f.body, _ = io.ReadAll(body)
	return "https://cdn.example.com/" + objectKey, nil
}

type memJournal struct {
	entries []models.Activity
}

func (j *memJournal) Record(ctx context.Context, a models.Activity) error {
	j.entries = append(j.entries, a)
	return nil
}

func line(productID, itemID string, qty int, price int64, stock int) models.LineItem {
	return models.LineItem{
		ProductID:   productID,
		ItemID:      itemID,
		Name:        productID,
		Quantity:    qty,
		PriceAtTime: decimal.NewFromInt(price),
		Product:     &models.ProductSnapshot{Name: productID, Price: decimal.NewFromInt(price), Stock: stock, IsActive: true},
	}
}

func cashForm() models.BillForm {
	return models.BillForm{
		Customer:      models.Customer{Name: "Walk-in", Phone: "9876543210"},
		PaymentMethod: models.PaymentCash,
		Discount:      decimal.NewFromInt(5),
	}
}

func TestValidateForm(t *testing.T) {
	tests := []struct {
		name string
		form models.BillForm
		ok   bool
	}{
		{"cash", cashForm(), true},
		{"upi without customer", models.BillForm{PaymentMethod: models.PaymentUPI}, true},
		{"missing payment method", models.BillForm{}, false},
		{"unknown payment method", models.BillForm{PaymentMethod: "Cheque"}, false},
		{"bad email", models.BillForm{PaymentMethod: models.PaymentCard, Customer: models.Customer{Email: "not-an-email"}}, false},
		{"negative discount", models.BillForm{PaymentMethod: models.PaymentCash, Discount: decimal.NewFromInt(-1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateForm(tt.form)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, apperror.ErrInvalidBill)
			assert.Equal(t, apperror.KindValidation, apperror.Kind(err))
		})
	}
}

func TestCheckout_Success(t *testing.T) {
	cart := &fakeCart{items: []models.LineItem{
		line("P1", "I1", 2, 50, 10),
		line("P2", "I2", 1, 20, 5),
	}}
	saved := line("P3", "I3", 4, 10, 10)
	saved.SavedForLater = true
	cart.items = append(cart.items, saved)

	api := &fakeBills{}
	archive := &fakeArchive{}
	journal := &memJournal{}
	c := NewCheckout("u1", cart, api, totals.NewCalculator(0.05), archive, journal, nil)

	receipt, err := c.Run(context.Background(), cashForm())
	require.NoError(t, err)

	assert.Equal(t, "%PDF-1.4 bill", string(receipt.PDF))
	assert.Equal(t, "120", receipt.Totals.Subtotal.String())
	assert.Equal(t, "6", receipt.Totals.Tax.String())
	assert.Equal(t, "121", receipt.Totals.GrandTotal.String())

	require.Len(t, api.payload.Items, 2)
	assert.Equal(t, "I1", api.payload.Items[0].ID)
	assert.Equal(t, "P1", api.payload.Items[0].TabletID)
	assert.Equal(t, 2, api.payload.Items[0].Quantity)
	assert.Equal(t, 5.0, api.payload.Discount)
	assert.Equal(t, models.PaymentCash, api.payload.PaymentMethod)

	assert.Regexp(t, `^bills/u1/[0-9a-f-]{36}\.pdf$`, archive.key)
	assert.Equal(t, "application/pdf", archive.contentType)
	assert.Equal(t, receipt.PDF, archive.body)
	assert.Equal(t, "https://cdn.example.com/"+archive.key, receipt.ArchiveURL)

	require.Len(t, journal.entries, 1)
	assert.True(t, journal.entries[0].Succeeded)
	assert.Equal(t, "121.00", journal.entries[0].Amount)
	assert.Equal(t, models.ActivityCheckout, journal.entries[0].Kind)
	assert.True(t, cart.cleared)
}

func TestCheckout_RejectsBeforeNetwork(t *testing.T) {
	outOfStock := line("P1", "I1", 1, 50, 0)
	pending := line("P2", "", 1, 20, 5)

	tests := []struct {
		name  string
		items []models.LineItem
		form  models.BillForm
		want  error
	}{
		{"empty cart", nil, cashForm(), apperror.ErrEmptyCart},
		{"blocking warning", []models.LineItem{outOfStock}, cashForm(), apperror.ErrBlocking},
		{"line still syncing", []models.LineItem{pending}, cashForm(), apperror.ErrPendingSync},
		{"bad form", []models.LineItem{line("P1", "I1", 1, 50, 10)}, models.BillForm{}, apperror.ErrInvalidBill},
		{"zero total", []models.LineItem{line("P1", "I1", 1, 0, 10)}, models.BillForm{PaymentMethod: models.PaymentCash}, apperror.ErrInvalidBill},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cart := &fakeCart{items: tt.items}
			api := &fakeBills{}
			c := NewCheckout("u1", cart, api, totals.NewCalculator(0.05), nil, nil, nil)

			_, err := c.Run(context.Background(), tt.form)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, api.calls)
			assert.False(t, cart.cleared)
		})
	}
}

func TestCheckout_BackendFailureKeepsCart(t *testing.T) {
	cart := &fakeCart{items: []models.LineItem{line("P1", "I1", 2, 50, 10)}}
	api := &fakeBills{err: &apperror.Error{Status: 409, Message: "Insufficient stock for Paracetamol", Err: apperror.ErrStockConflict}}
	journal := &memJournal{}
	archive := &fakeArchive{}
	c := NewCheckout("u1", cart, api, totals.NewCalculator(0.05), archive, journal, nil)

	_, err := c.Run(context.Background(), cashForm())
	assert.ErrorIs(t, err, apperror.ErrStockConflict)
	assert.Equal(t, "Insufficient stock for Paracetamol", apperror.Message(err))
	assert.False(t, cart.cleared)
	assert.Len(t, cart.Items(), 1)
	assert.Empty(t, archive.key)

	require.Len(t, journal.entries, 1)
	assert.False(t, journal.entries[0].Succeeded)
}

func TestCheckout_ArchiveFailureStillSucceeds(t *testing.T) {
	cart := &fakeCart{items: []models.LineItem{line("P1", "I1", 2, 50, 10)}}
	c := NewCheckout("u1", cart, &fakeBills{}, totals.NewCalculator(0.05), &fakeArchive{err: errors.New("bucket unavailable")}, nil, nil)

	receipt, err := c.Run(context.Background(), cashForm())
	require.NoError(t, err)
	assert.Empty(t, receipt.ArchiveURL)
	assert.True(t, cart.cleared)
}

func TestCheckout_DifferentCheckoutWhileInFlightIsBusy(t *testing.T) {
	cart := &fakeCart{items: []models.LineItem{line("P1", "I1", 2, 50, 10)}}
	api := &fakeBills{entered: make(chan struct{}), release: make(chan struct{})}
	c := NewCheckout("u1", cart, api, totals.NewCalculator(0.05), nil, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background(), cashForm())
		done <- err
	}()
	select {
	case <-api.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("checkout never reached the backend")
	}

	card := cashForm()
	card.PaymentMethod = models.PaymentCard
	_, err := c.Run(context.Background(), card)
	assert.ErrorIs(t, err, apperror.ErrBusy)

	close(api.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, api.calls)
}

func TestCheckout_KeepsLinesAddedDuringBilling(t *testing.T) {
	cart := &fakeCart{items: []models.LineItem{line("P1", "I1", 2, 50, 10)}}
	api := &fakeBills{entered: make(chan struct{}), release: make(chan struct{})}
	c := NewCheckout("u1", cart, api, totals.NewCalculator(0.05), nil, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background(), cashForm())
		done <- err
	}()
	<-api.entered

	late := line("P2", "I2", 1, 20, 5)
	cart.add(late)
	cart.remote = []models.LineItem{late}

	close(api.release)
	require.NoError(t, <-done)
	assert.False(t, cart.cleared)
	assert.Equal(t, 1, cart.fetches)
	items := cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "P2", items[0].ProductID)
}
