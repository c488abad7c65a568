package cartsync

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"pharmacy-cart-api-server/internal/apperror"
	"pharmacy-cart-api-server/internal/models"

	"github.com/shopspring/decimal"
)

type tablet struct {
	name  string
	price decimal.Decimal
	stock int
}

type parked struct {
	entered chan struct{}
	release chan struct{}
}

// fakeBackend is an in-memory cart server.
type fakeBackend struct {
	mu      sync.Mutex
	tablets map[string]tablet
	items   []models.RemoteCartItem
	saved   []models.RemoteCartItem
	nextID  int
	calls   []string
	failOn  map[string]error
	holds   map[string]*parked
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		tablets: make(map[string]tablet),
		failOn:  make(map[string]error),
		holds:   make(map[string]*parked),
	}
}

func (f *fakeBackend) addTablet(id, name string, price int64, stock int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tablets[id] = tablet{name: name, price: decimal.NewFromInt(price), stock: stock}
}

// fail makes the next call of op return err.
func (f *fakeBackend) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[op] = err
}

// hold parks the next call of op until release is closed or its context ends.
func (f *fakeBackend) hold(op string) (entered <-chan struct{}, release func()) {
	h := &parked{entered: make(chan struct{}), release: make(chan struct{})}
	f.mu.Lock()
	f.holds[op] = h
	f.mu.Unlock()
	var once sync.Once
	return h.entered, func() { once.Do(func() { close(h.release) }) }
}

func (f *fakeBackend) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeBackend) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	h := f.holds[op]
	delete(f.holds, op)
	err := f.failOn[op]
	delete(f.failOn, op)
	f.mu.Unlock()

	if h != nil {
		close(h.entered)
		select {
		case <-h.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeBackend) remoteTablet(id string) *models.RemoteTablet {
	t := f.tablets[id]
	return &models.RemoteTablet{ID: id, Name: t.name, Price: t.price, Stock: t.stock}
}

func (f *fakeBackend) envelope() *models.CartEnvelope {
	rc := &models.RemoteCart{}
	for _, ri := range f.items {
		ri.Tablet = f.remoteTablet(ri.TabletID)
		rc.Items = append(rc.Items, ri)
	}
	for _, ri := range f.saved {
		ri.Tablet = f.remoteTablet(ri.TabletID)
		rc.SavedItems = append(rc.SavedItems, ri)
	}
	return &models.CartEnvelope{Cart: rc}
}

func (f *fakeBackend) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

func stockErr(op string, stock int) error {
	return &apperror.Error{
		Op:      op,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("Insufficient stock. Only %d available", stock),
		Err:     apperror.ErrStockConflict,
	}
}

func notFound(op string) error {
	return &apperror.Error{Op: op, Status: http.StatusNotFound, Message: "Item not found in cart", Err: apperror.ErrServerRejection}
}

func (f *fakeBackend) GetCart(ctx context.Context) (*models.CartEnvelope, error) {
	if err := f.enter(ctx, "GetCart"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.envelope(), nil
}

func (f *fakeBackend) AddToCart(ctx context.Context, productID string, quantity int) (*models.CartEnvelope, error) {
	if err := f.enter(ctx, "AddToCart"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stock := f.tablets[productID].stock
	for i, ri := range f.items {
		if ri.TabletID == productID {
			if ri.Quantity+quantity > stock {
				return nil, stockErr("AddToCart", stock)
			}
			f.items[i].Quantity += quantity
			return f.envelope(), nil
		}
	}
	if quantity > stock {
		return nil, stockErr("AddToCart", stock)
	}
	f.items = append(f.items, models.RemoteCartItem{
		ID:          f.newID("ci"),
		TabletID:    productID,
		Quantity:    quantity,
		PriceAtTime: f.tablets[productID].price,
	})
	return f.envelope(), nil
}

func (f *fakeBackend) UpdateCartItem(ctx context.Context, itemID string, quantity int) (*models.CartEnvelope, error) {
	if err := f.enter(ctx, "UpdateCartItem"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ri := range f.items {
		if ri.ID == itemID {
			if stock := f.tablets[ri.TabletID].stock; quantity > stock {
				return nil, stockErr("UpdateCartItem", stock)
			}
			f.items[i].Quantity = quantity
			return f.envelope(), nil
		}
	}
	return nil, notFound("UpdateCartItem")
}

func (f *fakeBackend) RemoveCartItem(ctx context.Context, itemID string) (*models.CartEnvelope, error) {
	if err := f.enter(ctx, "RemoveCartItem"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ri := range f.items {
		if ri.ID == itemID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return f.envelope(), nil
		}
	}
	return nil, notFound("RemoveCartItem")
}

func (f *fakeBackend) ClearCart(ctx context.Context) (*models.CartEnvelope, error) {
	if err := f.enter(ctx, "ClearCart"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
	return f.envelope(), nil
}

func (f *fakeBackend) SyncCart(ctx context.Context) (*models.CartEnvelope, error) {
	if err := f.enter(ctx, "SyncCart"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	env := f.envelope()
	for _, ri := range f.items {
		if !ri.PriceAtTime.Equal(f.tablets[ri.TabletID].price) {
			env.HasChanges = true
			env.Message = "Cart updated with latest prices"
		}
	}
	return env, nil
}

func (f *fakeBackend) SaveForLater(ctx context.Context, itemID string) (*models.CartEnvelope, error) {
	if err := f.enter(ctx, "SaveForLater"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ri := range f.items {
		if ri.ID == itemID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			ri.ID = f.newID("si")
			f.saved = append(f.saved, ri)
			return f.envelope(), nil
		}
	}
	return nil, notFound("SaveForLater")
}

func (f *fakeBackend) MoveToCart(ctx context.Context, savedItemID string) (*models.CartEnvelope, error) {
	if err := f.enter(ctx, "MoveToCart"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ri := range f.saved {
		if ri.ID == savedItemID {
			f.saved = append(f.saved[:i], f.saved[i+1:]...)
			ri.ID = f.newID("ci")
			f.items = append(f.items, ri)
			return f.envelope(), nil
		}
	}
	return nil, notFound("MoveToCart")
}

func (f *fakeBackend) RemoveSavedItem(ctx context.Context, savedItemID string) (*models.CartEnvelope, error) {
	if err := f.enter(ctx, "RemoveSavedItem"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ri := range f.saved {
		if ri.ID == savedItemID {
			f.saved = append(f.saved[:i], f.saved[i+1:]...)
			return f.envelope(), nil
		}
	}
	return nil, notFound("RemoveSavedItem")
}
