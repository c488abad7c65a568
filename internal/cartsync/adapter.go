// Package cartsync keeps a worker's local cart in step with the backend.
//
// Mutations are applied to the local store first and then sent to the
// backend. A successful response is merged back; a failed one rolls the
// touched product back to the last version the backend confirmed. Each
// mutation is tagged with a per-product sequence number and the store epoch,
// and a response that is no longer the latest for its product (or that
// predates a wholesale fetch, sync or clear) changes nothing locally. Its
// error, if any, still reaches the caller.
package cartsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"pharmacy-cart-api-server/internal/apperror"
	"pharmacy-cart-api-server/internal/cart"
	"pharmacy-cart-api-server/internal/models"

	"go.uber.org/zap"
)

const DefaultSyncInterval = 5 * time.Minute

// CartBackend is the subset of the backend client the adapter needs.
type CartBackend interface {
	GetCart(ctx context.Context) (*models.CartEnvelope, error)
	AddToCart(ctx context.Context, productID string, quantity int) (*models.CartEnvelope, error)
	UpdateCartItem(ctx context.Context, itemID string, quantity int) (*models.CartEnvelope, error)
	RemoveCartItem(ctx context.Context, itemID string) (*models.CartEnvelope, error)
	ClearCart(ctx context.Context) (*models.CartEnvelope, error)
	SyncCart(ctx context.Context) (*models.CartEnvelope, error)
	SaveForLater(ctx context.Context, itemID string) (*models.CartEnvelope, error)
	MoveToCart(ctx context.Context, savedItemID string) (*models.CartEnvelope, error)
	RemoveSavedItem(ctx context.Context, savedItemID string) (*models.CartEnvelope, error)
}

type Options struct {
	MaxQuantity  int
	Timeout      time.Duration
	SyncInterval time.Duration
	Logger       *zap.Logger
	// OnChange runs after every local state change, outside the adapter lock.
	OnChange func()
	Now      func() time.Time
}

type Adapter struct {
	mu sync.Mutex

	api          CartBackend
	store        *cart.Store
	timeout      time.Duration
	syncInterval time.Duration
	log          *zap.Logger
	onChange     func()
	now          func() time.Time

	seq        map[string]uint64
	pending    map[string]int
	confirmed  map[string]baseline
	epoch      uint64
	revision   uint64
	lastSynced time.Time
}

// State is a consistent read of the adapter.
type State struct {
	Items        []models.LineItem
	SavedItems   []models.LineItem
	LastSyncedAt time.Time
	NeedsSync    bool
}

// SyncResult reports what the backend changed during Sync.
type SyncResult struct {
	HasChanges bool   `json:"hasChanges"`
	Message    string `json:"message,omitempty"`
}

// baseline is the backend's last known version of a product with mutations
// in flight.
type baseline struct {
	item    models.LineItem
	existed bool
	pos     int
}

// ticket identifies one in-flight mutation of one product.
type ticket struct {
	productID string
	seq       uint64
	epoch     uint64
	before    models.LineItem
	existed   bool
	pos       int
}

func NewAdapter(api CartBackend, opts Options) *Adapter {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}
	return &Adapter{
		api:          api,
		store:        cart.NewStore(opts.MaxQuantity),
		timeout:      opts.Timeout,
		syncInterval: opts.SyncInterval,
		log:          opts.Logger.Named("cartsync"),
		onChange:     opts.OnChange,
		now:          opts.Now,
		seq:          make(map[string]uint64),
		pending:      make(map[string]int),
		confirmed:    make(map[string]baseline),
	}
}

// FetchCurrent replaces the local cart with the backend's.
func (a *Adapter) FetchCurrent(ctx context.Context) error {
	_, err := a.wholesale(ctx, "cartsync.FetchCurrent", a.api.GetCart)
	return err
}

// Sync asks the backend to refresh prices and availability, then replaces
// the local cart with the result.
func (a *Adapter) Sync(ctx context.Context) (SyncResult, error) {
	env, err := a.wholesale(ctx, "cartsync.Sync", a.api.SyncCart)
	if err != nil || env == nil {
		return SyncResult{}, err
	}
	return SyncResult{HasChanges: env.HasChanges, Message: env.Message}, nil
}

func (a *Adapter) wholesale(ctx context.Context, op string, call func(context.Context) (*models.CartEnvelope, error)) (*models.CartEnvelope, error) {
	a.mu.Lock()
	epoch := a.bumpEpochLocked()
	a.mu.Unlock()

	ctx, cancel := a.callContext(ctx)
	defer cancel()
	env, err := call(ctx)

	a.mu.Lock()
	if err != nil {
		a.mu.Unlock()
		return nil, normalize(op, "", err)
	}
	if a.epoch != epoch {
		a.mu.Unlock()
		a.log.Debug("discarding superseded response", zap.String("op", op))
		return nil, nil
	}
	if env == nil {
		env = &models.CartEnvelope{}
	}
	a.replaceLocked(env.Cart)
	a.mu.Unlock()

	a.changed()
	return env, nil
}

// Add puts quantity more of productID in the cart.
func (a *Adapter) Add(ctx context.Context, productID string, quantity int, actx cart.AddContext) (models.LineItem, error) {
	const op = "cartsync.Add"

	a.mu.Lock()
	t := a.capture(productID)
	item, err := a.store.Add(productID, quantity, actx)
	if err != nil {
		a.mu.Unlock()
		return models.LineItem{}, err
	}
	delta := item.Quantity - t.before.Quantity
	if delta <= 0 {
		// Already at the limit; only the product data changed locally.
		a.mu.Unlock()
		a.changed()
		return item, nil
	}
	a.begin(&t)
	a.mu.Unlock()
	a.changed()

	ctx, cancel := a.callContext(ctx)
	defer cancel()
	env, err := a.api.AddToCart(ctx, productID, delta)
	return a.settle(op, t, env, err)
}

// SetQuantity replaces the quantity of a line the backend already knows.
func (a *Adapter) SetQuantity(ctx context.Context, productID string, quantity int) (models.LineItem, error) {
	const op = "cartsync.SetQuantity"

	a.mu.Lock()
	cur, err := a.confirmedLocked(op, productID)
	if err != nil {
		a.mu.Unlock()
		return models.LineItem{}, err
	}
	if cur.SavedForLater {
		a.mu.Unlock()
		return models.LineItem{}, apperror.Validation(op, productID, apperror.ErrItemSaved, "%s is saved for later; move it back to the cart first", cur.DisplayName())
	}
	t := a.capture(productID)
	if _, err := a.store.SetQuantity(productID, quantity); err != nil {
		a.mu.Unlock()
		return models.LineItem{}, err
	}
	a.begin(&t)
	a.mu.Unlock()
	a.changed()

	ctx, cancel := a.callContext(ctx)
	defer cancel()
	env, err := a.api.UpdateCartItem(ctx, cur.ItemID, quantity)
	return a.settle(op, t, env, err)
}

// Remove deletes productID from the cart, active or saved. Removing a product
// that is not in the cart does nothing and makes no call.
func (a *Adapter) Remove(ctx context.Context, productID string) error {
	const op = "cartsync.Remove"

	a.mu.Lock()
	cur, ok := a.store.Get(productID)
	if !ok {
		a.mu.Unlock()
		return nil
	}
	if cur.ItemID == "" {
		a.mu.Unlock()
		return pendingSync(op, cur)
	}
	t := a.capture(productID)
	a.store.Remove(productID)
	a.begin(&t)
	a.mu.Unlock()
	a.changed()

	ctx, cancel := a.callContext(ctx)
	defer cancel()
	var env *models.CartEnvelope
	var err error
	if cur.SavedForLater {
		env, err = a.api.RemoveSavedItem(ctx, cur.ItemID)
	} else {
		env, err = a.api.RemoveCartItem(ctx, cur.ItemID)
	}
	_, err = a.settle(op, t, env, err)
	return err
}

// ToggleSaved moves a line between the cart and the saved-for-later list.
func (a *Adapter) ToggleSaved(ctx context.Context, productID string) (models.LineItem, error) {
	const op = "cartsync.ToggleSaved"

	a.mu.Lock()
	cur, err := a.confirmedLocked(op, productID)
	if err != nil {
		a.mu.Unlock()
		return models.LineItem{}, err
	}
	t := a.capture(productID)
	if _, err := a.store.ToggleSaved(productID); err != nil {
		a.mu.Unlock()
		return models.LineItem{}, err
	}
	a.begin(&t)
	a.mu.Unlock()
	a.changed()

	ctx, cancel := a.callContext(ctx)
	defer cancel()
	var env *models.CartEnvelope
	if cur.SavedForLater {
		env, err = a.api.MoveToCart(ctx, cur.ItemID)
	} else {
		env, err = a.api.SaveForLater(ctx, cur.ItemID)
	}
	return a.settle(op, t, env, err)
}

// Clear empties the cart locally and on the backend. On failure the previous
// contents come back.
func (a *Adapter) Clear(ctx context.Context) error {
	const op = "cartsync.Clear"

	a.mu.Lock()
	snap := a.store.Snapshot()
	a.store.Clear()
	epoch := a.bumpEpochLocked()
	a.mu.Unlock()
	a.changed()

	ctx, cancel := a.callContext(ctx)
	defer cancel()
	env, err := a.api.ClearCart(ctx)

	a.mu.Lock()
	if a.epoch != epoch {
		a.mu.Unlock()
		a.log.Debug("discarding superseded response", zap.String("op", op))
		if err != nil {
			return normalize(op, "", err)
		}
		return nil
	}
	if err != nil {
		a.store.Restore(snap)
		a.mu.Unlock()
		a.changed()
		return normalize(op, "", err)
	}
	if env != nil {
		a.replaceLocked(env.Cart)
	}
	a.mu.Unlock()
	a.changed()
	return nil
}

// ClearLocal empties the local cart without calling the backend, e.g. after
// checkout when the backend has already emptied it.
func (a *Adapter) ClearLocal() {
	a.mu.Lock()
	a.store.Clear()
	a.bumpEpochLocked()
	a.mu.Unlock()
	a.changed()
}

// Revision changes whenever a mutation starts or the cart is replaced.
func (a *Adapter) Revision() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.revision
}

// ClearLocalIf is ClearLocal, but only when the cart is still at rev.
func (a *Adapter) ClearLocalIf(rev uint64) bool {
	a.mu.Lock()
	if a.revision != rev {
		a.mu.Unlock()
		return false
	}
	a.store.Clear()
	a.bumpEpochLocked()
	a.mu.Unlock()
	a.changed()
	return true
}

func (a *Adapter) Items() []models.LineItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.Items()
}

func (a *Adapter) SavedItems() []models.LineItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.SavedItems()
}

func (a *Adapter) Get(productID string) (models.LineItem, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.Get(productID)
}

// IsInCart reports whether productID is an active line.
func (a *Adapter) IsInCart(productID string) bool {
	item, ok := a.Get(productID)
	return ok && !item.SavedForLater
}

// ItemQuantity is the active quantity of productID, 0 when absent or saved.
func (a *Adapter) ItemQuantity(productID string) int {
	item, ok := a.Get(productID)
	if !ok || item.SavedForLater {
		return 0
	}
	return item.Quantity
}

// NeedsSync reports whether the cart holds items and has not been reconciled
// with the backend within the sync interval.
func (a *Adapter) NeedsSync(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.needsSyncLocked(now)
}

func (a *Adapter) needsSyncLocked(now time.Time) bool {
	if len(a.store.Items()) == 0 {
		return false
	}
	return a.lastSynced.IsZero() || now.Sub(a.lastSynced) > a.syncInterval
}

func (a *Adapter) LastSyncedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSynced
}

func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return State{
		Items:        a.store.Items(),
		SavedItems:   a.store.SavedItems(),
		LastSyncedAt: a.lastSynced,
		NeedsSync:    a.needsSyncLocked(a.now()),
	}
}

func (a *Adapter) MaxQuantity() int {
	return a.store.MaxQuantity()
}

// confirmedLocked returns the line for productID, refusing lines the backend
// has not assigned an id to yet.
func (a *Adapter) confirmedLocked(op, productID string) (models.LineItem, error) {
	cur, ok := a.store.Get(productID)
	if !ok {
		return models.LineItem{}, apperror.Validation(op, productID, apperror.ErrItemNotFound, "item is not in the cart")
	}
	if cur.ItemID == "" {
		return models.LineItem{}, pendingSync(op, cur)
	}
	return cur, nil
}

func pendingSync(op string, item models.LineItem) error {
	return apperror.Validation(op, item.ProductID, apperror.ErrPendingSync, "%s is still being added; try again in a moment", item.DisplayName())
}

// capture records the pre-mutation state of productID. Callers hold a.mu.
func (a *Adapter) capture(productID string) ticket {
	before, existed := a.store.Get(productID)
	return ticket{
		productID: productID,
		before:    before,
		existed:   existed,
		pos:       a.store.Position(productID),
	}
}

// begin tags t as the latest mutation of its product. The first mutation of a
// quiet product records the rollback baseline. Callers hold a.mu.
func (a *Adapter) begin(t *ticket) {
	if a.pending[t.productID] == 0 {
		a.confirmed[t.productID] = baseline{item: t.before, existed: t.existed, pos: t.pos}
	}
	a.revision++
	a.seq[t.productID]++
	a.pending[t.productID]++
	t.seq = a.seq[t.productID]
	t.epoch = a.epoch
}

// bumpEpochLocked invalidates every response still in flight.
func (a *Adapter) bumpEpochLocked() uint64 {
	a.epoch++
	a.revision++
	a.pending = make(map[string]int)
	a.confirmed = make(map[string]baseline)
	return a.epoch
}

func (a *Adapter) isCurrent(t ticket) bool {
	return a.epoch == t.epoch && a.seq[t.productID] == t.seq
}

// settle applies the outcome of the call started under t. Only the latest
// mutation of a product touches local state; an older one just reports.
func (a *Adapter) settle(op string, t ticket, env *models.CartEnvelope, callErr error) (models.LineItem, error) {
	a.mu.Lock()
	sameEpoch := t.epoch == a.epoch
	current := a.isCurrent(t)
	if sameEpoch && callErr == nil && env != nil && env.Cart != nil {
		a.confirmLocked(env.Cart)
	}
	base, hasBase := a.confirmed[t.productID]
	if sameEpoch {
		if a.pending[t.productID]--; a.pending[t.productID] <= 0 {
			delete(a.pending, t.productID)
			delete(a.confirmed, t.productID)
		}
	}

	if !current {
		item, _ := a.store.Get(t.productID)
		a.mu.Unlock()
		a.log.Debug("superseded response",
			zap.String("op", op),
			zap.String("product_id", t.productID),
			zap.Uint64("seq", t.seq),
			zap.Bool("failed", callErr != nil))
		if callErr != nil {
			return models.LineItem{}, normalize(op, t.productID, callErr)
		}
		return item, nil
	}

	if callErr != nil {
		if !hasBase {
			base = baseline{item: t.before, existed: t.existed, pos: t.pos}
		}
		a.rollbackLocked(t.productID, base)
		a.mu.Unlock()
		err := normalize(op, t.productID, callErr)
		a.log.Info("cart mutation rolled back",
			zap.String("op", op),
			zap.String("product_id", t.productID),
			zap.String("kind", apperror.Kind(err)),
			zap.Error(err))
		a.changed()
		return models.LineItem{}, err
	}

	if env != nil && env.Cart != nil {
		a.mergeLocked(t.productID, env.Cart)
	}
	item, _ := a.store.Get(t.productID)
	a.mu.Unlock()
	a.changed()
	return item, nil
}

func (a *Adapter) rollbackLocked(productID string, base baseline) {
	if !base.existed {
		a.store.Remove(productID)
		return
	}
	a.store.PutAt(base.item, base.pos)
}

// confirmLocked moves the rollback baseline of every product still in flight
// to the backend's version in remote.
func (a *Adapter) confirmLocked(remote *models.RemoteCart) {
	for productID, base := range a.confirmed {
		if line, ok := a.remoteLineLocked(productID, remote); ok {
			base.item, base.existed = line, true
		} else {
			base.item, base.existed = models.LineItem{}, false
		}
		a.confirmed[productID] = base
	}
}

// remoteLineLocked is the backend's line for productID, filling in what the
// backend leaves out from the local line.
func (a *Adapter) remoteLineLocked(productID string, remote *models.RemoteCart) (models.LineItem, bool) {
	ri, saved, ok := remote.Find(productID)
	if !ok {
		return models.LineItem{}, false
	}
	next := ri.ToLineItem(saved)
	if cur, exists := a.store.Get(productID); exists {
		if !cur.PriceAtTime.IsZero() {
			next.PriceAtTime = cur.PriceAtTime
		}
		if next.Name == "" {
			next.Name = cur.Name
		}
		if next.Product == nil {
			next.Product = cur.Product
		}
	}
	return next, true
}

// mergeLocked takes the backend's version of productID. Other lines only pick
// up fresh product data and line ids; their quantities stay local.
func (a *Adapter) mergeLocked(productID string, remote *models.RemoteCart) {
	if next, ok := a.remoteLineLocked(productID, remote); ok {
		a.store.Put(next)
	} else {
		a.store.Remove(productID)
	}

	for _, item := range a.store.All() {
		if item.ProductID == productID {
			continue
		}
		ri, saved, ok := remote.Find(item.ProductID)
		if !ok || saved != item.SavedForLater {
			continue
		}
		fresh := ri.ToLineItem(saved)
		if fresh.Product != nil {
			item.Product = fresh.Product
		}
		if item.ItemID == "" || a.pending[item.ProductID] == 0 {
			item.ItemID = fresh.ItemID
		}
		a.store.Put(item)
	}
	a.lastSynced = a.now()
}

// replaceLocked swaps in the backend's cart, keeping the local version of any
// product with a mutation still in flight.
func (a *Adapter) replaceLocked(remote *models.RemoteCart) {
	a.confirmLocked(remote)
	next := remote.LineItems()
	if len(a.pending) > 0 {
		kept := make([]models.LineItem, 0, len(next))
		seen := make(map[string]bool, len(next))
		for _, item := range next {
			seen[item.ProductID] = true
			if a.pending[item.ProductID] > 0 {
				local, ok := a.store.Get(item.ProductID)
				if !ok {
					continue
				}
				item = local
			}
			kept = append(kept, item)
		}
		for _, item := range a.store.All() {
			if a.pending[item.ProductID] > 0 && !seen[item.ProductID] {
				kept = append(kept, item)
			}
		}
		next = kept
	}
	a.store.Replace(next)
	a.lastSynced = a.now()
}

func (a *Adapter) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

func (a *Adapter) changed() {
	if a.onChange != nil {
		a.onChange()
	}
}

// normalize maps whatever the backend returned onto the error taxonomy.
func normalize(op, productID string, err error) error {
	var e *apperror.Error
	if !errors.As(err, &e) {
		err = apperror.FromContext(op, err)
	}
	return apperror.WithOp(err, op, productID)
}
