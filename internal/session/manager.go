// Package session keeps one live cart adapter and request batch per signed-in
// worker and evicts the ones that go idle.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"

	"pharmacy-cart-api-server/config"
	"pharmacy-cart-api-server/internal/apperror"
	"pharmacy-cart-api-server/internal/backend"
	"pharmacy-cart-api-server/internal/billing"
	"pharmacy-cart-api-server/internal/cartsync"
	"pharmacy-cart-api-server/internal/stockrequest"
	"pharmacy-cart-api-server/internal/totals"

	"go.uber.org/zap"
)

// Events pushed to the worker's socket.
const (
	EventCartUpdated  = "cart.updated"
	EventBatchUpdated = "batch.updated"
)

// maxTokens bounds how many distinct tokens a session remembers.
const maxTokens = 8

// Backend is everything a session forwards to the pharmacy backend.
type Backend interface {
	cartsync.CartBackend
	stockrequest.RequestBackend
	billing.BillBackend
}

// Notifier pushes an event to a worker's open socket, if any.
type Notifier interface {
	Notify(userID, event string, payload interface{}) error
}

type Options struct {
	Cart    config.CartConfig
	Timeout time.Duration
	IdleTTL time.Duration
	// TrustClaims skips the backend check of new tokens. Set it only when
	// token signatures are verified locally.
	TrustClaims bool

	Archive  billing.Archiver
	Journal  stockrequest.Recorder
	Notifier Notifier
	Logger   *zap.Logger
	Now      func() time.Time
}

// Session is one worker's state.
type Session struct {
	UserID   string
	Cart     *cartsync.Adapter
	Batch    *stockrequest.Batch
	Requests *stockrequest.Submitter
	Checkout *billing.Checkout

	calc     totals.Calculator
	lastSeen time.Time
	tokens   map[string]struct{}
}

// View returns the cart as the UI renders it.
func (s *Session) View() View {
	return buildView(s)
}

func (s *Session) BatchView() BatchView {
	return buildBatchView(s)
}

type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	api  Backend
	opts Options
	log  *zap.Logger
}

func NewManager(api Backend, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		sessions: make(map[string]*Session),
		api:      api,
		opts:     opts,
		log:      opts.Logger.Named("session"),
	}
}

// Get returns the worker's session, creating it on first use. It does not
// look at the caller's token; request handlers go through Open.
func (m *Manager) Get(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(userID, m.opts.Now())
}

func (m *Manager) getLocked(userID string, now time.Time) *Session {
	if s, ok := m.sessions[userID]; ok {
		s.lastSeen = now
		return s
	}
	s := m.newSession(userID)
	s.lastSeen = now
	m.sessions[userID] = s
	m.log.Info("session opened", zap.String("user_id", userID))
	return s
}

// Open returns the session of userID for a request carrying token. A token
// this session has already accepted is trusted. A new one is first shown to
// the backend, which verifies it, so a token that merely claims userID never
// reaches that worker's cart or batch.
func (m *Manager) Open(ctx context.Context, userID, token string) (*Session, error) {
	const op = "session.Open"
	if token == "" {
		return nil, &apperror.Error{Op: op, Status: http.StatusUnauthorized, Message: "Token is required", Err: apperror.ErrServerRejection}
	}
	key := tokenKey(token)
	now := m.opts.Now()

	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		if _, known := s.tokens[key]; known || m.opts.TrustClaims {
			s.lastSeen = now
			m.mu.Unlock()
			return s, nil
		}
	}
	m.mu.Unlock()

	if !m.opts.TrustClaims {
		if err := m.confirm(ctx, token); err != nil {
			m.log.Warn("token refused by backend", zap.String("user_id", userID), zap.Error(err))
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.getLocked(userID, now)
	if len(s.tokens) >= maxTokens {
		s.tokens = make(map[string]struct{})
	}
	s.tokens[key] = struct{}{}
	return s, nil
}

// confirm asks the backend whether it accepts token.
func (m *Manager) confirm(ctx context.Context, token string) error {
	const op = "session.Open"
	ctx = backend.ContextWithToken(ctx, token)
	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}
	if _, err := m.api.GetCart(ctx); err != nil {
		var e *apperror.Error
		if !errors.As(err, &e) {
			err = apperror.FromContext(op, err)
		}
		return apperror.WithOp(err, op, "")
	}
	return nil
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the session without creating or touching it.
func (m *Manager) Lookup(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Drop discards the worker's local state. The backend cart is untouched.
func (m *Manager) Drop(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[userID]; !ok {
		return false
	}
	delete(m.sessions, userID)
	m.log.Info("session closed", zap.String("user_id", userID))
	return true
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than the TTL. Sessions with a batch
// submission in flight are kept.
func (m *Manager) Sweep(now time.Time) int {
	if m.opts.IdleTTL <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, s := range m.sessions {
		if now.Sub(s.lastSeen) <= m.opts.IdleTTL || s.Batch.Busy() {
			continue
		}
		delete(m.sessions, id)
		evicted++
		m.log.Debug("session evicted", zap.String("user_id", id), zap.Time("last_seen", s.lastSeen))
	}
	return evicted
}

// Run sweeps on every tick until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(m.opts.Now()); n > 0 {
				m.log.Info("evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}

func (m *Manager) newSession(userID string) *Session {
	s := &Session{
		UserID: userID,
		Batch:  stockrequest.NewBatch(),
		calc:   totals.NewCalculator(m.opts.Cart.TaxRate),
		tokens: make(map[string]struct{}),
	}
	s.Cart = cartsync.NewAdapter(m.api, cartsync.Options{
		MaxQuantity:  m.opts.Cart.MaxQuantity,
		Timeout:      m.opts.Timeout,
		SyncInterval: m.opts.Cart.SyncInterval,
		Logger:       m.opts.Logger.With(zap.String("user_id", userID)),
		OnChange:     func() { m.push(userID, EventCartUpdated, s.View()) },
		Now:          m.opts.Now,
	})
	s.Requests = stockrequest.NewSubmitter(userID, s.Batch, m.api, m.opts.Journal, m.opts.Logger)
	s.Checkout = billing.NewCheckout(userID, s.Cart, m.api, s.calc, m.opts.Archive, m.opts.Journal, m.opts.Logger)
	return s
}

// PushBatch tells the worker's UI the request batch changed.
func (m *Manager) PushBatch(s *Session) {
	m.push(s.UserID, EventBatchUpdated, s.BatchView())
}

func (m *Manager) push(userID, event string, payload interface{}) {
	if m.opts.Notifier == nil {
		return
	}
	if err := m.opts.Notifier.Notify(userID, event, payload); err != nil {
		m.log.Debug("push failed", zap.String("user_id", userID), zap.String("event", event), zap.Error(err))
	}
}
