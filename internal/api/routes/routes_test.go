package routes

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pharmacy-cart-api-server/config"
	"pharmacy-cart-api-server/internal/auth"
	"pharmacy-cart-api-server/internal/backend"
	"pharmacy-cart-api-server/internal/database"
	"pharmacy-cart-api-server/internal/models"
	"pharmacy-cart-api-server/internal/session"
	"pharmacy-cart-api-server/internal/socket"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pharmacyTablet struct {
	name  string
	price int
	stock int
}

type cartLine struct {
	id       string
	tabletID string
	quantity int
}

// pharmacyServer imitates the pharmacy REST backend.
type pharmacyServer struct {
	mu          sync.Mutex
	tablets     map[string]pharmacyTablet
	lines       []cartLine
	nextID      int
	bulkBodies  []models.BulkRequestPayload
	billBodies  []models.GenerateBillPayload
	transitions []string
	tokens      []string
	historyURLs []string
}

func newPharmacyServer() *pharmacyServer {
	return &pharmacyServer{tablets: map[string]pharmacyTablet{
		"P1": {name: "Paracetamol", price: 50, stock: 10},
		"P2": {name: "Cetirizine", price: 20, stock: 3},
	}}
}

func (p *pharmacyServer) cartJSON() string {
	items := make([]string, 0, len(p.lines))
	for _, l := range p.lines {
		t := p.tablets[l.tabletID]
		items = append(items, fmt.Sprintf(`{"_id":%q,"tablet":{"_id":%q,"name":%q,"price":%d,"stock":%d},"quantity":%d,"priceAtTime":%d}`,
			l.id, l.tabletID, t.name, t.price, t.stock, l.quantity, t.price))
	}
	return `{"cart":{"items":[` + strings.Join(items, ",") + `],"savedItems":[]}}`
}

func (p *pharmacyServer) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}

	mux.HandleFunc("GET /api/cart", func(w http.ResponseWriter, r *http.Request) {
		if !signedByBackend(r) {
			writeJSON(w, http.StatusUnauthorized, `{"message":"Invalid token"}`)
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		writeJSON(w, http.StatusOK, p.cartJSON())
	})
	mux.HandleFunc("POST /api/cart/add", func(w http.ResponseWriter, r *http.Request) {
		var body models.AddToCartPayload
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.mu.Lock()
		defer p.mu.Unlock()
		t := p.tablets[body.TabletID]
		for i, l := range p.lines {
			if l.tabletID == body.TabletID {
				if l.quantity+body.Quantity > t.stock {
					writeJSON(w, http.StatusBadRequest, `{"message":"Only `+fmt.Sprint(t.stock)+` units available"}`)
					return
				}
				p.lines[i].quantity += body.Quantity
				writeJSON(w, http.StatusOK, p.cartJSON())
				return
			}
		}
		if body.Quantity > t.stock {
			writeJSON(w, http.StatusBadRequest, `{"message":"Insufficient stock"}`)
			return
		}
		p.nextID++
		p.lines = append(p.lines, cartLine{id: fmt.Sprintf("ci%d", p.nextID), tabletID: body.TabletID, quantity: body.Quantity})
		writeJSON(w, http.StatusOK, p.cartJSON())
	})
	mux.HandleFunc("POST /api/bills/generate", func(w http.ResponseWriter, r *http.Request) {
		var body models.GenerateBillPayload
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.mu.Lock()
		p.billBodies = append(p.billBodies, body)
		p.lines = nil
		p.mu.Unlock()
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.4 fake")
	})
	mux.HandleFunc("POST /api/stock-requests/create-bulk", func(w http.ResponseWriter, r *http.Request) {
		var body models.BulkRequestPayload
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.mu.Lock()
		p.bulkBodies = append(p.bulkBodies, body)
		p.mu.Unlock()
		writeJSON(w, http.StatusCreated, fmt.Sprintf(`{"message":"%d requests created"}`, len(body.Requests)))
	})
	mux.HandleFunc("GET /api/stock-requests/my-requests", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"requests":[
			{"_id":"r1","requestNumber":"SR-1","status":"Approved","urgencyLevel":"Critical","createdAt":"2024-03-01T09:00:00Z","tablet":{"_id":"P1","name":"Paracetamol"}},
			{"_id":"r2","requestNumber":"SR-2","status":"Pending","urgencyLevel":"Low","createdAt":"2024-03-02T09:00:00Z","tablet":{"_id":"P2","name":"Cetirizine"}},
			{"_id":"r3","requestNumber":"SR-3","status":"Pending","urgencyLevel":"High","createdAt":"2024-03-01T09:00:00Z","tablet":{"_id":"P3","name":"Amoxicillin"}}
		]}`)
	})
	mux.HandleFunc("PUT /api/stock-requests/{id}/{action}", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.transitions = append(p.transitions, r.PathValue("id")+"/"+r.PathValue("action"))
		p.tokens = append(p.tokens, r.Header.Get("Authorization"))
		p.mu.Unlock()
		writeJSON(w, http.StatusOK, `{"message":"ok","request":{"_id":"`+r.PathValue("id")+`","status":"Approved"}}`)
	})
	mux.HandleFunc("GET /api/bills/history", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.historyURLs = append(p.historyURLs, r.URL.RawQuery)
		p.mu.Unlock()
		writeJSON(w, http.StatusOK, `{"bills":[{"_id":"b1","billNumber":"BILL-1","status":"Paid","totalAmount":"121"}],"page":1,"totalPages":1,"totalCount":1}`)
	})
	mux.HandleFunc("GET /api/bills/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "b1" {
			writeJSON(w, http.StatusNotFound, `{"message":"Bill not found"}`)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.4 b1")
	})
	mux.HandleFunc("GET /api/vendors", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"vendors":[{"_id":"v1","name":"MedSupply","phone":"123","isActive":true}]}`)
	})
	return mux
}

func signedByBackend(r *http.Request) bool {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	_, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return []byte("backend-secret"), nil
	})
	return err == nil
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{UserID: userID, Role: role}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return "Bearer " + s
}

type harness struct {
	router   *gin.Engine
	pharmacy *pharmacyServer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	pharmacy := newPharmacyServer()
	srv := httptest.NewServer(pharmacy.handler())
	t.Cleanup(srv.Close)

	cfg := config.Config{
		Server:  config.ServerConfig{Mode: gin.TestMode},
		Backend: config.BackendConfig{BaseURL: srv.URL, Timeout: 2 * time.Second},
		Cart:    config.CartConfig{TaxRate: 0.05, MaxQuantity: 100, SyncInterval: 5 * time.Minute},
		CORS:    config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
	log := zap.NewNop()
	api := backend.NewWithHTTPClient(cfg.Backend, srv.Client(), log)
	hub := socket.NewHub(log)
	sessions := session.NewManager(api, session.Options{Cart: cfg.Cart, Timeout: cfg.Backend.Timeout, Notifier: hub, Logger: log})
	router := SetupRouter(cfg, log, auth.NewParser(""), sessions, api, database.NopJournal{}, hub)
	return &harness{router: router, pharmacy: pharmacy}
}

func (h *harness) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutesRequireToken(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/api/v1/cart", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCartFlow(t *testing.T) {
	h := newHarness(t)
	worker := bearer(t, "w1", auth.RoleWorker)

	w := h.do(t, http.MethodGet, "/api/v1/cart", worker, "")
	require.Equal(t, http.StatusOK, w.Code)
	var view session.View
	decode(t, w, &view)
	assert.Equal(t, "Your cart is empty", view.Summary)

	w = h.do(t, http.MethodPost, "/api/v1/cart/items", worker, `{"productId":"P1","quantity":2,"name":"Paracetamol","price":50,"stock":10}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &view)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "ci1", view.Items[0].ItemID)
	assert.Equal(t, "2 items in cart", view.Summary)
	assert.Equal(t, "105", view.Totals.GrandTotal.String())
	assert.True(t, view.CanCheckout)

	// The backend refuses more than it has; the line goes back to 2.
	w = h.do(t, http.MethodPost, "/api/v1/cart/items", worker, `{"productId":"P2","quantity":5,"name":"Cetirizine","price":20}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	var errBody struct {
		Error     string `json:"error"`
		Kind      string `json:"kind"`
		Retryable bool   `json:"retryable"`
	}
	decode(t, w, &errBody)
	assert.Equal(t, "stock_conflict", errBody.Kind)
	assert.Equal(t, "Insufficient stock", errBody.Error)
	assert.False(t, errBody.Retryable)

	w = h.do(t, http.MethodGet, "/api/v1/cart", worker, "")
	decode(t, w, &view)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "P1", view.Items[0].ProductID)

	// Setting a quantity below one is rejected locally.
	w = h.do(t, http.MethodPut, "/api/v1/cart/items/P1", worker, `{"quantity":-3}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = h.do(t, http.MethodPost, "/api/v1/cart/checkout", worker, `{"paymentMethod":"Cash","customer":{"name":"Walk-in"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.4 fake", w.Body.String())
	require.Len(t, h.pharmacy.billBodies, 1)
	assert.Equal(t, "ci1", h.pharmacy.billBodies[0].Items[0].ID)

	w = h.do(t, http.MethodGet, "/api/v1/cart", worker, "")
	decode(t, w, &view)
	assert.Empty(t, view.Items)
}

func TestCheckoutRejectsBadForm(t *testing.T) {
	h := newHarness(t)
	worker := bearer(t, "w1", auth.RoleWorker)
	h.do(t, http.MethodPost, "/api/v1/cart/items", worker, `{"productId":"P1","quantity":1}`)

	w := h.do(t, http.MethodPost, "/api/v1/cart/checkout", worker, `{"paymentMethod":"Cheque"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, h.pharmacy.billBodies)
}

func TestRequestBatchFlow(t *testing.T) {
	h := newHarness(t)
	worker := bearer(t, "w1", auth.RoleWorker)

	w := h.do(t, http.MethodPost, "/api/v1/stock-requests/batch/items", worker, `{"tabletId":"P1","medicineName":"Paracetamol","currentStock":0}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var batch session.BatchView
	decode(t, w, &batch)
	require.Len(t, batch.Items, 1)
	assert.Equal(t, models.UrgencyCritical, batch.Items[0].UrgencyLevel)

	w = h.do(t, http.MethodPost, "/api/v1/stock-requests/batch/items", worker, `{"tabletId":"P1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = h.do(t, http.MethodPost, "/api/v1/stock-requests/batch/items", worker, `{"tabletId":"P2","medicineName":"Cetirizine","currentStock":3}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = h.do(t, http.MethodPatch, "/api/v1/stock-requests/batch/items/P2", worker, `{"quantity":40}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodPost, "/api/v1/stock-requests/batch/submit", worker, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, h.pharmacy.bulkBodies, 1)
	sent := h.pharmacy.bulkBodies[0].Requests
	require.Len(t, sent, 2)
	assert.Equal(t, 40, sent[1].RequestedQuantity)

	w = h.do(t, http.MethodGet, "/api/v1/stock-requests/batch", worker, "")
	decode(t, w, &batch)
	assert.Equal(t, 0, batch.Count)

	w = h.do(t, http.MethodPost, "/api/v1/stock-requests/batch/submit", worker, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestMyRequestsFilteredAndSorted(t *testing.T) {
	h := newHarness(t)
	worker := bearer(t, "w1", auth.RoleWorker)

	w := h.do(t, http.MethodGet, "/api/v1/stock-requests/mine", worker, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list models.StockRequestList
	decode(t, w, &list)
	ids := []string{}
	for _, r := range list.Requests {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"r3", "r2", "r1"}, ids)

	w = h.do(t, http.MethodGet, "/api/v1/stock-requests/mine?search=cetir", worker, "")
	decode(t, w, &list)
	require.Len(t, list.Requests, 1)
	assert.Equal(t, "r2", list.Requests[0].ID)
}

func TestOwnerRoutes(t *testing.T) {
	h := newHarness(t)
	worker := bearer(t, "w1", auth.RoleWorker)
	owner := bearer(t, "o1", auth.RoleOwner)

	w := h.do(t, http.MethodPut, "/api/v1/stock-requests/r2/approve", worker, `{"adminNotes":"ok"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, h.pharmacy.transitions)

	w = h.do(t, http.MethodPut, "/api/v1/stock-requests/r2/approve", owner, `{"adminNotes":"ok","approvedQuantity":20}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"r2/approve"}, h.pharmacy.transitions)
	assert.Equal(t, owner, h.pharmacy.tokens[0])

	w = h.do(t, http.MethodGet, "/api/v1/vendors", worker, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = h.do(t, http.MethodPost, "/api/v1/vendors", worker, `{"name":"X","phone":"1"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestActivityAndSession(t *testing.T) {
	h := newHarness(t)
	worker := bearer(t, "w1", auth.RoleWorker)

	w := h.do(t, http.MethodGet, "/api/v1/activity", worker, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"activity":[]}`, w.Body.String())

	w = h.do(t, http.MethodDelete, "/api/v1/session", worker, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestBillRoutes(t *testing.T) {
	h := newHarness(t)
	worker := bearer(t, "w1", auth.RoleWorker)

	w := h.do(t, http.MethodGet, "/api/v1/bills?status=Paid&search=&page=1", worker, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page models.BillHistoryPage
	decode(t, w, &page)
	require.Len(t, page.Bills, 1)
	assert.Equal(t, "BILL-1", page.Bills[0].BillNumber)
	assert.Equal(t, []string{"page=1&status=Paid"}, h.pharmacy.historyURLs)

	w = h.do(t, http.MethodGet, "/api/v1/bills/b1/download", worker, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.4 b1", w.Body.String())

	w = h.do(t, http.MethodGet, "/api/v1/bills/nope/download", worker, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Bill not found")
}

func TestForeignTokenCannotReachAnotherSession(t *testing.T) {
	h := newHarness(t)
	worker := bearer(t, "w1", auth.RoleWorker)

	w := h.do(t, http.MethodPost, "/api/v1/stock-requests/batch/items", worker, `{"tabletId":"P1","reason":"secret restock reason"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{UserID: "w1", Role: auth.RoleWorker}).SignedString([]byte("attacker-key"))
	require.NoError(t, err)
	forged := "Bearer " + signed

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/stock-requests/batch"},
		{http.MethodDelete, "/api/v1/stock-requests/batch"},
		{http.MethodGet, "/api/v1/cart"},
		{http.MethodGet, "/api/v1/activity"},
		{http.MethodDelete, "/api/v1/session"},
	} {
		w = h.do(t, tc.method, tc.path, forged, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", tc.method, tc.path)
		assert.NotContains(t, w.Body.String(), "secret restock reason")
	}

	w = h.do(t, http.MethodGet, "/api/v1/stock-requests/batch", worker, "")
	require.Equal(t, http.StatusOK, w.Code)
	var batch session.BatchView
	decode(t, w, &batch)
	assert.Equal(t, 1, batch.Count)

	// A fresh token the backend accepts joins the same session.
	renewed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID:           "w1",
		Role:             auth.RoleWorker,
		RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(time.Now())},
	}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	w = h.do(t, http.MethodGet, "/api/v1/stock-requests/batch", "Bearer "+renewed, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &batch)
	assert.Equal(t, 1, batch.Count)
}
