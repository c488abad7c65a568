// Package backend talks to the pharmacy REST backend on behalf of a worker.
// Every call forwards the worker's bearer token and runs under the configured
// per-call timeout. Nothing here retries.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pharmacy-cart-api-server/config"
	"pharmacy-cart-api-server/internal/apperror"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const DefaultTimeout = 15 * time.Second

type tokenKey struct{}

// ContextWithToken attaches the worker's bearer token to ctx.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	log        *zap.Logger
}

func New(cfg config.BackendConfig, log *zap.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	return NewWithHTTPClient(cfg, &http.Client{Transport: otelhttp.NewTransport(transport)}, log)
}

// NewWithHTTPClient lets tests point the client at an httptest server.
func NewWithHTTPClient(cfg config.BackendConfig, httpClient *http.Client, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/api",
		timeout:    timeout,
		httpClient: httpClient,
		log:        log.Named("backend"),
	}
}

// Timeout is the deadline applied to every call.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// errorBody covers both shapes the backend uses for failures.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// doJSON sends body as JSON and decodes a JSON response into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	raw, err := c.do(ctx, op, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apperror.Error{
			Op:      op,
			Status:  http.StatusBadGateway,
			Message: "unexpected response from the pharmacy server",
			Err:     fmt.Errorf("%w: decode: %v", apperror.ErrServerRejection, err),
		}
	}
	return nil
}

// do performs one call and returns the raw response body on 2xx.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body interface{}) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json, application/pdf")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("backend call failed",
			zap.String("op", op),
			zap.String("request_id", requestID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperror.FromContext(op, ctxErr)
		}
		return nil, apperror.FromContext(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperror.FromContext(op, ctxErr)
		}
		return nil, apperror.FromContext(op, err)
	}

	c.log.Debug("backend call",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, rejection(op, resp.StatusCode, raw)
	}
	return raw, nil
}

// rejection maps a non-2xx response onto the error taxonomy. Stock problems
// become ErrStockConflict, everything else ErrServerRejection with the
// backend's own message.
func rejection(op string, status int, raw []byte) error {
	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	msg := eb.Message
	if msg == "" {
		msg = eb.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("pharmacy server returned %d", status)
	}

	kind := apperror.ErrServerRejection
	if status == http.StatusConflict || (status < http.StatusInternalServerError && mentionsStock(msg)) {
		kind = apperror.ErrStockConflict
	}
	return &apperror.Error{Op: op, Status: status, Message: msg, Err: kind}
}

func mentionsStock(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "stock") || strings.Contains(m, "available")
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var e *apperror.Error
	return errors.As(err, &e) && e.Status == http.StatusNotFound
}
