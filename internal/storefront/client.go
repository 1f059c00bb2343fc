package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/starkville/storefront/internal/domain/transaction"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxResponseBytes      = 1 << 20
	idempotencyKeyHeader  = "Idempotency-Key"
)

// ErrEmptyCart is returned when checking out a cart with no lines.
var ErrEmptyCart = errors.New("cart is empty")

// CheckoutResult is an accepted STK push.
type CheckoutResult struct {
	Success bool           `json:"success"`
	OrderID string         `json:"orderId"`
	Mpesa   map[string]any `json:"mpesa"`
}

// APIError is a non-2xx response from the payment server.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("payment server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("payment server returned %d", e.StatusCode)
}

// Client talks to the payment server. Its HTTP client carries no overall
// timeout because the event stream stays open; plain requests are bounded by
// RequestTimeout instead.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

func WithRequestTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		if d > 0 {
			cl.requestTimeout = d
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		requestTimeout: defaultRequestTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type merchCheckoutBody struct {
	Phone       string                 `json:"phone"`
	Items       []transaction.LineItem `json:"items"`
	TotalAmount float64                `json:"totalAmount"`
}

// MerchCheckout submits the cart for payment. Each call sends a fresh
// Idempotency-Key, so a retried call is a new purchase attempt.
func (c *Client) MerchCheckout(ctx context.Context, phone string, cart *Cart) (*CheckoutResult, error) {
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	body := merchCheckoutBody{Phone: phone, Items: cart.Items(), TotalAmount: cart.Total()}

	var result CheckoutResult
	if err := c.post(ctx, "/merch-checkout", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// BookingPayment starts an event booking payment. Empty phone and zero amount
// fall back to the server defaults.
func (c *Client) BookingPayment(ctx context.Context, phone string, amount float64) (*CheckoutResult, error) {
	body := map[string]any{}
	if phone != "" {
		body["phone"] = phone
	}
	if amount > 0 {
		body["amount"] = amount
	}

	var result CheckoutResult
	if err := c.post(ctx, "/stkpush", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TransactionStatus fetches the current state of a checkout.
func (c *Client) TransactionStatus(ctx context.Context, checkoutID string) (*transaction.StatusView, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transaction-status/"+checkoutID, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}

	var view transaction.StatusView
	if err := c.do(req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyKeyHeader, uuid.NewString())

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw), Body: raw}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the "error" member of an error body. Gateway
// rejections carry an object there; it is returned as compact JSON.
func errorMessage(raw []byte) string {
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Error) == 0 {
		return strings.TrimSpace(string(raw))
	}
	var s string
	if err := json.Unmarshal(body.Error, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, body.Error); err != nil {
		return string(body.Error)
	}
	return buf.String()
}
