package storefront

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/starkville/storefront/internal/domain/transaction"
)

// DefaultWatchTimeout bounds how long an abandoned order keeps its stream open.
const DefaultWatchTimeout = 5 * time.Minute

const maxFrameBytes = 1 << 20

var (
	// ErrWatchTimeout is returned when no terminal event arrived in time. The
	// payment itself may still complete.
	ErrWatchTimeout = errors.New("timed out waiting for payment result")
	// ErrStreamClosed is returned when the server ended the stream before a
	// terminal event.
	ErrStreamClosed = errors.New("event stream closed")
)

// Event is one frame of the server's event stream.
type Event struct {
	CheckoutID string             `json:"checkoutId"`
	Status     transaction.Status `json:"status"`
	Type       string             `json:"type,omitempty"`
	ResultCode *int               `json:"resultCode,omitempty"`
	ResultDesc string             `json:"resultDesc,omitempty"`
}

// TerminalHandler reacts to the final state of an order. Exactly one method
// is called per order.
type TerminalHandler interface {
	OnSuccess(Event)
	OnFailed(Event)
	OnCancelled(Event)
}

// Monitor follows the shared event stream for one order at a time.
type Monitor struct {
	baseURL    string
	httpClient *http.Client
	cart       *Cart
	handler    TerminalHandler
	timeout    time.Duration
	logger     zerolog.Logger

	mu       sync.Mutex
	resolved map[string]transaction.Status
}

type MonitorOption func(*Monitor)

func WithWatchTimeout(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithMonitorHTTPClient(c *http.Client) MonitorOption {
	return func(m *Monitor) { m.httpClient = c }
}

func WithMonitorLogger(l zerolog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

// NewMonitor creates a Monitor. cart may be nil when nothing must be cleared
// on success.
func NewMonitor(baseURL string, cart *Cart, handler TerminalHandler, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		cart:       cart,
		handler:    handler,
		timeout:    DefaultWatchTimeout,
		logger:     zerolog.Nop(),
		resolved:   make(map[string]transaction.Status),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Watch blocks until checkoutID reaches a terminal status and returns it.
// The stream is closed on the first terminal event, on timeout and on any
// transport error; there is no reconnect. Watching an order that was already
// resolved returns its status without dispatching again.
func (m *Monitor) Watch(ctx context.Context, checkoutID string) (transaction.Status, error) {
	if status, ok := m.resolvedStatus(checkoutID); ok {
		return status, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/events", nil)
	if err != nil {
		return "", fmt.Errorf("build events request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", m.streamError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("open event stream: unexpected status %d", resp.StatusCode)
	}

	m.logger.Debug().Str("checkout_id", checkoutID).Msg("Watching for payment result")

	var found transaction.Status
	err = readEvents(resp.Body, func(data []byte) bool {
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			m.logger.Warn().Err(err).Msg("Skipping undecodable event")
			return true
		}
		if ev.CheckoutID != checkoutID || !ev.Status.IsTerminal() {
			return true
		}
		found = m.resolve(ev)
		return false
	})
	if found != "" {
		return found, nil
	}
	if err != nil {
		return "", m.streamError(ctx, err)
	}
	if ctx.Err() != nil {
		return "", m.streamError(ctx, ctx.Err())
	}
	return "", ErrStreamClosed
}

// Resolved reports the terminal status already dispatched for checkoutID.
func (m *Monitor) Resolved(checkoutID string) (transaction.Status, bool) {
	return m.resolvedStatus(checkoutID)
}

func (m *Monitor) resolvedStatus(checkoutID string) (transaction.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.resolved[checkoutID]
	return status, ok
}

// resolve records the first terminal event of an order and dispatches it.
// Later terminal events for the same order return the recorded status.
func (m *Monitor) resolve(ev Event) transaction.Status {
	m.mu.Lock()
	if status, ok := m.resolved[ev.CheckoutID]; ok {
		m.mu.Unlock()
		return status
	}
	m.resolved[ev.CheckoutID] = ev.Status
	m.mu.Unlock()

	m.logger.Info().
		Str("checkout_id", ev.CheckoutID).
		Str("status", string(ev.Status)).
		Str("result_desc", ev.ResultDesc).
		Msg("Payment resolved")

	switch ev.Status {
	case transaction.StatusSuccess:
		if m.cart != nil {
			m.cart.Clear()
		}
		if m.handler != nil {
			m.handler.OnSuccess(ev)
		}
	case transaction.StatusCancelled:
		if m.handler != nil {
			m.handler.OnCancelled(ev)
		}
	default:
		if m.handler != nil {
			m.handler.OnFailed(ev)
		}
	}
	return ev.Status
}

func (m *Monitor) streamError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrWatchTimeout
	}
	return fmt.Errorf("event stream: %w", err)
}

// readEvents parses a text/event-stream body and calls fn with the data of
// each event until fn returns false or the body ends.
func readEvents(r io.Reader, fn func(data []byte) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameBytes)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) == 0 {
				continue
			}
			payload := strings.Join(data, "\n")
			data = data[:0]
			if !fn([]byte(payload)) {
				return nil
			}
		case strings.HasPrefix(line, ":"):
			// comment, used for keep-alives
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}
