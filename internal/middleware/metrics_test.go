package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/starkville/storefront/internal/infrastructure/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	return observability.NewMetrics("test", prometheus.NewRegistry())
}

func storefrontRouter(m *observability.Metrics) *chi.Mux {
	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Post("/merch-checkout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"success":true}`))
	})
	r.Get("/merch-order/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/callback", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", eventStreamContentType)
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestMetrics_CountsByRoutePatternAndStatus(t *testing.T) {
	m := newTestMetrics(t)
	r := storefrontRouter(m)

	requests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodPost, "/merch-checkout", http.StatusOK},
		{http.MethodGet, "/merch-order/ws_CO_1", http.StatusOK},
		{http.MethodGet, "/merch-order/ws_CO_2", http.StatusOK},
		{http.MethodGet, "/merch-order/missing", http.StatusNotFound},
		{http.MethodPost, "/callback", http.StatusBadRequest},
	}
	for _, req := range requests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(req.method, req.path, nil))
		require.Equal(t, req.status, w.Code, req.path)
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/merch-checkout", "200")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/merch-order/{id}", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/merch-order/{id}", "404")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/callback", "400")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.HTTPRequestDuration))
}

func TestMetrics_EventStreamSkipsLatency(t *testing.T) {
	m := newTestMetrics(t)
	r := storefrontRouter(m)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/events", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/events", "200")))
	assert.Equal(t, 0, testutil.CollectAndCount(m.HTTPRequestDuration))
}

func TestMetrics_Unmatched(t *testing.T) {
	m := newTestMetrics(t)

	h := Metrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

func TestMetrics_ImplicitOK(t *testing.T) {
	m := newTestMetrics(t)

	h := Metrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("MPESA STK Sandbox Server running"))
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "MPESA STK Sandbox Server running", w.Body.String())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "200")))
}

func TestStatusWriter_FirstStatusWins(t *testing.T) {
	w := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

	sw.WriteHeader(http.StatusGatewayTimeout)
	sw.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusGatewayTimeout, sw.statusCode)

	w = httptest.NewRecorder()
	sw = &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
	sw.Write([]byte("body"))
	sw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusOK, sw.statusCode)
}

func TestStatusWriter_Unwrap(t *testing.T) {
	w := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: w}

	assert.Same(t, w, sw.Unwrap())
	require.NoError(t, http.NewResponseController(sw).Flush())
	assert.True(t, w.Flushed)
}
