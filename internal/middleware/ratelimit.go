package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

const rateLimitMessage = "Too many requests, try again later."

// RateLimit allows limit requests per client in each window. Clients are
// keyed by real IP and route, so a busy merch checkout does not use up the
// booking budget.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	if window <= 0 {
		window = time.Minute
	}
	retryAfter := strconv.Itoa(int(window.Round(time.Second).Seconds()))

	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			writeErrorJSON(w, http.StatusTooManyRequests, rateLimitMessage, "rate_limit")
		}),
	)
}

// writeErrorJSON writes the {"error", "code"} body the controllers use. An
// empty code is left out.
func writeErrorJSON(w http.ResponseWriter, status int, message, code string) {
	body := map[string]string{"error": message}
	if code != "" {
		body["code"] = code
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
