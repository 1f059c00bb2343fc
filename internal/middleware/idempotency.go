package middleware

import (
	"bytes"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/starkville/storefront/internal/domain/idempotency"
)

const (
	IdempotencyKeyHeader   = "Idempotency-Key"
	maxIdempotencyBodySize = 1 << 20
	reservationTTL         = 2 * time.Minute
)

// Idempotency replays the stored response for a repeated Idempotency-Key.
// A key whose first request is still in flight gets 409. Requests without the
// header pass through untouched. Keys are scoped to method and path, so the
// same key sent to two routes yields two independent requests.
func Idempotency(store idempotency.Store, ttl time.Duration, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(IdempotencyKeyHeader)
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Method + " " + r.URL.Path + ":" + clientKey
			ctx := r.Context()

			entry, err := store.Get(ctx, key)
			if err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("idempotency lookup failed")
			}
			if entry != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Replayed", "true")
				w.WriteHeader(entry.ResponseStatus)
				w.Write(entry.ResponseBody)
				return
			}

			ok, err := store.Reserve(ctx, key, reservationTTL)
			if err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("idempotency reserve failed")
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				writeErrorJSON(w, http.StatusConflict, "A request with this Idempotency-Key is already in progress", "duplicate_request")
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Server errors are not cached so the client can retry with the same key.
			if rec.statusCode >= 500 || rec.bodyTruncated {
				if err := store.Release(ctx, key); err != nil {
					logger.Warn().Err(err).Str("key", key).Msg("idempotency release failed")
				}
				return
			}

			now := time.Now()
			if err := store.Set(ctx, &idempotency.Entry{
				Key:            key,
				ResponseBody:   rec.body.Bytes(),
				ResponseStatus: rec.statusCode,
				CreatedAt:      now,
				ExpiresAt:      now.Add(ttl),
			}); err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("idempotency store failed")
			}
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	wroteHeader   bool
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
