package controller

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/starkville/storefront/internal/broadcast"
	"github.com/starkville/storefront/internal/domain/idempotency"
	"github.com/starkville/storefront/internal/infrastructure/config"
	"github.com/starkville/storefront/internal/infrastructure/observability"
	customMW "github.com/starkville/storefront/internal/middleware"
	"github.com/starkville/storefront/internal/service"
)

type RouterDeps struct {
	CheckoutService  *service.CheckoutService
	CallbackService  *service.CallbackService
	Hub              *broadcast.Hub
	IdempotencyStore idempotency.Store
	// RedisClient is optional; readiness pings it when set.
	RedisClient *redis.Client
	// Metrics is optional; request metrics and /metrics are skipped when nil.
	Metrics           *observability.Metrics
	ServerConfig      config.ServerConfig
	HeartbeatInterval time.Duration
	Logger            zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()
	cfg := deps.ServerConfig

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(customMW.Recover(deps.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", customMW.IdempotencyKeyHeader},
		ExposedHeaders:   []string{"X-Idempotency-Replayed"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.SecurityHeaders())
	if deps.Metrics != nil {
		r.Use(customMW.Metrics(deps.Metrics))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not Found", Code: "not_found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method Not Allowed", Code: "method_not_allowed"})
	})

	healthH := NewHealthController(deps.RedisClient)
	checkoutH := NewCheckoutController(deps.CheckoutService)
	callbackH := NewCallbackController(deps.CallbackService, deps.Logger)
	eventsH := NewEventsController(deps.Hub, deps.HeartbeatInterval, deps.Logger)

	// The event stream stays open for as long as the client listens, so it
	// is registered outside the request timeout.
	r.Get("/events", eventsH.Stream)

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(chimw.Timeout(cfg.RequestTimeout))
		}
		r.Use(customMW.BodyLimit(cfg.MaxBodyBytes))

		r.Get("/", healthH.Index)
		r.Get("/health", healthH.Health)
		r.Get("/health/live", healthH.Liveness)
		r.Get("/health/ready", healthH.Readiness)

		if deps.Metrics != nil {
			r.Handle("/metrics", promhttp.Handler())
		}

		// Checkout routes reach the gateway, so they are rate limited and
		// honour Idempotency-Key.
		r.Group(func(r chi.Router) {
			if cfg.RateLimit > 0 {
				r.Use(customMW.RateLimit(cfg.RateLimit, cfg.RateLimitWindow))
			}
			if deps.IdempotencyStore != nil {
				r.Use(customMW.Idempotency(deps.IdempotencyStore, cfg.IdempotencyTTL, deps.Logger))
			}
			r.Post("/merch-checkout", checkoutH.MerchCheckout)
			r.Post("/stkpush", checkoutH.STKPush)
		})

		r.Get("/merch-order/{id}", checkoutH.GetMerchOrder)
		r.Get("/transaction-status/{id}", checkoutH.TransactionStatus)
		r.Post("/callback", callbackH.Callback)
	})

	return r
}
