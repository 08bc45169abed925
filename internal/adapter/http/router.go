package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/worldtycoon/internal/adapter/http/handler"
	"github.com/iho/worldtycoon/internal/adapter/http/middleware"
	"github.com/iho/worldtycoon/internal/domain"
	"github.com/iho/worldtycoon/internal/infrastructure/auth"
	"github.com/iho/worldtycoon/internal/infrastructure/metrics"
	"github.com/iho/worldtycoon/internal/usecase"
)

// RouterConfig holds dependencies for the router. RateLimiter,
// IdempotencyStore, JWTManager and Metrics are optional.
type RouterConfig struct {
	EconomyHandler   *handler.EconomyHandler
	OfferHandler     *handler.OfferHandler
	ShopHandler      *handler.ShopHandler
	EventHandler     *handler.EventHandler
	HealthHandler    *handler.HealthHandler
	RateLimiter      *middleware.RateLimiter
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	JWTManager       *auth.JWTManager
	Metrics          *metrics.Metrics
	Logger           zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(cfg.Metrics).Wrap)
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.JWTManager != nil {
			r.Use(middleware.AuthMiddleware(cfg.JWTManager, cfg.Metrics))
		}
		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			ttl := cfg.IdempotencyTTL
			if ttl <= 0 {
				ttl = usecase.IdempotencyKeyTTL
			}
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, ttl, cfg.Logger).Wrap)
		}

		operator := func(r chi.Router) chi.Router {
			if cfg.JWTManager == nil {
				return r
			}
			return r.With(middleware.RequireRole(domain.RoleAdmin))
		}

		// Economy
		r.Route("/economy", func(r chi.Router) {
			r.Get("/summary", cfg.EconomyHandler.Summary)
			r.Get("/health", cfg.EconomyHandler.Health)
			operator(r).Post("/tick", cfg.EconomyHandler.Tick)
			operator(r).Post("/transfer", cfg.EconomyHandler.Transfer)
			operator(r).Get("/reconcile", cfg.EconomyHandler.Reconcile)
			operator(r).Post("/reconcile", cfg.EconomyHandler.Settle)
		})

		// Offers
		r.Route("/offers", func(r chi.Router) {
			r.Get("/", cfg.OfferHandler.List)
			r.Post("/", cfg.OfferHandler.Create)
			operator(r).Post("/gc", cfg.OfferHandler.GC)
			r.Get("/{id}", cfg.OfferHandler.Get)
			r.Post("/{id}/accept", cfg.OfferHandler.Accept)
			r.Post("/{id}/reject", cfg.OfferHandler.Reject)
			r.Post("/{id}/cancel", cfg.OfferHandler.Cancel)
		})

		// Shop and pins
		r.Route("/shop", func(r chi.Router) {
			r.Get("/types", cfg.ShopHandler.Types)
			r.Post("/buy", cfg.ShopHandler.Buy)
			r.Post("/upgrade", cfg.ShopHandler.Upgrade)
		})
		r.Get("/pins", cfg.ShopHandler.ListPins)
		r.Get("/pins/{id}", cfg.ShopHandler.GetPin)

		r.Get("/events", cfg.EventHandler.List)
	})

	return r
}
