package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/gobank/internal/adapter/http/handler"
	"github.com/iho/gobank/internal/adapter/http/middleware"
	"github.com/iho/gobank/internal/domain"
	"github.com/iho/gobank/internal/infrastructure/metrics"
	"github.com/iho/gobank/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	AccountHandler *handler.AccountHandler
	BankingHandler *handler.BankingHandler
	HistoryHandler *handler.HistoryHandler
	AdminHandler   *handler.AdminHandler
	AuthHandler    *handler.AuthHandler
	HealthHandler  *handler.HealthHandler

	Authenticator    *middleware.Authenticator
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter

	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", cfg.AuthHandler.Register)
		r.Post("/auth/login", cfg.AuthHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(cfg.Authenticator.Require)

			// Keys are scoped per user, so this has to run after auth.
			if cfg.IdempotencyStore != nil {
				r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL, cfg.Metrics).Wrap)
			}

			r.Post("/auth/logout", cfg.AuthHandler.Logout)
			r.Get("/me", cfg.AuthHandler.Me)

			r.Route("/accounts", func(r chi.Router) {
				r.Post("/", cfg.AccountHandler.Open)
				r.Get("/", cfg.AccountHandler.List)
				r.Get("/summary", cfg.AccountHandler.Summary)

				r.Route("/{number}", func(r chi.Router) {
					r.Get("/", cfg.AccountHandler.Get)
					r.Post("/deposit", cfg.BankingHandler.Deposit)
					r.Post("/withdraw", cfg.BankingHandler.Withdraw)
					r.Post("/transfer", cfg.BankingHandler.Transfer)
					r.Get("/transactions", cfg.HistoryHandler.List)
					r.Get("/transactions.csv", cfg.HistoryHandler.ExportCSV)
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(domain.RoleAdmin))

				r.Post("/interest", cfg.BankingHandler.PostInterest)
				r.Get("/consistency", cfg.AdminHandler.Consistency)
				r.Get("/accounts/{number}/reconcile", cfg.AdminHandler.Reconcile)
				r.Post("/accounts/{number}/deactivate", cfg.AccountHandler.Deactivate)
			})
		})
	})

	return r
}
