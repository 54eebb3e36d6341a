package api

import (
	"net/http"

	"github.com/ayo6706/wallet-transfer/internal/api/handler"
	"github.com/ayo6706/wallet-transfer/internal/api/middleware"
	"github.com/ayo6706/wallet-transfer/internal/api/spec"
	"github.com/ayo6706/wallet-transfer/internal/config"
	"github.com/ayo6706/wallet-transfer/internal/idempotency"
	"github.com/ayo6706/wallet-transfer/internal/service"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Dependencies are the services the HTTP layer fronts.
type Dependencies struct {
	Accounts    *service.AccountService
	Transfers   *service.TransferService
	Idempotency *idempotency.Store
	Health      *handler.HealthHandler
}

type Router struct {
	cfg    *config.Config
	logger *zap.Logger
	deps   Dependencies
}

func NewRouter(cfg *config.Config, logger *zap.Logger, deps Dependencies) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Health == nil {
		deps.Health = handler.NewHealthHandler(nil, nil)
	}
	return &Router{cfg: cfg, logger: logger, deps: deps}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	// Handlers
	authHandler := handler.NewAuthHandler()
	accountHandler := handler.NewAccountHandler(api.deps.Accounts)
	transferHandler := handler.NewTransferHandler(api.deps.Transfers, api.deps.Accounts, api.cfg.DefaultStrategy)

	// Operational routes
	r.Get("/health/live", api.deps.Health.Live)
	r.Get("/health/ready", api.deps.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/index.html", http.StatusMovedPermanently)
	})
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		if api.cfg.AuthDevLogin {
			r.Post("/v1/auth/login", authHandler.Login)
		}
	})

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		// Accounts
		r.Post("/v1/accounts", accountHandler.CreateAccount)
		r.Get("/v1/accounts/{id}", accountHandler.GetAccount)

		// Transfers
		r.With(middleware.IdempotencyMiddleware(api.deps.Idempotency, api.logger)).Post("/v1/transfers", transferHandler.CreateTransfer)
		r.Get("/v1/transfers/{id}", transferHandler.GetTransfer)
	})

	return r
}
