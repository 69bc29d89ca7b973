package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"usalli/internal/credit"
	"usalli/internal/ledger"
	"usalli/internal/middleware"
	"usalli/internal/notification"
	"usalli/internal/settings"
	"usalli/internal/transfer"
	"usalli/internal/unlock"
	"usalli/pkg/logger"
	"usalli/pkg/validator"
)

// Services are the engines the API serves. Redis is optional; without it
// rate limiting and idempotency keys are off.
type Services struct {
	DB        Pinger
	Redis     *redis.Client
	Ledger    *ledger.Service
	Transfers *transfer.Engine
	Codes     *unlock.Registry
	Credits   *credit.Engine
	Settings  *settings.Service
	Hub       *notification.Hub
}

type RouterConfig struct {
	AuthEnabled    bool
	JWTSecret      string
	AllowedOrigins []string
	MaxBodyBytes   int64
	RateLimit      int
	RateWindow     time.Duration
	IdempotencyTTL time.Duration
}

// NewRouter wires every route under /api/v1 plus the health and metrics
// endpoints.
func NewRouter(svc Services, cfg RouterConfig, log logger.Logger) http.Handler {
	val := validator.New()
	access := NewAccountAccess(svc.Ledger, cfg.AuthEnabled)

	transfers := NewTransferHandler(svc.Transfers, svc.Codes, svc.Settings, access, val, log)
	accounts := NewAccountHandler(svc.Ledger, svc.Transfers, svc.Credits, access, log)
	credits := NewCreditHandler(svc.Credits, access, val, log)
	settingsHandler := NewSettingsHandler(svc.Settings, val, log)
	events := NewEventsHandler(svc.Hub, access, cfg.AllowedOrigins, log)
	system := NewSystemHandler(svc.DB, svc.Redis)

	r := mux.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.SecurityHeaders)
	if cfg.MaxBodyBytes > 0 {
		r.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	}

	r.HandleFunc("/health", system.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", system.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	if cfg.AuthEnabled {
		api.Use(middleware.NewAuthMiddleware(cfg.JWTSecret, log).Authenticate)
	}
	if svc.Redis != nil {
		if cfg.RateLimit > 0 {
			api.Use(middleware.NewRateLimiter(svc.Redis, cfg.RateLimit, cfg.RateWindow, log).Limit)
		}
		api.Use(middleware.NewIdempotencyMiddleware(svc.Redis, cfg.IdempotencyTTL, log).Handle)
	}

	admin := func(h http.HandlerFunc) http.Handler {
		if !cfg.AuthEnabled {
			return h
		}
		return middleware.RequireAdmin(h)
	}

	api.HandleFunc("/transfers", transfers.CreateTransfer).Methods(http.MethodPost)
	api.Handle("/transfers", admin(transfers.ListTransfers)).Methods(http.MethodGet)
	api.Handle("/transfers/generate-code", admin(transfers.GenerateCode)).Methods(http.MethodPost)
	api.HandleFunc("/transfers/verify-code", transfers.VerifyCode).Methods(http.MethodPost)
	api.HandleFunc("/transfers/{id}", transfers.GetTransfer).Methods(http.MethodGet)
	api.Handle("/transfers/{id}", admin(transfers.UpdateTransfer)).Methods(http.MethodPut)

	api.HandleFunc("/accounts/{id}", accounts.GetAccount).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/entries", accounts.GetEntries).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/transfers", accounts.GetTransfers).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/credit-requests", accounts.GetCreditRequests).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/events", events.Stream).Methods(http.MethodGet)

	api.HandleFunc("/credit-requests", credits.CreateCreditRequest).Methods(http.MethodPost)
	api.Handle("/credit-requests", admin(credits.ListCreditRequests)).Methods(http.MethodGet)
	api.HandleFunc("/credit-requests/{id}", credits.GetCreditRequest).Methods(http.MethodGet)
	api.Handle("/credit-requests/{id}", admin(credits.UpdateStatus)).Methods(http.MethodPut)

	api.HandleFunc("/settings/block-messages", settingsHandler.GetBlockMessages).Methods(http.MethodGet)
	api.Handle("/settings/block-messages", admin(settingsHandler.UpdateBlockMessages)).Methods(http.MethodPut)

	// Preflight requests never match a method-restricted route, so CORS
	// wraps the router itself.
	return middleware.CORS(cfg.AllowedOrigins)(r)
}
