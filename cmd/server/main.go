package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"usalli/internal/credit"
	"usalli/internal/handler"
	"usalli/internal/ledger"
	"usalli/internal/notification"
	"usalli/internal/repository/sqlstore"
	"usalli/internal/settings"
	"usalli/internal/transfer"
	"usalli/internal/unlock"
	"usalli/pkg/config"
	"usalli/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewWithLevel("bank-core", cfg.Log.Level)

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting bank core", map[string]interface{}{
		"port":   cfg.Server.Port,
		"driver": cfg.Database.Driver,
		"auth":   cfg.JWT.AuthEnabled,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.URL, sqlstore.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer store.Close()
	log.Info("Database connected", nil)

	// Postgres schemas are managed with cmd/migrate; an embedded SQLite
	// database is brought up to date on start.
	if cfg.Database.Driver == sqlstore.DriverSQLite {
		if err := store.Migrate(); err != nil {
			log.Fatal("Failed to migrate database", map[string]interface{}{"error": err.Error()})
		}
	}

	redisClient := connectRedis(ctx, cfg, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	ledgerService := ledger.NewService(store, log)
	codes := unlock.NewRegistry(store, unlock.Config{
		CodeTTL:         cfg.Unlock.CodeTTL,
		EnforceExpiry:   cfg.Unlock.EnforceExpiry,
		RevokeOnReissue: cfg.Unlock.RevokeOnReissue,
	}, log)
	transfers := transfer.NewEngine(store, ledgerService, codes, transfer.Config{
		BlockThreshold: cfg.Transfer.BlockThreshold,
	}, log)
	hub := notification.NewHub(log)

	router := handler.NewRouter(handler.Services{
		DB:        store,
		Redis:     redisClient,
		Ledger:    ledgerService,
		Transfers: transfers,
		Codes:     codes,
		Credits:   credit.NewEngine(store, ledgerService, log),
		Settings:  settings.NewService(store, log),
		Hub:       hub,
	}, handler.RouterConfig{
		AuthEnabled:    cfg.JWT.AuthEnabled,
		JWTSecret:      cfg.JWT.Secret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RateLimit:      cfg.RateLimit.Requests,
		RateWindow:     cfg.RateLimit.Window,
		IdempotencyTTL: cfg.Redis.IdempotencyTTL,
	}, log)

	dispatcher := notification.NewDispatcher(store, hub, notification.DispatcherConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
	}, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Bank core listening", map[string]interface{}{"address": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down bank core...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Bank core forced to shutdown", map[string]interface{}{"error": err.Error()})
	}
	wg.Wait()

	log.Info("Bank core stopped gracefully", nil)
}

// connectRedis returns nil when Redis is unreachable outside production, so
// a local server runs without rate limiting and idempotency keys.
func connectRedis(ctx context.Context, cfg *config.Config, log logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if cfg.IsProduction() {
			log.Fatal("Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
		}
		log.Warn("Redis unavailable; rate limiting and idempotency keys disabled", map[string]interface{}{
			"error": err.Error(),
		})
		_ = client.Close()
		return nil
	}

	log.Info("Redis connected", nil)
	return client
}
