// Package main is the entry point for the tradeledger API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"tradeledger/internal/app"
	"tradeledger/internal/config"
	"tradeledger/internal/domain/auth"
	"tradeledger/internal/infrastructure/cache"
	v1 "tradeledger/internal/infrastructure/http/v1"
	"tradeledger/internal/infrastructure/http/v1/handlers"
	"tradeledger/internal/infrastructure/metrics"
	"tradeledger/internal/infrastructure/migration"
	"tradeledger/internal/infrastructure/storage/postgres"
	"tradeledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Service:     "tradeledger",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Fatalw("server failed", "error", err)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx := context.Background()
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	log.Infow("starting tradeledger server", "env", cfg.AppEnv, "base_currency", cfg.BaseCurrency)

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	if cfg.IsDevelopment() {
		if err := migrateUp(ctx, cfg.DatabaseURL); err != nil {
			return err
		}
	}

	txm := postgres.NewTxManager(pool).WithStatementTimeout(cfg.DBStatementTimeout)
	storage, err := app.PostgresStorage(pool, txm)
	if err != nil {
		return err
	}

	opts := app.Options{
		BaseCurrency:      cfg.BaseCurrency,
		SettlementJournal: cfg.SettlementJournalEnabled,
	}
	routerCfg := v1.RouterConfig{
		Logger:       log,
		Idempotency:  postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL),
		HealthChecks: map[string]handlers.Pinger{"database": pool},
		Info:         map[string]any{"base_currency": cfg.BaseCurrency},
	}

	// --- Rate cache (optional) ---
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warnw("rate cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer client.Close()
			rc := cache.NewRateCache(client, cfg.RateCacheTTL)
			opts.RateCache = rc
			routerCfg.HealthChecks["redis"] = rc
			log.Infow("rate cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.RateCacheTTL)
		}
	}

	// --- Metrics ---
	if cfg.MetricsEnabled {
		m := metrics.New()
		m.Registerer().MustRegister(pool.Collector())
		opts.Metrics = m
		routerCfg.Metrics = m
	}

	// --- Auth ---
	if cfg.AuthEnabled() {
		routerCfg.JWTValidator = auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWTSecret, cfg.JWTIssuer))
	} else {
		log.Warn("JWT_SECRET is empty: authentication disabled")
	}

	routerCfg.Services = app.New(storage, opts)
	router := v1.NewRouter(routerCfg)

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server starting", "port", cfg.AppPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	pool.LogStats(ctx)
	log.Info("server stopped")
	return nil
}

func migrateUp(ctx context.Context, databaseURL string) error {
	m, err := migration.New(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up(ctx)
}
