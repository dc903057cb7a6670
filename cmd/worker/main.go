// Package main is the entry point for the tradeledger background worker.
// It relays outbox events to the notification handler and prunes system
// tables.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tradeledger/internal/config"
	appctx "tradeledger/internal/core/context"
	"tradeledger/internal/infrastructure/metrics"
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
		Service:     "tradeledger-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	if err := cfg.RequireDatabase(); err != nil {
		log.Fatalw("invalid configuration", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting tradeledger worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.ApplicationName = "tradeledger-worker"
	poolCfg.MaxConns = min(cfg.DBMaxConns, 5)
	poolCfg.MinConns = 1
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		m.Registerer().MustRegister(pool.Collector())
		srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	txm := postgres.NewTxManager(pool).WithStatementTimeout(cfg.DBStatementTimeout)
	worker := &Worker{
		relay:        postgres.NewOutboxRelay(txm, cfg.WorkerBatchSize, NewNotifier(m)),
		idempotency:  postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL),
		pollInterval: cfg.WorkerPollInterval,
		log:          log.WithComponent("worker"),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Relay delivers pending outbox messages.
type Relay interface {
	ProcessBatch(ctx context.Context) (int, error)
	MoveToDLQ(ctx context.Context) (int64, error)
}

// Cleaner prunes expired idempotency keys.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Worker polls the outbox until its context ends.
type Worker struct {
	relay        Relay
	idempotency  Cleaner
	pollInterval time.Duration
	log          *logger.Logger
}

// Run polls the outbox every pollInterval and runs maintenance hourly.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	maintenance := time.NewTicker(time.Hour)
	defer maintenance.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		case <-maintenance.C:
			w.maintain(ctx)
		}
	}
}

// drain processes batches until the outbox has nothing due.
func (w *Worker) drain(ctx context.Context) {
	ctx = appctx.StartTrace(ctx, appctx.OriginWorker)
	log := w.log.WithContext(ctx)
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			log.Errorw("outbox batch failed", "error", err)
			return
		}
		if n == 0 {
			return
		}
		log.Debugw("processed outbox batch", "count", n)
	}
}

func (w *Worker) maintain(ctx context.Context) {
	if moved, err := w.relay.MoveToDLQ(ctx); err != nil {
		w.log.Errorw("move failed outbox messages", "error", err)
	} else if moved > 0 {
		w.log.Warnw("outbox messages moved to dead letter table", "count", moved)
	}

	if removed, err := w.idempotency.CleanupExpired(ctx); err != nil {
		w.log.Errorw("idempotency cleanup failed", "error", err)
	} else if removed > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", removed)
	}
}
