package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ahtrading/posledger/internal/application/processor"
	"github.com/ahtrading/posledger/internal/infrastructure/cache"
	"github.com/ahtrading/posledger/internal/infrastructure/config"
	"github.com/ahtrading/posledger/internal/infrastructure/logger"
	"github.com/ahtrading/posledger/internal/infrastructure/persistence"
	"github.com/ahtrading/posledger/internal/infrastructure/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("failed to initialize telemetry", zap.Error(err))
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(&cfg.Database, &cfg.Telemetry, gormLog)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	var ref processor.ReferenceStore = persistence.NewGormReferenceRepository(db.DB)
	if cfg.Cache.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, reference cache disabled", zap.Error(err))
		} else {
			ref = cache.NewReferenceCache(ref, client, cfg.Cache.TTL, log)
		}
	}

	inv := persistence.NewGormInventoryRepository(db.DB)
	docs := persistence.NewGormDocumentRepository(db.DB)
	companyID := cfg.Worker.CompanyUUID()
	if companyID == uuid.Nil {
		log.Warn("worker.company_id not set, claiming events for all companies; run a single instance or per-company ordering is lost")
	}
	source := persistence.NewGormOutboxRepository(db.DB, companyID, cfg.Worker.MaxAttempts)

	dispatcher := processor.NewDispatcher(source, processor.DispatcherConfig{
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
		MaxAttempts:  cfg.Worker.MaxAttempts,
	}, log,
		processor.NewSaleBuilder(ref, inv, docs),
		processor.NewSaleReturnBuilder(ref, inv, docs),
		processor.NewGoodsReceiptBuilder(ref, inv, docs),
		processor.NewPurchaseInvoiceBuilder(ref, inv, docs),
		processor.NewCashMovementBuilder(ref, docs),
	)

	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal("failed to start dispatcher", zap.Error(err))
	}
	log.Info("worker started", zap.String("env", cfg.App.Env))

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Error("dispatcher did not stop cleanly", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error("telemetry did not stop cleanly", zap.Error(err))
	}
	log.Info("worker stopped")
}
