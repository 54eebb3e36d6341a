package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/wallet-transfer/internal/api"
	"github.com/ayo6706/wallet-transfer/internal/api/handler"
	"github.com/ayo6706/wallet-transfer/internal/api/middleware"
	"github.com/ayo6706/wallet-transfer/internal/config"
	"github.com/ayo6706/wallet-transfer/internal/db"
	"github.com/ayo6706/wallet-transfer/internal/engine"
	"github.com/ayo6706/wallet-transfer/internal/events"
	"github.com/ayo6706/wallet-transfer/internal/idempotency"
	"github.com/ayo6706/wallet-transfer/internal/observability"
	"github.com/ayo6706/wallet-transfer/internal/repository"
	"github.com/ayo6706/wallet-transfer/internal/service"
	"github.com/ayo6706/wallet-transfer/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// Run bootstraps the HTTP server and notification worker, blocking until
// SIGINT/SIGTERM or a fatal server error.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	store := repository.NewPostgresStore(pool)
	eng := engine.New(store, store, engine.WithLogger(logger.Named("engine")))
	publisher := events.NewPublisher(redisClient, events.DefaultQueue)
	transferSvc := service.NewTransferService(store, eng,
		service.WithEvents(publisher),
		service.WithRetry(cfg.OptimisticMaxRetries, cfg.OptimisticRetryBase),
		service.WithLogger(logger.Named("transfers")),
	)
	accountSvc := service.NewAccountService(store)
	idemStore := idempotency.NewStore(redisClient, idempotency.NewPostgresBackend(pool), cfg.IdempotencyTTL)

	notifier := worker.NewNotificationWorker(
		events.NewConsumer(redisClient, events.DefaultQueue, logger),
		publisher,
		service.NewAuditService(pool),
		worker.NewLogNotifier(logger.Named("notifications")),
	).WithInterval(cfg.NotificationPollInterval).WithBatchSize(cfg.NotificationBatchSize)

	router := api.NewRouter(cfg, logger, api.Dependencies{
		Accounts:    accountSvc,
		Transfers:   transferSvc,
		Idempotency: idemStore,
		Health:      handler.NewHealthHandler(pool, redisClient),
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting",
			zap.String("port", cfg.HTTPPort),
			zap.String("default_strategy", cfg.DefaultStrategy.String()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		notifier.Start(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		notifier.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
