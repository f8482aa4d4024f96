package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odyssey-erp/odyssey-quote/internal/app"
	"github.com/odyssey-erp/odyssey-quote/internal/notifications"
	"github.com/odyssey-erp/odyssey-quote/internal/observability"
	"github.com/odyssey-erp/odyssey-quote/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-quote/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quote/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-quote/internal/shared"
	"github.com/odyssey-erp/odyssey-quote/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.Postgres("odyssey-worker")...)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := cfg.Redis().AsynqOpts()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	idempotencyStore := shared.NewIdempotencyStore(pool)
	quotationService := quotations.NewService(quotations.NewRepository(pool), quotations.ServiceConfig{
		Logger:          logger,
		Idempotency:     idempotencyStore,
		Notifier:        jobs.NewNotificationDispatcher(jobClient),
		Metrics:         metrics,
		DefaultCurrency: cfg.QuoteDefaultCurrency,
		ValidityDays:    cfg.QuoteValidityDays,
		NumberRetries:   cfg.QuoteNumberRetries,
		SystemUserID:    cfg.SystemUserID,
	})

	publishJob := jobs.NewNotificationPublishJob(notifications.NewHub(redisClient, logger), logger)
	expiryJob := jobs.NewQuotationExpiryJob(quotationService, logger, metrics.Jobs())
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, logger, metrics.Jobs())

	expireTask, err := jobs.NewQuotationExpireTask(nil)
	if err != nil {
		logger.Error("build expiry task", slog.Any("error", err))
		os.Exit(1)
	}
	cron := []jobs.CronRegistration{
		{Spec: cfg.ExpiryCron, Task: expireTask},
	}
	if cfg.IdempotencyCleanupCron != "" {
		cleanupTask, err := jobs.NewIdempotencyCleanupTask(int(cfg.IdempotencyRetention / time.Hour))
		if err != nil {
			logger.Error("build cleanup task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.IdempotencyCleanupCron, Task: cleanupTask})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNotificationPublish, Handler: publishJob.Handle},
			{Type: jobs.TaskQuotationExpire, Handler: expiryJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
