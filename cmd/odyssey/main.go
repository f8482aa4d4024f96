package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-quote/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-quote/internal/app"
	"github.com/odyssey-erp/odyssey-quote/internal/auth"
	"github.com/odyssey-erp/odyssey-quote/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-quote/internal/notifications"
	"github.com/odyssey-erp/odyssey-quote/internal/observability"
	"github.com/odyssey-erp/odyssey-quote/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-quote/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quote/internal/rbac"
	"github.com/odyssey-erp/odyssey-quote/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-quote/internal/shared"
	"github.com/odyssey-erp/odyssey-quote/jobs"
	"github.com/odyssey-erp/odyssey-quote/migrations"
	"github.com/odyssey-erp/odyssey-quote/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobs(ctx, cfg, os.Args[2:]))
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		os.Exit(runMigrate(cfg, logger, os.Args[2:]))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.Postgres("odyssey")...)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "odyssey_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	rbacService := rbac.NewService(dbpool)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, rbacMiddleware)

	productService := products.NewService(products.NewRepository(dbpool), logger)
	productHandler := products.NewHandler(logger, productService, rbacMiddleware)

	jobClient, err := jobs.NewClient(cfg.Redis().AsynqOpts())
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	quotationService := quotations.NewService(quotations.NewRepository(dbpool), quotations.ServiceConfig{
		Logger:          logger,
		Idempotency:     shared.NewIdempotencyStore(dbpool),
		Notifier:        jobs.NewNotificationDispatcher(jobClient),
		Metrics:         metrics,
		DefaultCurrency: cfg.QuoteDefaultCurrency,
		ValidityDays:    cfg.QuoteValidityDays,
		NumberRetries:   cfg.QuoteNumberRetries,
		SystemUserID:    cfg.SystemUserID,
	})

	reportClient := report.NewClient(cfg.GotenbergURL)
	quotationPDF, err := report.NewQuotationRenderer(reportClient)
	if err != nil {
		logger.Error("init quotation renderer", slog.Any("error", err))
		os.Exit(1)
	}
	quotationHandler := quotations.NewHandler(logger, quotationService, rbacMiddleware, quotationPDF)

	notificationService := notifications.NewService(notifications.NewRepository(dbpool), logger)
	notificationHub := notifications.NewHub(redisClient, logger)
	notificationHandler := notifications.NewHandler(logger, notificationService, notificationHub, cfg.SSEHeartbeat)

	inspector := asynq.NewInspector(cfg.Redis().AsynqOpts())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		SessionManager:       sessionManager,
		CSRFManager:          csrfManager,
		RBACMiddleware:       rbacMiddleware,
		AuthHandler:          authHandler,
		ProductsHandler:      productHandler,
		QuotationsHandler:    quotationHandler,
		NotificationsHandler: notificationHandler,
		PermissionsHandler:   rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware),
		ReportHandler:        report.NewHandler(reportClient, logger),
		JobHandler:           jobs.NewHandler(inspector, logger),
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	jobsCLI, err := cli.NewJobsCLI(cfg.Redis().AsynqOpts())
	if err != nil {
		slog.Default().Error("init jobs cli", slog.Any("error", err))
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()
	return jobsCLI.Command(ctx, cli.JobsOptions{Args: args})
}

func runMigrate(cfg *app.Config, logger *slog.Logger, args []string) int {
	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}
	migrator, err := db.NewMigrator(migrations.FS, cfg.PGDSN, logger)
	if err != nil {
		logger.Error("init migrator", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("close migrator", slog.Any("error", err))
		}
	}()

	switch direction {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Down()
	case "version":
		var version uint
		var dirty bool
		version, dirty, err = migrator.Version()
		if err == nil {
			fmt.Printf("version=%d dirty=%t\n", version, dirty)
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: odyssey migrate <up|down|version>")
		return 2
	}
	if err != nil {
		logger.Error("migrate "+direction, slog.Any("error", err))
		return 1
	}
	return 0
}
