package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/patrimon/patrimon/internal/app"
	"github.com/patrimon/patrimon/internal/assets"
	"github.com/patrimon/patrimon/internal/audit"
	"github.com/patrimon/patrimon/internal/auth"
	"github.com/patrimon/patrimon/internal/dashboard"
	"github.com/patrimon/patrimon/internal/directory"
	"github.com/patrimon/patrimon/internal/masterdata"
	"github.com/patrimon/patrimon/internal/notify"
	"github.com/patrimon/patrimon/internal/platform/cache"
	"github.com/patrimon/patrimon/internal/platform/db"
	"github.com/patrimon/patrimon/internal/requests"
	"github.com/patrimon/patrimon/internal/settings"
	"github.com/patrimon/patrimon/internal/shared"
	"github.com/patrimon/patrimon/internal/workflow"
	"github.com/patrimon/patrimon/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, cfg.JWTSecret, cfg.TokenTTL)
	authHandler := auth.NewHandler(logger, authService)
	guard := auth.Middleware{Service: authService, Logger: logger}

	auditLogger := shared.NewAuditLogger(pool)

	settingsStore := settings.NewStore(pool)
	directoryService := directory.NewService(directory.NewRepository(pool), auth.HashPassword, auditLogger)

	workflowRepo := workflow.NewRepository(pool)
	resolver := workflow.NewResolver(workflowRepo, directoryService, settingsStore, logger)
	coordinator := workflow.NewCoordinator(workflowRepo)
	workflowService := workflow.NewService(workflowRepo, auditLogger)
	workflowHandler := workflow.NewHandler(logger, workflowService, guard)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("asynq client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	notifyRepo := notify.NewRepository(pool)
	dispatcher := notify.NewDispatcher(notifyRepo, directoryService, jobsClient, logger)
	notifyHandler := notify.NewHandler(logger, notifyRepo)

	masterdataService := masterdata.NewService(masterdata.NewRepository(pool))
	masterdataHandler := masterdata.NewHandler(logger, masterdataService, guard)

	assetService := assets.NewService(assets.NewRepository(pool), masterdataService,
		resolver, coordinator, auditLogger, dispatcher, logger)
	assetHandler := assets.NewHandler(logger, assetService, guard)

	requestService := requests.NewService(requests.NewRepository(pool),
		resolver, coordinator, auditLogger, dispatcher, logger)
	requestHandler := requests.NewHandler(logger, requestService, guard)

	directoryHandler := directory.NewHandler(logger, directoryService, guard)
	settingsHandler := settings.NewHandler(logger, settingsStore, guard)

	auditService := audit.NewService(audit.NewSQLRepository(pool))
	auditHandler := audit.NewHandler(logger, auditService, guard)

	dashboardService := dashboard.NewService(dashboard.NewSQLStats(pool), redisClient, logger)
	dashboardHandler := dashboard.NewHandler(logger, dashboardService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Guard:             guard,
		AuthHandler:       authHandler,
		AssetHandler:      assetHandler,
		RequestHandler:    requestHandler,
		WorkflowHandler:   workflowHandler,
		DirectoryHandler:  directoryHandler,
		MasterDataHandler: masterdataHandler,
		SettingsHandler:   settingsHandler,
		AuditHandler:      auditHandler,
		NotifyHandler:     notifyHandler,
		DashboardHandler:  dashboardHandler,
		JobsHandler:       jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
