package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/patrimon/patrimon/internal/app"
	"github.com/patrimon/patrimon/internal/notify"
	"github.com/patrimon/patrimon/internal/platform/db"
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	smtpCfg := jobs.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}
	if !smtpCfg.Enabled() {
		logger.Warn("smtp not configured, outgoing mail will be dropped")
	}

	sweeper := jobs.NewDepreciationSweeper(pool, notify.NewRepository(pool), logger)

	workerCfg := jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: jobs.NewSendEmailHandler(smtpCfg, logger)},
			{Type: jobs.TaskTypeDepreciationSweep, Handler: sweeper.Handle},
		},
	}
	if cfg.DepreciationCron != "" {
		workerCfg.Cron = append(workerCfg.Cron, jobs.CronRegistration{
			Spec: cfg.DepreciationCron,
			Task: jobs.NewDepreciationSweepTask(),
		})
	}

	worker, err := jobs.NewWorker(workerCfg)
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
