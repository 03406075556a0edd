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

	"github.com/hibiken/asynq"

	"github.com/appealdesk/appealdesk/internal/app"
	"github.com/appealdesk/appealdesk/internal/appeals"
	"github.com/appealdesk/appealdesk/internal/jobs"
	"github.com/appealdesk/appealdesk/internal/observability"
	"github.com/appealdesk/appealdesk/internal/platform/db"
	"github.com/appealdesk/appealdesk/internal/shared"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	appealRepo := appeals.NewRepository(pool)
	// The worker has no WebSocket hub; sweeps surface on the next client poll.
	appealService := appeals.NewService(appealRepo, appeals.NopNotifier{}, shared.NewActionLogger(pool), logger)

	var mailer jobs.Mailer = jobs.LogMailer{Logger: logger}
	if cfg.IsProduction() {
		mailer = jobs.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	}

	metrics := observability.NewMetrics()
	taskMetrics := jobs.NewMetrics(metrics.Registerer())
	worker := jobs.NewWorker(appealService, appealRepo, mailer, cfg.AssignmentIdleWindow, taskMetrics, logger)

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	runner, err := jobs.NewRunner(jobs.RunnerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Mux:       worker.Mux(),
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: jobs.NewAutoReleaseSweepTask()},
		},
	})
	if err != nil {
		logger.Error("init runner", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("redis", cfg.RedisAddr))
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
