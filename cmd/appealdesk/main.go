package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/appealdesk/appealdesk/internal/app"
	"github.com/appealdesk/appealdesk/internal/appeals"
	"github.com/appealdesk/appealdesk/internal/auth"
	"github.com/appealdesk/appealdesk/internal/jobs"
	"github.com/appealdesk/appealdesk/internal/observability"
	"github.com/appealdesk/appealdesk/internal/platform/cache"
	"github.com/appealdesk/appealdesk/internal/platform/db"
	"github.com/appealdesk/appealdesk/internal/rbac"
	"github.com/appealdesk/appealdesk/internal/realtime"
	"github.com/appealdesk/appealdesk/internal/reports"
	"github.com/appealdesk/appealdesk/internal/roles"
	"github.com/appealdesk/appealdesk/internal/shared"
	"github.com/appealdesk/appealdesk/internal/users"
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

	sessionManager := shared.NewSessionManager(redisClient, "appealdesk_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	validate := validator.New()
	actionLog := shared.NewActionLogger(pool)
	rbacMiddleware := rbac.Middleware{Logger: logger}

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, validate)

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo, actionLog, logger)
	if err := rolesService.Seed(ctx); err != nil {
		logger.Error("seed roles", slog.Any("error", err))
		os.Exit(1)
	}
	rolesHandler := roles.NewHandler(logger, rolesService, validate, rbacMiddleware)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	appealRepo := appeals.NewRepository(pool)
	hub := realtime.NewHub(logger)
	hub.SetGauge(metrics)
	broadcaster := appeals.NewBroadcaster(hub, appealRepo, logger)
	appealService := appeals.NewService(appealRepo, broadcaster, actionLog, logger).
		WithTaskQueue(jobs.NewEnqueuer(asynqClient, logger))
	appealHandler := appeals.NewHandler(logger, appealService, validate, rbacMiddleware,
		filepath.Join(cfg.StorageDir, "attachments"), cfg.MaxAttachmentSize)
	appealWS := appeals.NewWSHandler(logger, appealService, hub)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, actionLog, logger)
	usersHandler := users.NewHandler(logger, usersService, validate, rbacMiddleware)

	reportStore, err := reports.NewFileStore(cfg.StorageDir)
	if err != nil {
		logger.Error("init report store", slog.Any("error", err))
		os.Exit(1)
	}
	reportsRepo := reports.NewRepository(pool)
	reportsService := reports.NewService(reportStore, reportsRepo, actionLog, logger)
	reportsHandler := reports.NewHandler(logger, reportsService, validate, rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		Metrics:        metrics,
		AuthService:    authService,
		AuthHandler:    authHandler,
		AppealsHandler: appealHandler,
		AppealsWS:      appealWS,
		UsersHandler:   usersHandler,
		RolesHandler:   rolesHandler,
		ReportsHandler: reportsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
