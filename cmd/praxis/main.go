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

	"github.com/praxis-crm/praxis/internal/app"
	"github.com/praxis-crm/praxis/internal/audit"
	"github.com/praxis-crm/praxis/internal/authz"
	"github.com/praxis-crm/praxis/internal/grants"
	"github.com/praxis-crm/praxis/internal/observability"
	"github.com/praxis-crm/praxis/internal/platform/cache"
	"github.com/praxis-crm/praxis/internal/platform/db"
	"github.com/praxis-crm/praxis/internal/principals"
	"github.com/praxis-crm/praxis/internal/templates"
	"github.com/praxis-crm/praxis/jobs"
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

	if err := templates.SeedSystemTemplates(ctx, pool, logger); err != nil {
		logger.Error("seed system templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	directory := principals.NewDirectory(pool)
	recorder := audit.NewRecorder()

	denialClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, logger)
	defer func() {
		if err := denialClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	grantsRepo := grants.NewRepository(pool)
	gateway := authz.NewGateway(authz.GatewayConfig{
		Store:        grantsRepo,
		Cache:        authz.NewRedisCache(redisClient, cfg.AuthzCacheTTL),
		Denials:      denialClient,
		Metrics:      metrics,
		Logger:       logger,
		CheckTimeout: cfg.AuthzCheckTimeout,
		SampleRate:   cfg.AuthzDenySample,
	})
	guard := authz.Middleware{Gateway: gateway, Logger: logger}

	templatesService := templates.NewService(templates.NewRepository(pool), directory, recorder, pool, logger)
	grantsService := grants.NewService(grants.ServiceConfig{
		Repo:        grantsRepo,
		Tx:          db.PoolRunner{Pool: pool},
		Reader:      pool,
		Directory:   directory,
		Templates:   templatesService,
		Auditor:     recorder,
		Invalidator: gateway,
		Logger:      logger,
	})
	auditService := audit.NewService(audit.NewRepository(pool))

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Directory:        directory,
		AuthzHandler:     authz.NewHandler(logger, gateway),
		GrantsHandler:    grants.NewHandler(logger, grantsService, guard),
		TemplatesHandler: templates.NewHandler(logger, templatesService, guard),
		AuditHandler:     audit.NewHandler(logger, auditService, guard),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
}
