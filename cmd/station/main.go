// Package main implements the station service.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/stationhq/station/internal/api"
	"github.com/stationhq/station/internal/audit"
	"github.com/stationhq/station/internal/authz"
	"github.com/stationhq/station/internal/config"
	"github.com/stationhq/station/internal/executor"
	"github.com/stationhq/station/internal/identity"
	"github.com/stationhq/station/internal/policy"
	"github.com/stationhq/station/internal/request"
	"github.com/stationhq/station/pkg/metrics"
	"github.com/stationhq/station/pkg/postgres"
	"github.com/stationhq/station/pkg/ratelimit"
	"github.com/stationhq/station/pkg/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load(os.Getenv("STATION_CONFIG"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("starting station", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	tracer, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Service,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		SampleRate:     cfg.Telemetry.SampleRate,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		logger.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	// Database
	db, err := postgres.Connect(ctx, cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := postgres.Migrate(ctx, db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Repositories
	userRepo := postgres.NewUserRepository(db)
	groupRepo := postgres.NewGroupRepository(db)
	requestRepo := postgres.NewRequestRepository(db)
	policyRepo := postgres.NewPolicyRepository(db)
	namedRuleRepo := postgres.NewNamedRuleRepository(db)
	permissionRepo := postgres.NewPermissionRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	// Services
	auditSvc := audit.NewService(auditRepo, nil)
	identitySvc := identity.NewService(userRepo, groupRepo)
	authzSvc := authz.NewService(permissionRepo, identitySvc, auditSvc)

	evaluator := policy.NewEvaluator(namedRuleRepo, identitySvc)
	policySvc := policy.NewService(policyRepo, namedRuleRepo, evaluator, auditSvc)

	registry := executor.NewRegistry(executor.Deps{
		Identity:    identitySvc,
		Policy:      policySvc,
		Permissions: authzSvc,
		Logger:      logger,
	})

	requestSvc := request.NewService(request.ServiceConfig{
		Repository:        requestRepo,
		Policies:          policySvc,
		Authorizer:        authzSvc,
		Directory:         identitySvc,
		Executors:         registry,
		Notifier:          request.NewLoggingSink(logger),
		Audit:             auditSvc,
		Logger:            logger,
		ExpirationHorizon: cfg.Requests.ExpirationHorizon,
		LockExpiry:        cfg.Requests.LockExpiry,
	})

	// The station is initialized once the schema and services are up; from
	// here the permission table governs access.
	authzSvc.SetReady()

	// Background jobs
	request.NewExpirationJob(requestSvc, cfg.Jobs.ExpirationInterval, logger).Start(ctx)
	request.NewScheduledExecutionJob(requestSvc, cfg.Jobs.ExecutionInterval, logger).Start(ctx)

	// HTTP server
	healthChecker := api.NewHealthChecker(logger)
	healthChecker.Register("database", db.HealthCheck)

	router := api.NewRouter(&api.RouterConfig{
		Logger:        logger,
		RateLimiter:   ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateBurst),
		Metrics:       metrics.NewStationMetrics(version),
		HealthChecker: healthChecker,
	}, &api.Services{
		Request:  requestSvc,
		Policy:   policySvc,
		Authz:    authzSvc,
		Identity: identitySvc,
		Audit:    auditSvc,
	})

	server := api.NewServer(router, &api.ServerConfig{
		Addr:         cfg.Server.Addr(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		Logger:       logger,
	})

	go func() {
		if err := server.Start(ctx); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
