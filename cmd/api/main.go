package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/animehub-api/api/swagger"
	"github.com/noah-isme/animehub-api/internal/handler"
	"github.com/noah-isme/animehub-api/internal/repository"
	"github.com/noah-isme/animehub-api/internal/service"
	"github.com/noah-isme/animehub-api/pkg/cache"
	"github.com/noah-isme/animehub-api/pkg/config"
	"github.com/noah-isme/animehub-api/pkg/database"
	"github.com/noah-isme/animehub-api/pkg/jobs"
	"github.com/noah-isme/animehub-api/pkg/logger"
	"github.com/noah-isme/animehub-api/pkg/observability"
	"github.com/noah-isme/animehub-api/pkg/ratelimit"
)

// @title AnimeHub API
// @version 1.0.0
// @description Account and session endpoints for AnimeHub
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Sentry.DSN != "" {
		if err := observability.InitSentry(cfg.Sentry.DSN, cfg.Env); err != nil {
			logr.Warn("sentry disabled", zap.Error(err))
		} else {
			defer observability.FlushSentry()
		}
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.DB); err != nil {
			return err
		}
		logr.Info("database migrations applied")
	}

	metricsSvc := service.NewMetricsService()
	userRepo := repository.NewUserRepository(db, metricsSvc)
	sessionRepo := repository.NewSessionRepository(db, metricsSvc)
	auditRepo := repository.NewAuditRepository(db)

	limiter := ratelimit.Limiter(ratelimit.NewMemory(cfg.RateLimit.LoginLimit, cfg.RateLimit.LoginWindow))
	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	switch {
	case err != nil:
		logr.Warn("redis unavailable, using in-process rate limiter", zap.Error(err))
	case redisClient != nil:
		defer redisClient.Close() //nolint:errcheck
		limiter = ratelimit.NewRedis(redisClient, "animehub:ratelimit:", cfg.RateLimit.LoginLimit, cfg.RateLimit.LoginWindow)
	}

	issuer, err := service.NewTokenIssuer(service.SigningConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.Expiration,
		RefreshTTL:    cfg.JWT.RefreshExpiration,
		Issuer:        cfg.JWT.Issuer,
	})
	if err != nil {
		return fmt.Errorf("build token issuer: %w", err)
	}

	auditWorker := service.NewAuditWorker(auditRepo, logr)
	auditQueue := jobs.NewQueue("audit", auditWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: 2,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	auditQueue.Start(context.Background())
	defer auditQueue.Stop()
	auditSvc := service.NewAuditService(auditQueue, metricsSvc, logr)

	authSvc := service.NewAuthService(userRepo, sessionRepo, issuer, auditSvc, metricsSvc, validator.New(), logr, service.AuthConfig{
		MaxRotations: cfg.Sessions.MaxRotations,
	})

	sweeper := service.NewSessionSweeper(sessionRepo, metricsSvc, logr, cfg.Sessions.SweepInterval)
	go sweeper.Run(ctx)

	router := newRouter(cfg, logr, routerDeps{
		auth:       handler.NewAuthHandler(authSvc),
		probes:     handler.NewMetricsHandler(metricsSvc, db),
		metricsSvc: metricsSvc,
		verifier:   issuer,
		limiter:    limiter,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
