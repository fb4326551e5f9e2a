package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/animehub-api/internal/handler"
	"github.com/noah-isme/animehub-api/internal/middleware"
	"github.com/noah-isme/animehub-api/internal/service"
	"github.com/noah-isme/animehub-api/pkg/config"
	"github.com/noah-isme/animehub-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/animehub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/animehub-api/pkg/middleware/requestid"
	"github.com/noah-isme/animehub-api/pkg/observability"
	"github.com/noah-isme/animehub-api/pkg/ratelimit"
)

type routerDeps struct {
	auth       *handler.AuthHandler
	probes     *handler.MetricsHandler
	metricsSvc *service.MetricsService
	verifier   middleware.AccessVerifier
	limiter    ratelimit.Limiter
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(observability.Recovery(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metricsSvc))

	r.GET("/health", deps.probes.Health)
	r.GET("/ready", deps.probes.Ready)
	r.GET("/metrics", deps.probes.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	auth := r.Group(prefix + "/auth")
	{
		auth.POST("/register", middleware.RateLimit("register", deps.limiter, deps.metricsSvc, logr), deps.auth.Register)
		auth.POST("/login", middleware.RateLimit("login", deps.limiter, deps.metricsSvc, logr), deps.auth.Login)
		auth.POST("/token", middleware.OptionalJWT(deps.verifier), deps.auth.Token)

		gated := auth.Group("")
		gated.Use(middleware.JWT(deps.verifier))
		gated.POST("/logout", deps.auth.Logout)
		gated.POST("/logout-all", deps.auth.LogoutAll)
		gated.POST("/change-password", deps.auth.ChangePassword)
		gated.GET("/me", deps.auth.Me)
	}

	return r
}
