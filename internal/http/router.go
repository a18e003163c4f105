package http

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/geocoder89/sevico/internal/config"
	"github.com/geocoder89/sevico/internal/http/handlers"
	"github.com/geocoder89/sevico/internal/http/middlewares"
	"github.com/geocoder89/sevico/internal/observability"
)

type RouterDeps struct {
	Config config.Config
	Logger *slog.Logger
	Auth   handlers.AuthService
	Prom   *observability.Prom
	// Ping reports store readiness for /readyz.
	Ping func(ctx context.Context) error
}

func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(deps.Logger))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.HTTP.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(cfg.HTTP.MaxBodyBytes))

	// health
	h := handlers.NewHealthHandler(cfg.ServiceName, cfg.Version, deps.Ping)
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Prom != nil {
		r.GET("/metrics", gin.WrapH(deps.Prom.Handler()))
	}

	docs := r.Group("/docs", gin.BasicAuth(gin.Accounts{cfg.Docs.Username: cfg.Docs.Password}))
	docs.GET("", handlers.SwaggerUI)
	docs.GET("/openapi.yaml", handlers.OpenAPISpec)

	// auth
	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Logger)

	api := r.Group("/api/auth", middlewares.RequireJSON())
	api.POST("/signup", authHandler.Signup)
	api.POST("/verify-email", authHandler.VerifyEmail)
	api.POST("/signin", authHandler.Signin)
	api.POST("/validate-token", authHandler.ValidateToken)
	api.POST("/password-reset", authHandler.PasswordReset)
	api.POST("/password-reset-confirm", authHandler.PasswordResetConfirm)
	api.GET("/me", authHandler.Me)

	return r
}
