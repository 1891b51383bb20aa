package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/rajkayal/hubauth/internal/app"
	iauth "github.com/rajkayal/hubauth/internal/auth"
	"github.com/rajkayal/hubauth/internal/handlers"
	"github.com/rajkayal/hubauth/internal/middleware"
	"github.com/rajkayal/hubauth/internal/models"
	"github.com/rajkayal/hubauth/internal/services"
)

// Deps carries the wired services the router mounts handlers on.
type Deps struct {
	DB       *gorm.DB
	JWT      *iauth.JWTService
	StepUp   *iauth.StepUpService
	Accounts *services.AccountService
	OTP      *services.OTPService
	Audit    *services.AuditService
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(cfg *app.Config, deps Deps) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil || deps.StepUp == nil || deps.Accounts == nil || deps.OTP == nil {
		return nil, fmt.Errorf("all services must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins...))
	if cfg.Auth.RateLimit.Enabled {
		window := cfg.Auth.RateLimit.Window
		if window <= 0 {
			window = time.Minute
		}
		r.Use(middleware.RateLimit(cfg.Auth.RateLimit.Requests, window))
	}

	r.NoRoute(middleware.NotFoundHandler)

	// Health endpoint (public)
	r.GET("/healthz", handlers.Health(deps.DB))

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	authHandler := handlers.NewAuthHandler(deps.StepUp, deps.Accounts, deps.JWT)
	otpHandler := handlers.NewOTPHandler(deps.OTP)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/register", authHandler.Register)
		auth.POST("/reset-password", authHandler.ResetPassword)
		auth.POST("/google", authHandler.FederatedLogin(models.ProviderGoogle))
		auth.POST("/apple", authHandler.FederatedLogin(models.ProviderApple))
		auth.POST("/facebook", authHandler.FederatedLogin(models.ProviderFacebook))
	}

	// One-time code routes are public: the code itself is the proof.
	otpRoutes := r.Group("/api/otp")
	{
		otpRoutes.POST("/send", otpHandler.Send)
		otpRoutes.POST("/verify", otpHandler.Verify)
		otpRoutes.POST("/resend", otpHandler.Resend)
		otpRoutes.GET("/status", otpHandler.Status)
	}

	// Protected routes
	requireAuth := middleware.Auth(deps.JWT)

	authed := r.Group("/api/auth")
	authed.Use(requireAuth)
	{
		authed.GET("/me", authHandler.Me)
		authed.PUT("/update", authHandler.UpdateProfile)
		authed.PUT("/change-password", authHandler.ChangePassword)
	}

	if deps.Audit != nil {
		auditHandler := handlers.NewAuditHandler(deps.Audit)
		r.GET("/api/audit", requireAuth, middleware.RequirePrivilege(), auditHandler.Recent)
	}

	return r, nil
}
