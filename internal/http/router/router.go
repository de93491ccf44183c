package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"

	"github.com/ignatzorin/nova-auth/internal/config"
	"github.com/ignatzorin/nova-auth/internal/http/handlers"
	"github.com/ignatzorin/nova-auth/internal/http/middleware"
	"github.com/ignatzorin/nova-auth/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	otpHandler *handlers.OTPHandler,
	passwordHandler *handlers.PasswordHandler,
	authHandler *handlers.AuthHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
	rateLimitStore limiter.Store,
	gatherer prometheus.Gatherer,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if !cfg.IsProduction() {
		r.Use(gin.Logger())
	}
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	if healthHandler != nil {
		r.GET("/health", healthHandler.Health)
	}
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	if wsHandler != nil {
		api.GET("/ws", wsHandler.Handle)
	}

	// Один счётчик на IP для всех маршрутов /auth, включая защищённые.
	rateLimit := middleware.RateLimitMiddleware(rateLimitStore, cfg.RateLimitLimit, cfg.RateLimitPeriod)

	authGroup := api.Group("/auth")
	authGroup.Use(rateLimit)
	{
		authGroup.POST("/otp/send", otpHandler.Send)
		authGroup.POST("/otp/verify", otpHandler.Verify)
		authGroup.POST("/otp/set-password", middleware.SignupFlow(), otpHandler.SetPassword)

		authGroup.POST("/password/request-otp", passwordHandler.RequestOTP)
		authGroup.POST("/password/verify-otp", passwordHandler.VerifyOTP)
		authGroup.POST("/password/reset", passwordHandler.Reset)

		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/token/refresh", authHandler.Refresh)
	}

	protectedAuth := api.Group("/auth")
	protectedAuth.Use(rateLimit, middleware.AuthMiddleware(tokenManager))
	{
		protectedAuth.POST("/password/change", passwordHandler.Change)
		protectedAuth.POST("/logout", authHandler.Logout)
		protectedAuth.GET("/token", authHandler.Token)
	}

	return r
}
