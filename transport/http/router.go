package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/CatastropheArena/Catastrophe-Genesis/service"
)

// RouterOptions tune the transport layer.
type RouterOptions struct {
	// RateLimit is the per-IP request rate; zero disables limiting.
	RateLimit rate.Limit
	// RateBurst is the per-IP burst size.
	RateBurst int
}

// SetupRouter sets up the Gin router
func SetupRouter(keyService *service.KeyService, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), MetricsMiddleware())
	if opts.RateLimit > 0 {
		router.Use(RateLimitMiddleware(opts.RateLimit, opts.RateBurst))
	}

	handlers := NewKeyHandlers(keyService)

	// Key issuance routes
	v1 := router.Group("/v1")
	{
		v1.POST("/fetch_key", handlers.FetchKey)
		v1.GET("/service", handlers.Service)
	}

	// Session routes
	auth := router.Group("/auth")
	{
		auth.POST("/session_token", handlers.SessionToken)
		auth.POST("/encrypted_session_token", handlers.EncryptedSessionToken)
		auth.POST("/logout", handlers.Logout)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(keyService))
	{
		api.GET("/credentials", handlers.Credentials)
	}

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
