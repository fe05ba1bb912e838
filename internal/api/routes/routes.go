// Package routes defines the HTTP routes for the chat relay.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/unifiedui/chat-relay/internal/api/handlers"
	"github.com/unifiedui/chat-relay/internal/api/middleware"
)

// BasePath is the prefix of every API route.
const BasePath = "/api/v1/chat"

// Config holds the dependencies for setting up routes.
type Config struct {
	HealthHandler   *handlers.HealthHandler
	ChatHandler     *handlers.ChatHandler
	SessionsHandler *handlers.SessionsHandler
	AuthMiddleware  *middleware.AuthMiddleware

	// EnableDocs serves the OpenAPI UI under /docs.
	EnableDocs bool
	// EnableMetrics serves the Prometheus registry under /metrics.
	EnableMetrics bool
}

// Setup configures all routes on the Gin engine.
func Setup(r *gin.Engine, cfg *Config) {
	r.NoRoute(middleware.NotFound())
	r.NoMethod(middleware.MethodNotAllowed())

	if cfg.EnableMetrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	if cfg.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := r.Group(BasePath)
	{
		// Health check routes (no auth required)
		v1.GET("/health", cfg.HealthHandler.Health)
		v1.GET("/ready", cfg.HealthHandler.Ready)
		v1.GET("/live", cfg.HealthHandler.Live)

		protected := v1.Group("")
		protected.Use(cfg.AuthMiddleware.Authenticate())

		protected.POST("/stream", cfg.ChatHandler.Stream)

		sessions := protected.Group("/sessions")
		{
			sessions.POST("", cfg.SessionsHandler.CreateSession)
			sessions.GET("", cfg.SessionsHandler.ListSessions)

			sessions.GET("/:sessionId", cfg.SessionsHandler.GetSession)
			sessions.DELETE("/:sessionId", cfg.SessionsHandler.DeleteSession)

			sessions.GET("/:sessionId/messages", cfg.SessionsHandler.GetMessages)
			sessions.DELETE("/:sessionId/messages", cfg.SessionsHandler.ClearMessages)

			sessions.GET("/:sessionId/turns", cfg.SessionsHandler.ListTurns)
		}
	}
}

// SetupWithMiddleware sets up routes with common middleware.
func SetupWithMiddleware(r *gin.Engine, cfg *Config, loggingMw *middleware.LoggingMiddleware, errorMw *middleware.ErrorMiddleware, corsCfg middleware.CORSConfig) {
	// Apply global middleware
	r.HandleMethodNotAllowed = true
	r.Use(loggingMw.RequestLogger())
	r.Use(loggingMw.Logger())
	r.Use(errorMw.Recovery())
	r.Use(middleware.NewCORSMiddleware(corsCfg))

	// Setup routes
	Setup(r, cfg)
}
