package router

import (
	"time"

	"github.com/builder-feedback/feedback-slack/internal/auth"
	"github.com/builder-feedback/feedback-slack/internal/config"
	"github.com/builder-feedback/feedback-slack/internal/handlers"
	"github.com/builder-feedback/feedback-slack/internal/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Deps struct {
	Config   config.Config
	Signer   *auth.Signer
	Slack    *handlers.SlackHandler
	Proxy    *handlers.ProxyHandler
	Hub      *handlers.Hub
	Database handlers.Pinger
}

func NewRouter(deps Deps) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.Config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RequestID())

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheck(deps.Database))
		api.GET("/ws", middleware.AuthMiddleware(deps.Signer), deps.Hub.WebSocket)

		// Slack calls this path directly (OAuth redirect, slash commands)
		api.Any("/integrations/slack", middleware.OptionalAuth(deps.Signer), deps.Slack.Handle)
		api.GET("/integrations/slack/notifications", middleware.AuthMiddleware(deps.Signer), deps.Slack.ListNotifications)

		// method check lives in the handler so it can answer with its own message
		api.Any("/slack-proxy", deps.Proxy.Proxy)
	}

	return r
}
