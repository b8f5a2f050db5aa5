package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/orris-inc/quickpay/internal/interfaces/http/handlers"
)

// SessionRouteConfig holds dependencies for session routes.
type SessionRouteConfig struct {
	SessionHandler     *handlers.SessionHandler
	EventStreamHandler *handlers.EventStreamHandler
}

// SetupSessionRoutes configures session routes.
func SetupSessionRoutes(api *gin.RouterGroup, cfg *SessionRouteConfig) {
	sessions := api.Group("/sessions")
	{
		sessions.POST("", cfg.SessionHandler.CreateSession)
		sessions.GET("/:id", cfg.SessionHandler.GetSession)
		sessions.POST("/:id/revoke", cfg.SessionHandler.RevokeSession)
		sessions.GET("/:id/payments", cfg.SessionHandler.ListSessionPayments)
		sessions.GET("/:id/events", cfg.EventStreamHandler.StreamSessionEvents)
	}
}
