package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/orris-inc/quickpay/internal/interfaces/http/middleware"
	"github.com/orris-inc/quickpay/internal/interfaces/http/routes"
	"github.com/orris-inc/quickpay/internal/shared/utils"

	_ "github.com/orris-inc/quickpay/docs"
)

// SetupRoutes configures all HTTP routes
func (c *Container) SetupRoutes() {
	c.engine.Use(middleware.Recovery(c.log))
	c.engine.Use(middleware.RequestLogger(c.log.Named("http")))

	c.engine.GET("/healthz", c.hdlrs.healthHandler.Healthz)
	if c.cfg.API.EnableSwagger {
		c.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := c.engine.Group("/api/v1")
	api.Use(c.ipRateLimiter.Limit())
	api.Use(middleware.APIKeyAuth(c.cfg.API.APIKeys, c.log.Named("auth")))

	routes.SetupSessionRoutes(api, &routes.SessionRouteConfig{
		SessionHandler:     c.hdlrs.sessionHandler,
		EventStreamHandler: c.hdlrs.eventStreamHandler,
	})

	routes.SetupQuickPayRoutes(api, &routes.QuickPayRouteConfig{
		QuickPayHandler: c.hdlrs.quickPayHandler,
	})

	c.engine.NoRoute(func(ctx *gin.Context) {
		utils.ErrorResponse(ctx, http.StatusNotFound, "route not found")
	})
}
