package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/orris-inc/quickpay/internal/interfaces/http/handlers"
)

// QuickPayRouteConfig holds dependencies for payment and relayer routes.
type QuickPayRouteConfig struct {
	QuickPayHandler *handlers.QuickPayHandler
}

// SetupQuickPayRoutes configures payment and relayer routes.
func SetupQuickPayRoutes(api *gin.RouterGroup, cfg *QuickPayRouteConfig) {
	quickpay := api.Group("/quickpay")
	{
		quickpay.POST("", cfg.QuickPayHandler.SubmitQuickPay)
		quickpay.GET("/:payment_id", cfg.QuickPayHandler.GetPaymentStatus)
		quickpay.POST("/:payment_id/cancel", cfg.QuickPayHandler.CancelPayment)
	}

	api.GET("/relayer/status", cfg.QuickPayHandler.GetRelayerStatus)
}
