package http

import (
	"context"

	"github.com/orris-inc/quickpay/internal/infrastructure/database"
	"github.com/orris-inc/quickpay/internal/interfaces/http/handlers"
	"github.com/orris-inc/quickpay/internal/interfaces/http/handlers/common"
)

// allHandlers holds all HTTP handler instances.
type allHandlers struct {
	sessionHandler     *handlers.SessionHandler
	quickPayHandler    *handlers.QuickPayHandler
	eventStreamHandler *handlers.EventStreamHandler
	healthHandler      *handlers.HealthHandler
}

func (c *Container) initHandlers() {
	log := c.log
	ucs := c.ucs

	handlers.RegisterValidators()

	c.hdlrs = &allHandlers{
		sessionHandler: handlers.NewSessionHandler(
			ucs.createSessionUC,
			ucs.getSessionUC,
			ucs.revokeSessionUC,
			ucs.getPaymentStatusUC,
			log,
		),
		quickPayHandler: handlers.NewQuickPayHandler(
			ucs.submitQuickPayUC,
			ucs.getPaymentStatusUC,
			ucs.cancelPaymentUC,
			ucs.getRelayerStatusUC,
			log,
		),
		eventStreamHandler: handlers.NewEventStreamHandler(
			common.NewSSEHandlerBase(c.eventHub, log.Named("sse")),
			ucs.getSessionUC,
		),
		healthHandler: handlers.NewHealthHandler(
			handlers.HealthCheck{Name: "database", Check: func(ctx context.Context) error {
				return database.CheckHealth(ctx, c.db)
			}},
			handlers.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
				return c.redis.Ping(ctx).Err()
			}},
		),
	}
}
