package http

import (
	"github.com/orris-inc/quickpay/internal/application/quickpay/usecases"
	"github.com/orris-inc/quickpay/internal/infrastructure/ratelimit"
)

// allUseCases holds all use case instances used by the application.
type allUseCases struct {
	// Sessions
	createSessionUC *usecases.CreateSessionUseCase
	getSessionUC    *usecases.GetSessionUseCase
	revokeSessionUC *usecases.RevokeSessionUseCase

	// Payments
	submitQuickPayUC   *usecases.SubmitQuickPayUseCase
	getPaymentStatusUC *usecases.GetPaymentStatusUseCase
	cancelPaymentUC    *usecases.CancelPaymentUseCase

	// Relayer
	getRelayerStatusUC *usecases.GetRelayerStatusUseCase
}

func (c *Container) initUseCases() {
	log := c.log
	repos := c.repos

	// The queue and status provider stay nil interfaces when the relayer runs elsewhere.
	var queue usecases.PaymentQueue
	var status usecases.RelayerStatusProvider
	if c.relayer != nil {
		queue = c.queue
		status = c.relayer
	}

	var limiter usecases.RateLimiter
	if perMinute := c.cfg.API.RateLimitPerMinute; perMinute > 0 {
		limiter = ratelimit.NewKeyedLimiter(
			ratelimit.NewRedisRateLimiter(c.redis),
			ratelimit.RateLimitConfig{RequestsPerMinute: perMinute},
		)
	}

	c.ucs = &allUseCases{
		createSessionUC: usecases.NewCreateSessionUseCase(repos.sessionRepo, c.verifier, c.gateway, log),
		getSessionUC:    usecases.NewGetSessionUseCase(repos.sessionRepo, c.gateway, log),
		revokeSessionUC: usecases.NewRevokeSessionUseCase(repos.sessionRepo, c.sessionCache, c.gateway, log),

		submitQuickPayUC: usecases.NewSubmitQuickPayUseCase(
			c.sessionCache, c.verifier, c.enforcer, repos.paymentRepo, queue, limiter, log,
		),
		getPaymentStatusUC: usecases.NewGetPaymentStatusUseCase(repos.paymentRepo, log),
		cancelPaymentUC: usecases.NewCancelPaymentUseCase(
			repos.paymentRepo, c.enforcer, queue, c.cfg.Relayer.StaleAfter, log,
		),

		getRelayerStatusUC: usecases.NewGetRelayerStatusUseCase(status, repos.paymentRepo, log),
	}
}
