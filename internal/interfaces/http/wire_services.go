package http

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/orris-inc/quickpay/internal/application/quickpay/quota"
	"github.com/orris-inc/quickpay/internal/application/quickpay/signature"
	"github.com/orris-inc/quickpay/internal/application/relay"
	"github.com/orris-inc/quickpay/internal/infrastructure/cache"
	"github.com/orris-inc/quickpay/internal/infrastructure/pubsub"
	"github.com/orris-inc/quickpay/internal/infrastructure/scheduler"
	"github.com/orris-inc/quickpay/internal/infrastructure/services"
	"github.com/orris-inc/quickpay/internal/infrastructure/settlement"
	"github.com/orris-inc/quickpay/internal/interfaces/http/middleware"
	"github.com/orris-inc/quickpay/internal/shared/db"
	"github.com/orris-inc/quickpay/internal/shared/goroutine"
)

// ============================================================
// Section 1: Infrastructure - Repositories, Transactions, Settlement Gateway
// ============================================================

func (c *Container) initInfrastructure(ctx context.Context) error {
	cfg := c.cfg
	log := c.log

	c.repos = newRepositories(c.db)
	c.txManager = db.NewTransactionManager(c.db)

	c.enforcer = quota.NewEnforcer(c.repos.sessionRepo, c.txManager, log.Named("quota"))
	c.sessionCache = cache.NewSessionCache(c.repos.sessionRepo, cfg.Cache.SessionSize, cfg.Cache.SessionTTL, log.Named("session_cache"))
	c.verifier = signature.NewVerifier(cfg.Chain.ChainID, common.HexToAddress(cfg.Chain.SettlementContract))

	gateway, closeGateway, err := settlement.NewGateway(ctx, cfg.Chain, log.Named("settlement"))
	if err != nil {
		return fmt.Errorf("failed to initialize settlement gateway: %w", err)
	}
	c.gateway = gateway
	c.closeGateway = closeGateway

	c.ipRateLimiter = middleware.NewIPRateLimiter(c.redis, cfg.API.IPRateLimitPerMin, time.Minute, log.Named("ratelimit"))
	return nil
}

// ============================================================
// Section 2: Events - Redis Event Bus, SSE Hub
// ============================================================

func (c *Container) initEvents() {
	c.eventBus = pubsub.NewPaymentEventBus(c.redis, c.cfg.API.EventChannel, c.log.Named("event_bus"))
	c.eventHub = services.NewPaymentHub(c.log.Named("event_hub"), &services.PaymentHubConfig{
		MaxConns:           c.cfg.API.StreamMaxConns,
		MaxConnsPerSession: c.cfg.API.StreamMaxConnsPerSession,
	})
}

// startEventBus relays events published by any relayer instance to the SSE
// clients connected to this one.
func (c *Container) startEventBus(parent context.Context) {
	c.eventBusCancelMu.Lock()
	defer c.eventBusCancelMu.Unlock()

	if c.eventBusCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	c.eventBusCancel = cancel

	goroutine.SafeGo(c.log, "payment-event-bus", func() {
		err := c.eventBus.Subscribe(ctx, func(msg pubsub.PaymentEventMessage) {
			c.eventHub.Broadcast(msg.PaymentEvent)
		})
		if err != nil && ctx.Err() == nil {
			c.log.Errorw("payment event subscription stopped", "error", err)
		}
	})
}

// ============================================================
// Section 3: Relayer - Queue, Batch Relayer, Leader Lock, Scheduler Job
// ============================================================

func (c *Container) initRelayer() error {
	if !c.opts.RunRelayer {
		return nil
	}
	rc := c.cfg.Relayer
	log := c.log.Named("relayer")

	c.queue = relay.NewPaymentQueue(rc.StaleAfter)
	retry := relay.RetryPolicy{
		MaxRetries:          rc.MaxRetries,
		InitialInterval:     rc.BackoffInitial,
		MaxInterval:         rc.BackoffMax,
		Multiplier:          rc.BackoffMultiplier,
		RandomizationFactor: rc.BackoffJitter,
	}

	c.relayer = relay.NewBatchRelayer(
		c.repos.paymentRepo,
		c.repos.sessionRepo,
		c.enforcer,
		c.gateway,
		c.queue,
		retry,
		c.eventBus,
		relay.Config{
			BatchSize:           rc.BatchSize,
			Workers:             rc.Workers,
			SubmitTimeout:       rc.SubmitTimeout,
			ConfirmTimeout:      rc.ConfirmTimeout,
			ConfirmPollInterval: rc.ConfirmPollInterval,
			DroppedAfter:        rc.DroppedAfter,
		},
		log,
	)

	c.relayerLock = cache.NewRelayerLock(c.redis, "", rc.LockTTL, log.Named("lock"))
	c.relayJob = scheduler.NewRelayJob(c.relayer, c.relayerLock, log)

	manager, err := scheduler.NewSchedulerManager(c.log.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	// A cycle may submit and then wait for confirmation, plus recovery on takeover.
	cycleTimeout := rc.SubmitTimeout + rc.ConfirmTimeout + rc.Interval
	if err := manager.RegisterRelayJob(c.relayJob, rc.Interval, cycleTimeout); err != nil {
		return fmt.Errorf("failed to register relay job: %w", err)
	}
	c.schedulerManager = manager
	return nil
}
