package http

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/orris-inc/quickpay/internal/application/quickpay/quota"
	"github.com/orris-inc/quickpay/internal/application/quickpay/signature"
	"github.com/orris-inc/quickpay/internal/application/relay"
	relaysettlement "github.com/orris-inc/quickpay/internal/application/relay/settlement"
	"github.com/orris-inc/quickpay/internal/infrastructure/cache"
	"github.com/orris-inc/quickpay/internal/infrastructure/config"
	"github.com/orris-inc/quickpay/internal/infrastructure/pubsub"
	"github.com/orris-inc/quickpay/internal/infrastructure/scheduler"
	"github.com/orris-inc/quickpay/internal/infrastructure/services"
	"github.com/orris-inc/quickpay/internal/interfaces/http/middleware"
	"github.com/orris-inc/quickpay/internal/shared/db"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

// ContainerOptions selects which parts of the service run in this process.
type ContainerOptions struct {
	// RunRelayer wires the batch relayer and its scheduler job.
	RunRelayer bool
}

// Container holds all infrastructure components, repositories, use cases, handlers,
// and background services. It is responsible for wiring everything together and
// providing a Shutdown() method for graceful termination.
type Container struct {
	// Core infrastructure
	engine *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
	log    logger.Interface
	redis  *redis.Client
	opts   ContainerOptions

	// Repositories
	repos *repositories

	// Use cases
	ucs *allUseCases

	// Handlers
	hdlrs *allHandlers

	// Middlewares
	ipRateLimiter *middleware.IPRateLimiter

	// Quick-pay services
	txManager    *db.TransactionManager
	sessionCache *cache.SessionCache
	enforcer     *quota.Enforcer
	verifier     *signature.Verifier
	gateway      relaysettlement.Gateway
	closeGateway func()

	// Relayer, present when opts.RunRelayer is set
	queue            *relay.PaymentQueue
	relayer          *relay.BatchRelayer
	relayerLock      *cache.RelayerLock
	relayJob         *scheduler.RelayJob
	schedulerManager *scheduler.SchedulerManager

	// Payment event bus for cross-instance SSE relay
	eventBus         *pubsub.PaymentEventBus
	eventHub         *services.PaymentHub
	eventBusCancel   context.CancelFunc
	eventBusCancelMu sync.Mutex
}

// NewContainer creates a new Container with all dependencies wired together.
func NewContainer(ctx context.Context, db *gorm.DB, redisClient *redis.Client, cfg *config.Config, log logger.Interface, opts ContainerOptions) (*Container, error) {
	c := &Container{
		engine: gin.New(),
		db:     db,
		cfg:    cfg,
		log:    log,
		redis:  redisClient,
		opts:   opts,
	}

	// Section 1: Infrastructure - Repositories, Transactions, Settlement Gateway
	if err := c.initInfrastructure(ctx); err != nil {
		return nil, err
	}

	// Section 2: Events - Redis Event Bus, SSE Hub
	c.initEvents()

	// Section 3: Relayer - Queue, Batch Relayer, Leader Lock, Scheduler Job
	if err := c.initRelayer(); err != nil {
		c.closeGateway()
		return nil, err
	}

	// Section 4: Use cases and handlers
	c.initUseCases()
	c.initHandlers()

	return c, nil
}

// Engine returns the Gin engine
func (c *Container) Engine() *gin.Engine {
	return c.engine
}

// Start launches background work: the event bus subscription and, when
// configured, the relayer scheduler.
func (c *Container) Start(ctx context.Context) {
	c.startEventBus(ctx)
	c.StartRelayer()
}

// StartRelayer starts the relayer scheduler. It is a no-op without RunRelayer.
func (c *Container) StartRelayer() {
	if c.schedulerManager != nil {
		c.schedulerManager.Start()
	}
}

// Shutdown gracefully stops background work. The relayer finishes its current
// cycle before leadership is released.
func (c *Container) Shutdown(ctx context.Context) {
	if c.schedulerManager != nil {
		if err := c.schedulerManager.Stop(); err != nil {
			c.log.Errorw("failed to stop scheduler", "error", err)
		}
	}

	if c.relayJob != nil {
		if err := c.relayJob.Resign(ctx); err != nil {
			c.log.Warnw("failed to release relayer lock", "error", err)
		}
	}

	c.eventBusCancelMu.Lock()
	if c.eventBusCancel != nil {
		c.eventBusCancel()
		c.eventBusCancel = nil
	}
	c.eventBusCancelMu.Unlock()

	// Close all SSE connections so the HTTP server shutdown can proceed quickly
	if c.eventHub != nil {
		c.eventHub.Shutdown()
	}

	if c.closeGateway != nil {
		c.closeGateway()
	}
}
