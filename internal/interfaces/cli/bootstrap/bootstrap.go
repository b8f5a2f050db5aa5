// Package bootstrap loads configuration and opens the shared connections used
// by every command.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/orris-inc/quickpay/internal/infrastructure/config"
	"github.com/orris-inc/quickpay/internal/infrastructure/database"
	"github.com/orris-inc/quickpay/internal/shared/biztime"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

// Runtime is the process-wide state a command runs against.
type Runtime struct {
	Config *config.Config
	Log    logger.Interface
	DB     *gorm.DB
	Redis  *redis.Client
}

// Options selects what Load opens beyond configuration and logging.
type Options struct {
	Env        string
	ConfigPath string
	WithRedis  bool
}

// Load reads the configuration, initializes logging and the settlement-day
// timezone, then opens the database and optionally Redis.
func Load(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := config.Load(opts.Env, opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger, cfg.Server.Mode == "debug"); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.NewLogger()

	// Daily quota windows roll over at midnight in this timezone.
	if err := biztime.Init(cfg.Chain.Timezone); err != nil {
		return nil, fmt.Errorf("failed to initialize business timezone: %w", err)
	}

	if err := database.Init(&cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	rt := &Runtime{
		Config: cfg,
		Log:    log,
		DB:     database.Get(),
	}

	if opts.WithRedis {
		rt.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rt.Redis.Ping(ctx).Err(); err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Infow("Redis connection established successfully", "address", cfg.Redis.GetAddr())
	}

	return rt, nil
}

// Close releases the connections opened by Load.
func (rt *Runtime) Close() {
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			rt.Log.Warnw("failed to close Redis client", "error", err)
		}
	}
	if err := database.Close(); err != nil {
		rt.Log.Warnw("failed to close database", "error", err)
	}
}
