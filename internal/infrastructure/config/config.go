package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	sharedConfig "github.com/orris-inc/quickpay/internal/shared/config"
)

type Config struct {
	Server   sharedConfig.ServerConfig   `mapstructure:"server"`
	Database sharedConfig.DatabaseConfig `mapstructure:"database"`
	Logger   sharedConfig.LoggerConfig   `mapstructure:"logger"`
	Redis    sharedConfig.RedisConfig    `mapstructure:"redis"`
	Chain    sharedConfig.ChainConfig    `mapstructure:"chain"`
	Relayer  sharedConfig.RelayerConfig  `mapstructure:"relayer"`
	API      sharedConfig.APIConfig      `mapstructure:"api"`
	Cache    sharedConfig.CacheConfig    `mapstructure:"cache"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load reads configs/config.yaml (or configPath when set) and QUICKPAY_* env overrides.
func Load(env, configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix("QUICKPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if env != "" && env != "default" {
		v.Set("server.mode", env)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	appConfigMu.Lock()
	appConfig = &cfg
	appConfigMu.Unlock()

	return &cfg, nil
}

// Get returns the last loaded configuration.
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

// Validate rejects settings the relayer cannot run with.
func (c *Config) Validate() error {
	switch c.Chain.Gateway {
	case "mock":
	case "evm":
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("chain.rpc_url is required for the evm gateway")
		}
		if c.Chain.RelayerPrivateKey == "" {
			return fmt.Errorf("chain.relayer_private_key is required for the evm gateway")
		}
	default:
		return fmt.Errorf("unknown chain.gateway %q", c.Chain.Gateway)
	}
	if c.Chain.SettlementContract == "" {
		return fmt.Errorf("chain.settlement_contract is required")
	}
	if c.Relayer.BatchSize <= 0 {
		return fmt.Errorf("relayer.batch_size must be positive")
	}
	if c.Relayer.MaxRetries <= 0 {
		return fmt.Errorf("relayer.max_retries must be positive")
	}
	// Staleness counts from acceptance. A dropped transaction is only detected
	// after dropped_after, and its retry waits up to backoff_max more.
	if c.Relayer.StaleAfter <= c.Relayer.DroppedAfter+c.Relayer.BackoffMax {
		return fmt.Errorf("relayer.stale_after (%s) must exceed dropped_after + backoff_max (%s)",
			c.Relayer.StaleAfter, c.Relayer.DroppedAfter+c.Relayer.BackoffMax)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.username", "root")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "quickpay_dev")
	v.SetDefault("database.path", "quickpay.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("chain.gateway", "mock")
	v.SetDefault("chain.chain_id", 31337)
	v.SetDefault("chain.settlement_contract", "0x0000000000000000000000000000000000005e77")
	v.SetDefault("chain.token_decimals", 6)
	v.SetDefault("chain.timezone", "UTC")
	v.SetDefault("chain.rpc_timeout", "15s")

	v.SetDefault("relayer.embedded", true)
	v.SetDefault("relayer.interval", "20s")
	v.SetDefault("relayer.batch_size", 50)
	v.SetDefault("relayer.workers", 4)
	v.SetDefault("relayer.max_retries", 3)
	v.SetDefault("relayer.backoff_initial", "5s")
	v.SetDefault("relayer.backoff_max", "5m")
	v.SetDefault("relayer.backoff_multiplier", 2.0)
	v.SetDefault("relayer.backoff_jitter", 0.2)
	v.SetDefault("relayer.stale_after", "30m")
	v.SetDefault("relayer.submit_timeout", "15s")
	v.SetDefault("relayer.confirm_timeout", "45s")
	v.SetDefault("relayer.confirm_poll_interval", "2s")
	v.SetDefault("relayer.dropped_after", "10m")
	v.SetDefault("relayer.lock_ttl", "90s")

	v.SetDefault("api.rate_limit_per_minute", 120)
	v.SetDefault("api.ip_rate_limit_per_minute", 600)
	v.SetDefault("api.enable_swagger", true)
	v.SetDefault("api.event_channel", "quickpay:payment:events")
	v.SetDefault("api.stream_max_conns", 1000)
	v.SetDefault("api.stream_max_conns_per_session", 5)

	v.SetDefault("cache.session_ttl", "30s")
	v.SetDefault("cache.session_size", 10000)
}
