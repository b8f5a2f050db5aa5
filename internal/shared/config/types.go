package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // mysql | sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	Path            string `mapstructure:"path"` // sqlite file
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // minutes
}

func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&collation=utf8mb4_general_ci&parseTime=true&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ChainConfig describes the single settlement chain of a deployment.
type ChainConfig struct {
	Gateway            string        `mapstructure:"gateway"` // evm | mock
	RPCURL             string        `mapstructure:"rpc_url"`
	ChainID            int64         `mapstructure:"chain_id"`
	SettlementContract string        `mapstructure:"settlement_contract"`
	RelayerPrivateKey  string        `mapstructure:"relayer_private_key"`
	TokenDecimals      int           `mapstructure:"token_decimals"`
	Timezone           string        `mapstructure:"timezone"`
	GasLimitCap        uint64        `mapstructure:"gas_limit_cap"`
	RPCTimeout         time.Duration `mapstructure:"rpc_timeout"`
}

type RelayerConfig struct {
	Embedded            bool          `mapstructure:"embedded"`
	Interval            time.Duration `mapstructure:"interval"`
	BatchSize           int           `mapstructure:"batch_size"`
	Workers             int           `mapstructure:"workers"`
	MaxRetries          int           `mapstructure:"max_retries"`
	BackoffInitial      time.Duration `mapstructure:"backoff_initial"`
	BackoffMax          time.Duration `mapstructure:"backoff_max"`
	BackoffMultiplier   float64       `mapstructure:"backoff_multiplier"`
	BackoffJitter       float64       `mapstructure:"backoff_jitter"`
	StaleAfter          time.Duration `mapstructure:"stale_after"`
	SubmitTimeout       time.Duration `mapstructure:"submit_timeout"`
	ConfirmTimeout      time.Duration `mapstructure:"confirm_timeout"`
	ConfirmPollInterval time.Duration `mapstructure:"confirm_poll_interval"`
	DroppedAfter        time.Duration `mapstructure:"dropped_after"`
	LockTTL             time.Duration `mapstructure:"lock_ttl"`
}

type APIConfig struct {
	APIKeys            []string `mapstructure:"api_keys"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"` // per session, on submit
	IPRateLimitPerMin  int      `mapstructure:"ip_rate_limit_per_minute"`
	EnableSwagger      bool     `mapstructure:"enable_swagger"`
	EventChannel       string   `mapstructure:"event_channel"`

	StreamMaxConns           int `mapstructure:"stream_max_conns"`
	StreamMaxConnsPerSession int `mapstructure:"stream_max_conns_per_session"`
}

type CacheConfig struct {
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
	SessionSize int           `mapstructure:"session_size"`
}
