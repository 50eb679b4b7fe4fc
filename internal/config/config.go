package config

import (
	"fmt"
	"time"

	"github.com/driftkv/driftkv/internal/model"
)

// Config represents the full node configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Replication ReplicationConfig `mapstructure:"replication"`
	Ring        RingConfig        `mapstructure:"ring"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Handoff     HandoffConfig     `mapstructure:"handoff"`
	AntiEntropy AntiEntropyConfig `mapstructure:"anti_entropy"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Gossip      GossipConfig      `mapstructure:"gossip"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig represents the HTTP server configuration. NodeID doubles
// as the node's ring identity and its dial address; when empty it is
// derived from the advertise host and port.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	AdvertiseHost   string        `mapstructure:"advertise_host"`
	NodeID          string        `mapstructure:"node_id"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ReplicationConfig represents quorum replication configuration.
type ReplicationConfig struct {
	Factor           int           `mapstructure:"factor"`
	WriteQuorum      int           `mapstructure:"write_quorum"`
	ReadQuorum       int           `mapstructure:"read_quorum"`
	RPCTimeout       time.Duration `mapstructure:"rpc_timeout"`
	AggregateTimeout time.Duration `mapstructure:"aggregate_timeout"`
}

// RingConfig represents consistent hashing configuration.
type RingConfig struct {
	VirtualNodes int `mapstructure:"virtual_nodes"`
}

// StorageConfig represents the local storage engine configuration.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// HandoffConfig represents hinted handoff configuration. TTL is accepted
// for forward compatibility but hints currently never expire.
type HandoffConfig struct {
	Backend    string        `mapstructure:"backend"`
	TTL        time.Duration `mapstructure:"ttl"`
	FlushBatch int           `mapstructure:"flush_batch"`
}

// AntiEntropyConfig represents the reconciler configuration.
type AntiEntropyConfig struct {
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

// IdempotencyConfig represents idempotent-write caching configuration.
type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// DatabaseConfig represents the PostgreSQL hint store configuration,
// used when handoff.backend is "postgres".
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// RedisConfig represents the Redis idempotency store configuration. When
// disabled the in-memory store is used.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GossipConfig represents memberlist-based membership configuration.
// When disabled, membership changes arrive only through the admin API.
type GossipConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BindPort       int           `mapstructure:"bind_port"`
	SeedNodes      []string      `mapstructure:"seed_nodes"`
	GossipInterval time.Duration `mapstructure:"gossip_interval"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
}

// RateLimitConfig represents client API rate limiting configuration.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig represents Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration. A node refuses to serve on any
// violation.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port must be between 1 and 65535", model.ErrInvalidConfig)
	}
	if c.Replication.Factor < 1 {
		return fmt.Errorf("%w: replication.factor must be at least 1", model.ErrInvalidConfig)
	}
	if c.Replication.WriteQuorum < 1 || c.Replication.WriteQuorum > c.Replication.Factor {
		return fmt.Errorf("%w: replication.write_quorum must be in [1, factor]", model.ErrInvalidConfig)
	}
	if c.Replication.ReadQuorum < 1 || c.Replication.ReadQuorum > c.Replication.Factor {
		return fmt.Errorf("%w: replication.read_quorum must be in [1, factor]", model.ErrInvalidConfig)
	}
	if c.Ring.VirtualNodes < 1 {
		return fmt.Errorf("%w: ring.virtual_nodes must be positive", model.ErrInvalidConfig)
	}
	if c.Replication.RPCTimeout <= 0 {
		return fmt.Errorf("%w: replication.rpc_timeout must be positive", model.ErrInvalidConfig)
	}
	if c.Replication.AggregateTimeout <= 0 {
		return fmt.Errorf("%w: replication.aggregate_timeout must be positive", model.ErrInvalidConfig)
	}
	if c.AntiEntropy.SyncInterval <= 0 {
		return fmt.Errorf("%w: anti_entropy.sync_interval must be positive", model.ErrInvalidConfig)
	}
	switch c.Handoff.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("%w: handoff.backend must be one of: memory, postgres", model.ErrInvalidConfig)
	}
	if c.Handoff.Backend == "postgres" {
		if c.Database.Host == "" {
			return fmt.Errorf("%w: database.host is required for the postgres handoff backend", model.ErrInvalidConfig)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("%w: database.database is required for the postgres handoff backend", model.ErrInvalidConfig)
		}
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("%w: redis.host is required when redis is enabled", model.ErrInvalidConfig)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("%w: storage.data_dir is required", model.ErrInvalidConfig)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// NodeID returns the configured node identity, deriving host:port from
// the server section when unset.
func (c *Config) NodeID() string {
	if c.Server.NodeID != "" {
		return c.Server.NodeID
	}
	host := c.Server.AdvertiseHost
	if host == "" {
		host = c.Server.Host
	}
	return fmt.Sprintf("%s:%d", host, c.Server.Port)
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            7460,
			AdvertiseHost:   "127.0.0.1",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Replication: ReplicationConfig{
			Factor:           3,
			WriteQuorum:      2,
			ReadQuorum:       2,
			RPCTimeout:       5 * time.Second,
			AggregateTimeout: 6 * time.Second,
		},
		Ring: RingConfig{
			VirtualNodes: 128,
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Handoff: HandoffConfig{
			Backend:    "memory",
			TTL:        60 * time.Second,
			FlushBatch: 100,
		},
		AntiEntropy: AntiEntropyConfig{
			SyncInterval: 30 * time.Second,
		},
		Idempotency: IdempotencyConfig{
			TTL: 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "driftkv",
			User:           "driftkv",
			MaxConnections: 10,
		},
		Redis: RedisConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    6379,
		},
		Gossip: GossipConfig{
			Enabled:        false,
			BindPort:       7946,
			GossipInterval: 200 * time.Millisecond,
			ProbeInterval:  time.Second,
			ProbeTimeout:   500 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 1000,
			BurstSize:         2000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
