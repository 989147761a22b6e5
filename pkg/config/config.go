package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// AppConfig holds the complete configuration for the application
type AppConfig struct {
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	ServiceName   string              `mapstructure:"service_name"`
	Store         StoreConfig         `mapstructure:"store"`
	MongoDB       MongoConfig         `mapstructure:"mongodb"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Economy       EconomyConfig       `mapstructure:"economy"`
	Snapshot      SnapshotConfig      `mapstructure:"snapshot"`
	RPC           RPCConfig           `mapstructure:"rpc"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	ChangeFeed    ChangeFeedConfig    `mapstructure:"changefeed"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Worker        WorkerConfig        `mapstructure:"worker"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type PostgresConfig struct {
	URI             string        `mapstructure:"uri"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
}

// CacheConfig controls the shared tier and the pub/sub channel names
type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	ChannelPrefix string        `mapstructure:"channel_prefix"`
}

// EconomyConfig bounds balances. MaxBalance <= 0 means unbounded.
type EconomyConfig struct {
	StartingBalance float64 `mapstructure:"starting_balance"`
	MinBalance      float64 `mapstructure:"min_balance"`
	MaxBalance      float64 `mapstructure:"max_balance"`
}

type SnapshotConfig struct {
	MaxNameLength  int  `mapstructure:"max_name_length"`
	AutoSaveOnQuit bool `mapstructure:"auto_save_on_quit"`
}

type RPCConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Addr           string `mapstructure:"addr"`
	SecretKey      string `mapstructure:"secret_key"`
	AnnounceWrites bool   `mapstructure:"announce_writes"`
}

type ObservabilityConfig struct {
	Addr string `mapstructure:"addr"`
}

// ChangeFeedConfig keeps the resume token in Redis under ResumeTokenKey, or in
// a local file when ResumeTokenPath is set.
type ChangeFeedConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	ResumeTokenKey  string `mapstructure:"resume_token_key"`
	ResumeTokenPath string `mapstructure:"resume_token_path"`
}

// AuditConfig enables the Kafka audit trail when Brokers is non-empty
type AuditConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type WorkerConfig struct {
	Count     int `mapstructure:"count"`
	QueueSize int `mapstructure:"queue_size"`
}

// Load loads configuration from file and environment variables
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	// Default values
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("service_name", "playersync")
	v.SetDefault("store.driver", DriverMongo)
	v.SetDefault("mongodb.database", "minecraft")
	v.SetDefault("mongodb.connect_timeout", 10*time.Second)
	v.SetDefault("postgres.max_conns", 50)
	v.SetDefault("postgres.min_conns", 10)
	v.SetDefault("postgres.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.channel_prefix", "minecraft")
	v.SetDefault("economy.starting_balance", 1000.0)
	v.SetDefault("economy.min_balance", 0.0)
	v.SetDefault("economy.max_balance", 0.0)
	v.SetDefault("snapshot.max_name_length", 50)
	v.SetDefault("snapshot.auto_save_on_quit", true)
	v.SetDefault("rpc.enabled", false)
	v.SetDefault("rpc.addr", ":9090")
	v.SetDefault("rpc.announce_writes", true)
	v.SetDefault("observability.addr", ":8080")
	v.SetDefault("changefeed.enabled", false)
	v.SetDefault("changefeed.resume_token_key", "playersync:changefeed:resume_token")
	v.SetDefault("audit.topic", "playersync.audit")
	v.SetDefault("worker.count", 4)
	v.SetDefault("worker.queue_size", 256)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	// Bind environment variables explicitly for nested structs to ensure Unmarshal picks them up
	for key, env := range map[string]string{
		"service_name":                 "SERVICE_NAME",
		"environment":                  "ENVIRONMENT",
		"log_level":                    "LOG_LEVEL",
		"store.driver":                 "STORE_DRIVER",
		"mongodb.uri":                  "MONGODB_URI",
		"mongodb.database":             "MONGODB_DATABASE",
		"postgres.uri":                 "POSTGRES_URI",
		"postgres.max_conns":           "POSTGRES_MAX_CONNS",
		"postgres.min_conns":           "POSTGRES_MIN_CONNS",
		"redis.url":                    "REDIS_URL",
		"redis.pool_size":              "REDIS_POOL_SIZE",
		"cache.ttl":                    "CACHE_TTL",
		"cache.channel_prefix":         "CACHE_CHANNEL_PREFIX",
		"economy.starting_balance":     "ECONOMY_STARTING_BALANCE",
		"economy.min_balance":          "ECONOMY_MIN_BALANCE",
		"economy.max_balance":          "ECONOMY_MAX_BALANCE",
		"rpc.enabled":                  "RPC_ENABLED",
		"rpc.addr":                     "RPC_ADDR",
		"rpc.secret_key":               "RPC_SECRET_KEY",
		"observability.addr":           "OBSERVABILITY_ADDR",
		"changefeed.enabled":           "CHANGEFEED_ENABLED",
		"changefeed.resume_token_path": "CHANGEFEED_RESUME_TOKEN_PATH",
		"audit.brokers":                "AUDIT_BROKERS",
		"audit.topic":                  "AUDIT_TOPIC",
		"worker.count":                 "WORKER_COUNT",
	} {
		_ = v.BindEnv(key, env)
	}

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Manual check for audit brokers if they came as a single string from env
	brokers := v.GetString("audit.brokers")
	if brokers != "" && len(config.Audit.Brokers) == 0 {
		config.Audit.Brokers = strings.Split(brokers, ",")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *AppConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service_name is required")
	}

	switch c.Store.Driver {
	case DriverMongo:
		if c.MongoDB.URI == "" {
			return errors.New("mongodb.uri is required")
		}
		if c.MongoDB.Database == "" {
			return errors.New("mongodb.database is required")
		}
	case DriverPostgres:
		if c.Postgres.URI == "" {
			return errors.New("postgres.uri is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver %q is not one of mongo, postgres, memory", c.Store.Driver)
	}

	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive")
	}
	if c.Cache.ChannelPrefix == "" {
		return errors.New("cache.channel_prefix is required")
	}

	if err := c.Economy.validate(); err != nil {
		return err
	}
	if c.Snapshot.MaxNameLength <= 0 {
		return errors.New("snapshot.max_name_length must be positive")
	}

	if c.RPC.Enabled {
		if c.RPC.Addr == "" {
			return errors.New("rpc.addr is required when rpc is enabled")
		}
		if c.RPC.SecretKey == "" {
			return errors.New("rpc.secret_key is required when rpc is enabled")
		}
	}
	if c.ChangeFeed.Enabled {
		if c.Store.Driver != DriverMongo {
			return errors.New("changefeed requires the mongo store driver")
		}
		if c.ChangeFeed.ResumeTokenKey == "" && c.ChangeFeed.ResumeTokenPath == "" {
			return errors.New("changefeed.resume_token_key or changefeed.resume_token_path is required")
		}
	}
	if len(c.Audit.Brokers) > 0 && c.Audit.Topic == "" {
		return errors.New("audit.topic is required when audit.brokers is set")
	}
	if c.Worker.Count <= 0 {
		return errors.New("worker.count must be positive")
	}
	if c.Worker.QueueSize < 0 {
		return errors.New("worker.queue_size cannot be negative")
	}
	return nil
}

func (e EconomyConfig) validate() error {
	for name, v := range map[string]float64{
		"economy.starting_balance": e.StartingBalance,
		"economy.min_balance":      e.MinBalance,
		"economy.max_balance":      e.MaxBalance,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite", name)
		}
	}
	if e.StartingBalance < e.MinBalance {
		return errors.New("economy.starting_balance is below economy.min_balance")
	}
	if e.MaxBalance > 0 {
		if e.MaxBalance < e.MinBalance {
			return errors.New("economy.max_balance is below economy.min_balance")
		}
		if e.StartingBalance > e.MaxBalance {
			return errors.New("economy.starting_balance is above economy.max_balance")
		}
	}
	return nil
}
