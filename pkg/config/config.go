// Package config loads engine settings, the database connection and the
// namespace cache definitions from a file and SQLMAP_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ammar0144/sqlmap/pkg/cache"
	"github.com/ammar0144/sqlmap/pkg/db"
	"github.com/ammar0144/sqlmap/pkg/logging"
	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/redis"
)

// EnvPrefix prefixes environment overrides: SQLMAP_SETTINGS_CACHE_ENABLED
// overrides settings.cache_enabled
const EnvPrefix = "SQLMAP"

// Cache store types
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSturdy = "sturdy"
)

// Cache eviction policies of the memory store
const (
	EvictionLRU  = "lru"
	EvictionFIFO = "fifo"
)

// Config is the complete engine configuration
type Config struct {
	// Environment is the id folded into every statement cache key
	Environment string           `json:"environment" yaml:"environment" mapstructure:"environment"`
	Settings    mapping.Settings `json:"settings" yaml:"settings" mapstructure:"settings"`
	Logging     LoggingConfig    `json:"logging" yaml:"logging" mapstructure:"logging"`
	Database    db.Config        `json:"database" yaml:"database" mapstructure:"database"`
	Redis       redis.Config     `json:"redis" yaml:"redis" mapstructure:"redis"`
	Caches      []CacheConfig    `json:"caches" yaml:"caches" mapstructure:"caches"`
}

// LoggingConfig selects the engine log level
type LoggingConfig struct {
	Level              string        `json:"level" yaml:"level" mapstructure:"level"` // silent, error, warn, info
	SlowQueryThreshold time.Duration `json:"slow_query_threshold" yaml:"slow_query_threshold" mapstructure:"slow_query_threshold"`
}

// CacheConfig defines one namespace cache
type CacheConfig struct {
	ID              string             `json:"id" yaml:"id" mapstructure:"id"`
	Store           string             `json:"store" yaml:"store" mapstructure:"store"`
	Eviction        string             `json:"eviction" yaml:"eviction" mapstructure:"eviction"`
	Size            int                `json:"size" yaml:"size" mapstructure:"size"`
	FlushInterval   time.Duration      `json:"flush_interval" yaml:"flush_interval" mapstructure:"flush_interval"`
	ReadOnly        bool               `json:"read_only" yaml:"read_only" mapstructure:"read_only"`
	Blocking        bool               `json:"blocking" yaml:"blocking" mapstructure:"blocking"`
	BlockingTimeout time.Duration      `json:"blocking_timeout" yaml:"blocking_timeout" mapstructure:"blocking_timeout"`
	Sturdy          cache.SturdyConfig `json:"sturdy" yaml:"sturdy" mapstructure:"sturdy"`
}

// Default returns the configuration used for keys a file leaves out
func Default() *Config {
	redisConfig := redis.DefaultConfig()
	redisConfig.Enabled = false
	return &Config{
		Environment: "default",
		Settings:    mapping.DefaultSettings(),
		Logging:     LoggingConfig{Level: "warn", SlowQueryThreshold: 200 * time.Millisecond},
		Database:    *db.DefaultConfig(),
		Redis:       *redisConfig,
	}
}

// Load reads path (any format viper supports) over the defaults and applies
// SQLMAP_* environment overrides. An empty path loads defaults and the
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every default so environment variables can
// override keys the file does not mention
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("environment", d.Environment)

	s := d.Settings
	v.SetDefault("settings.cache_enabled", s.CacheEnabled)
	v.SetDefault("settings.lazy_loading_enabled", s.LazyLoadingEnabled)
	v.SetDefault("settings.multiple_result_sets_enabled", s.MultipleResultSetsEnabled)
	v.SetDefault("settings.use_generated_keys", s.UseGeneratedKeys)
	v.SetDefault("settings.auto_mapping_behavior", string(s.AutoMappingBehavior))
	v.SetDefault("settings.auto_mapping_unknown_column_behavior", string(s.AutoMappingUnknownColumnBehavior))
	v.SetDefault("settings.default_executor_type", string(s.DefaultExecutorType))
	v.SetDefault("settings.default_statement_timeout", s.DefaultStatementTimeout)
	v.SetDefault("settings.default_fetch_size", s.DefaultFetchSize)
	v.SetDefault("settings.safe_row_bounds_enabled", s.SafeRowBoundsEnabled)
	v.SetDefault("settings.safe_result_handler_enabled", s.SafeResultHandlerEnabled)
	v.SetDefault("settings.map_underscore_to_camel_case", s.MapUnderscoreToCamelCase)
	v.SetDefault("settings.local_cache_scope", string(s.LocalCacheScope))
	v.SetDefault("settings.call_setters_on_nulls", s.CallSettersOnNulls)
	v.SetDefault("settings.return_instance_for_empty_row", s.ReturnInstanceForEmptyRow)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.slow_query_threshold", d.Logging.SlowQueryThreshold)

	dbc := d.Database
	v.SetDefault("database.host", dbc.Host)
	v.SetDefault("database.port", dbc.Port)
	v.SetDefault("database.database", dbc.Database)
	v.SetDefault("database.username", dbc.Username)
	v.SetDefault("database.password", dbc.Password)
	v.SetDefault("database.max_open_conns", dbc.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", dbc.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", dbc.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", dbc.ConnMaxIdleTime)
	v.SetDefault("database.charset", dbc.Charset)
	v.SetDefault("database.collation", dbc.Collation)
	v.SetDefault("database.timezone", dbc.TimeZone)
	v.SetDefault("database.prepare_stmt", dbc.PrepareStmt)
	v.SetDefault("database.query_timeout", dbc.QueryTimeout)

	r := d.Redis
	v.SetDefault("redis.enabled", r.Enabled)
	v.SetDefault("redis.default_ttl", r.DefaultTTL)
	v.SetDefault("redis.key_prefix", r.KeyPrefix)
	v.SetDefault("redis.host", r.Host)
	v.SetDefault("redis.port", r.Port)
	v.SetDefault("redis.password", r.Password)
	v.SetDefault("redis.database", r.Database)
	v.SetDefault("redis.pool_size", r.PoolSize)
	v.SetDefault("redis.min_idle_conns", r.MinIdleConns)
	v.SetDefault("redis.max_conn_age", r.MaxConnAge)
	v.SetDefault("redis.pool_timeout", r.PoolTimeout)
	v.SetDefault("redis.idle_timeout", r.IdleTimeout)
	v.SetDefault("redis.read_timeout", r.ReadTimeout)
	v.SetDefault("redis.write_timeout", r.WriteTimeout)
	v.SetDefault("redis.dial_timeout", r.DialTimeout)
	v.SetDefault("redis.operation_timeout", r.OperationTimeout)
	v.SetDefault("redis.compression.enabled", r.Compression.Enabled)
	v.SetDefault("redis.compression.threshold", r.Compression.Threshold)
	v.SetDefault("redis.enable_metrics", r.EnableMetrics)
}

// Validate checks settings and cache definitions. The database section is
// checked when a connection is opened.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Environment) == "" {
		return mapping.Configurationf("config", "environment is required")
	}
	if err := c.Settings.Validate(); err != nil {
		return err
	}
	if err := c.Redis.Validate(); err != nil {
		return mapping.Configurationf("config", "redis: %v", err)
	}

	seen := make(map[string]bool, len(c.Caches))
	for i := range c.Caches {
		cc := &c.Caches[i]
		if err := cc.Validate(); err != nil {
			return err
		}
		if seen[cc.ID] {
			return mapping.Configurationf("config", "cache %s is defined twice", cc.ID)
		}
		seen[cc.ID] = true
		if cc.Store == StoreRedis && !c.Redis.Enabled {
			return mapping.Configurationf(cc.ID, "redis store requires redis.enabled")
		}
	}
	return nil
}

// Validate checks one cache definition
func (c *CacheConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return mapping.Configurationf("config", "cache id is required")
	}
	switch c.Store {
	case "", StoreMemory, StoreRedis:
	case StoreSturdy:
		if err := c.sturdyConfig().Validate(); err != nil {
			return mapping.Configurationf(c.ID, "%v", err)
		}
	default:
		return mapping.Configurationf(c.ID, "unknown cache store %q", c.Store)
	}
	switch c.Eviction {
	case "", EvictionLRU, EvictionFIFO:
	default:
		return mapping.Configurationf(c.ID, "unknown cache eviction %q", c.Eviction)
	}
	if c.Size < 0 || c.FlushInterval < 0 || c.BlockingTimeout < 0 {
		return mapping.Configurationf(c.ID, "size and intervals must be non-negative")
	}
	return nil
}

func (c *CacheConfig) sturdyConfig() cache.SturdyConfig {
	if c.Sturdy == (cache.SturdyConfig{}) {
		return cache.DefaultSturdyConfig()
	}
	return c.Sturdy
}

// Builder returns the cache builder for the definition. manager is only
// used by the redis store.
func (c *CacheConfig) Builder(manager *redis.Manager, log logging.Logger) (*cache.Builder, error) {
	b := cache.NewBuilder(c.ID).
		Size(c.Size).
		ClearInterval(c.FlushInterval).
		ReadWrite(!c.ReadOnly).
		Blocking(c.Blocking).
		BlockingTimeout(c.BlockingTimeout).
		Logger(log)

	switch c.Store {
	case StoreRedis:
		if manager == nil {
			return nil, mapping.Configurationf(c.ID, "redis store requires a redis manager")
		}
		// entries are already copied through serialization by the store
		b.Implementation(func(id string) cache.Cache { return redis.NewCache(id, manager, log) }).
			ReadWrite(false)
	case StoreSturdy:
		sc, err := cache.NewSturdyCache(c.ID, c.sturdyConfig())
		if err != nil {
			return nil, mapping.Configurationf(c.ID, "%v", err)
		}
		b.Implementation(func(string) cache.Cache { return sc })
	default:
		if c.Eviction == EvictionFIFO {
			b.AddDecorator(cache.FIFO)
		} else {
			b.AddDecorator(cache.LRU)
		}
	}
	return b, nil
}

// Logger builds the engine logger writing to stderr
func (c *Config) Logger() logging.Logger {
	return logging.NewWriter(os.Stderr, c.Logging.Level, c.Logging.SlowQueryThreshold)
}

// Apply copies settings and the logger onto conf and registers every
// namespace cache. manager may be nil when no cache uses the redis store.
func (c *Config) Apply(conf *mapping.Configuration, manager *redis.Manager) error {
	conf.Settings = c.Settings
	conf.Logger = c.Logger()
	if conf.Environment != nil && conf.Environment.ID == "" {
		conf.Environment.ID = c.Environment
	}

	var errs []error
	for i := range c.Caches {
		b, err := c.Caches[i].Builder(manager, conf.Logger)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		built, err := b.Build()
		if err != nil {
			errs = append(errs, mapping.Configurationf(c.Caches[i].ID, "%v", err))
			continue
		}
		if err := conf.AddCache(built); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
