package redis

import (
	"fmt"
	"time"
)

// Config holds the connection and storage settings of the Redis cache store
type Config struct {
	Enabled    bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix  string        `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`

	// Redis Connection
	Host     string `json:"host" yaml:"host" mapstructure:"host"`
	Port     int    `json:"port" yaml:"port" mapstructure:"port"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	Database int    `json:"database" yaml:"database" mapstructure:"database"`

	// Connection Pool
	PoolSize     int           `json:"pool_size" yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	MaxConnAge   time.Duration `json:"max_conn_age" yaml:"max_conn_age" mapstructure:"max_conn_age"`
	PoolTimeout  time.Duration `json:"pool_timeout" yaml:"pool_timeout" mapstructure:"pool_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`

	// Performance
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`

	// Operation timeout applied to every cache call, which carries no context
	OperationTimeout time.Duration `json:"operation_timeout" yaml:"operation_timeout" mapstructure:"operation_timeout"`

	// Clustering (for Redis Cluster)
	Cluster ClusterConfig `json:"cluster" yaml:"cluster" mapstructure:"cluster"`

	// Large Value Handling
	Compression CompressionConfig `json:"compression" yaml:"compression" mapstructure:"compression"`

	EnableMetrics bool `json:"enable_metrics" yaml:"enable_metrics" mapstructure:"enable_metrics"`
}

// ClusterConfig for Redis Cluster setup
type ClusterConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Addresses []string `json:"addresses" yaml:"addresses" mapstructure:"addresses"`
	Username  string   `json:"username" yaml:"username" mapstructure:"username"`
	Password  string   `json:"password" yaml:"password" mapstructure:"password"`
}

// CompressionConfig controls gzip compression of large entries
type CompressionConfig struct {
	Enabled   bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Threshold int  `json:"threshold" yaml:"threshold" mapstructure:"threshold"` // Compress values larger than this many bytes
}

// DefaultConfig returns a Redis configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		DefaultTTL:       time.Hour,
		KeyPrefix:        "sqlmap",
		Host:             "localhost",
		Port:             6379,
		Database:         0,
		PoolSize:         10,
		MinIdleConns:     3,
		MaxConnAge:       time.Hour,
		PoolTimeout:      time.Second * 4,
		IdleTimeout:      time.Minute * 5,
		ReadTimeout:      time.Second * 3,
		WriteTimeout:     time.Second * 3,
		DialTimeout:      time.Second * 5,
		OperationTimeout: time.Second * 2,
		Compression: CompressionConfig{
			Enabled:   true,
			Threshold: 1024 * 100,
		},
		EnableMetrics: true,
	}
}

// Validate checks if the Redis configuration is valid
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil // Skip validation if cache is disabled
	}

	if !c.IsClusterMode() {
		if c.Host == "" {
			return fmt.Errorf("redis host is required when cache is enabled")
		}
		if c.Port <= 0 {
			return fmt.Errorf("redis port must be positive")
		}
	}
	if c.DefaultTTL < 0 {
		return fmt.Errorf("default_ttl must not be negative")
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be at least 1")
	}
	if c.KeyPrefix == "" {
		return fmt.Errorf("key_prefix is required")
	}
	if c.Compression.Enabled && c.Compression.Threshold < 0 {
		return fmt.Errorf("compression threshold must not be negative")
	}

	return nil
}

// GetAddr returns the Redis connection address
func (c *Config) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsClusterMode returns true if Redis cluster is enabled
func (c *Config) IsClusterMode() bool {
	return c.Cluster.Enabled && len(c.Cluster.Addresses) > 0
}
