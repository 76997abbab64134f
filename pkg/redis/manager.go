package redis

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache key constants for consistent key generation
const (
	cacheKeySeparator = ":"
	scanBatchSize     = 100

	// Every stored payload starts with one of these markers
	payloadPlain      byte = 0
	payloadCompressed byte = 1
)

// Manager manages Redis connections and raw entry operations
type Manager struct {
	config        *Config
	client        redis.UniversalClient
	clusterClient *redis.ClusterClient
	metrics       *Metrics
}

// NewManager creates a new Redis manager
func NewManager(config *Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	manager := &Manager{
		config:  config,
		metrics: NewMetrics(),
	}

	// Initialize Redis client based on configuration
	if err := manager.initializeClient(); err != nil {
		return nil, fmt.Errorf("failed to initialize redis client: %w", err)
	}

	return manager, nil
}

// NewManagerWithClient wraps an existing client, e.g. one pointed at a test server
func NewManagerWithClient(config *Config, client redis.UniversalClient) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}
	return &Manager{config: config, client: client, metrics: NewMetrics()}, nil
}

// initializeClient sets up the Redis client based on configuration
func (m *Manager) initializeClient() error {
	if !m.config.Enabled {
		return nil // Skip initialization if cache is disabled
	}

	if m.config.IsClusterMode() {
		m.clusterClient = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:           m.config.Cluster.Addresses,
			Username:        m.config.Cluster.Username,
			Password:        m.config.Cluster.Password,
			PoolSize:        m.config.PoolSize,
			MinIdleConns:    m.config.MinIdleConns,
			ConnMaxLifetime: m.config.MaxConnAge,
			PoolTimeout:     m.config.PoolTimeout,
			ConnMaxIdleTime: m.config.IdleTimeout,
			ReadTimeout:     m.config.ReadTimeout,
			WriteTimeout:    m.config.WriteTimeout,
			DialTimeout:     m.config.DialTimeout,
		})
		m.client = m.clusterClient
		return nil
	}

	m.client = redis.NewClient(&redis.Options{
		Addr:            m.config.GetAddr(),
		Password:        m.config.Password,
		DB:              m.config.Database,
		PoolSize:        m.config.PoolSize,
		MinIdleConns:    m.config.MinIdleConns,
		ConnMaxLifetime: m.config.MaxConnAge,
		PoolTimeout:     m.config.PoolTimeout,
		ConnMaxIdleTime: m.config.IdleTimeout,
		ReadTimeout:     m.config.ReadTimeout,
		WriteTimeout:    m.config.WriteTimeout,
		DialTimeout:     m.config.DialTimeout,
	})
	return nil
}

// Config returns the manager configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Metrics returns a snapshot of store statistics
func (m *Manager) Metrics() MetricsSnapshot {
	return m.metrics.Snapshot()
}

// Close closes the Redis connection
func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Ping tests the Redis connection
// Returns nil if cache is disabled (not an error condition)
func (m *Manager) Ping(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}

	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// checkClient validates that cache is enabled and client is initialized
func (m *Manager) checkClient() error {
	if !m.config.Enabled {
		return ErrCacheDisabled
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}
	return nil
}

// Key joins parts under the configured prefix
func (m *Manager) Key(parts ...string) string {
	return m.config.KeyPrefix + cacheKeySeparator + strings.Join(parts, cacheKeySeparator)
}

// Get retrieves a payload, transparently decompressing it
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := m.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		m.metrics.recordGet(time.Since(start), false)
		return nil, ErrKeyNotFound
	}
	if err != nil {
		m.metrics.recordError()
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	m.metrics.recordGet(time.Since(start), true)

	return m.unwrapPayload(raw)
}

// Set stores a payload with the default TTL, compressing large values
func (m *Manager) Set(ctx context.Context, key string, value []byte) error {
	return m.SetWithTTL(ctx, key, value, m.config.DefaultTTL)
}

// SetWithTTL stores a payload with a custom TTL; zero means no expiry
func (m *Manager) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	payload, err := m.wrapPayload(value)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := m.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		m.metrics.recordError()
		return fmt.Errorf("redis set error: %w", err)
	}
	m.metrics.recordPut(time.Since(start))
	return nil
}

// Delete removes a key
func (m *Manager) Delete(ctx context.Context, key string) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	if err := m.client.Del(ctx, key).Err(); err != nil {
		m.metrics.recordError()
		return fmt.Errorf("redis delete error: %w", err)
	}
	m.metrics.recordRemove()
	return nil
}

// InvalidatePattern removes keys matching a pattern using SCAN instead of KEYS
// SCAN is non-blocking and production-safe, unlike KEYS which blocks the Redis server
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	err := m.scan(ctx, pattern, func(batch []string) error {
		if err := m.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("failed to delete batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.metrics.recordClear()
	return nil
}

// CountPattern counts keys matching a pattern
func (m *Manager) CountPattern(ctx context.Context, pattern string) (int, error) {
	if err := m.checkClient(); err != nil {
		return 0, err
	}

	count := 0
	err := m.scan(ctx, pattern, func(batch []string) error {
		count += len(batch)
		return nil
	})
	return count, err
}

func (m *Manager) scan(ctx context.Context, pattern string, fn func(batch []string) error) error {
	var cursor uint64
	for {
		batch, next, err := m.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys with pattern %s: %w", pattern, err)
		}
		if len(batch) > 0 {
			if err := fn(batch); err != nil {
				return err
			}
		}
		// cursor == 0 means we've iterated through all keys
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (m *Manager) wrapPayload(value []byte) ([]byte, error) {
	cfg := m.config.Compression
	if !cfg.Enabled || len(value) <= cfg.Threshold {
		return append([]byte{payloadPlain}, value...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(payloadCompressed)
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
	}
	m.metrics.recordCompression(int64(len(value) - buf.Len()))
	return buf.Bytes(), nil
}

func (m *Manager) unwrapPayload(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrSerializationFailed)
	}

	switch raw[0] {
	case payloadPlain:
		return raw[1:], nil
	case payloadCompressed:
		gz, err := gzip.NewReader(bytes.NewReader(raw[1:]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
		}
		defer gz.Close()
		data, err := io.ReadAll(gz)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unknown payload marker %d", ErrSerializationFailed, raw[0])
	}
}
