package cache

import (
	"fmt"
	"time"

	"github.com/viccon/sturdyc"
)

// SturdyConfig sizes a sharded in-memory store
type SturdyConfig struct {
	Capacity           int           `json:"capacity" yaml:"capacity" mapstructure:"capacity"`
	NumShards          int           `json:"num_shards" yaml:"num_shards" mapstructure:"num_shards"`
	TTL                time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
	EvictionPercentage int           `json:"eviction_percentage" yaml:"eviction_percentage" mapstructure:"eviction_percentage"`
}

// DefaultSturdyConfig returns settings suited to a single namespace
func DefaultSturdyConfig() SturdyConfig {
	return SturdyConfig{
		Capacity:           10000,
		NumShards:          16,
		TTL:                10 * time.Minute,
		EvictionPercentage: 10,
	}
}

// Validate checks the store settings
func (c SturdyConfig) Validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be greater than 0", ErrInvalidCacheConfig)
	case c.NumShards <= 0:
		return fmt.Errorf("%w: num_shards must be greater than 0", ErrInvalidCacheConfig)
	case c.TTL <= 0:
		return fmt.Errorf("%w: ttl must be greater than 0", ErrInvalidCacheConfig)
	case c.EvictionPercentage < 1 || c.EvictionPercentage > 100:
		return fmt.Errorf("%w: eviction_percentage must be between 1 and 100", ErrInvalidCacheConfig)
	}
	return nil
}

// SturdyCache is a sharded, TTL-bounded base store. It is safe for
// concurrent use and evicts on its own, so builders usually skip the
// eviction decorators for it.
type SturdyCache struct {
	id     string
	client *sturdyc.Client[any]
}

type sturdyEntry struct {
	key   Key
	value any
}

// NewSturdyCache creates a store for the namespace id
func NewSturdyCache(id string, cfg SturdyConfig) (*SturdyCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SturdyCache{
		id:     id,
		client: sturdyc.New[any](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage),
	}, nil
}

func (c *SturdyCache) ID() string { return c.id }

func (c *SturdyCache) Put(key Key, value any) {
	c.client.Set(key.String(), sturdyEntry{key: key, value: value})
}

func (c *SturdyCache) Get(key Key) (any, error) {
	v, ok := c.client.Get(key.String())
	if !ok {
		return nil, nil
	}
	e, ok := v.(sturdyEntry)
	if !ok || !e.key.Equals(key) {
		return nil, nil
	}
	return e.value, nil
}

func (c *SturdyCache) Remove(key Key) any {
	v, _ := c.Get(key)
	c.client.Delete(key.String())
	return v
}

func (c *SturdyCache) Clear() {
	for _, k := range c.client.ScanKeys() {
		c.client.Delete(k)
	}
}

func (c *SturdyCache) Size() int {
	return c.client.Size()
}
