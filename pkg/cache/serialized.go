package cache

import (
	"context"

	"github.com/ammar0144/sqlmap/pkg/logging"
)

// SerializedCache stores encoded copies, so every hit returns a fresh object
// graph that callers may mutate freely. Values that cannot be encoded are
// not cached.
type SerializedCache struct {
	delegate Cache
	log      logging.Logger
}

// NewSerializedCache wraps delegate with copy-on-read semantics
func NewSerializedCache(delegate Cache, log logging.Logger) *SerializedCache {
	return &SerializedCache{delegate: delegate, log: logging.OrDiscard(log)}
}

func (c *SerializedCache) ID() string    { return c.delegate.ID() }
func (c *SerializedCache) Size() int     { return c.delegate.Size() }
func (c *SerializedCache) Clear()        { c.delegate.Clear() }
func (c *SerializedCache) Unwrap() Cache { return c.delegate }

func (c *SerializedCache) Put(key Key, value any) {
	if value == nil {
		c.delegate.Put(key, nil)
		return
	}
	data, err := Encode(value)
	if err != nil {
		c.log.Warn(context.Background(), "cache %s: skipping entry that cannot be serialized: %v", c.ID(), err)
		return
	}
	c.delegate.Put(key, data)
}

func (c *SerializedCache) Get(key Key) (any, error) {
	v, err := c.delegate.Get(key)
	if err != nil || v == nil {
		return nil, err
	}
	return c.decode(v), nil
}

func (c *SerializedCache) Remove(key Key) any {
	v := c.delegate.Remove(key)
	if v == nil {
		return nil
	}
	return c.decode(v)
}

func (c *SerializedCache) decode(v any) any {
	data, ok := v.([]byte)
	if !ok {
		return v
	}
	decoded, err := Decode(data)
	if err != nil {
		c.log.Warn(context.Background(), "cache %s: dropping undecodable entry: %v", c.ID(), err)
		return nil
	}
	return decoded
}
