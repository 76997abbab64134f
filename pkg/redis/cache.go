package redis

import (
	"context"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ammar0144/sqlmap/pkg/cache"
	"github.com/ammar0144/sqlmap/pkg/logging"
)

// Cache is a namespace store kept in Redis. Entries live under
// <prefix>:<namespace>:<digest of the key>. Redis failures are logged and
// treated as misses so a broken cache never fails a query.
type Cache struct {
	id      string
	manager *Manager
	log     logging.Logger
}

type storedEntry struct {
	Key   string `msgpack:"k"`
	Value []byte `msgpack:"v"`
}

// NewCache creates the store for namespace id
func NewCache(id string, manager *Manager, log logging.Logger) *Cache {
	return &Cache{id: id, manager: manager, log: logging.OrDiscard(log)}
}

func (c *Cache) ID() string { return c.id }

func (c *Cache) Put(key cache.Key, value any) {
	ctx, cancel := c.context()
	defer cancel()

	data, err := cache.Encode(value)
	if err != nil {
		c.log.Warn(ctx, "redis cache %s: skipping entry: %v", c.id, err)
		return
	}
	payload, err := msgpack.Marshal(storedEntry{Key: key.String(), Value: data})
	if err != nil {
		c.log.Warn(ctx, "redis cache %s: skipping entry: %v", c.id, err)
		return
	}
	if err := c.manager.Set(ctx, c.entryKey(key), payload); err != nil {
		c.log.Warn(ctx, "redis cache %s: put failed: %v", c.id, err)
	}
}

func (c *Cache) Get(key cache.Key) (any, error) {
	ctx, cancel := c.context()
	defer cancel()
	return c.get(ctx, key), nil
}

func (c *Cache) get(ctx context.Context, key cache.Key) any {
	payload, err := c.manager.Get(ctx, c.entryKey(key))
	if err != nil {
		if !IsMiss(err) {
			c.log.Warn(ctx, "redis cache %s: get failed: %v", c.id, err)
		}
		return nil
	}

	var entry storedEntry
	if err := msgpack.Unmarshal(payload, &entry); err != nil {
		c.manager.metrics.recordDecodeError()
		c.log.Warn(ctx, "redis cache %s: unreadable entry: %v", c.id, err)
		return nil
	}
	// digest collision
	if entry.Key != key.String() {
		return nil
	}

	v, err := cache.Decode(entry.Value)
	if err != nil {
		c.manager.metrics.recordDecodeError()
		c.log.Warn(ctx, "redis cache %s: unreadable entry: %v", c.id, err)
		return nil
	}
	return v
}

func (c *Cache) Remove(key cache.Key) any {
	ctx, cancel := c.context()
	defer cancel()

	v := c.get(ctx, key)
	if err := c.manager.Delete(ctx, c.entryKey(key)); err != nil {
		c.log.Warn(ctx, "redis cache %s: remove failed: %v", c.id, err)
	}
	return v
}

func (c *Cache) Clear() {
	ctx, cancel := c.context()
	defer cancel()

	if err := c.manager.InvalidatePattern(ctx, c.manager.Key(c.id, "*")); err != nil {
		c.log.Warn(ctx, "redis cache %s: clear failed: %v", c.id, err)
	}
}

func (c *Cache) Size() int {
	ctx, cancel := c.context()
	defer cancel()

	n, err := c.manager.CountPattern(ctx, c.manager.Key(c.id, "*"))
	if err != nil {
		c.log.Warn(ctx, "redis cache %s: size failed: %v", c.id, err)
		return 0
	}
	return n
}

func (c *Cache) entryKey(key cache.Key) string {
	return c.manager.Key(c.id, strconv.FormatUint(xxhash.Sum64String(key.String()), 16))
}

func (c *Cache) context() (context.Context, context.CancelFunc) {
	if d := c.manager.config.OperationTimeout; d > 0 {
		return context.WithTimeout(context.Background(), d)
	}
	return context.WithCancel(context.Background())
}
