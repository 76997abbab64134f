package cache

import "github.com/ammar0144/sqlmap/pkg/cachekey"

// PerpetualCache is the unbounded in-memory store every chain starts from.
// It is not safe for concurrent use on its own.
type PerpetualCache struct {
	id      string
	entries *cachekey.Map[any]
}

// NewPerpetualCache creates an empty store
func NewPerpetualCache(id string) *PerpetualCache {
	return &PerpetualCache{
		id:      id,
		entries: cachekey.NewMap[any](),
	}
}

func (c *PerpetualCache) ID() string { return c.id }

func (c *PerpetualCache) Put(key Key, value any) {
	c.entries.Put(key, value)
}

func (c *PerpetualCache) Get(key Key) (any, error) {
	v, _ := c.entries.Get(key)
	return v, nil
}

func (c *PerpetualCache) Remove(key Key) any {
	v, _ := c.entries.Delete(key)
	return v
}

func (c *PerpetualCache) Clear() {
	c.entries.Clear()
}

func (c *PerpetualCache) Size() int {
	return c.entries.Len()
}
