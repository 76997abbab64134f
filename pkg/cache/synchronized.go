package cache

import "sync"

// SynchronizedCache serializes every operation on its delegate
type SynchronizedCache struct {
	mu       sync.Mutex
	delegate Cache
}

// NewSynchronizedCache wraps delegate with a mutex
func NewSynchronizedCache(delegate Cache) *SynchronizedCache {
	return &SynchronizedCache{delegate: delegate}
}

func (c *SynchronizedCache) ID() string    { return c.delegate.ID() }
func (c *SynchronizedCache) Unwrap() Cache { return c.delegate }

func (c *SynchronizedCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Size()
}

func (c *SynchronizedCache) Put(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Put(key, value)
}

func (c *SynchronizedCache) Get(key Key) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Get(key)
}

func (c *SynchronizedCache) Remove(key Key) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Remove(key)
}

func (c *SynchronizedCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Clear()
}
