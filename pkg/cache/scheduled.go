package cache

import "time"

// DefaultClearInterval is the flush interval a ScheduledCache starts with
const DefaultClearInterval = time.Hour

// ScheduledCache clears its delegate when the configured interval has
// elapsed since the last clear. The check runs on every access, no timer is
// involved.
type ScheduledCache struct {
	delegate      Cache
	clearInterval time.Duration
	lastClear     time.Time
	now           func() time.Time
}

// NewScheduledCache wraps delegate with interval based flushing
func NewScheduledCache(delegate Cache) *ScheduledCache {
	return &ScheduledCache{
		delegate:      delegate,
		clearInterval: DefaultClearInterval,
		lastClear:     time.Now(),
		now:           time.Now,
	}
}

// SetClearInterval changes the flush interval
func (c *ScheduledCache) SetClearInterval(d time.Duration) {
	c.clearInterval = d
}

func (c *ScheduledCache) ID() string    { return c.delegate.ID() }
func (c *ScheduledCache) Unwrap() Cache { return c.delegate }

func (c *ScheduledCache) Size() int {
	c.clearWhenStale()
	return c.delegate.Size()
}

func (c *ScheduledCache) Put(key Key, value any) {
	c.clearWhenStale()
	c.delegate.Put(key, value)
}

func (c *ScheduledCache) Get(key Key) (any, error) {
	if c.clearWhenStale() {
		return nil, nil
	}
	return c.delegate.Get(key)
}

func (c *ScheduledCache) Remove(key Key) any {
	c.clearWhenStale()
	return c.delegate.Remove(key)
}

func (c *ScheduledCache) Clear() {
	c.lastClear = c.now()
	c.delegate.Clear()
}

func (c *ScheduledCache) clearWhenStale() bool {
	if c.now().Sub(c.lastClear) > c.clearInterval {
		c.Clear()
		return true
	}
	return false
}
