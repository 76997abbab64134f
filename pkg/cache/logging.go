package cache

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"

	"github.com/ammar0144/sqlmap/pkg/logging"
)

// LoggingCache counts requests and hits, logs the running hit ratio when it
// changes at four decimals and exports both counters as sqlmap_cache_requests_total{cache="<id>"} and
// sqlmap_cache_hits_total{cache="<id>"}.
type LoggingCache struct {
	delegate Cache
	log      logging.Logger
	requests *metrics.Counter
	hits     *metrics.Counter
	logged   atomic.Int64
}

// NewLoggingCache wraps delegate with hit ratio accounting
func NewLoggingCache(delegate Cache, log logging.Logger) *LoggingCache {
	id := delegate.ID()
	c := &LoggingCache{
		delegate: delegate,
		log:      logging.OrDiscard(log),
		requests: metrics.GetOrCreateCounter(fmt.Sprintf("sqlmap_cache_requests_total{cache=%q}", id)),
		hits:     metrics.GetOrCreateCounter(fmt.Sprintf("sqlmap_cache_hits_total{cache=%q}", id)),
	}
	c.logged.Store(-1)
	return c
}

func (c *LoggingCache) ID() string    { return c.delegate.ID() }
func (c *LoggingCache) Size() int     { return c.delegate.Size() }
func (c *LoggingCache) Clear()        { c.delegate.Clear() }
func (c *LoggingCache) Unwrap() Cache { return c.delegate }

func (c *LoggingCache) Put(key Key, value any) {
	c.delegate.Put(key, value)
}

func (c *LoggingCache) Get(key Key) (any, error) {
	c.requests.Inc()
	v, err := c.delegate.Get(key)
	if err != nil {
		return nil, err
	}
	if v != nil {
		c.hits.Inc()
	}
	ratio := c.HitRatio()
	if scaled := int64(math.Round(ratio * 10000)); c.logged.Swap(scaled) != scaled {
		c.log.Info(context.Background(), "Cache Hit Ratio [%s]: %.4f", c.ID(), ratio)
	}
	return v, nil
}

func (c *LoggingCache) Remove(key Key) any {
	return c.delegate.Remove(key)
}

// HitRatio returns hits divided by requests over the lifetime of the process
func (c *LoggingCache) HitRatio() float64 {
	requests := c.requests.Get()
	if requests == 0 {
		return 0
	}
	return float64(c.hits.Get()) / float64(requests)
}

// Requests returns the number of lookups served
func (c *LoggingCache) Requests() uint64 { return c.requests.Get() }

// Hits returns the number of lookups that found a value
func (c *LoggingCache) Hits() uint64 { return c.hits.Get() }
