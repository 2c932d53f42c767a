// Package fallbackcache decorates the shared (kvcache) Response Cache
// backend with transparent fallthrough to an in-process cache.Cache when
// the shared backend errors, per spec §4.2's "On backend error the layer
// falls through to in-process transparently and records the degradation
// in observability."
package fallbackcache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/basakil/catalogd/internal/cache"
)

// DegradedHook is invoked (at most once, on the first fallthrough) so the
// caller can update observability/lifecycle state. May be nil.
type DegradedHook func()

// Cache composes a shared backend with an in-process fallback.
type Cache struct {
	shared   cache.ResponseCache
	fallback cache.ResponseCache
	logger   hclog.Logger
	onDegrade DegradedHook

	degraded uint32
}

func New(shared, fallback cache.ResponseCache, logger hclog.Logger, onDegrade DegradedHook) *Cache {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Cache{shared: shared, fallback: fallback, logger: logger.Named("cache.fallback"), onDegrade: onDegrade}
}

func (c *Cache) isDegraded() bool { return atomic.LoadUint32(&c.degraded) == 1 }

func (c *Cache) degrade(err error) {
	if atomic.CompareAndSwapUint32(&c.degraded, 0, 1) {
		c.logger.Warn("shared cache backend unavailable, falling back to in-process cache", "error", err)
		if c.onDegrade != nil {
			c.onDegrade()
		}
	}
}

func (c *Cache) GetOrFetch(ctx context.Context, fp cache.Fingerprint, endpoint string, ttl time.Duration, produce cache.Producer) ([]byte, cache.ResultMeta, error) {
	if c.isDegraded() {
		return c.fallback.GetOrFetch(ctx, fp, endpoint, ttl, produce)
	}
	payload, meta, err := c.shared.GetOrFetch(ctx, fp, endpoint, ttl, produce)
	var backendErr *cache.BackendError
	if errors.As(err, &backendErr) {
		c.degrade(backendErr)
		return c.fallback.GetOrFetch(ctx, fp, endpoint, ttl, produce)
	}
	return payload, meta, err
}

func (c *Cache) Invalidate(prefix string) {
	if c.isDegraded() {
		c.fallback.Invalidate(prefix)
		return
	}
	c.shared.Invalidate(prefix)
}

func (c *Cache) Stats() cache.Stats {
	var s cache.Stats
	if c.isDegraded() {
		s = c.fallback.Stats()
	} else {
		s = c.shared.Stats()
	}
	s.Degraded = c.isDegraded()
	return s
}

func (c *Cache) Close() error {
	err1 := c.shared.Close()
	err2 := c.fallback.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
