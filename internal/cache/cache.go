package cache

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
)

// Cache is the in-process response cache. Its mechanics are carried over
// from the teacher's agent/cache.Cache almost unchanged: a map of entries
// guarded by one RWMutex, an expiry min-heap for bounded purge, and a
// waiter-channel "leader" per in-flight fingerprint so concurrent misses
// coalesce onto a single Producer call. Where the teacher partitioned
// entries by (type, dc, token, key) to serve many RPC shapes, this Cache
// only ever stores one shape of value (a serialized JSON response) keyed
// directly by Fingerprint.
type Cache struct {
	logger hclog.Logger

	entriesLock sync.RWMutex
	entries     map[Fingerprint]cacheEntry
	byEndpoint  map[string]map[Fingerprint]struct{}
	expiryHeap  *expiryHeap

	maxEntries int

	stopped uint32
	stopCh  chan struct{}

	hits      uint64
	misses    uint64
	evictions uint64
}

// Options configures a Cache.
type Options struct {
	// MaxEntries is the hard cap on entry count (default 50000).
	MaxEntries int
	Logger     hclog.Logger
}

// New constructs an in-process Cache and starts its background expiry
// loop, mirroring agent/cache.New's use of a goroutine watching the
// expiry heap's notify channel.
func New(opts Options) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 50000
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	h := &expiryHeap{NotifyCh: make(chan struct{}, 1)}
	heap.Init(h)
	c := &Cache{
		logger:     opts.Logger.Named("cache"),
		entries:    make(map[Fingerprint]cacheEntry),
		byEndpoint: make(map[string]map[Fingerprint]struct{}),
		expiryHeap: h,
		maxEntries: opts.MaxEntries,
		stopCh:     make(chan struct{}),
	}
	go c.runExpiryLoop()
	return c
}

// GetOrFetch implements spec §4.2.
func (c *Cache) GetOrFetch(ctx context.Context, fp Fingerprint, endpoint string, ttl time.Duration, produce Producer) ([]byte, ResultMeta, error) {
	now := time.Now()

	c.entriesLock.RLock()
	entry, ok := c.entries[fp]
	c.entriesLock.RUnlock()

	if ok && entry.Valid && !entry.digestMatches() {
		// Self-healing: corrupted entry, treat as miss (spec §4.2, invariant 2).
		c.entriesLock.Lock()
		delete(c.entries, fp)
		c.entriesLock.Unlock()
		ok = false
	}

	if ok && entry.isFresh(now) {
		atomic.AddUint64(&c.hits, 1)
		metrics.IncrCounter([]string{"catalogd", "cache", "hit"}, 1)
		return entry.Payload, ResultMeta{Hit: true, Negative: entry.Source == SourceNegative, NegativeKind: entry.NegativeKind}, nil
	}

	if ok && entry.isWithinGrace(now) {
		// Stale-while-revalidate: serve synchronously, refresh in the
		// background. Background refresh is deliberately not tied to ctx:
		// it must survive the originating request (spec §5).
		atomic.AddUint64(&c.hits, 1)
		metrics.IncrCounter([]string{"catalogd", "cache", "stale_hit"}, 1)
		go c.fetch(fp, endpoint, ttl, produce)
		return entry.Payload, ResultMeta{Hit: true, Stale: true, Negative: entry.Source == SourceNegative, NegativeKind: entry.NegativeKind}, nil
	}

	atomic.AddUint64(&c.misses, 1)
	metrics.IncrCounter([]string{"catalogd", "cache", "miss"}, 1)

	waiter := c.fetch(fp, endpoint, ttl, produce)

	select {
	case <-ctx.Done():
		return nil, ResultMeta{}, ctx.Err()
	case <-waiter:
	}

	c.entriesLock.RLock()
	entry, ok = c.entries[fp]
	c.entriesLock.RUnlock()
	if !ok || !entry.Valid {
		return nil, ResultMeta{}, errCacheMiss
	}
	return entry.Payload, ResultMeta{Negative: entry.Source == SourceNegative, NegativeKind: entry.NegativeKind}, nil
}

// fetch triggers (or attaches to) the single in-flight Producer call for
// fp. At most one Producer runs per fingerprint at a time, satisfying
// spec invariant 1.
func (c *Cache) fetch(fp Fingerprint, endpoint string, ttl time.Duration, produce Producer) <-chan struct{} {
	c.entriesLock.Lock()
	entry, ok := c.entries[fp]
	if ok && entry.Fetching {
		c.entriesLock.Unlock()
		return entry.Waiter
	}
	if !ok {
		entry = cacheEntry{Waiter: make(chan struct{}), Endpoint: endpoint}
	}
	entry.Fetching = true
	c.entries[fp] = entry
	c.indexEndpointLocked(endpoint, fp)
	metrics.SetGauge([]string{"catalogd", "cache", "entries"}, float32(len(c.entries)))
	c.entriesLock.Unlock()

	go func() {
		payload, err := produce(context.Background())

		c.entriesLock.Lock()
		defer c.entriesLock.Unlock()

		cur := c.entries[fp]
		waiter := cur.Waiter
		newEntry := cur
		newEntry.Fetching = false
		newEntry.Waiter = make(chan struct{})

		if err == nil {
			newEntry.Valid = true
			newEntry.Payload = payload
			newEntry.Digest = digestOf(payload)
			newEntry.Source = SourceOK
			newEntry.Endpoint = endpoint
			newEntry.InsertedAt = time.Now()
			newEntry.FreshUntil = newEntry.InsertedAt.Add(ttl)
			newEntry.StaleUntil = newEntry.InsertedAt.Add(graceWindow(ttl))
			metrics.IncrCounter([]string{"catalogd", "cache", "fetch_success"}, 1)
		} else if neg, isNeg := asNegativeError(err); isNeg {
			negTTL := clampNegativeTTL(neg.TTL)
			newEntry.Valid = true
			newEntry.Payload = nil
			newEntry.Digest = digestOf(nil)
			newEntry.Source = SourceNegative
			newEntry.NegativeKind = neg.Kind
			newEntry.Endpoint = endpoint
			newEntry.InsertedAt = time.Now()
			newEntry.FreshUntil = newEntry.InsertedAt.Add(negTTL)
			newEntry.StaleUntil = newEntry.FreshUntil
			metrics.IncrCounter([]string{"catalogd", "cache", "fetch_negative"}, 1)
		} else {
			// Not cacheable: drop any half-built entry so the next caller
			// retries rather than seeing a permanently invalid slot.
			if !cur.Valid {
				delete(c.entries, fp)
				c.removeEndpointIndexLocked(endpoint, fp)
			}
			metrics.IncrCounter([]string{"catalogd", "cache", "fetch_error"}, 1)
			close(waiter)
			return
		}

		if newEntry.Expiry == nil || newEntry.Expiry.HeapIndex == -1 {
			newEntry.Expiry = &entryExpiry{Key: fp}
			newEntry.Expiry.Update(newEntry.StaleUntil.Sub(newEntry.InsertedAt))
			heap.Push(c.expiryHeap, newEntry.Expiry)
		}
		c.entries[fp] = newEntry
		c.evictIfNeededLocked()
		close(waiter)
	}()

	c.entriesLock.RLock()
	w := c.entries[fp].Waiter
	c.entriesLock.RUnlock()
	return w
}

// evictIfNeededLocked applies spec §4.2's eviction policy. Caller must
// hold entriesLock for writing.
func (c *Cache) evictIfNeededLocked() {
	if len(c.entries) <= c.maxEntries {
		return
	}
	now := time.Now()
	for k, e := range c.entries {
		if !now.Before(e.StaleUntil) {
			c.deleteLocked(k)
			c.evictions++
		}
	}
	if len(c.entries) <= c.maxEntries {
		return
	}
	toEvict := shortestRemainingFreshness(c.entries, len(c.entries)/10+1)
	for _, k := range toEvict {
		c.deleteLocked(k)
		c.evictions++
	}
	metrics.IncrCounter([]string{"catalogd", "cache", "evict"}, float32(len(toEvict)))
}

func (c *Cache) deleteLocked(k Fingerprint) {
	if e, ok := c.entries[k]; ok {
		if e.Expiry != nil && e.Expiry.HeapIndex >= 0 {
			heap.Remove(c.expiryHeap, e.Expiry.HeapIndex)
		}
		c.removeEndpointIndexLocked(e.Endpoint, k)
	}
	delete(c.entries, k)
}

func (c *Cache) indexEndpointLocked(endpoint string, fp Fingerprint) {
	set, ok := c.byEndpoint[endpoint]
	if !ok {
		set = make(map[Fingerprint]struct{})
		c.byEndpoint[endpoint] = set
	}
	set[fp] = struct{}{}
}

func (c *Cache) removeEndpointIndexLocked(endpoint string, fp Fingerprint) {
	if set, ok := c.byEndpoint[endpoint]; ok {
		delete(set, fp)
		if len(set) == 0 {
			delete(c.byEndpoint, endpoint)
		}
	}
}

// Invalidate removes every entry stored under the given endpoint prefix.
// Safe to call concurrently with readers (spec §4.2).
func (c *Cache) Invalidate(prefix string) {
	c.entriesLock.Lock()
	defer c.entriesLock.Unlock()
	for endpoint, set := range c.byEndpoint {
		if endpoint != prefix {
			continue
		}
		for fp := range set {
			c.deleteLocked(fp)
		}
	}
}

// Stats implements spec §4.2's stats() operation.
func (c *Cache) Stats() Stats {
	c.entriesLock.RLock()
	size := len(c.entries)
	c.entriesLock.RUnlock()
	return Stats{
		Hits:      atomic.LoadUint64(&c.hits),
		Misses:    atomic.LoadUint64(&c.misses),
		Evictions: c.evictions,
		Size:      size,
	}
}

// Close stops the background expiry loop. In-flight fetches continue to
// completion; no further background activity is scheduled after Close.
func (c *Cache) Close() error {
	if atomic.SwapUint32(&c.stopped, 1) == 0 {
		close(c.stopCh)
	}
	return nil
}

func (c *Cache) runExpiryLoop() {
	var timer *time.Timer
	for {
		if timer != nil {
			timer.Stop()
		}

		var expiryCh <-chan time.Time
		c.entriesLock.RLock()
		var next *entryExpiry
		if len(c.expiryHeap.Entries) > 0 {
			next = c.expiryHeap.Entries[0]
			timer = time.NewTimer(time.Until(next.Expires))
			expiryCh = timer.C
		}
		c.entriesLock.RUnlock()

		select {
		case <-c.stopCh:
			return
		case <-c.expiryHeap.NotifyCh:
		case <-expiryCh:
			c.entriesLock.Lock()
			if len(c.expiryHeap.Entries) > 0 && c.expiryHeap.Entries[0] == next {
				c.deleteLocked(next.Key)
				c.evictions++
				metrics.IncrCounter([]string{"catalogd", "cache", "evict_expired"}, 1)
			}
			c.entriesLock.Unlock()
		}
	}
}
