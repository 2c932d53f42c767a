// Package ratelimit implements the single process-wide TokenBucket the
// Upstream Client acquires from before every outbound call (spec §4.1,
// §5). It is a thin, spec-shaped wrapper over golang.org/x/time/rate —
// the exact limiter the teacher's own agent/cache.Cache uses per cache
// entry (rate.NewLimiter(EntryFetchRate, EntryFetchMaxBurst)); here one
// limiter is shared by every caller instead of one per cache entry.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket rate-limits outbound upstream calls. Acquire suspends
// cooperatively (never busy-waits) until a token is available or ctx is
// canceled.
type TokenBucket struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	baseRate rate.Limit
	burst   int
	waits   uint64
}

// New creates a TokenBucket with the given steady-state rate (requests
// per second) and burst capacity.
func New(ratePerSecond float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	r := rate.Limit(ratePerSecond)
	return &TokenBucket{limiter: rate.NewLimiter(r, burst), baseRate: r, burst: burst}
}

// Acquire blocks until a token is available. Cancellation of ctx
// propagates immediately (spec §5 suspension-point cancellation rule).
func (b *TokenBucket) Acquire(ctx context.Context) error {
	b.mu.Lock()
	lim := b.limiter
	b.mu.Unlock()

	if lim.Allow() {
		return nil
	}

	atomic.AddUint64(&b.waits, 1)
	return lim.Wait(ctx)
}

// DrainUntil empties the bucket and clamps its rate to at most
// impliedRate until deadline elapses, implementing spec §4.1's
// retry-after honouring: the upstream's advertised delay becomes an
// absolute lower bound and prevents a cascade of immediate retries.
func (b *TokenBucket) DrainUntil(deadline time.Time, impliedRate float64) {
	wait := time.Until(deadline)
	if wait <= 0 {
		return
	}

	b.mu.Lock()
	newLimit := rate.Limit(impliedRate)
	if newLimit <= 0 || newLimit > b.baseRate {
		newLimit = b.baseRate
	}
	if floor := rate.Every(wait); newLimit > floor {
		newLimit = floor
	}
	drained := rate.NewLimiter(newLimit, b.burst)
	// Reserve the entire burst so the first Allow()/Wait() after DrainUntil
	// has to wait out the deadline rather than spending the fresh bucket's
	// initial burst immediately.
	drained.ReserveN(time.Now(), b.burst)
	b.limiter = drained
	b.mu.Unlock()

	go func() {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		<-timer.C
		b.mu.Lock()
		if b.limiter == drained {
			b.limiter = rate.NewLimiter(b.baseRate, b.burst)
		}
		b.mu.Unlock()
	}()
}

// Waits reports how many Acquire calls had to suspend before being
// granted a token, for observability (spec §4.7 "token-bucket waits").
func (b *TokenBucket) Waits() uint64 {
	return atomic.LoadUint64(&b.waits)
}
