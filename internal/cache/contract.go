package cache

import (
	"context"
	"time"
)

// Producer fetches the payload for a cache miss. It returns the raw
// payload bytes, or an error; a plain error is not cached at all, while
// a *NegativeError (below) asks for the failure to be negative-cached
// with its own TTL, set by the caller that knows the upstream error kind
// (spec §4.2 negative-caching rules).
type Producer func(ctx context.Context) (payload []byte, err error)

// Stats mirrors spec §4.2's stats() operation.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
	// Degraded is true for a shared backend that has fallen through to
	// its in-process fallback after a backend error.
	Degraded bool
}

// ResultMeta carries cache-observability metadata back to the caller
// without forcing every call site to parse entry internals.
type ResultMeta struct {
	Hit     bool
	Stale   bool
	Negative bool
	// NegativeKind is the caller-supplied NegativeError.Kind that produced
	// a Negative entry, carried through cache hits so a handler can
	// reconstruct the original classification (e.g. "NOT_FOUND",
	// "UNAUTHORIZED") on every hit, not just the first miss. Empty when
	// Negative is false.
	NegativeKind string
}

// ResponseCache is the capability set both the in-process and shared
// backends implement (spec §9 "Polymorphism over cache/ratings
// backends"): get-or-fetch with coalescing and stale-while-revalidate,
// prefix invalidation, and stats.
type ResponseCache interface {
	// GetOrFetch implements spec §4.2's three-step algorithm. ttl is the
	// base TTL for a fresh entry; a negative (cacheable-failure) outcome
	// takes its TTL from the producer's NegativeError instead.
	GetOrFetch(ctx context.Context, fp Fingerprint, endpoint string, ttl time.Duration, produce Producer) ([]byte, ResultMeta, error)

	// Invalidate removes every entry whose Endpoint equals prefix.
	Invalidate(prefix string)

	Stats() Stats

	Close() error
}

// NegativeError lets a Producer signal that a failure should be
// negative-cached rather than treated as an uncachable error. Kind is an
// opaque, caller-defined label (handlers use apierror.Kind's string
// values, e.g. "NOT_FOUND"/"UNAUTHORIZED") round-tripped through
// ResultMeta.NegativeKind on every subsequent hit so the original
// classification survives the cache, not just the initial miss.
type NegativeError struct {
	Err  error
	TTL  time.Duration
	Kind string
}

func (n *NegativeError) Error() string { return n.Err.Error() }
func (n *NegativeError) Unwrap() error { return n.Err }

// BackendError wraps a transport-level failure talking to a shared
// backend (as opposed to a Producer's own error), so a decorator like
// fallbackcache can tell the two apart and only degrade on the former.
type BackendError struct {
	Err error
}

func (b *BackendError) Error() string { return "shared cache backend: " + b.Err.Error() }
func (b *BackendError) Unwrap() error { return b.Err }

// graceWindow implements spec's "Grace window = ceil(TTL * 2.5)".
func graceWindow(ttl time.Duration) time.Duration {
	const num, den = 5, 2 // 2.5x, expressed as integer math to round up exactly
	d := (ttl*num + den - 1) / den
	if d < ttl {
		d = ttl
	}
	return d
}
