package cache

import "time"

// SourceKind classifies how a CachedEntry came to exist.
type SourceKind uint8

const (
	// SourceOK entries hold a successful upstream response.
	SourceOK SourceKind = iota
	// SourceNegative entries record a typed failure (NOT_FOUND, AUTH) so
	// repeated misses don't thunder the upstream.
	SourceNegative
)

// cacheEntry is the in-memory representation of a CachedEntry plus the
// bookkeeping the cache needs to serve it, expire it, and coalesce
// concurrent fetches for it. It intentionally mirrors the shape of the
// teacher's agent/cache cacheEntry: a Valid/Fetching pair, a Waiter
// channel for the leader pattern, and an expiry handle shared with the
// heap.
type cacheEntry struct {
	Valid    bool
	Fetching bool

	Payload []byte
	Digest  [32]byte
	Source  SourceKind
	// NegativeKind carries the originating NegativeError.Kind for
	// SourceNegative entries, so every hit (not just the first miss) can
	// reconstruct the classification that produced it.
	NegativeKind string

	InsertedAt time.Time
	FreshUntil time.Time
	StaleUntil time.Time

	// Endpoint is the un-hashed prefix this entry was stored under, used
	// by Invalidate(prefix) since Fingerprint itself is a content hash.
	Endpoint string

	Waiter chan struct{}
	Expiry *entryExpiry
}

func (e cacheEntry) isFresh(now time.Time) bool {
	return e.Valid && now.Before(e.FreshUntil)
}

func (e cacheEntry) isWithinGrace(now time.Time) bool {
	return e.Valid && now.Before(e.StaleUntil)
}

// digestMatches re-derives the payload digest and compares it against the
// stored one; a mismatch means the entry is corrupted and must be treated
// as a miss rather than served (self-healing, spec §4.2).
func (e cacheEntry) digestMatches() bool {
	return digestOf(e.Payload) == e.Digest
}
