package cache

import (
	"sort"
	"time"
)

// entryExpiry is a heap element tracking when a keyed entry should be
// purged. It is shared between the entries map and the expiry heap so
// that touching an entry's TTL (Update) can Fix its position in place,
// exactly as the teacher's cacheEntryExpiry/expiryHeap pair works in
// agent/cache/cache.go.
type entryExpiry struct {
	Key       Fingerprint
	Expires   time.Time
	HeapIndex int
}

// Update bumps the expiry forward by d from now. Callers must Fix the
// owning heap after calling this while holding the heap's lock.
func (e *entryExpiry) Update(d time.Duration) {
	e.Expires = time.Now().Add(d)
}

// expiryHeap is a container/heap.Interface over *entryExpiry, ordered so
// the soonest-to-expire entry is always at index 0.
type expiryHeap struct {
	Entries  []*entryExpiry
	NotifyCh chan struct{}
}

func (h *expiryHeap) Len() int { return len(h.Entries) }

func (h *expiryHeap) Less(i, j int) bool {
	return h.Entries[i].Expires.Before(h.Entries[j].Expires)
}

func (h *expiryHeap) Swap(i, j int) {
	h.Entries[i], h.Entries[j] = h.Entries[j], h.Entries[i]
	h.Entries[i].HeapIndex = i
	h.Entries[j].HeapIndex = j
}

func (h *expiryHeap) Push(x interface{}) {
	entry := x.(*entryExpiry)
	entry.HeapIndex = len(h.Entries)
	h.Entries = append(h.Entries, entry)
	h.notify()
}

func (h *expiryHeap) Pop() interface{} {
	n := len(h.Entries)
	entry := h.Entries[n-1]
	h.Entries[n-1] = nil
	h.Entries = h.Entries[:n-1]
	entry.HeapIndex = -1
	h.notify()
	return entry
}

func (h *expiryHeap) notify() {
	select {
	case h.NotifyCh <- struct{}{}:
	default:
	}
}

// shortestRemainingFreshness returns the keys of the n entries (from
// the full entries map, not just this heap) whose FreshUntil is closest,
// used by the 10%-eviction rule on insert-at-capacity.
func shortestRemainingFreshness(entries map[Fingerprint]cacheEntry, n int) []Fingerprint {
	type kv struct {
		key   Fingerprint
		fresh time.Time
	}
	all := make([]kv, 0, len(entries))
	for k, e := range entries {
		all = append(all, kv{k, e.FreshUntil})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].fresh.Before(all[j].fresh) })
	if n > len(all) {
		n = len(all)
	}
	out := make([]Fingerprint, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, all[i].key)
	}
	return out
}
