// Package cache implements the response cache described by the catalog
// provider's serving path: a TTL cache with stale-while-revalidate,
// negative caching, request coalescing, and bounded eviction, available in
// an in-process and a shared-backend flavor behind one contract. At
// capacity the in-process cache evicts expired entries first, then the
// entries whose freshness runs out soonest; it does not track access
// recency, so eviction is not least-recently-used.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint is the opaque cache key derived from an endpoint, its
// semantic parameters in canonical order, and the display locale. Equal
// fingerprints must yield semantically equal responses; unequal
// fingerprints may still yield equal responses.
type Fingerprint string

// NewFingerprint canonicalizes endpoint + params + locale into a
// Fingerprint. Params are sorted by key so that call-site ordering never
// affects the resulting key.
func NewFingerprint(endpoint string, params map[string]string, displayLocale string) Fingerprint {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(endpoint)
	b.WriteByte('|')
	b.WriteString(displayLocale)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

func (f Fingerprint) String() string {
	return string(f)
}

func digestOf(payload []byte) [32]byte {
	return sha256.Sum256(payload)
}

func digestHex(d [32]byte) string {
	return fmt.Sprintf("%x", d)
}
