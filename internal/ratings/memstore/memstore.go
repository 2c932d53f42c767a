// Package memstore implements the Ratings Engine's MEMORY storage
// variant (spec §4.4): two containers held on-heap, swapped by pointer
// so readers never observe a partially-imported set (spec §5 "ratings
// set: pointer-swap gives lock-free reads; writes occur only in the
// ingest task").
package memstore

import (
	"sync/atomic"
	"time"

	"github.com/basakil/catalogd/internal/ratings"
)

type snapshot struct {
	records    map[string]ratings.Record
	sourceTag  string
	importedAt time.Time
}

// Store is the in-memory Ratings Store.
type Store struct {
	live atomic.Value // holds *snapshot

	staging map[string]ratings.Record
}

func New() *Store {
	s := &Store{}
	s.live.Store(&snapshot{records: map[string]ratings.Record{}})
	return s
}

func (s *Store) Lookup(id string) (ratings.Record, bool) {
	snap := s.live.Load().(*snapshot)
	r, ok := snap.records[id]
	return r, ok
}

func (s *Store) LookupMany(ids []string) map[string]ratings.Record {
	snap := s.live.Load().(*snapshot) // single snapshot for the whole batch
	out := make(map[string]ratings.Record, len(ids))
	for _, id := range ids {
		if r, ok := snap.records[id]; ok {
			out[id] = r
		}
	}
	return out
}

func (s *Store) Size() int {
	return len(s.live.Load().(*snapshot).records)
}

func (s *Store) SourceTag() string {
	return s.live.Load().(*snapshot).sourceTag
}

// ImportedAt reports when the currently-live generation was committed,
// satisfying the ImportState entity's last-import instant (spec §3).
func (s *Store) ImportedAt() time.Time {
	return s.live.Load().(*snapshot).importedAt
}

// BeginStage allocates a fresh staging map, invisible to readers.
func (s *Store) BeginStage() {
	s.staging = make(map[string]ratings.Record, batchSizeHint)
}

const batchSizeHint = 10000

func (s *Store) StageBatch(rows []ratings.Row) {
	if s.staging == nil {
		s.staging = make(map[string]ratings.Record, batchSizeHint)
	}
	for _, r := range rows {
		s.staging[r.ID] = ratings.Record{Rating: r.Rating, Votes: r.Votes}
	}
}

// CommitStage publishes the staged map as the live set in one atomic
// pointer store (spec testable property 3: no lookup ever sees a
// mixture of pre- and post-swap records).
func (s *Store) CommitStage(sourceTag string) {
	s.live.Store(&snapshot{records: s.staging, sourceTag: sourceTag, importedAt: time.Now()})
	s.staging = nil
}

func (s *Store) AbortStage() {
	s.staging = nil
}
