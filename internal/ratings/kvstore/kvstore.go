// Package kvstore implements the Ratings Engine's SHARED storage variant
// (spec §4.4): the dataset is staged under a distinct key and the live
// set is switched over in a single atomic pointer write, so that a
// CommitStage failure never affects readers and a concurrent reader
// either sees the old generation in full or the new one in full (spec
// testable property 3).
package kvstore

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/consul/api"
	uuid "github.com/hashicorp/go-uuid"

	"github.com/basakil/catalogd/internal/ratings"
)

const chunkSize = 10000

type snapshot struct {
	records    map[string]ratings.Record
	sourceTag  string
	importedAt time.Time
}

// Store is the shared, KV-backed Ratings Store. Lookups are served from
// an in-process mirror rebuilt on every successful commit; the KV store
// itself is the durable, cross-process source of truth for the live
// pointer and data chunks.
type Store struct {
	kv     *api.KV
	prefix string

	live atomic.Value // *snapshot

	mu             sync.Mutex
	generation     string
	liveGeneration string // generation currently pointed at by the live key, for post-commit cleanup
	chunkIndex     int
	stagingRows    map[string]ratings.Record
}

func New(client *api.Client, prefix string) *Store {
	s := &Store{kv: client.KV(), prefix: prefix}
	s.live.Store(&snapshot{records: map[string]ratings.Record{}})
	return s
}

func (s *Store) Lookup(id string) (ratings.Record, bool) {
	snap := s.live.Load().(*snapshot)
	r, ok := snap.records[id]
	return r, ok
}

func (s *Store) LookupMany(ids []string) map[string]ratings.Record {
	snap := s.live.Load().(*snapshot)
	out := make(map[string]ratings.Record, len(ids))
	for _, id := range ids {
		if r, ok := snap.records[id]; ok {
			out[id] = r
		}
	}
	return out
}

func (s *Store) Size() int { return len(s.live.Load().(*snapshot).records) }

func (s *Store) SourceTag() string { return s.live.Load().(*snapshot).sourceTag }

// ImportedAt reports when the currently-live generation was committed,
// satisfying the ImportState entity's last-import instant (spec §3).
func (s *Store) ImportedAt() time.Time { return s.live.Load().(*snapshot).importedAt }

// BeginStage opens a fresh staging generation, keyed so it never
// collides with the currently-live generation even if CommitStage is
// never reached.
func (s *Store) BeginStage() {
	gen, err := uuid.GenerateUUID()
	if err != nil {
		gen = fmt.Sprintf("gen-%p", s) // pathological fallback, still unique per process
	}
	s.mu.Lock()
	s.generation = gen
	s.chunkIndex = 0
	s.stagingRows = make(map[string]ratings.Record, chunkSize)
	s.mu.Unlock()
}

func (s *Store) stagePrefix() string {
	return fmt.Sprintf("%sdata/%s/", s.prefix, s.generation)
}

// StageBatch writes rows to durable staging chunks under this
// generation's key prefix, invisible to readers until CommitStage
// flips the live pointer.
func (s *Store) StageBatch(rows []ratings.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk := make(map[string]ratings.Record, len(rows))
	for _, r := range rows {
		chunk[r.ID] = ratings.Record{Rating: r.Rating, Votes: r.Votes}
		s.stagingRows[r.ID] = ratings.Record{Rating: r.Rating, Votes: r.Votes}
	}

	raw, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	key := fmt.Sprintf("%s%06d", s.stagePrefix(), s.chunkIndex)
	_, _ = s.kv.Put(&api.KVPair{Key: key, Value: raw}, nil)
	s.chunkIndex++
}

// CommitStage writes the metadata pointer (generation + source tag,
// record count, and import instant) in a single KV Put and swaps the
// in-process mirror atomically. The pointer write is the one
// linearisation point: any reader either resolves the old generation
// or the new one, never a mixture. Once the swap has landed, the
// generation it replaced is no longer reachable from the live pointer,
// so its staging chunks are deleted to keep the KV tree bounded (a
// multi-hundred-megabyte dataset refreshed daily would otherwise orphan
// one full generation's worth of chunks per day, forever).
func (s *Store) CommitStage(sourceTag string) {
	s.mu.Lock()
	generation := s.generation
	previousGeneration := s.liveGeneration
	rows := s.stagingRows
	s.mu.Unlock()

	now := time.Now()
	meta := liveMeta{Generation: generation, SourceTag: sourceTag, RecordCount: len(rows), LastImport: now}
	raw, err := json.Marshal(meta)
	if err == nil {
		_, _ = s.kv.Put(&api.KVPair{Key: s.prefix + "live", Value: raw}, nil)
	}

	s.live.Store(&snapshot{records: rows, sourceTag: sourceTag, importedAt: now})

	s.mu.Lock()
	s.stagingRows = nil
	s.liveGeneration = generation
	s.mu.Unlock()

	if previousGeneration != "" && previousGeneration != generation {
		_, _ = s.kv.DeleteTree(fmt.Sprintf("%sdata/%s/", s.prefix, previousGeneration), nil)
	}
}

// AbortStage discards the staging area without publishing it and
// deletes its already-written chunks, since nothing ever points the
// live meta key at an uncommitted generation.
func (s *Store) AbortStage() {
	s.mu.Lock()
	generation := s.generation
	s.stagingRows = nil
	s.mu.Unlock()

	_, _ = s.kv.DeleteTree(fmt.Sprintf("%sdata/%s/", s.prefix, generation), nil)
}

type liveMeta struct {
	Generation  string    `json:"generation"`
	SourceTag   string    `json:"source_tag"`
	RecordCount int       `json:"record_count"`
	LastImport  time.Time `json:"last_import"`
}

// LoadFromKV reconstructs the in-process mirror from durable KV state,
// e.g. at startup before the first ingest cycle of this process runs.
func (s *Store) LoadFromKV() error {
	pair, _, err := s.kv.Get(s.prefix+"live", nil)
	if err != nil {
		return err
	}
	if pair == nil {
		return nil
	}
	var meta liveMeta
	if err := json.Unmarshal(pair.Value, &meta); err != nil {
		return nil // corrupt pointer: treated as uninitialised
	}

	pairs, _, err := s.kv.List(fmt.Sprintf("%sdata/%s/", s.prefix, meta.Generation), nil)
	if err != nil {
		return err
	}
	records := make(map[string]ratings.Record)
	for _, p := range pairs {
		var chunk map[string]ratings.Record
		if json.Unmarshal(p.Value, &chunk) == nil {
			for id, r := range chunk {
				records[id] = r
			}
		}
	}
	s.live.Store(&snapshot{records: records, sourceTag: meta.SourceTag, importedAt: meta.LastImport})

	s.mu.Lock()
	s.liveGeneration = meta.Generation
	s.mu.Unlock()
	return nil
}
