// Package ratings implements the Ratings Engine (spec §4.4): a locally
// materialised copy of a public ratings dataset, kept fresh by a
// scheduled ingest, served through a pointer-swap (or staged-KV) backend
// so lookups never block on or observe a partial import.
package ratings

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
)

// State is the Ratings Engine's observable lifecycle state.
type State uint8

const (
	StateUninitialised State = iota
	StateLoading
	StateReady
	StateRefreshing
	StateReadyStale
)

func (s State) String() string {
	switch s {
	case StateUninitialised:
		return "UNINITIALISED"
	case StateLoading:
		return "LOADING"
	case StateReady:
		return "READY"
	case StateRefreshing:
		return "REFRESHING"
	case StateReadyStale:
		return "READY-STALE"
	default:
		return "UNKNOWN"
	}
}

// Record is a single title's rating.
type Record struct {
	Rating float64
	Votes  int64
}

// Store is the capability set both storage variants (memstore, kvstore)
// implement (spec §9 "polymorphism over cache/ratings backends").
// StageBatch accumulates rows into a not-yet-visible staging set;
// CommitStage atomically replaces the live set with everything staged
// since the last commit; AbortStage discards the staged-but-uncommitted rows,
// leaving the live set untouched.
type Store interface {
	Lookup(id string) (Record, bool)
	LookupMany(ids []string) map[string]Record
	Size() int

	BeginStage()
	StageBatch(rows []Row)
	CommitStage(sourceTag string)
	AbortStage()

	SourceTag() string

	// ImportedAt reports when the currently-live generation was
	// committed, the last piece of the ImportState entity (spec §3)
	// alongside SourceTag and Size.
	ImportedAt() time.Time
}

// Row is one parsed dataset line surviving the vote-count filter.
type Row struct {
	ID     string
	Rating float64
	Votes  int64
}

// Engine is the Ratings Engine.
type Engine struct {
	store  Store
	logger hclog.Logger

	state   int32 // atomic State
}

func New(store Store, logger hclog.Logger) *Engine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	e := &Engine{store: store, logger: logger.Named("ratings")}
	e.setState(StateUninitialised)
	return e
}

func (e *Engine) setState(s State) { atomic.StoreInt32(&e.state, int32(s)) }

// State reports the engine's current lifecycle state.
func (e *Engine) State() State { return State(atomic.LoadInt32(&e.state)) }

// Lookup returns a single title's rating. On UNINITIALISED it returns a
// miss immediately rather than blocking (spec §4.4 failure semantics).
func (e *Engine) Lookup(id string) (Record, bool) {
	if e.State() == StateUninitialised {
		return Record{}, false
	}
	return e.store.Lookup(id)
}

// LookupMany resolves a batch of IDs against a single consistent
// snapshot of the live set (spec testable property 3): the underlying
// Store never exposes a mixture of pre- and post-swap records because
// swaps are atomic pointer/commit operations, not in-place mutation.
func (e *Engine) LookupMany(ids []string) map[string]Record {
	if e.State() == StateUninitialised {
		return map[string]Record{}
	}
	return e.store.LookupMany(ids)
}

// Size reports the live set's record count, for observability.
func (e *Engine) Size() int { return e.store.Size() }

// SourceTag reports the digest tag of the currently-live dataset, used
// by the ingest loop's conditional-fetch check.
func (e *Engine) SourceTag() string { return e.store.SourceTag() }

// ImportedAt reports the last-import instant of the ImportState entity
// (spec §3), surfaced via /api/status.
func (e *Engine) ImportedAt() time.Time { return e.store.ImportedAt() }
