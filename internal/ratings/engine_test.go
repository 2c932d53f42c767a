package ratings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	records    map[string]Record
	tag        string
	staged     map[string]Record
	importedAt time.Time
}

func newFakeStore() *fakeStore { return &fakeStore{records: map[string]Record{}} }

func (s *fakeStore) Lookup(id string) (Record, bool) { r, ok := s.records[id]; return r, ok }
func (s *fakeStore) LookupMany(ids []string) map[string]Record {
	out := map[string]Record{}
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out[id] = r
		}
	}
	return out
}
func (s *fakeStore) Size() int { return len(s.records) }
func (s *fakeStore) BeginStage() { s.staged = map[string]Record{} }
func (s *fakeStore) StageBatch(rows []Row) {
	for _, r := range rows {
		s.staged[r.ID] = Record{Rating: r.Rating, Votes: r.Votes}
	}
}
func (s *fakeStore) CommitStage(sourceTag string) {
	s.records = s.staged
	s.tag = sourceTag
	s.staged = nil
	s.importedAt = time.Now()
}
func (s *fakeStore) AbortStage()          { s.staged = nil }
func (s *fakeStore) SourceTag() string    { return s.tag }
func (s *fakeStore) ImportedAt() time.Time { return s.importedAt }

func TestEngine_LookupOnUninitialisedNeverBlocks(t *testing.T) {
	e := New(newFakeStore(), nil)
	require.Equal(t, StateUninitialised, e.State())

	_, ok := e.Lookup("tt1")
	require.False(t, ok)

	got := e.LookupMany([]string{"tt1", "tt2"})
	require.Empty(t, got)
}

func TestEngine_LookupAfterCommitReflectsLiveSet(t *testing.T) {
	store := newFakeStore()
	e := New(store, nil)

	store.BeginStage()
	store.StageBatch([]Row{{ID: "tt1", Rating: 7.5, Votes: 1000}})
	store.CommitStage("tag-a")
	e.setState(StateReady)

	r, ok := e.Lookup("tt1")
	require.True(t, ok)
	require.Equal(t, 7.5, r.Rating)
	require.Equal(t, "tag-a", e.SourceTag())
	require.WithinDuration(t, time.Now(), e.ImportedAt(), time.Second)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "UNINITIALISED", StateUninitialised.String())
	require.Equal(t, "LOADING", StateLoading.String())
	require.Equal(t, "READY", StateReady.String())
	require.Equal(t, "REFRESHING", StateRefreshing.String())
	require.Equal(t, "READY-STALE", StateReadyStale.String())
}
