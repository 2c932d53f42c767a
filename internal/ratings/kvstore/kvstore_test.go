package kvstore

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/require"

	"github.com/basakil/catalogd/internal/ratings"
)

type fakeConsulKV struct {
	mu    sync.Mutex
	store map[string][]byte
}

func (f *fakeConsulKV) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/v1/kv/")
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			f.store[key] = body
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("true"))

		case http.MethodGet:
			if r.URL.Query().Has("recurse") {
				var pairs []*api.KVPair
				for k, v := range f.store {
					if strings.HasPrefix(k, key) {
						pairs = append(pairs, &api.KVPair{Key: k, Value: v})
					}
				}
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(pairs)
				return
			}
			v, ok := f.store[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode([]*api.KVPair{{Key: key, Value: v}})

		case http.MethodDelete:
			if r.URL.Query().Has("recurse") {
				for k := range f.store {
					if strings.HasPrefix(k, key) {
						delete(f.store, k)
					}
				}
			} else {
				delete(f.store, key)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("true"))
		}
	}
}

func (f *fakeConsulKV) keysWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.store {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

func newTestStore(t *testing.T) (*Store, *fakeConsulKV) {
	t.Helper()
	fake := &fakeConsulKV{store: map[string][]byte{}}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	cfg := api.DefaultConfig()
	cfg.Address = srv.URL
	client, err := api.NewClient(cfg)
	require.NoError(t, err)

	return New(client, "catalogd/ratings/"), fake
}

func TestStore_CommitStageSwapsLiveSetAtomically(t *testing.T) {
	s, _ := newTestStore(t)

	s.BeginStage()
	s.StageBatch([]ratings.Row{{ID: "tt1", Rating: 8.0, Votes: 1000}})
	s.CommitStage("gen-1")

	r, ok := s.Lookup("tt1")
	require.True(t, ok)
	require.Equal(t, 8.0, r.Rating)
	require.Equal(t, "gen-1", s.SourceTag())
	require.WithinDuration(t, time.Now(), s.ImportedAt(), time.Second)
}

func TestStore_CommitStageDeletesThePreviousGenerationsChunks(t *testing.T) {
	s, fake := newTestStore(t)

	s.BeginStage()
	s.StageBatch([]ratings.Row{{ID: "tt1", Rating: 8.0, Votes: 1000}})
	s.CommitStage("gen-1")
	firstGeneration := s.liveGeneration
	require.NotEmpty(t, fake.keysWithPrefix("catalogd/ratings/data/"+firstGeneration+"/"))

	s.BeginStage()
	s.StageBatch([]ratings.Row{{ID: "tt2", Rating: 9.0, Votes: 1000}})
	s.CommitStage("gen-2")

	require.Empty(t, fake.keysWithPrefix("catalogd/ratings/data/"+firstGeneration+"/"),
		"the superseded generation's chunks must be deleted once it's no longer live")
	require.NotEmpty(t, fake.keysWithPrefix("catalogd/ratings/data/"+s.liveGeneration+"/"))

	_, ok := s.Lookup("tt1")
	require.False(t, ok)
	r, ok := s.Lookup("tt2")
	require.True(t, ok)
	require.Equal(t, 9.0, r.Rating)
}

func TestStore_AbortStageLeavesPriorGenerationLive(t *testing.T) {
	s, _ := newTestStore(t)
	s.BeginStage()
	s.StageBatch([]ratings.Row{{ID: "tt1", Rating: 8.0, Votes: 1000}})
	s.CommitStage("gen-1")

	s.BeginStage()
	s.StageBatch([]ratings.Row{{ID: "tt2", Rating: 9.0, Votes: 1000}})
	s.AbortStage()

	_, ok := s.Lookup("tt2")
	require.False(t, ok)
	_, ok = s.Lookup("tt1")
	require.True(t, ok)
}

func TestStore_LoadFromKVReconstructsMirrorFromDurableState(t *testing.T) {
	writer, _ := newTestStore(t)
	writer.BeginStage()
	writer.StageBatch([]ratings.Row{{ID: "tt1", Rating: 8.0, Votes: 1000}})
	writer.CommitStage("gen-1")

	reader := &Store{kv: writer.kv, prefix: writer.prefix}
	reader.live.Store(&snapshot{records: map[string]ratings.Record{}})

	require.NoError(t, reader.LoadFromKV())
	r, ok := reader.Lookup("tt1")
	require.True(t, ok)
	require.Equal(t, 8.0, r.Rating)
	require.Equal(t, "gen-1", reader.SourceTag())
	require.WithinDuration(t, time.Now(), reader.ImportedAt(), time.Second)
}
