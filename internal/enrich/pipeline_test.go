package enrich

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/basakil/catalogd/internal/ratings"
	"github.com/basakil/catalogd/internal/ratings/memstore"
)

func TestPipeline_PostFilterExcludesCategoriesButLeavesTotalUnadjusted(t *testing.T) {
	p := New(nil, nil)
	page := Page{
		Items: []Item{
			{ID: "1", Categories: []string{"horror"}},
			{ID: "2", Categories: []string{"comedy"}},
		},
		TotalResults: 42,
	}

	result := p.Run(context.Background(), page, Options{ExcludedCategories: []string{"horror"}})

	require.Len(t, result.Items, 1)
	require.Equal(t, "2", result.Items[0].ID)
	require.Equal(t, 42, result.TotalResults, "documented open question: totalResults is left unadjusted by post-filtering")
}

// unchangedSource reports the dataset as not modified, so an ingest over
// an already-populated store only moves the engine to READY.
type unchangedSource struct{}

func (unchangedSource) Fetch(ctx context.Context, priorTag string) (io.ReadCloser, string, bool, error) {
	return nil, priorTag, true, nil
}

func TestPipeline_AttachesRatings(t *testing.T) {
	store := memstore.New()
	store.BeginStage()
	store.StageBatch([]ratings.Row{{ID: "tt1", Rating: 8.4, Votes: 5000}})
	store.CommitStage("tag-1")
	engine := ratings.New(store, nil)
	// An UNINITIALISED engine answers every lookup with a miss.
	require.NoError(t, ratings.NewIngester(engine, unchangedSource{}, ratings.Options{}).Run(context.Background()))
	require.Equal(t, ratings.StateReady, engine.State())

	p := New(engine, nil)
	page := Page{Items: []Item{{ID: "tt1"}, {ID: "tt2"}}}

	result := p.Run(context.Background(), page, Options{})

	require.NotNil(t, result.Items[0].Rating)
	require.Equal(t, 8.4, result.Items[0].Rating.Rating)
	require.Nil(t, result.Items[1].Rating)
}

func TestPipeline_PosterOverrideAndPlaceholder(t *testing.T) {
	p := New(nil, nil)
	page := Page{Items: []Item{{ID: "1", PosterURL: "http://example.com/a.png"}}}

	off := false
	result := p.Run(context.Background(), page, Options{
		GlobalPosterSvcOn: true,
		PosterOverride:    &off,
		PlaceholderPoster: func(base string) string { return base + "/placeholder.png" },
		BaseURL:           "http://host",
	})

	require.Equal(t, "http://host/placeholder.png", result.Items[0].PosterURL)
}

func TestPipeline_ShuffleMarksNonCacheable(t *testing.T) {
	p := New(nil, nil)
	page := Page{Items: []Item{{ID: "1"}, {ID: "2"}, {ID: "3"}}}

	result := p.Run(context.Background(), page, Options{Shuffle: true, TotalPagesForShuffle: 10})

	require.True(t, result.NonCacheable)
	require.Len(t, result.Items, 3)
}

func TestRandomPageIndex_ClampsTo500(t *testing.T) {
	for i := 0; i < 50; i++ {
		idx := RandomPageIndex(10000)
		require.GreaterOrEqual(t, idx, 1)
		require.LessOrEqual(t, idx, 500)
	}
}

func TestResolveDatePreset(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)

	from, to, ok := ResolveDatePreset("Last 30 Days", now)
	require.True(t, ok)
	require.Equal(t, now, to)
	require.Equal(t, now.AddDate(0, 0, -30), from)

	_, _, ok = ResolveDatePreset("not a preset", now)
	require.False(t, ok)
}
