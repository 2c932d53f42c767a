// Package enrich implements the Enrichment Pipeline (spec §4.5):
// combines Upstream Client output with the Ratings Engine and a
// cross-reference lookup to produce the client-facing catalog/meta
// schema.
package enrich

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/basakil/catalogd/internal/collab"
	"github.com/basakil/catalogd/internal/ratings"
)

// Item is one catalog entry as returned by the upstream client, before
// enrichment.
type Item struct {
	ID         string
	Categories []string
	PosterURL  string
}

// EnrichedItem is Item plus whatever the pipeline was able to attach.
type EnrichedItem struct {
	Item
	Rating      *ratings.Record
	CrossRef    *collab.CrossRefEntry
}

// Page is one page of catalog results from the upstream client.
type Page struct {
	Items        []Item
	TotalResults int
	TotalPages   int
}

// PosterOverride is a per-catalog configuration option: nil means "use
// the global poster-service setting", non-nil explicitly turns the
// poster service on or off for this catalog (spec §4.5 step 5).
type PosterOverride = *bool

// Options configures one pipeline invocation.
type Options struct {
	ExcludedCategories []string
	GlobalPosterSvcOn  bool
	PosterOverride     PosterOverride
	PlaceholderPoster  func(baseURL string) string
	BaseURL            string
	Shuffle            bool
	TotalPagesForShuffle int // upstream-reported total pages, before the [1,500] clamp
}

// Result is the pipeline's output: the enriched, filtered page plus
// whether the response as a whole must be marked non-cacheable.
type Result struct {
	Items        []EnrichedItem
	TotalResults int // left unadjusted by post-filtering; see postFilter doc comment
	NonCacheable bool
}

// Pipeline ties together the ratings engine and cross-reference lookup.
type Pipeline struct {
	ratingsEngine *ratings.Engine
	crossRef      collab.CrossRefLookup
}

func New(ratingsEngine *ratings.Engine, crossRef collab.CrossRefLookup) *Pipeline {
	return &Pipeline{ratingsEngine: ratingsEngine, crossRef: crossRef}
}

// Run applies the full enrichment sequence to one page of upstream
// results (spec §4.5 steps 1-6).
func (p *Pipeline) Run(ctx context.Context, page Page, opts Options) Result {
	kept := postFilter(page.Items, opts.ExcludedCategories)

	enriched := p.attachCrossRefAndRatings(ctx, kept)

	posterSvcOn := opts.GlobalPosterSvcOn
	if opts.PosterOverride != nil {
		posterSvcOn = *opts.PosterOverride
	}
	applyPosters(enriched, posterSvcOn, opts)

	res := Result{
		Items:        enriched,
		TotalResults: page.TotalResults, // spec §4.5 step 3: upstream total, not post-filtered count
	}

	if opts.Shuffle {
		shufflePage(enriched, opts.TotalPagesForShuffle)
		res.NonCacheable = true
	}

	return res
}

// postFilter drops items whose category set intersects the exclusion
// set (spec §4.5 step 3, testable property 5). Pagination counts are
// deliberately left untouched by the caller (Run), which is spec's
// documented open question: "the post-filter ... intentionally leaves
// totalResults unadjusted, which makes pagination slightly lie...
// implementations preserve observed behaviour" rather than correcting
// it.
func postFilter(items []Item, excluded []string) []Item {
	if len(excluded) == 0 {
		return items
	}
	exSet := make(map[string]struct{}, len(excluded))
	for _, c := range excluded {
		exSet[c] = struct{}{}
	}

	kept := make([]Item, 0, len(items))
	for _, it := range items {
		if intersects(it.Categories, exSet) {
			continue
		}
		kept = append(kept, it)
	}
	return kept
}

func intersects(categories []string, exSet map[string]struct{}) bool {
	for _, c := range categories {
		if _, excluded := exSet[c]; excluded {
			return true
		}
	}
	return false
}

// attachCrossRefAndRatings resolves cross-references (miss-tolerant, per
// spec §4.5 step 2) and attaches ratings via a single lookupMany call
// per page (spec §4.5 step 4).
func (p *Pipeline) attachCrossRefAndRatings(ctx context.Context, items []Item) []EnrichedItem {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}

	var refs map[string]collab.CrossRefEntry
	if p.crossRef != nil {
		refs, _ = p.crossRef.LookupMany(ctx, ids) // miss/error tolerant: nil map is fine below
	}

	ratingByID := map[string]ratings.Record{}
	if p.ratingsEngine != nil {
		ratingByID = p.ratingsEngine.LookupMany(ids)
	}

	out := make([]EnrichedItem, len(items))
	for i, it := range items {
		ei := EnrichedItem{Item: it}
		if r, ok := ratingByID[it.ID]; ok {
			rc := r
			ei.Rating = &rc
		}
		if refs != nil {
			if ref, ok := refs[it.ID]; ok {
				rc := ref
				ei.CrossRef = &rc
			}
		}
		out[i] = ei
	}
	return out
}

// applyPosters implements spec §4.5 steps 5-6: per-catalog poster
// service override, with a placeholder substituted for any item still
// missing a poster afterwards.
func applyPosters(items []EnrichedItem, posterSvcOn bool, opts Options) {
	for i := range items {
		if !posterSvcOn {
			items[i].PosterURL = ""
		}
		if items[i].PosterURL == "" && opts.PlaceholderPoster != nil {
			items[i].PosterURL = opts.PlaceholderPoster(opts.BaseURL)
		}
	}
}

// shufflePage implements spec §4.5's randomisation tie-break rule: the
// effective page is drawn from a bounded uniform distribution over
// [1, min(totalPages, 500)] by the caller before calling Run (the
// fetched page itself), and the items within that page are locally
// shuffled here.
func shufflePage(items []EnrichedItem, totalPages int) {
	rand.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}

// RandomPageIndex draws a 1-based page index uniformly from
// [1, min(totalPages, 500)], per spec §4.5's tie-break rule for
// randomised catalog order.
func RandomPageIndex(totalPages int) int {
	max := totalPages
	if max > 500 {
		max = 500
	}
	if max < 1 {
		max = 1
	}
	return rand.Intn(max) + 1
}

// ResolveDatePreset resolves a dynamic date-preset label (e.g. "last 30
// days") at request time, not at configuration time (spec §4.5 step 1).
// The window is open on the upper bound: [now-duration, now).
func ResolveDatePreset(preset string, now time.Time) (from, to time.Time, ok bool) {
	days, ok := datePresetDays[strings.ToLower(strings.TrimSpace(preset))]
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	to = now
	from = now.AddDate(0, 0, -days)
	return from, to, true
}

var datePresetDays = map[string]int{
	"last 7 days":  7,
	"last 30 days": 30,
	"last 90 days": 90,
	"last year":    365,
}
