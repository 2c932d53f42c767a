package ratings

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const batchSize = 10000

// DatasetSource is the external collaborator that knows how to reach the
// ratings dataset. It is intentionally narrow: conditional-download
// semantics live here, not in internal/upstream, because the dataset is
// a bulk gzip file on its own quota lane rather than a rate-limited JSON
// endpoint.
type DatasetSource interface {
	// Fetch performs a conditional download against priorTag (the
	// previously stored source digest tag, or "" on first run). When the
	// remote copy is unchanged it returns notModified=true and a nil
	// body. Otherwise it returns a live, gzip-compressed stream the
	// caller must close, plus the new tag to persist on success.
	Fetch(ctx context.Context, priorTag string) (body io.ReadCloser, newTag string, notModified bool, err error)
}

// Ingester drives one ingest cycle: conditional-download, skip check,
// streaming parse, batched staging, atomic commit.
type Ingester struct {
	engine    *Engine
	store     Store
	source    DatasetSource
	minVotes  int64
}

// Options configures Ingester behaviour.
type Options struct {
	MinVotes int64 // default 100, per spec §4.4 / §6
}

func NewIngester(engine *Engine, source DatasetSource, opts Options) *Ingester {
	if opts.MinVotes <= 0 {
		opts.MinVotes = 100
	}
	return &Ingester{engine: engine, store: engine.store, source: source, minVotes: opts.MinVotes}
}

// Run performs one ingest cycle. It never clears the live set on
// failure (spec §4.4 step 4, §7 "ingest failures ... live set
// retained").
func (ing *Ingester) Run(ctx context.Context) error {
	priorTag := ing.engine.SourceTag()
	wasReady := ing.engine.State() == StateReady || ing.engine.State() == StateReadyStale

	if wasReady {
		ing.engine.setState(StateRefreshing)
	} else {
		ing.engine.setState(StateLoading)
	}

	body, newTag, notModified, err := ing.source.Fetch(ctx, priorTag)
	if err != nil {
		ing.fail(wasReady, err)
		return err
	}

	if notModified && ing.store.Size() > 0 {
		// Tag unchanged and we already hold data: skip ingest entirely
		// (spec §4.4 step 2).
		ing.engine.setState(StateReady)
		return nil
	}
	if body == nil {
		ing.fail(wasReady, fmt.Errorf("dataset source returned no body and no prior data"))
		return fmt.Errorf("empty dataset response")
	}
	defer body.Close()

	if err := ing.streamParseAndStage(ctx, body, newTag); err != nil {
		ing.store.AbortStage()
		ing.fail(wasReady, err)
		return err
	}

	ing.engine.setState(StateReady)
	return nil
}

func (ing *Ingester) fail(wasReady bool, err error) {
	if wasReady {
		ing.engine.setState(StateReadyStale)
	} else {
		ing.engine.setState(StateUninitialised)
	}
	ing.engine.logger.Warn("ratings ingest failed, retaining live set", "error", err, "live_size", ing.store.Size())
}

// streamParseAndStage decompresses and parses the dataset line by line,
// accumulating rows in batches of batchSize before handing each batch to
// the store's staging area. It checks ctx for cancellation on every line
// and after every batch; concurrent lookups are never blocked by a
// multi-minute import because the staged rows are invisible to readers
// until CommitStage.
func (ing *Ingester) streamParseAndStage(ctx context.Context, body io.ReadCloser, newTag string) error {
	gz, err := gzip.NewReader(body)
	if err != nil {
		return fmt.Errorf("ratings ingest: opening gzip stream: %w", err)
	}
	defer gz.Close()

	ing.store.BeginStage()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	batch := make([]Row, 0, batchSize)
	lineNo := 0
	flushed := 0

	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			continue // header
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		row, ok, err := parseLine(scanner.Text(), ing.minVotes)
		if err != nil {
			return fmt.Errorf("ratings ingest: line %d: %w", lineNo, err)
		}
		if !ok {
			continue
		}
		batch = append(batch, row)

		if len(batch) >= batchSize {
			ing.store.StageBatch(batch)
			flushed += len(batch)
			batch = batch[:0]
			// Non-blocking cancellation check between batches of a
			// multi-minute import.
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ratings ingest: scanning dataset: %w", err)
	}
	if len(batch) > 0 {
		ing.store.StageBatch(batch)
		flushed += len(batch)
	}

	ing.store.CommitStage(newTag)
	ing.engine.logger.Info("ratings ingest complete", "records", flushed, "source_tag", newTag)
	return nil
}

// parseLine parses one tab-separated "id\trating\tvotes" line and
// applies the minimum-vote filter (spec §4.4 step 3).
func parseLine(line string, minVotes int64) (Row, bool, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 3 {
		return Row{}, false, fmt.Errorf("expected 3 tab-separated fields, got %d", len(fields))
	}

	id := fields[0]
	rating, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Row{}, false, fmt.Errorf("invalid rating %q: %w", fields[1], err)
	}
	votes, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Row{}, false, fmt.Errorf("invalid vote count %q: %w", fields[2], err)
	}

	if votes < minVotes {
		return Row{}, false, nil
	}
	return Row{ID: id, Rating: rating, Votes: votes}, true, nil
}
