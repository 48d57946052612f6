package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultgrid/internal/query"
	"github.com/ethpandaops/resultgrid/internal/querycache"
	"github.com/ethpandaops/resultgrid/internal/selection"
)

var (
	// ErrInvalidViewport is returned for viewport requests that cannot be
	// served: negative rows, an empty or inverted window, or no block size.
	ErrInvalidViewport = errors.New("invalid viewport")

	// ErrSelectionTooLarge is returned when a selection holds more rows than
	// the loader is allowed to resolve at once.
	ErrSelectionTooLarge = errors.New("selection too large")

	// ErrRecordNotFound is returned when a detail lookup yields no record.
	ErrRecordNotFound = errors.New("record not found")
)

// Viewport is a half-open window [StartRow, EndRow) of the result set of
// State ordered by SortModel, loaded in blocks of BlockSize rows.
type Viewport struct {
	StartRow  int
	EndRow    int
	SortModel query.SortModel
	State     query.SearchState
	BlockSize int
}

// Limits bound the upstream work one viewport may cause.
type Limits struct {
	// MaxBlocks is the most blocks a single viewport may cover.
	MaxBlocks int
	// MaxBlockSize is the largest block size sent upstream as a limit.
	MaxBlockSize int
}

// Validate reports whether the viewport can be served within limits.
func (v Viewport) Validate(limits Limits) error {
	if v.StartRow < 0 || v.EndRow < 0 {
		return fmt.Errorf("%w: negative row (start %d, end %d)", ErrInvalidViewport, v.StartRow, v.EndRow)
	}

	if v.EndRow <= v.StartRow {
		return fmt.Errorf("%w: end row %d must be after start row %d", ErrInvalidViewport, v.EndRow, v.StartRow)
	}

	if v.BlockSize <= 0 {
		return fmt.Errorf("%w: block size must be positive, got %d", ErrInvalidViewport, v.BlockSize)
	}

	if v.BlockSize > limits.MaxBlockSize {
		return fmt.Errorf("%w: block size %d exceeds %d", ErrInvalidViewport, v.BlockSize, limits.MaxBlockSize)
	}

	if n := v.BlockCount(); n > limits.MaxBlocks {
		return fmt.Errorf("%w: rows %d-%d span %d blocks, limit is %d", ErrInvalidViewport, v.StartRow, v.EndRow, n, limits.MaxBlocks)
	}

	if err := v.SortModel.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidViewport, err)
	}

	return nil
}

// BlockCount returns the number of blocks covering the viewport. The
// viewport must have non-negative rows, EndRow > StartRow and a positive
// block size.
func (v Viewport) BlockCount() int {
	return (v.EndRow-1)/v.BlockSize - v.StartRow/v.BlockSize + 1
}

// BlockOffsets returns the block-aligned offsets covering the viewport in
// ascending order. Only call it on a viewport that passed Validate.
func (v Viewport) BlockOffsets() []int {
	first := (v.StartRow / v.BlockSize) * v.BlockSize

	offsets := make([]int, v.BlockCount())
	for i := range offsets {
		offsets[i] = first + i*v.BlockSize
	}

	return offsets
}

// Loader turns viewport requests into block-aligned, cached fetches
// against the query service.
type Loader struct {
	log    logrus.FieldLogger
	cfg    Config
	client query.Client
	cache  querycache.Cache
	sink   RecordSink
}

// New creates a paged loader. A nil sink disables record priming.
func New(
	log logrus.FieldLogger,
	cfg Config,
	client query.Client,
	cache querycache.Cache,
	sink RecordSink,
) *Loader {
	if sink == nil {
		sink = noopSink{}
	}

	return &Loader{
		log:    log.WithField("component", "loader"),
		cfg:    cfg.withDefaults(),
		client: client,
		cache:  cache,
		sink:   sink,
	}
}

// BlockSize returns the configured default block size.
func (l *Loader) BlockSize() int {
	return l.cfg.BlockSize
}

// Limits returns the per-viewport bounds GetRows enforces.
func (l *Loader) Limits() Limits {
	return Limits{
		MaxBlocks:    l.cfg.MaxViewportBlocks,
		MaxBlockSize: l.cfg.MaxBlockSize,
	}
}

// GetRows returns the rows of the viewport in result order. Every covering
// block is fetched concurrently through the query cache; if any block
// fails the whole request fails and no rows are returned. Blocks that did
// load stay cached. Near the end of the result set fewer rows than
// requested may be returned.
func (l *Loader) GetRows(ctx context.Context, vp Viewport) ([]query.Record, error) {
	if err := vp.Validate(l.Limits()); err != nil {
		viewportRequestsTotal.WithLabelValues("invalid").Inc()

		return nil, err
	}

	offsets := vp.BlockOffsets()
	viewportBlocks.Observe(float64(len(offsets)))

	blocks, err := l.fetchBlocks(ctx, vp, offsets)
	if err != nil {
		viewportRequestsTotal.WithLabelValues("error").Inc()

		return nil, err
	}

	size := 0
	for _, block := range blocks {
		size += len(block)
	}

	data := make([]query.Record, 0, size)
	for _, block := range blocks {
		data = append(data, block...)
	}

	l.sink.OnRecordsLoaded(ctx, data)

	var (
		firstBlock = offsets[0]
		start      = min(vp.StartRow-firstBlock, len(data))
		end        = min(vp.EndRow-firstBlock, len(data))
	)

	viewportRequestsTotal.WithLabelValues("success").Inc()

	l.log.WithFields(logrus.Fields{
		"start_row": vp.StartRow,
		"end_row":   vp.EndRow,
		"blocks":    len(offsets),
		"rows":      end - start,
	}).Debug("Loaded viewport")

	return data[start:end], nil
}

// fetchBlocks loads every block concurrently and returns them indexed like
// offsets, independent of completion order. The first failure cancels the
// remaining fetches.
func (l *Loader) fetchBlocks(
	ctx context.Context,
	vp Viewport,
	offsets []int,
) ([][]query.Record, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		index   int
		records []query.Record
		err     error
	}

	resultsChan := make(chan result, len(offsets))

	var fetchWg sync.WaitGroup

	for i, offset := range offsets {
		fetchWg.Add(1)

		go func(index, offset int) {
			defer fetchWg.Done()

			records, err := l.fetchBlock(ctx, vp, offset)
			resultsChan <- result{
				index:   index,
				records: records,
				err:     err,
			}
		}(i, offset)
	}

	go func() {
		fetchWg.Wait()
		close(resultsChan)
	}()

	var (
		blocks   = make([][]query.Record, len(offsets))
		firstErr error
	)

	for res := range resultsChan {
		if res.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("load block at offset %d: %w", offsets[res.index], res.err)

				cancel()
			}

			continue
		}

		blocks[res.index] = res.records
	}

	if firstErr != nil {
		l.log.WithError(firstErr).WithFields(logrus.Fields{
			"start_row": vp.StartRow,
			"end_row":   vp.EndRow,
		}).Warn("Viewport request failed")

		return nil, firstErr
	}

	return blocks, nil
}

func (l *Loader) fetchBlock(ctx context.Context, vp Viewport, offset int) ([]query.Record, error) {
	var (
		route   = l.cfg.RowsRoute
		payload = query.BuildPayload(vp.State, offset, vp.BlockSize, vp.SortModel, false)
	)

	data, err := l.cache.FetchQuery(ctx, querycache.NewKey(route, payload), func(fctx context.Context) ([]byte, error) {
		blockFetchesTotal.Inc()

		return l.client.Query(fctx, route, payload)
	})
	if err != nil {
		return nil, err
	}

	return query.DecodeRecords(data)
}

// Count returns the total number of rows matching state. The count is
// cached under its own key, independent of every row block.
func (l *Loader) Count(ctx context.Context, state query.SearchState) (int64, error) {
	var (
		route   = l.cfg.CountRoute
		payload = query.BuildCountPayload(state)
	)

	data, err := l.cache.FetchQuery(ctx, querycache.NewKey(route, payload), func(fctx context.Context) ([]byte, error) {
		return l.client.Query(fctx, route, payload)
	})
	if err != nil {
		return 0, fmt.Errorf("load row count: %w", err)
	}

	return query.DecodeCount(data)
}

// Record returns the detail lookup for a single record. Rows loaded through
// GetRows are usually already primed in the cache.
func (l *Loader) Record(ctx context.Context, id string) ([]query.Record, error) {
	var (
		route = l.cfg.RecordRoute
		key   = RecordKey(route, id, l.cfg.NeighborDepth)
	)

	data, err := l.cache.FetchQuery(ctx, key, func(fctx context.Context) ([]byte, error) {
		return l.client.Query(fctx, route, key.Payload)
	})
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", id, err)
	}

	records, err := query.DecodeRecords(data)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}

	return records, nil
}

// Records resolves every selected row of tracker to its record, in row
// order, for bulk actions on a selection. Each range is loaded in windows
// of at most MaxViewportBlocks blocks, one window at a time.
func (l *Loader) Records(
	ctx context.Context,
	state query.SearchState,
	sort query.SortModel,
	tracker selection.Tracker,
	blockSize int,
) ([]query.Record, error) {
	total := tracker.Total()
	if l.cfg.MaxSelectionRows > 0 && total > l.cfg.MaxSelectionRows {
		return nil, fmt.Errorf("%w: %d rows selected, limit is %d", ErrSelectionTooLarge, total, l.cfg.MaxSelectionRows)
	}

	if blockSize <= 0 {
		blockSize = l.cfg.BlockSize
	}

	if blockSize > l.cfg.MaxBlockSize {
		return nil, fmt.Errorf("%w: block size %d exceeds %d", ErrInvalidViewport, blockSize, l.cfg.MaxBlockSize)
	}

	window := blockSize * l.cfg.MaxViewportBlocks

	var out []query.Record

	for _, r := range tracker.Ranges() {
		for start := r.Min; start <= r.Max; {
			// Windows end on a block boundary so none covers more than
			// MaxViewportBlocks blocks.
			end := min(start-start%blockSize+window, r.Max+1)

			rows, err := l.GetRows(ctx, Viewport{
				StartRow:  start,
				EndRow:    end,
				SortModel: sort,
				State:     state,
				BlockSize: blockSize,
			})
			if err != nil {
				return nil, fmt.Errorf("load selected rows %s: %w", r, err)
			}

			out = append(out, rows...)

			// A short window means the result set ended inside the range.
			if len(rows) < end-start {
				break
			}

			start = end
		}
	}

	return out, nil
}
