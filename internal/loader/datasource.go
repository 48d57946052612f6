package loader

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultgrid/internal/query"
)

// ErrStaleResponse is returned by Datasource.Fetch when the view's search,
// sort or block size changed while the request was in flight.
var ErrStaleResponse = errors.New("response superseded by a newer view state")

// GetRowsParams is one request from the grid's virtualization layer.
type GetRowsParams struct {
	StartRow  int
	EndRow    int
	SortModel query.SortModel
	// SuccessCallback receives the rows and, when the end of the result set
	// has been reached, the total row count. lastRow is nil otherwise.
	SuccessCallback func(rows []query.Record, lastRow *int64)
	FailCallback    func()
}

// Datasource adapts a Loader to the grid datasource contract for one view.
//
// Responses are tagged with a generation. Changing the search state or
// the sort model starts a new generation, and any response belonging to an
// older one is dropped without invoking either callback, so a slow reply
// for a previous query can never overwrite rows of the current one.
type Datasource struct {
	log       logrus.FieldLogger
	loader    *Loader
	blockSize int

	mu         sync.Mutex
	state      query.SearchState
	sort       query.SortModel
	generation uint64
}

// NewDatasource creates a datasource for state. A non-positive blockSize
// uses the loader default.
func NewDatasource(
	log logrus.FieldLogger,
	loader *Loader,
	state query.SearchState,
	blockSize int,
) *Datasource {
	if blockSize <= 0 {
		blockSize = loader.BlockSize()
	}

	return &Datasource{
		log:       log.WithField("component", "datasource"),
		loader:    loader,
		blockSize: blockSize,
		state:     state,
	}
}

// SetSearchState switches the datasource to a new search. In-flight
// responses for the previous search are discarded.
func (d *Datasource) SetSearchState(state query.SearchState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state = state
	d.generation++
}

// Invalidate discards every in-flight response without changing the search.
func (d *Datasource) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.generation++
}

// Generation returns the current response generation.
func (d *Datasource) Generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.generation
}

// GetRows serves one grid request. Exactly one of the callbacks is invoked,
// unless the response went stale while in flight, in which case neither is.
func (d *Datasource) GetRows(ctx context.Context, params GetRowsParams) {
	vp, generation := d.begin(params.StartRow, params.EndRow, params.SortModel, nil)

	rows, err := d.load(ctx, vp, generation)

	switch {
	case errors.Is(err, ErrStaleResponse):
		return
	case err != nil:
		d.log.WithError(err).WithFields(logrus.Fields{
			"start_row": params.StartRow,
			"end_row":   params.EndRow,
		}).Warn("Failed to load rows for grid")

		if params.FailCallback != nil {
			params.FailCallback()
		}
	case params.SuccessCallback != nil:
		params.SuccessCallback(rows, LastRow(params.StartRow, params.EndRow, len(rows)))
	}
}

// Fetch serves a request that carries the view's full search, as the HTTP
// rows endpoint does. A search or block size that differs from the view's
// current one starts a new generation, like a sort change. It returns
// ErrStaleResponse when a later request changed the view while this one
// was in flight.
func (d *Datasource) Fetch(ctx context.Context, vp Viewport) ([]query.Record, *int64, error) {
	apply := func() {
		if vp.State != d.state {
			d.state = vp.State
			d.generation++
		}

		if vp.BlockSize > 0 && vp.BlockSize != d.blockSize {
			d.blockSize = vp.BlockSize
			d.generation++
		}
	}

	current, generation := d.begin(vp.StartRow, vp.EndRow, vp.SortModel, apply)

	rows, err := d.load(ctx, current, generation)
	if err != nil {
		return nil, nil, err
	}

	return rows, LastRow(vp.StartRow, vp.EndRow, len(rows)), nil
}

// begin runs apply and records the sort model under the lock. It returns the
// viewport to load along with the generation it belongs to.
func (d *Datasource) begin(startRow, endRow int, sort query.SortModel, apply func()) (Viewport, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if apply != nil {
		apply()
	}

	if !slices.Equal(d.sort, sort) {
		d.sort = slices.Clone(sort)
		d.generation++
	}

	return Viewport{
		StartRow:  startRow,
		EndRow:    endRow,
		SortModel: sort,
		State:     d.state,
		BlockSize: d.blockSize,
	}, d.generation
}

func (d *Datasource) load(ctx context.Context, vp Viewport, generation uint64) ([]query.Record, error) {
	rows, err := d.loader.GetRows(ctx, vp)

	if current := d.Generation(); current != generation {
		staleResponsesTotal.Inc()

		d.log.WithFields(logrus.Fields{
			"start_row":          vp.StartRow,
			"end_row":            vp.EndRow,
			"request_generation": generation,
			"current_generation": current,
		}).Debug("Dropping stale response")

		return nil, fmt.Errorf("%w: generation %d superseded by %d", ErrStaleResponse, generation, current)
	}

	return rows, err
}

// LastRow returns the total row count when a response for [startRow,
// endRow) came back short, which only happens at the end of the result
// set. It returns nil while the end has not been reached.
func LastRow(startRow, endRow, returned int) *int64 {
	if returned >= endRow-startRow {
		return nil
	}

	n := int64(startRow + returned)

	return &n
}
