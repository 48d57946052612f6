//nolint:tagliatelle // camelCase matches the grid datasource contract.
package api

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultgrid/internal/loader"
	"github.com/ethpandaops/resultgrid/internal/query"
	"github.com/ethpandaops/resultgrid/internal/selection"
)

// Verify interface compliance at compile time.
var (
	_ http.Handler = (*RowsHandler)(nil)
	_ http.Handler = (*CountHandler)(nil)
	_ RowLoader    = (*loader.Loader)(nil)
	_ ViewLoader   = (*loader.Views)(nil)
)

// RowLoader is the paged loader as seen by the HTTP handlers.
type RowLoader interface {
	BlockSize() int
	GetRows(ctx context.Context, vp loader.Viewport) ([]query.Record, error)
	Count(ctx context.Context, state query.SearchState) (int64, error)
	Record(ctx context.Context, id string) ([]query.Record, error)
	Records(
		ctx context.Context,
		state query.SearchState,
		sort query.SortModel,
		tracker selection.Tracker,
		blockSize int,
	) ([]query.Record, error)
}

// ViewLoader serves rows for a client view, reporting responses that a
// newer search, sort or block size of the same view superseded.
type ViewLoader interface {
	GetRows(ctx context.Context, id string, vp loader.Viewport) ([]query.Record, *int64, error)
}

// RowsRequest asks for the half-open window [StartRow, EndRow) of a search.
type RowsRequest struct {
	Query     query.SearchState `json:"query"`
	StartRow  int               `json:"startRow"`
	EndRow    int               `json:"endRow"`
	SortModel query.SortModel   `json:"sortModel,omitempty"`
	BlockSize int               `json:"blockSize,omitempty"`
	// ViewID names the client grid the request belongs to. When set, a
	// response for a search or sort the view has since moved away from is
	// answered with 409 instead of rows.
	ViewID string `json:"viewId,omitempty"`
}

// RowsResponse carries the rows in result order. LastRow is set once the
// end of the result set has been reached.
type RowsResponse struct {
	Rows    []query.Record `json:"rows"`
	LastRow *int64         `json:"lastRow,omitempty"`
}

// RowsHandler handles POST /api/v1/rows requests.
type RowsHandler struct {
	loader RowLoader
	views  ViewLoader
	logger logrus.FieldLogger
}

// NewRowsHandler creates a new rows handler. views may be nil, in which
// case viewId is ignored.
func NewRowsHandler(l RowLoader, views ViewLoader, logger logrus.FieldLogger) *RowsHandler {
	return &RowsHandler{
		loader: l,
		views:  views,
		logger: logger.WithField("handler", "rows"),
	}
}

// ServeHTTP handles the rows request.
func (h *RowsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req RowsRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())

		return
	}

	if err := validateState(req.Query); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())

		return
	}

	blockSize := req.BlockSize
	if blockSize == 0 {
		blockSize = h.loader.BlockSize()
	}

	vp := loader.Viewport{
		StartRow:  req.StartRow,
		EndRow:    req.EndRow,
		SortModel: req.SortModel,
		State:     req.Query,
		BlockSize: blockSize,
	}

	var (
		rows    []query.Record
		lastRow *int64
		err     error
	)

	if req.ViewID != "" && h.views != nil {
		rows, lastRow, err = h.views.GetRows(r.Context(), req.ViewID, vp)
	} else {
		rows, err = h.loader.GetRows(r.Context(), vp)
		lastRow = loader.LastRow(req.StartRow, req.EndRow, len(rows))
	}

	if err != nil {
		writeFailure(w, h.logger, err)

		return
	}

	writeJSON(w, h.logger, http.StatusOK, RowsResponse{
		Rows:    rows,
		LastRow: lastRow,
	})

	h.logger.WithFields(logrus.Fields{
		"start_row": req.StartRow,
		"end_row":   req.EndRow,
		"view":      req.ViewID,
		"rows":      len(rows),
	}).Debug("Served rows request")
}

// CountRequest asks for the total row count of a search.
type CountRequest struct {
	Query query.SearchState `json:"query"`
}

// CountResponse carries the total row count.
type CountResponse struct {
	Count int64 `json:"count"`
}

// CountHandler handles POST /api/v1/count requests.
type CountHandler struct {
	loader RowLoader
	logger logrus.FieldLogger
}

// NewCountHandler creates a new count handler.
func NewCountHandler(l RowLoader, logger logrus.FieldLogger) *CountHandler {
	return &CountHandler{
		loader: l,
		logger: logger.WithField("handler", "count"),
	}
}

// ServeHTTP handles the count request.
func (h *CountHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req CountRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())

		return
	}

	if err := validateState(req.Query); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())

		return
	}

	count, err := h.loader.Count(r.Context(), req.Query)
	if err != nil {
		writeFailure(w, h.logger, err)

		return
	}

	writeJSON(w, h.logger, http.StatusOK, CountResponse{Count: count})
}
