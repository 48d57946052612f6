//nolint:tagliatelle // camelCase matches the grid datasource contract.
package api

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultgrid/internal/query"
	"github.com/ethpandaops/resultgrid/internal/selection"
)

// Verify interface compliance at compile time.
var (
	_ http.Handler = (*SelectionHandler)(nil)
	_ http.Handler = (*SelectionRecordsHandler)(nil)
)

// SelectionRequest applies one gesture to a selection.
type SelectionRequest struct {
	Ranges  []selection.Range `json:"ranges"`
	Gesture selection.Gesture `json:"gesture"`
}

// SelectionResponse is the resulting selection in canonical form.
type SelectionResponse struct {
	Ranges []selection.Range `json:"ranges"`
	Total  int               `json:"total"`
}

// SelectionHandler handles POST /api/v1/selection requests. The selection
// state lives with the client; the handler is stateless.
type SelectionHandler struct {
	logger logrus.FieldLogger
}

// NewSelectionHandler creates a new selection handler.
func NewSelectionHandler(logger logrus.FieldLogger) *SelectionHandler {
	return &SelectionHandler{
		logger: logger.WithField("handler", "selection"),
	}
}

// ServeHTTP handles the selection request.
func (h *SelectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())

		return
	}

	tracker, err := selection.FromRanges(req.Ranges)
	if err != nil {
		writeFailure(w, h.logger, err)

		return
	}

	tracker, err = selection.Apply(tracker, req.Gesture)
	if err != nil {
		writeFailure(w, h.logger, err)

		return
	}

	writeJSON(w, h.logger, http.StatusOK, SelectionResponse{
		Ranges: tracker.Ranges(),
		Total:  tracker.Total(),
	})
}

// SelectionRecordsRequest resolves a selection of a search to records.
type SelectionRecordsRequest struct {
	Query     query.SearchState `json:"query"`
	SortModel query.SortModel   `json:"sortModel,omitempty"`
	Ranges    []selection.Range `json:"ranges"`
	BlockSize int               `json:"blockSize,omitempty"`
}

// SelectionRecordsResponse carries the selected records in row order.
type SelectionRecordsResponse struct {
	Rows []query.Record `json:"rows"`
}

// SelectionRecordsHandler handles POST /api/v1/selection/records requests.
type SelectionRecordsHandler struct {
	loader RowLoader
	logger logrus.FieldLogger
}

// NewSelectionRecordsHandler creates a new selection records handler.
func NewSelectionRecordsHandler(l RowLoader, logger logrus.FieldLogger) *SelectionRecordsHandler {
	return &SelectionRecordsHandler{
		loader: l,
		logger: logger.WithField("handler", "selection_records"),
	}
}

// ServeHTTP handles the selection records request.
func (h *SelectionRecordsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req SelectionRecordsRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())

		return
	}

	if err := validateState(req.Query); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())

		return
	}

	tracker, err := selection.FromRanges(req.Ranges)
	if err != nil {
		writeFailure(w, h.logger, err)

		return
	}

	rows, err := h.loader.Records(r.Context(), req.Query, req.SortModel, tracker, req.BlockSize)
	if err != nil {
		writeFailure(w, h.logger, err)

		return
	}

	writeJSON(w, h.logger, http.StatusOK, SelectionRecordsResponse{Rows: rows})

	h.logger.WithFields(logrus.Fields{
		"ranges": tracker.Len(),
		"rows":   len(rows),
	}).Debug("Served selection records request")
}
