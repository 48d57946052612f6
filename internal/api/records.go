package api

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultgrid/internal/query"
	"github.com/ethpandaops/resultgrid/internal/querycache"
)

// Verify interface compliance at compile time.
var (
	_ http.Handler = (*RecordHandler)(nil)
	_ http.Handler = (*CachePurgeHandler)(nil)
)

// RecordResponse carries a record detail lookup: the record and its
// neighbours as returned by the query service.
type RecordResponse struct {
	Records []query.Record `json:"records"`
}

// RecordHandler handles GET /api/v1/records/{id} requests.
type RecordHandler struct {
	loader RowLoader
	logger logrus.FieldLogger
}

// NewRecordHandler creates a new record handler.
func NewRecordHandler(l RowLoader, logger logrus.FieldLogger) *RecordHandler {
	return &RecordHandler{
		loader: l,
		logger: logger.WithField("handler", "record"),
	}
}

// ServeHTTP handles the record request.
func (h *RecordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, h.logger, http.StatusBadRequest, "id parameter required")

		return
	}

	records, err := h.loader.Record(r.Context(), id)
	if err != nil {
		writeFailure(w, h.logger, err)

		return
	}

	writeJSON(w, h.logger, http.StatusOK, RecordResponse{Records: records})
}

// CachePurgeHandler handles DELETE /api/v1/cache requests.
type CachePurgeHandler struct {
	cache  querycache.Cache
	logger logrus.FieldLogger
}

// NewCachePurgeHandler creates a new cache purge handler.
func NewCachePurgeHandler(cache querycache.Cache, logger logrus.FieldLogger) *CachePurgeHandler {
	return &CachePurgeHandler{
		cache:  cache,
		logger: logger.WithField("handler", "cache_purge"),
	}
}

// ServeHTTP drops every cached query result.
func (h *CachePurgeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Purge(r.Context()); err != nil {
		h.logger.WithError(err).Error("Failed to purge query cache")
		writeError(w, h.logger, http.StatusInternalServerError, "failed to purge query cache")

		return
	}

	h.logger.Info("Purged query cache")

	w.WriteHeader(http.StatusNoContent)
}
