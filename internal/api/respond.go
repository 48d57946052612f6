package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultgrid/internal/loader"
	"github.com/ethpandaops/resultgrid/internal/query"
	"github.com/ethpandaops/resultgrid/internal/selection"
)

const maxRequestBody = 1 << 20

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// decodeRequest reads a JSON body into v, rejecting unknown fields.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}

	return nil
}

func validateState(state query.SearchState) error {
	if state.Target == "" {
		return errors.New("query.target is required")
	}

	if state.Neighbors < 0 {
		return fmt.Errorf("query.neighbors cannot be negative, got %d", state.Neighbors)
	}

	return nil
}

func writeJSON(w http.ResponseWriter, log logrus.FieldLogger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, log logrus.FieldLogger, status int, msg string) {
	writeJSON(w, log, status, ErrorResponse{Error: msg, Status: status})
}

// statusFor maps domain and upstream errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, loader.ErrInvalidViewport),
		errors.Is(err, selection.ErrInvalidRange),
		errors.Is(err, selection.ErrAnchorOutOfRange),
		errors.Is(err, selection.ErrInvalidGesture):
		return http.StatusBadRequest
	case errors.Is(err, loader.ErrSelectionTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, loader.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, loader.ErrStaleResponse):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// writeFailure logs err and writes it with its mapped status. Upstream
// failures are logged as errors, client mistakes at debug.
func writeFailure(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	status := statusFor(err)

	entry := log.WithError(err).WithField("status", status)

	var statusErr *query.StatusError
	if errors.As(err, &statusErr) {
		entry = entry.WithField("upstream_status", statusErr.StatusCode)
	}

	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	writeError(w, log, status, err.Error())
}
