package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethpandaops/resultgrid/internal/version"
)

// Pinger is a dependency whose reachability decides readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health returns an HTTP handler for health check endpoint.
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, "healthy")
	}
}

// Ready returns a readiness handler that fails while any dependency is
// unreachable. Nil dependencies are skipped.
func Ready(deps ...Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, dep := range deps {
			if dep == nil {
				continue
			}

			if err := dep.Ping(ctx); err != nil {
				writeHealth(w, http.StatusServiceUnavailable, "unavailable")

				return
			}
		}

		writeHealth(w, http.StatusOK, "ready")
	}
}

// Version serves the build information.
func Version() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		_ = json.NewEncoder(w).Encode(version.Get())
	}
}

func writeHealth(w http.ResponseWriter, status int, state string) {
	response := HealthResponse{
		Status:  state,
		Version: version.Release,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)

		return
	}
}
