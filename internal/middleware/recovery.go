package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// Recovery returns middleware that turns a handler panic into a JSON 500.
// It sits outside Logging, so the request ID is read back off the response
// headers.
func Recovery(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	log := logger.WithField("component", "recovery")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				// net/http uses this to abort a response silently.
				if rec == http.ErrAbortHandler { //nolint:errorlint,err113 // sentinel panic value
					panic(rec)
				}

				log.WithFields(logrus.Fields{
					"error":      fmt.Sprintf("%v", rec),
					"stack":      string(debug.Stack()),
					"method":     r.Method,
					"path":       r.URL.Path,
					"request_id": w.Header().Get(RequestIDHeader),
				}).Error("Panic recovered")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)

				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":  "internal server error",
					"status": http.StatusInternalServerError,
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
