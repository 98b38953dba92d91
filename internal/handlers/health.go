package handlers

import (
	"context"
	"net/http"
	"time"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, "", map[string]string{"status": "ok"})
}

// Readyz runs every check and answers 503 when any fails.
func Readyz(checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		results := make(map[string]string, len(checks))
		ready := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				ready = false
				continue
			}
			results[name] = "ok"
		}

		if !ready {
			writeJSON(w, http.StatusServiceUnavailable, Response{Success: false, Data: results, Error: "not ready"})
			return
		}
		writeData(w, http.StatusOK, "", results)
	}
}
