package middleware

import (
	"net/http"
	"time"

	"github.com/ayo6706/wallet-transfer/internal/observability"
	"github.com/go-chi/chi/v5"
)

// unmatchedRoute labels every request that hits no registered route.
const unmatchedRoute = "unmatched"

// MetricsMiddleware records request durations labelled by chi route pattern,
// which keeps account and transfer ids out of the label values.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		observability.ObserveHTTP(r.Method, routePattern(r), rw.status, time.Since(start))
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}
