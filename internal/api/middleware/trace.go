package middleware

import (
	"net/http"

	"github.com/ayo6706/wallet-transfer/internal/observability"
	"github.com/google/uuid"
)

const traceHeader = "X-Trace-ID"

// TraceMiddleware puts the caller's X-Trace-ID, or a fresh one, on the
// request context and echoes it on the response. Services log it from there.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(observability.WithTraceID(r.Context(), traceID)))
	})
}
