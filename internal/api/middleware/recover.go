package middleware

import (
	"net/http"

	"github.com/ayo6706/wallet-transfer/internal/api/problem"
	"github.com/ayo6706/wallet-transfer/internal/observability"
	"go.uber.org/zap"
)

// RecoverMiddleware turns a handler panic into a 500 problem response. A
// panic inside a transfer unwinds through the service's deferred rollback
// before it reaches here, so no balance change survives it.
func RecoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				observability.IncrementPanic()
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("user_id", UserIDFromContext(r.Context())),
					observability.TraceField(r.Context()),
					zap.Stack("stack"),
				)
				problem.Write(w, r,
					http.StatusInternalServerError,
					problem.Type("internal-server-error"),
					http.StatusText(http.StatusInternalServerError),
					"unexpected server error",
				)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
