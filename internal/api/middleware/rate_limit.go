package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ayo6706/wallet-transfer/internal/api/problem"
	"github.com/ayo6706/wallet-transfer/internal/observability"
	"github.com/go-chi/httprate"
)

const rateWindow = time.Second

// PublicRateLimiter limits unauthenticated routes per client IP.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, rateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(limitExceeded("ip", rps)),
	)
}

// AuthRateLimiter limits authenticated routes per user, so transfers from
// one account holder cannot starve another behind the same proxy. Requests
// without a user fall back to the client IP.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, rateWindow,
		httprate.WithKeyFuncs(rateKeyByUser),
		httprate.WithLimitHandler(limitExceeded("user", rps)),
	)
}

func rateKeyByUser(r *http.Request) (string, error) {
	if userID := UserIDFromContext(r.Context()); userID != "" {
		return "user:" + userID, nil
	}
	return httprate.KeyByIP(r)
}

func limitExceeded(scope string, rps int) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(rateWindow / time.Second))
	return func(w http.ResponseWriter, r *http.Request) {
		observability.IncrementRateLimited(scope)
		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w, r,
			http.StatusTooManyRequests,
			problem.Type("rate-limit-exceeded"),
			http.StatusText(http.StatusTooManyRequests),
			fmt.Sprintf("rate limit of %d requests per second exceeded for this %s", rps, scope),
		)
	}
}
