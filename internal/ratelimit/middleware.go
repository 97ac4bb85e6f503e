package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"

	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/observability"
)

// Middleware throttles requests per authenticated subject. Limiter failures
// let the request through.
func Middleware(limiter Limiter, logger *log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if claims, ok := auth.FromContext(r.Context()); ok && claims.Subject != "" {
				key = claims.Subject
			}

			decision, err := limiter.Allow(r.Context(), key)
			if err != nil {
				observability.RecordRateLimit("error")
				logger.Warn("rate limiter unavailable", "err", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				observability.RecordRateLimit("limited")
				seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"type":   "rate_limited",
					"detail": "too many sync requests, retry later",
				})
				return
			}
			observability.RecordRateLimit("allowed")
			next.ServeHTTP(w, r)
		})
	}
}
