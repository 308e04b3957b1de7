package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/tjfontaine/lambda-api/internal/ratelimit"
)

// KeyFunc derives the rate limit bucket for a request.
type KeyFunc func(r *http.Request) string

// ClientIP returns the first X-Forwarded-For address, else CF-Connecting-IP,
// else "unknown".
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	return "unknown"
}

// IPKey buckets requests by client address.
func IPKey(r *http.Request) string {
	return "rate_limit:" + ClientIP(r)
}

// UserOrIPKey buckets signed-in users by id and everyone else by address.
func UserOrIPKey(r *http.Request) string {
	if u := GetUser(r.Context()); u != nil {
		return "rate_limit:user:" + u.ID
	}
	return IPKey(r)
}

// RateLimitMiddleware applies a fixed-window limit per key. It writes
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset on every
// response and answers 429 once the window's budget is spent. If the counter
// store fails, the request is allowed through.
func RateLimitMiddleware(limiter *ratelimit.Limiter, keyFunc KeyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = IPKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)

			res, err := limiter.Check(r.Context(), key)
			if err != nil {
				logger.Error("rate limit middleware error",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.Itoa(res.ResetSeconds()))

			if !res.Allowed {
				logger.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.Int("max_requests", res.Limit),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				WriteJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Rate limit exceeded"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
