package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

var errTooManyRequests = errors.New("too many requests, try again shortly")

// RateLimit rejects requests with 429 once limiter runs dry.
func RateLimit(limiter *rate.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				log.Warn("rate limited",
					slog.String("path", r.URL.Path),
					slog.String("request_id", middleware.GetReqID(r.Context())),
				)
				writeError(w, r, http.StatusTooManyRequests, "Rate limited", errTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
