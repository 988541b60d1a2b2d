package api

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/joshkautz/winter-league-rankings/internal/api/respond"
)

// TimingMiddleware reports server processing time in X-Process-Time.
func TimingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(&timingWriter{ResponseWriter: w, start: start}, r)
	})
}

type timingWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (tw *timingWriter) WriteHeader(status int) {
	if !tw.wroteHeader {
		tw.Header().Set("X-Process-Time", fmt.Sprintf("%.6f", time.Since(tw.start).Seconds()))
		tw.wroteHeader = true
	}
	tw.ResponseWriter.WriteHeader(status)
}

func (tw *timingWriter) Write(b []byte) (int, error) {
	if !tw.wroteHeader {
		tw.WriteHeader(http.StatusOK)
	}
	return tw.ResponseWriter.Write(b)
}

// RateLimitMiddleware applies a shared token-bucket limit across the admin
// surface. The trigger endpoint is cheap to call and expensive to serve, so
// a small global budget is plenty.
func RateLimitMiddleware(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				respond.WriteJSONObject(w, http.StatusTooManyRequests, map[string]any{
					"error": map[string]any{
						"code":    "resource-exhausted",
						"message": "rate limit exceeded",
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
