package api

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/albapepper/pitlane/internal/api/respond"
	"github.com/albapepper/pitlane/internal/apperr"
)

// --------------------------------------------------------------------------
// Request timing middleware
// --------------------------------------------------------------------------

// timedWriter stamps X-Process-Time on the first header write, since
// headers set after the body starts are dropped.
type timedWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (w *timedWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		elapsed := time.Since(w.start)
		w.Header().Set("X-Process-Time", fmt.Sprintf("%.2fms", float64(elapsed.Microseconds())/1000.0))
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *timedWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *timedWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// TimingMiddleware adds X-Process-Time header to all responses.
func TimingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&timedWriter{ResponseWriter: w, start: time.Now()}, r)
	})
}

// --------------------------------------------------------------------------
// Rate limiting middleware (per-client token buckets)
// --------------------------------------------------------------------------

type clientBuckets struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newClientBuckets(requestsPerWindow int, window time.Duration) *clientBuckets {
	rps := float64(requestsPerWindow) / window.Seconds()
	burst := requestsPerWindow / 2
	if burst < 1 {
		burst = 1
	}
	return &clientBuckets{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

func (l *clientBuckets) bucket(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.limiters[ip]
	if !ok {
		b = rate.NewLimiter(l.rate, l.burst)
		l.limiters[ip] = b
	}
	return b
}

// RateLimitMiddleware returns middleware that rate-limits by client IP.
// Requests for which exempt returns true (trusted cron callers) skip the
// bucket. A rejected request is told how long until its next token.
func RateLimitMiddleware(requestsPerWindow int, window time.Duration, exempt func(*http.Request) bool) func(http.Handler) http.Handler {
	limiter := newClientBuckets(requestsPerWindow, window)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt != nil && exempt(r) {
				next.ServeHTTP(w, r)
				return
			}
			ip, _, _ := net.SplitHostPort(r.RemoteAddr)
			if ip == "" {
				ip = r.RemoteAddr
			}

			res := limiter.bucket(ip).Reserve()
			if delay := res.Delay(); !res.OK() || delay > 0 {
				res.Cancel()
				if !res.OK() || delay > window {
					delay = window
				}
				retry := max(int(math.Ceil(delay.Seconds())), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				respond.WriteError(w, http.StatusTooManyRequests, apperr.CodeRateLimited,
					fmt.Sprintf("Too many requests from this client, retry in %ds", retry))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
