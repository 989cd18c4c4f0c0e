package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gigledger/escrow/internal/api/httpx"
)

type tokenBucket struct {
	tokens int
	last   time.Time
}

// limiter keeps one bucket per client address, refilled at rate per second.
type limiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	rate    int
	burst   int
}

func (l *limiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	tb, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) > 10000 {
			l.buckets = make(map[string]*tokenBucket)
		}
		tb = &tokenBucket{tokens: l.burst, last: now}
		l.buckets[key] = tb
	}
	if refill := int(now.Sub(tb.last).Seconds() * float64(l.rate)); refill > 0 {
		tb.tokens = min(tb.tokens+refill, l.burst)
		tb.last = now
	}
	if tb.tokens == 0 {
		return false
	}
	tb.tokens--
	return true
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func RateLimit(rps int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := &limiter{buckets: make(map[string]*tokenBucket), rate: rps, burst: rps}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(clientKey(r), time.Now()) {
				w.Header().Set("Retry-After", strconv.Itoa(1))
				httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
