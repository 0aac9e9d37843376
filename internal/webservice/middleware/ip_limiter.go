// Package middleware provides the HTTP middleware shared by the web service routes.
package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPLimiter limits the rate of requests based on the client's IP address.
type IPLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	rate     rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// DefaultIdle is how long the limiter of an address is kept without requests.
const DefaultIdle = 10 * time.Minute

// NewIPLimiter creates a new IPLimiter with the specified rate limit and burst size.
// r is the maximum number of requests allowed per second and b the maximum number of requests allowed in a burst.
func NewIPLimiter(r rate.Limit, b int) *IPLimiter {
	return &IPLimiter{
		limiters: make(map[string]*visitor),
		rate:     r,
		burst:    b,
		idle:     DefaultIdle,
		now:      time.Now,
	}
}

func (l *IPLimiter) getLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, v := range l.limiters {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.limiters, k)
		}
	}

	v, exists := l.limiters[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Len returns the number of addresses currently tracked.
func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Wrap applies rate limiting based on the client's IP address.
func (l *IPLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "unable to determine client address")
			return
		}
		if !l.getLimiter(ip).Allow() {
			w.Header().Set("Retry-After", "1")
			WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
