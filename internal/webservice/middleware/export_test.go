package middleware

import "time"

// SetClock replaces the clock used to expire idle limiters.
func (l *IPLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
