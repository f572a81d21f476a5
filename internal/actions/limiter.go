package actions

import (
	"sync"

	"golang.org/x/time/rate"
)

// NotifyLimiter caps notification writes per severity with a token bucket
// per key. A burst of rule firings then degrades to a bounded notification
// stream instead of flooding the audit log.
type NotifyLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

// NewNotifyLimiter creates a limiter with r tokens per second and burst b
// per severity.
func NewNotifyLimiter(r float64, b int) *NotifyLimiter {
	return &NotifyLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(r),
		b:        b,
	}
}

// Allow reports whether a notification with the given severity may be
// written now.
func (l *NotifyLimiter) Allow(severity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[severity]
	if !ok {
		limiter = rate.NewLimiter(l.r, l.b)
		l.limiters[severity] = limiter
	}
	return limiter.Allow()
}
