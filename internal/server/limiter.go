package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// ipLimiters holds one token-bucket limiter per client IP.
type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// limiterHandle is the per-connection view of an IP's limiter.
type limiterHandle struct {
	l *rate.Limiter
}

func newIPLimiters(perSecond int) *ipLimiters {
	return &ipLimiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    perSecond,
	}
}

func (il *ipLimiters) get(ip string) *limiterHandle {
	il.mu.Lock()
	defer il.mu.Unlock()

	l, ok := il.limiters[ip]
	if !ok {
		l = rate.NewLimiter(il.limit, il.burst)
		il.limiters[ip] = l
	}
	return &limiterHandle{l: l}
}

// Allow reports whether one more command may run now.
func (h *limiterHandle) Allow() bool {
	return h.l.Allow()
}
