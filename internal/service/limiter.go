package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdle is how long an unused player limiter is kept
const limiterIdle = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// playerLimiter hands out one token bucket per player
type playerLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	lastScan time.Time
}

func newPlayerLimiter(perMinute float64, burst int) *playerLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	if burst <= 0 {
		burst = 1
	}
	return &playerLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
	}
}

func (l *playerLimiter) allow(playerID string, now time.Time) bool {
	if l.limit == rate.Inf {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastScan) > limiterIdle {
		for id, v := range l.visitors {
			if now.Sub(v.lastSeen) > limiterIdle {
				delete(l.visitors, id)
			}
		}
		l.lastScan = now
	}

	v, ok := l.visitors[playerID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[playerID] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}
