package middleware

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"helpdesk-service/internal/timeutil"
)

// UserRateLimiter keeps a token-bucket limiter per user id. Idle entries
// are evicted so the map does not grow with the user population.
type UserRateLimiter struct {
	mu       sync.Mutex
	limiters map[uuid.UUID]*userLimiterEntry
	limit    rate.Limit
	burst    int
}

type userLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewUserRateLimiter allows `requests` per `window` for each user
func NewUserRateLimiter(requests int, window time.Duration) *UserRateLimiter {
	l := &UserRateLimiter{
		limiters: make(map[uuid.UUID]*userLimiterEntry),
		limit:    rate.Limit(float64(requests) / window.Seconds()),
		burst:    requests,
	}
	go l.evictLoop(10 * time.Minute)
	return l
}

// Allow reports whether the user may proceed with one more request
func (l *UserRateLimiter) Allow(userID uuid.UUID) bool {
	l.mu.Lock()
	entry, ok := l.limiters[userID]
	if !ok {
		entry = &userLimiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = entry
	}
	entry.lastSeen = time.Now()
	l.mu.Unlock()

	return entry.limiter.Allow()
}

func (l *UserRateLimiter) evictLoop(idle time.Duration) {
	ticker := time.NewTicker(idle)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		l.mu.Lock()
		for id, entry := range l.limiters {
			if timeutil.IsExpired(entry.lastSeen, idle, now) {
				delete(l.limiters, id)
			}
		}
		l.mu.Unlock()
	}
}
