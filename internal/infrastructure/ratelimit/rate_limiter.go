package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Actions with their own limits.
const (
	ActionSendMessage      = "send_message"
	ActionOpenConversation = "open_conversation"
	ActionTransactionEvent = "transaction_event"
)

// Limit describes a token bucket: Burst tokens, refilled one every Every.
type Limit struct {
	Burst int
	Every time.Duration
}

var defaultLimits = map[string]Limit{
	ActionSendMessage:      {Burst: 10, Every: 6 * time.Second},
	ActionOpenConversation: {Burst: 30, Every: 2 * time.Second},
	ActionTransactionEvent: {Burst: 10, Every: 10 * time.Second},
}

var fallbackLimit = Limit{Burst: 20, Every: 3 * time.Second}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one limiter per user and action.
type RateLimiter struct {
	limits  map[string]Limit
	buckets map[string]*bucket
	mutex   sync.Mutex
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithLimits(defaultLimits)
}

// NewRateLimiterWithLimits overrides the per-action limits. Actions not in
// limits use the fallback limit.
func NewRateLimiterWithLimits(limits map[string]Limit) *RateLimiter {
	return &RateLimiter{
		limits:  limits,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (rl *RateLimiter) limitFor(action string) Limit {
	if l, ok := rl.limits[action]; ok {
		return l
	}
	return fallbackLimit
}

// Allow consumes a token for the user's action. When none is available it
// reports how long until the next one.
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	key := userID + ":" + action
	now := rl.now()

	rl.mutex.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		l := rl.limitFor(action)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(l.Every), l.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mutex.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup drops limiters idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > maxIdle {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanupRoutine runs Cleanup every interval until stop is closed.
func (rl *RateLimiter) StartCleanupRoutine(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			case <-stop:
				return
			}
		}
	}()
}
