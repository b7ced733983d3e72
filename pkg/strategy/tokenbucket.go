package strategy

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Ensure implementation satisfies interface at compile time.
var _ Strategy = (*TokenBucket)(nil)

// TokenBucket paces queued admissions with a token bucket per key.
// Completions do not refill the bucket; only time does.
type TokenBucket struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[int]*rate.Limiter
}

// NewTokenBucket creates a TokenBucket admitting perSecond requests per
// second per key, with bursts of up to burst.
func NewTokenBucket(perSecond float64, burst int) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &TokenBucket{
		limit:    limit,
		burst:    burst,
		limiters: make(map[int]*rate.Limiter),
	}
}

// HandleWaitPass reserves a token for key and releases pass when it is due.
func (s *TokenBucket) HandleWaitPass(key int, pass Pass) {
	reservation := s.limiter(key).Reserve()
	releaseAfter(reservation.Delay(), pass)
}

// ThreadFinished is a no-op; the bucket refills with time.
func (s *TokenBucket) ThreadFinished(int, time.Time) {}

func (s *TokenBucket) limiter(key int) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[key] = l
	}
	return l
}
