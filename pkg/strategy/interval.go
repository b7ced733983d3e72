package strategy

import (
	"sync"
	"time"
)

// Ensure implementation satisfies interface at compile time.
var _ Strategy = (*FixedInterval)(nil)

// DefaultInterval is used when a strategy is built with a non-positive interval.
const DefaultInterval = time.Second

// FixedInterval keeps a minimum spacing between the last completion on a key
// and the next admission on it.
type FixedInterval struct {
	interval time.Duration

	mu           sync.Mutex
	lastFinished map[int]time.Time
}

// NewFixedInterval creates a FixedInterval strategy.
func NewFixedInterval(interval time.Duration) *FixedInterval {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &FixedInterval{
		interval:     interval,
		lastFinished: make(map[int]time.Time),
	}
}

// Interval returns the configured spacing.
func (s *FixedInterval) Interval() time.Duration { return s.interval }

// HandleWaitPass delays the release until interval passed since the last
// completion on key.
func (s *FixedInterval) HandleWaitPass(key int, pass Pass) {
	releaseAfter(s.delay(key, time.Now()), pass)
}

func (s *FixedInterval) delay(key int, now time.Time) time.Duration {
	s.mu.Lock()
	last, ok := s.lastFinished[key]
	s.mu.Unlock()

	if !ok {
		return 0
	}
	return max(0, s.interval-now.Sub(last))
}

// ThreadFinished records the completion time of key.
func (s *FixedInterval) ThreadFinished(key int, finishedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastFinished[key] = finishedAt
}
