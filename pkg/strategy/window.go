package strategy

import (
	"sync"
	"time"
)

// Ensure implementation satisfies interface at compile time.
var _ Strategy = (*SlidingWindow)(nil)

// SlidingWindow allows at most occurrence completions per key inside any
// rolling interval. When the window is full the release waits until the
// oldest completion leaves it.
type SlidingWindow struct {
	interval   time.Duration
	occurrence int

	mu       sync.Mutex
	activity map[int][]time.Time
}

// NewSlidingWindow creates a SlidingWindow strategy.
func NewSlidingWindow(interval time.Duration, occurrence int) *SlidingWindow {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if occurrence <= 0 {
		occurrence = 1
	}
	return &SlidingWindow{
		interval:   interval,
		occurrence: occurrence,
		activity:   make(map[int][]time.Time),
	}
}

// HandleWaitPass releases pass once the window of key has room.
func (s *SlidingWindow) HandleWaitPass(key int, pass Pass) {
	releaseAfter(s.delay(key, time.Now()), pass)
}

func (s *SlidingWindow) delay(key int, now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	inWindow := make([]time.Time, 0, len(s.activity[key]))
	for _, at := range s.activity[key] {
		if now.Sub(at) < s.interval {
			inWindow = append(inWindow, at)
		}
	}

	var wait time.Duration
	if len(inWindow) >= s.occurrence {
		oldest := inWindow[0]
		inWindow = inWindow[1:]
		wait = s.interval - now.Sub(oldest)
	}

	s.activity[key] = inWindow
	return wait
}

// ThreadFinished appends the completion time to the window of key.
func (s *SlidingWindow) ThreadFinished(key int, finishedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activity[key] = append(s.activity[key], finishedAt)
}

// InWindow returns how many completions of key are still tracked.
func (s *SlidingWindow) InWindow(key int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.activity[key])
}
