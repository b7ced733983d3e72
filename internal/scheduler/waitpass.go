package scheduler

import (
	"sync"

	"github.com/jittakal/resistor/pkg/strategy"
)

// Ensure implementation satisfies interface at compile time.
var _ strategy.Pass = (*waitPass)(nil)

// admission is the slot a released request was admitted to.
type admission struct {
	slot   int
	opened int64
}

// waitPass is the one-shot handle of a queued request. The queued caller
// receives from ready exactly once; the scheduler sends exactly once, after
// the strategy released this pass and every pass popped before it.
type waitPass struct {
	s        *Scheduler
	ready    chan admission
	once     sync.Once
	approved bool
}

func newWaitPass(s *Scheduler) *waitPass {
	return &waitPass{
		s:     s,
		ready: make(chan admission, 1),
	}
}

// Release approves the pass. Only the first call has an effect.
func (p *waitPass) Release() {
	p.once.Do(func() {
		p.s.approve(p)
	})
}
