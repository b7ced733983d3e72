package strategy

import "time"

// Ensure implementation satisfies interface at compile time.
var _ Strategy = Unbound{}

// Unbound releases queued requests as soon as a slot frees.
type Unbound struct{}

// NewUnbound returns the Unbound strategy.
func NewUnbound() Unbound { return Unbound{} }

// HandleWaitPass releases pass immediately.
func (Unbound) HandleWaitPass(_ int, pass Pass) {
	pass.Release()
}

// ThreadFinished is a no-op.
func (Unbound) ThreadFinished(int, time.Time) {}
