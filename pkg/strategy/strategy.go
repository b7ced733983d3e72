// Package strategy defines the admission-timing policies of a Resistor.
//
// A Strategy is consulted every time an execution slot frees while
// requests are queued. It decides when the oldest queued request may
// start by releasing its Pass, possibly after a delay. Strategies never
// reorder releases; the scheduler admits released requests in queue order.
//
// Strategy state is keyed by an int: the constant 0 when the limiter is
// applied globally, or the slot index when it is applied per thread.
package strategy

import "time"

// Pass is the one-shot handle of a queued admission request.
// Release may be called from any goroutine; calls after the first are no-ops.
type Pass interface {
	Release()
}

// Strategy decides when a queued admission request may proceed.
type Strategy interface {
	// HandleWaitPass must eventually call pass.Release exactly once.
	// It must not block the caller; delayed releases run on their own timer.
	HandleWaitPass(key int, pass Pass)

	// ThreadFinished is called on every completed execution.
	ThreadFinished(key int, finishedAt time.Time)
}

// releaseAfter releases pass once d elapsed.
func releaseAfter(d time.Duration, pass Pass) {
	if d <= 0 {
		pass.Release()
		return
	}
	time.AfterFunc(d, pass.Release)
}
