// Package analytics records engine counters.
//
// Each counter is owned by the component performing the matching
// transition; the Recorder only makes the values safe to read from other
// goroutines.
package analytics

import (
	"sync/atomic"
	"time"

	"github.com/jittakal/resistor/pkg/analytics"
)

// Recorder holds the live counters of one engine.
type Recorder struct {
	invoked     atomic.Int64
	scheduled   atomic.Int64
	executed    atomic.Int64
	errors      atomic.Int64
	retried     atomic.Int64
	processTime atomic.Int64

	active        atomic.Int64
	opened        atomic.Int64
	closed        atomic.Int64
	activeMaximum atomic.Int64

	waiting      atomic.Int64
	queueMaximum atomic.Int64

	received atomic.Int64
	buffered atomic.Int64
}

// New creates a zeroed recorder.
func New() *Recorder {
	return &Recorder{}
}

// Invoked counts a flush call and returns the new total.
func (r *Recorder) Invoked() int64 { return r.invoked.Add(1) }

// Scheduled counts a batch cut from the buffer and returns the new total.
func (r *Recorder) Scheduled() int64 { return r.scheduled.Add(1) }

// Executed counts a completed execution and returns the new total.
func (r *Recorder) Executed(took time.Duration) int64 {
	r.processTime.Store(int64(took))
	return r.executed.Add(1)
}

// Failed counts a worker failure and returns the new total.
func (r *Recorder) Failed() int64 { return r.errors.Add(1) }

// Retried counts a retry attempt and returns the new total.
func (r *Recorder) Retried() int64 { return r.retried.Add(1) }

// Opened marks a slot as taken and returns the new opened total.
func (r *Recorder) Opened() int64 {
	storeMax(&r.activeMaximum, r.active.Add(1))
	return r.opened.Add(1)
}

// Closed marks a slot as released and returns the new closed total.
func (r *Recorder) Closed() int64 {
	r.active.Add(-1)
	return r.closed.Add(1)
}

// Enqueued counts a waiter entering the queue.
func (r *Recorder) Enqueued() {
	storeMax(&r.queueMaximum, r.waiting.Add(1))
}

// Dequeued counts a waiter leaving the queue.
func (r *Recorder) Dequeued() {
	r.waiting.Add(-1)
}

// Received counts a pushed record.
func (r *Recorder) Received() {
	r.received.Add(1)
	r.buffered.Add(1)
}

// Unbuffered subtracts n records cut from the buffer.
func (r *Recorder) Unbuffered(n int) {
	r.buffered.Add(-int64(n))
}

// Snapshot copies the current counters.
func (r *Recorder) Snapshot() analytics.Snapshot {
	return analytics.Snapshot{
		Worker: analytics.Worker{
			Invoked:     r.invoked.Load(),
			Scheduled:   r.scheduled.Load(),
			Executed:    r.executed.Load(),
			Errors:      r.errors.Load(),
			Retried:     r.retried.Load(),
			ProcessTime: time.Duration(r.processTime.Load()),
		},
		Thread: analytics.Thread{
			Active:  r.active.Load(),
			Opened:  r.opened.Load(),
			Closed:  r.closed.Load(),
			Maximum: r.activeMaximum.Load(),
		},
		Queue: analytics.Queue{
			Waiting: r.waiting.Load(),
			Maximum: r.queueMaximum.Load(),
		},
		Record: analytics.Record{
			Received: r.received.Load(),
			Buffered: r.buffered.Load(),
		},
	}
}

func storeMax(max *atomic.Int64, v int64) {
	for {
		cur := max.Load()
		if v <= cur || max.CompareAndSwap(cur, v) {
			return
		}
	}
}
