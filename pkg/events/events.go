// Package events defines the lifecycle notifications emitted by a Resistor.
//
// Listeners run synchronously on the goroutine that emitted the event, so
// they should return quickly and must not call Deregister on the engine that
// is notifying them.
package events

// Name identifies a lifecycle event.
type Name string

const (
	// FlushInvoked fires on every flush call. Payload: int64 invocation count.
	FlushInvoked Name = "flush.invoked"
	// FlushScheduled fires when a flush cut a batch. Payload: int64 scheduled count.
	FlushScheduled Name = "flush.scheduled"
	// FlushExecuted fires when an execution finished. Payload: int64 executed count.
	FlushExecuted Name = "flush.executed"

	// WorkerRejected fires on every worker failure. Payload: Rejected.
	WorkerRejected Name = "worker.rejected"
	// WorkerRetrying fires before a failed batch is retried. Payload: Retrying.
	WorkerRetrying Name = "worker.retrying"

	// ThreadOpened fires when an execution slot is taken. Payload: int64 opened count.
	ThreadOpened Name = "thread.opened"
	// ThreadClosed fires when an execution slot is released. Payload: int64 closed count.
	ThreadClosed Name = "thread.closed"

	// QueueEmpty fires when the last waiter leaves the wait queue. Payload: nil.
	QueueEmpty Name = "queue.empty"
	// Empty fires when buffer, active slots and wait queue are all empty. Payload: nil.
	Empty Name = "empty"
)

// All lists every event name in emission order of a single batch lifecycle.
var All = []Name{
	FlushInvoked,
	FlushScheduled,
	ThreadOpened,
	WorkerRejected,
	WorkerRetrying,
	FlushExecuted,
	ThreadClosed,
	QueueEmpty,
	Empty,
}

// Rejected is the payload of WorkerRejected.
type Rejected struct {
	// Err is the error returned (or panic recovered) by the worker.
	Err error
	// Batch is the value handed to the worker: []T for batch workers, T for
	// record workers.
	Batch any
	// ErrorCount is the engine-wide number of worker failures so far.
	ErrorCount int64
	// Attempt is 1 for the first invocation and grows with every retry.
	Attempt int
	// Exhausted reports that no further attempt will be made for this batch.
	Exhausted bool
}

// Retrying is the payload of WorkerRetrying.
type Retrying struct {
	Err        error
	Batch      any
	RetryCount int
}

// Listener receives the payload of an emitted event.
type Listener func(payload any)

// Subscription identifies a registered listener so it can be removed.
type Subscription uint64

// Bus is the notification abstraction the engine publishes to.
type Bus interface {
	// On registers listener for every emission of name.
	On(name Name, listener Listener) Subscription
	// Once registers listener for the next emission of name only.
	Once(name Name, listener Listener) Subscription
	// Off removes a subscription. Unknown subscriptions are ignored.
	Off(name Name, sub Subscription)
	// Emit delivers payload to the current listeners of name.
	Emit(name Name, payload any)
	// Clear removes every subscription.
	Clear()
}
