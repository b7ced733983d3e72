// Package analytics defines the read-only usage snapshot of a Resistor,
// designed to back health checks and metrics exporters.
package analytics

import "time"

// Snapshot is a point-in-time copy of the engine counters.
type Snapshot struct {
	Worker Worker `json:"worker"`
	Thread Thread `json:"thread"`
	Queue  Queue  `json:"queue"`
	Record Record `json:"record"`
}

// Worker counts flush and worker activity.
type Worker struct {
	Invoked   int64 `json:"invoked"`
	Scheduled int64 `json:"scheduled"`
	Executed  int64 `json:"executed"`
	Errors    int64 `json:"errors"`
	Retried   int64 `json:"retried"`
	// ProcessTime is the duration of the most recently completed execution.
	ProcessTime time.Duration `json:"processTime"`
}

// Thread tracks execution slots.
type Thread struct {
	Active  int64 `json:"active"`
	Opened  int64 `json:"opened"`
	Closed  int64 `json:"closed"`
	Maximum int64 `json:"maximum"`
}

// Queue tracks the admission wait queue.
type Queue struct {
	Waiting int64 `json:"waiting"`
	Maximum int64 `json:"maximum"`
}

// Record tracks pushed and buffered records.
type Record struct {
	Received int64 `json:"received"`
	Buffered int64 `json:"buffered"`
}

// Idle reports whether nothing is buffered, running or waiting.
func (s Snapshot) Idle() bool {
	return s.Record.Buffered == 0 && s.Thread.Active == 0 && s.Queue.Waiting == 0
}
