// Package sink defines the destinations a batch of consumed events is
// written to.
package sink

import (
	"context"
	"time"

	"github.com/jittakal/resistor/pkg/event"
)

// Sink writes batches of records. Write must be safe for concurrent use,
// the engine calls it from several execution slots at once.
type Sink interface {
	// Write stores records and reports what was written.
	Write(ctx context.Context, records []event.Record) (Result, error)

	// Name returns the backend name used in logs and metrics.
	Name() string

	// Close releases client resources.
	Close(ctx context.Context) error
}

// Result describes a completed write.
type Result struct {
	Records int
	Bytes   int64
	// Targets lists the objects, streams or indices written.
	Targets []string
}

// Router determines object prefixes for records.
type Router interface {
	// Route returns the prefix for a partition at the given event time.
	// specVersion overrides the default version segment when set.
	Route(partitionID event.PartitionID, eventTime time.Time, specVersion string) string
}
