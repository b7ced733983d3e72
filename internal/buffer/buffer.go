// Package buffer implements the ordered pending-record buffer of a Resistor.
package buffer

import "sync"

// Buffer keeps records in insertion order until a flush takes them.
// It is safe for concurrent use.
type Buffer[T any] struct {
	records  []T
	sizeHint int
	mu       sync.Mutex
}

// New creates a buffer preallocated for sizeHint records.
func New[T any](sizeHint int) *Buffer[T] {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Buffer[T]{
		records:  make([]T, 0, sizeHint),
		sizeHint: sizeHint,
	}
}

// Append adds record and returns the resulting length.
func (b *Buffer[T]) Append(record T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = append(b.records, record)
	return len(b.records)
}

// Take removes and returns up to n records from the front of the buffer.
// Records appended while the caller holds the result stay in the buffer
// for the next Take. The returned slice is owned by the caller.
func (b *Buffer[T]) Take(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || len(b.records) == 0 {
		return nil
	}
	n = min(n, len(b.records))

	batch := make([]T, n)
	copy(batch, b.records[:n])

	rest := make([]T, len(b.records)-n, max(b.sizeHint, len(b.records)-n))
	copy(rest, b.records[n:])
	b.records = rest
	return batch
}

// Len returns the number of buffered records.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// IsEmpty returns true if the buffer is empty.
func (b *Buffer[T]) IsEmpty() bool {
	return b.Len() == 0
}

