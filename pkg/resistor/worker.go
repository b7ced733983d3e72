package resistor

import "context"

// BatchFunc processes one batch in the given slot.
type BatchFunc[T any] func(ctx context.Context, batch []T, slot int) error

// RecordFunc processes a single record in the given slot.
type RecordFunc[T any] func(ctx context.Context, record T, slot int) error

// Worker is the user function a Resistor dispatches to. Build it with Batch
// or Record.
type Worker[T any] struct {
	batch  BatchFunc[T]
	record RecordFunc[T]
}

// Batch returns a worker that receives slices of up to BufferSize records.
func Batch[T any](fn BatchFunc[T]) Worker[T] {
	return Worker[T]{batch: fn}
}

// Record returns a worker that receives one record per call. It requires a
// buffer size of one.
func Record[T any](fn RecordFunc[T]) Worker[T] {
	return Worker[T]{record: fn}
}

func (w Worker[T]) isZero() bool {
	return w.batch == nil && w.record == nil
}

// dispatcher turns a batch cut from the buffer into the value reported in
// events and the call made inside the slot.
type dispatcher[T any] func(batch []T) (payload any, call func(ctx context.Context, slot int) error)

func (w Worker[T]) dispatcher(bufferSize int) (dispatcher[T], error) {
	switch {
	case w.isZero():
		return nil, ErrNoWorker
	case bufferSize == 1 && w.record != nil:
		fn := w.record
		return func(batch []T) (any, func(context.Context, int) error) {
			record := batch[0]
			return record, func(ctx context.Context, slot int) error {
				return fn(ctx, record, slot)
			}
		}, nil
	case bufferSize > 1 && w.batch != nil:
		fn := w.batch
		return func(batch []T) (any, func(context.Context, int) error) {
			return batch, func(ctx context.Context, slot int) error {
				return fn(ctx, batch, slot)
			}
		}, nil
	default:
		return nil, ErrWorkerShape
	}
}
