// Package resistor batches pushed records and hands the batches to a worker
// under a cap on concurrently running executions.
//
// Records are appended to an in-memory buffer. A batch is cut when the
// buffer reaches the configured size or when the auto-flush timer fires.
// Each batch is admitted against the thread cap; when all slots are busy the
// flush waits in a FIFO queue, and a Strategy decides when a freed slot may
// be reused. Failed batches are retried inside their slot and reported
// through events; errors never surface from Push or Flush.
//
// A minimal setup:
//
//	r, err := resistor.New(resistor.Batch(func(ctx context.Context, batch []Order, slot int) error {
//		return store.InsertMany(ctx, batch)
//	}), resistor.WithThreads(4), resistor.WithBufferSize(500))
//	if err != nil {
//		return err
//	}
//	defer r.Deregister(context.Background())
//
//	for _, o := range orders {
//		if err := r.Push(ctx, o); err != nil {
//			return err
//		}
//	}
package resistor
