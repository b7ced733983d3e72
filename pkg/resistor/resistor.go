package resistor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jittakal/resistor/internal/analytics"
	"github.com/jittakal/resistor/internal/buffer"
	"github.com/jittakal/resistor/internal/eventbus"
	"github.com/jittakal/resistor/internal/retrier"
	"github.com/jittakal/resistor/internal/scheduler"
	pkganalytics "github.com/jittakal/resistor/pkg/analytics"
	"github.com/jittakal/resistor/pkg/events"
)

// Resistor buffers records of type T and dispatches them in batches.
type Resistor[T any] struct {
	cfg      Config
	ctx      context.Context
	logger   *zap.Logger
	dispatch dispatcher[T]

	rec     *analytics.Recorder
	bus     *eventbus.Bus
	buf     *buffer.Buffer[T]
	sched   *scheduler.Scheduler
	retrier *retrier.Retrier

	mu           sync.Mutex
	timer        *time.Timer
	autoFlush    bool
	deregistered bool
}

// New creates a Resistor dispatching to worker. The worker shape must match
// the buffer size: Record for a buffer size of one, Batch otherwise.
func New[T any](worker Worker[T], opts ...Option) (*Resistor[T], error) {
	s := settings{
		cfg:    DefaultConfig(),
		logger: zap.NewNop(),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	if worker.isZero() {
		return nil, ErrNoWorker
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	dispatch, err := worker.dispatcher(s.cfg.BufferSize)
	if err != nil {
		return nil, err
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	r := &Resistor[T]{
		cfg:      s.cfg,
		ctx:      s.ctx,
		logger:   s.logger,
		dispatch: dispatch,
		rec:      analytics.New(),
		bus:      eventbus.New(),
		buf:      buffer.New[T](s.cfg.BufferSize),
		// Record workers never wait for a batch to fill up.
		autoFlush: s.cfg.AutoFlush > 0 && s.cfg.BufferSize > 1,
	}

	r.sched, err = scheduler.New(s.ctx, scheduler.Config{
		Threads:  s.cfg.Threads,
		Level:    s.cfg.LimiterLevel,
		Strategy: s.cfg.Strategy,
		Pending:  r.buf.Len,
	}, r.rec, r.bus, s.logger)
	if err != nil {
		return nil, err
	}
	r.retrier = retrier.New(retrier.Config{
		Retries: s.cfg.Retries,
		Backoff: s.cfg.RetryBackoff,
	}, r.rec, r.bus, s.logger)

	r.register()

	return r, nil
}

// Push appends record to the buffer. When the buffer reaches BufferSize it
// flushes and returns once the batch was admitted to a slot. A cancelled ctx
// stops that wait; the batch still runs.
func (r *Resistor[T]) Push(ctx context.Context, record T) error {
	r.rec.Received()
	if r.buf.Append(record) < r.cfg.BufferSize {
		return nil
	}
	return r.Flush(ctx)
}

// Flush cuts up to BufferSize records off the buffer and schedules them.
// Without WaitForCompletion it returns once the batch was admitted.
func (r *Resistor[T]) Flush(ctx context.Context, opts ...FlushOption) error {
	var fo flushOptions
	for _, opt := range opts {
		opt(&fo)
	}

	r.bus.Emit(events.FlushInvoked, r.rec.Invoked())
	r.stopTimer()

	release := r.sched.Hold()
	defer release()

	var err error
	if batch := r.buf.Take(r.cfg.BufferSize); len(batch) > 0 {
		r.rec.Unbuffered(len(batch))
		r.bus.Emit(events.FlushScheduled, r.rec.Scheduled())

		payload, call := r.dispatch(batch)
		r.logger.Debug("scheduling batch", zap.Int("size", len(batch)), zap.Bool("wait", fo.wait))

		err = r.sched.Schedule(ctx, func(ctx context.Context, slot int) {
			_ = r.retrier.Run(ctx, payload, func(ctx context.Context) error {
				return call(ctx, slot)
			})
		}, fo.wait)
	}

	r.register()
	return err
}

// Deregister stops auto-flushing, flushes every buffered record and waits
// until all queued and running executions have finished. Listeners are
// detached afterwards. Calling it again after it completed is a no-op.
func (r *Resistor[T]) Deregister(ctx context.Context) error {
	r.mu.Lock()
	if r.deregistered {
		r.mu.Unlock()
		return nil
	}
	r.autoFlush = false
	r.stopTimerLocked()
	r.mu.Unlock()

	for !r.buf.IsEmpty() {
		if err := r.Flush(ctx, WaitForCompletion()); err != nil {
			return err
		}
	}
	if err := r.sched.Drain(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.stopTimerLocked()
	r.deregistered = true
	r.mu.Unlock()

	r.bus.Clear()
	r.logger.Info("resistor deregistered", zap.Int64("executed", r.rec.Snapshot().Worker.Executed))
	return nil
}

// On subscribes listener to every emission of name.
func (r *Resistor[T]) On(name events.Name, listener events.Listener) events.Subscription {
	return r.bus.On(name, listener)
}

// Once subscribes listener to the next emission of name.
func (r *Resistor[T]) Once(name events.Name, listener events.Listener) events.Subscription {
	return r.bus.Once(name, listener)
}

// Off removes a subscription.
func (r *Resistor[T]) Off(name events.Name, sub events.Subscription) {
	r.bus.Off(name, sub)
}

// Analytics returns a snapshot of the engine counters.
func (r *Resistor[T]) Analytics() pkganalytics.Snapshot {
	return r.rec.Snapshot()
}

// Config returns the settings the engine was built with.
func (r *Resistor[T]) Config() Config {
	return r.cfg
}

// register arms the auto-flush timer if auto-flush is still enabled.
func (r *Resistor[T]) register() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.autoFlush {
		return
	}
	r.stopTimerLocked()
	r.timer = time.AfterFunc(r.cfg.AutoFlush, r.onTimer)
}

func (r *Resistor[T]) stopTimer() {
	r.mu.Lock()
	r.stopTimerLocked()
	r.mu.Unlock()
}

func (r *Resistor[T]) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Resistor[T]) onTimer() {
	r.mu.Lock()
	if !r.autoFlush {
		r.mu.Unlock()
		return
	}
	// Deregister must not see the scheduler idle between here and Flush.
	release := r.sched.Hold()
	r.mu.Unlock()
	defer release()

	if err := r.Flush(r.ctx); err != nil {
		r.logger.Warn("auto flush failed", zap.Error(err))
	}
}
