// Package scheduler admits executions against a cap of concurrently active
// slots, queueing the excess in FIFO order.
//
// When a slot frees and requests are waiting, the oldest request is popped
// and handed to the Strategy, which releases it when its timing policy
// allows. The freed capacity stays reserved for the popped request, so a
// newly arriving request cannot overtake the queue. Released requests take
// their slot in the order they were popped; their executions then start
// concurrently.
//
// Slot bookkeeping and the matching analytics transitions happen under one
// mutex; events are emitted after it is released.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jittakal/resistor/internal/analytics"
	"github.com/jittakal/resistor/pkg/events"
	"github.com/jittakal/resistor/pkg/strategy"
)

// Execution runs one admitted job in the given slot. Failures are handled
// by the execution itself; the scheduler only tracks its lifetime.
type Execution func(ctx context.Context, slot int)

// Config configures a Scheduler.
type Config struct {
	Threads  int
	Level    strategy.Level
	Strategy strategy.Strategy

	// Pending reports how many records are still buffered upstream. The
	// empty event is only emitted when it returns zero.
	Pending func() int
}

// Scheduler owns the active slots and the wait queue.
type Scheduler struct {
	cfg     Config
	ctx     context.Context
	rec     *analytics.Recorder
	bus     events.Bus
	logger  *zap.Logger
	nowFunc func() time.Time

	mu       sync.Mutex
	slots    []bool
	active   int
	reserved int
	queue    []*waitPass
	popped   []*waitPass
	inflight int
	idle     chan struct{}
}

// New creates a scheduler. ctx is handed to every execution.
func New(
	ctx context.Context,
	cfg Config,
	rec *analytics.Recorder,
	bus events.Bus,
	logger *zap.Logger,
) (*Scheduler, error) {
	if cfg.Threads <= 0 {
		return nil, fmt.Errorf("threads must be positive, got %d", cfg.Threads)
	}
	if cfg.Strategy == nil {
		cfg.Strategy = strategy.NewUnbound()
	}
	if cfg.Level == "" {
		cfg.Level = strategy.LevelGlobal
	}
	if cfg.Pending == nil {
		cfg.Pending = func() int { return 0 }
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	idle := make(chan struct{})
	close(idle)

	return &Scheduler{
		cfg:     cfg,
		ctx:     ctx,
		rec:     rec,
		bus:     bus,
		logger:  logger,
		nowFunc: time.Now,
		slots:   make([]bool, cfg.Threads),
		idle:    idle,
	}, nil
}

// Schedule admits exec, waiting in the queue while all slots are taken.
// It returns once exec started, or once it finished when wait is true.
// If ctx ends first, Schedule returns ctx.Err() and exec still runs.
func (s *Scheduler) Schedule(ctx context.Context, exec Execution, wait bool) error {
	s.mu.Lock()
	s.holdLocked()

	if s.active+s.reserved < s.cfg.Threads {
		slot, opened := s.admitLocked(false)
		s.mu.Unlock()
		return s.run(ctx, exec, slot, opened, wait)
	}

	pass := newWaitPass(s)
	s.queue = append(s.queue, pass)
	s.rec.Enqueued()
	depth := len(s.queue)
	s.mu.Unlock()

	s.logger.Debug("execution queued", zap.Int("queue_depth", depth))

	select {
	case adm := <-pass.ready:
		return s.run(ctx, exec, adm.slot, adm.opened, wait)
	case <-ctx.Done():
		go func() {
			adm := <-pass.ready
			_ = s.run(context.Background(), exec, adm.slot, adm.opened, false)
		}()
		return ctx.Err()
	}
}

// admitLocked takes the lowest free slot.
func (s *Scheduler) admitLocked(fromQueue bool) (int, int64) {
	if fromQueue {
		s.reserved--
	}
	slot := -1
	for i, busy := range s.slots {
		if !busy {
			slot = i
			break
		}
	}
	if slot < 0 {
		panic("scheduler: admitted without a free slot")
	}
	s.slots[slot] = true
	s.active++
	return slot, s.rec.Opened()
}

func (s *Scheduler) run(ctx context.Context, exec Execution, slot int, opened int64, wait bool) error {
	s.bus.Emit(events.ThreadOpened, opened)

	done := make(chan struct{})
	startedAt := s.nowFunc()

	go func() {
		defer close(done)
		defer s.complete(slot, startedAt)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("execution panicked", zap.Int("slot", slot), zap.Any("panic", r))
			}
		}()
		exec(s.ctx, slot)
	}()

	if !wait {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// complete is the completion continuation of one execution.
func (s *Scheduler) complete(slot int, startedAt time.Time) {
	finishedAt := s.nowFunc()
	executed := s.rec.Executed(finishedAt.Sub(startedAt))
	s.bus.Emit(events.FlushExecuted, executed)

	s.mu.Lock()
	s.slots[slot] = false
	s.active--
	closed := s.rec.Closed()

	var next *waitPass
	queueEmptied := false
	if len(s.queue) > 0 {
		next = s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.rec.Dequeued()
		s.reserved++
		s.popped = append(s.popped, next)
		queueEmptied = len(s.queue) == 0
	}
	drained := s.active == 0 && s.reserved == 0 && len(s.queue) == 0
	s.mu.Unlock()

	s.bus.Emit(events.ThreadClosed, closed)

	key := s.cfg.Level.Key(slot)
	s.cfg.Strategy.ThreadFinished(key, finishedAt)

	if next != nil {
		s.cfg.Strategy.HandleWaitPass(key, next)
		if queueEmptied {
			s.bus.Emit(events.QueueEmpty, nil)
		}
	}

	if drained && s.cfg.Pending() == 0 {
		s.bus.Emit(events.Empty, nil)
	}

	s.mu.Lock()
	s.releaseLocked()
	s.mu.Unlock()
}

// approve marks pass as released by the strategy, then admits every
// approved pass at the head of the release order and hands each its slot.
func (s *Scheduler) approve(pass *waitPass) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pass.approved = true
	for len(s.popped) > 0 && s.popped[0].approved {
		head := s.popped[0]
		s.popped[0] = nil
		s.popped = s.popped[1:]
		slot, opened := s.admitLocked(true)
		head.ready <- admission{slot: slot, opened: opened}
	}
}

// Hold keeps the scheduler from reporting idle until the returned function
// is called. Callers use it to cover work that will be scheduled shortly.
func (s *Scheduler) Hold() (release func()) {
	s.mu.Lock()
	s.holdLocked()
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.releaseLocked()
			s.mu.Unlock()
		})
	}
}

func (s *Scheduler) holdLocked() {
	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight++
}

func (s *Scheduler) releaseLocked() {
	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
	}
}

// Drain blocks until nothing is queued, running, or held.
func (s *Scheduler) Drain(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.inflight == 0 {
			s.mu.Unlock()
			return nil
		}
		idle := s.idle
		s.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Waiting returns the number of queued requests.
func (s *Scheduler) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
