package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jittakal/resistor/internal/analytics"
	"github.com/jittakal/resistor/internal/eventbus"
	"github.com/jittakal/resistor/pkg/events"
	"github.com/jittakal/resistor/pkg/strategy"
)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *analytics.Recorder, *eventbus.Bus) {
	t.Helper()

	rec := analytics.New()
	bus := eventbus.New()
	s, err := New(context.Background(), cfg, rec, bus, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, rec, bus
}

func drain(t *testing.T, s *Scheduler) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNew_InvalidThreads(t *testing.T) {
	for _, threads := range []int{0, -1} {
		_, err := New(context.Background(), Config{Threads: threads}, analytics.New(), eventbus.New(), nil)
		if err == nil {
			t.Errorf("New(threads=%d) error = nil, want error", threads)
		}
	}
}

func TestScheduler_NeverExceedsThreads(t *testing.T) {
	const threads = 3
	s, rec, _ := newTestScheduler(t, Config{Threads: threads})

	var running, peak atomic.Int32
	exec := func(context.Context, int) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Schedule(context.Background(), exec, false); err != nil {
				t.Errorf("Schedule() error = %v", err)
			}
		}()
	}
	wg.Wait()
	drain(t, s)

	if got := peak.Load(); got > threads {
		t.Errorf("peak concurrency = %d, want <= %d", got, threads)
	}
	snap := rec.Snapshot()
	if snap.Thread.Maximum > threads {
		t.Errorf("Thread.Maximum = %d, want <= %d", snap.Thread.Maximum, threads)
	}
	if snap.Thread.Opened != 20 || snap.Thread.Closed != 20 {
		t.Errorf("Opened/Closed = %d/%d, want 20/20", snap.Thread.Opened, snap.Thread.Closed)
	}
	if snap.Thread.Active != 0 || snap.Queue.Waiting != 0 {
		t.Errorf("Active/Waiting = %d/%d, want 0/0", snap.Thread.Active, snap.Queue.Waiting)
	}
}

func TestScheduler_FIFO(t *testing.T) {
	s, rec, _ := newTestScheduler(t, Config{Threads: 1})

	block := make(chan struct{})
	if err := s.Schedule(context.Background(), func(context.Context, int) { <-block }, false); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		go func() {
			_ = s.Schedule(context.Background(), func(context.Context, int) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			}, false)
		}()
		waitFor(t, "waiter to queue", func() bool { return s.Waiting() == i+1 })
	}

	if got := rec.Snapshot().Queue.Maximum; got != 5 {
		t.Errorf("Queue.Maximum = %d, want 5", got)
	}

	close(block)
	drain(t, s)

	for i, v := range order {
		if v != i {
			t.Fatalf("admission order = %v, want ascending", order)
		}
	}
	if len(order) != 5 {
		t.Errorf("len(order) = %d, want 5", len(order))
	}
}

// manualStrategy keeps passes until the test releases them.
type manualStrategy struct {
	mu       sync.Mutex
	passes   []strategy.Pass
	finished []int
}

func (m *manualStrategy) HandleWaitPass(_ int, pass strategy.Pass) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes = append(m.passes, pass)
}

func (m *manualStrategy) ThreadFinished(key int, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, key)
}

func (m *manualStrategy) pass(i int) strategy.Pass {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.passes[i]
}

func (m *manualStrategy) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.passes)
}

func TestScheduler_ReleaseOrderIsKept(t *testing.T) {
	manual := &manualStrategy{}
	s, _, _ := newTestScheduler(t, Config{Threads: 2, Strategy: manual})

	blockers := make(chan struct{})
	for i := 0; i < 2; i++ {
		_ = s.Schedule(context.Background(), func(context.Context, int) { <-blockers }, false)
	}

	var mu sync.Mutex
	var started []string
	for i, name := range []string{"A", "B"} {
		name := name
		go func() {
			_ = s.Schedule(context.Background(), func(context.Context, int) {
				mu.Lock()
				started = append(started, name)
				mu.Unlock()
			}, false)
		}()
		want := i + 1
		waitFor(t, "waiter to queue", func() bool { return s.Waiting() == want })
	}

	close(blockers)
	waitFor(t, "both passes popped", func() bool { return manual.count() == 2 })

	// Releasing the younger pass first must not let it overtake.
	manual.pass(1).Release()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	early := len(started)
	mu.Unlock()
	if early != 0 {
		t.Fatalf("started = %v before the oldest pass was released", started)
	}

	manual.pass(0).Release()
	manual.pass(0).Release()
	drain(t, s)

	if len(started) != 2 || started[0] != "A" || started[1] != "B" {
		t.Errorf("started = %v, want [A B]", started)
	}
}

func TestScheduler_ReleasedPassesTakeSlotsInOrder(t *testing.T) {
	manual := &manualStrategy{}
	s, _, _ := newTestScheduler(t, Config{Threads: 2, Strategy: manual})

	first, second := make(chan struct{}), make(chan struct{})
	_ = s.Schedule(context.Background(), func(context.Context, int) { <-first }, false)
	_ = s.Schedule(context.Background(), func(context.Context, int) { <-second }, false)

	var mu sync.Mutex
	slots := make(map[string]int)
	for i, name := range []string{"A", "B"} {
		name := name
		go func() {
			_ = s.Schedule(context.Background(), func(_ context.Context, slot int) {
				mu.Lock()
				slots[name] = slot
				mu.Unlock()
			}, false)
		}()
		want := i + 1
		waitFor(t, "waiter to queue", func() bool { return s.Waiting() == want })
	}

	// Slot 1 frees before slot 0, so A is popped for slot 1 and B for slot 0.
	close(second)
	waitFor(t, "first pass popped", func() bool { return manual.count() == 1 })
	close(first)
	waitFor(t, "second pass popped", func() bool { return manual.count() == 2 })

	manual.pass(1).Release()
	manual.pass(0).Release()
	drain(t, s)

	// Admission follows pop order and takes the lowest free slot each time.
	if slots["A"] != 0 || slots["B"] != 1 {
		t.Errorf("slots = %v, want map[A:0 B:1]", slots)
	}
}

func TestScheduler_WaitForCompletion(t *testing.T) {
	s, _, _ := newTestScheduler(t, Config{Threads: 1})

	var done atomic.Bool
	err := s.Schedule(context.Background(), func(context.Context, int) {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
	}, true)
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if !done.Load() {
		t.Error("Schedule(wait=true) returned before the execution finished")
	}
}

func TestScheduler_CancelledWaiterStillRuns(t *testing.T) {
	s, _, _ := newTestScheduler(t, Config{Threads: 1})

	block := make(chan struct{})
	_ = s.Schedule(context.Background(), func(context.Context, int) { <-block }, false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var ran atomic.Bool
	err := s.Schedule(ctx, func(context.Context, int) { ran.Store(true) }, false)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Schedule() error = %v, want %v", err, context.DeadlineExceeded)
	}

	close(block)
	drain(t, s)

	if !ran.Load() {
		t.Error("expected the cancelled waiter to run once admitted")
	}
}

func TestScheduler_Events(t *testing.T) {
	s, _, bus := newTestScheduler(t, Config{Threads: 1})

	var mu sync.Mutex
	counts := make(map[events.Name]int)
	for _, name := range events.All {
		name := name
		bus.On(name, func(any) {
			mu.Lock()
			counts[name]++
			mu.Unlock()
		})
	}

	block := make(chan struct{})
	_ = s.Schedule(context.Background(), func(context.Context, int) { <-block }, false)
	for i := 0; i < 2; i++ {
		go func() { _ = s.Schedule(context.Background(), func(context.Context, int) {}, false) }()
		want := i + 1
		waitFor(t, "waiter to queue", func() bool { return s.Waiting() == want })
	}
	close(block)
	drain(t, s)

	want := map[events.Name]int{
		events.ThreadOpened:  3,
		events.ThreadClosed:  3,
		events.FlushExecuted: 3,
		events.QueueEmpty:    1,
		events.Empty:         1,
	}
	for name, n := range want {
		if counts[name] != n {
			t.Errorf("%s fired %d times, want %d", name, counts[name], n)
		}
	}
}

func TestScheduler_EmptyWaitsForPending(t *testing.T) {
	pending := 1
	s, _, bus := newTestScheduler(t, Config{Threads: 1, Pending: func() int { return pending }})

	fired := 0
	bus.On(events.Empty, func(any) { fired++ })

	_ = s.Schedule(context.Background(), func(context.Context, int) {}, true)
	drain(t, s)

	if fired != 0 {
		t.Errorf("empty fired %d times with pending records, want 0", fired)
	}
}

func TestScheduler_StrategyKeys(t *testing.T) {
	tests := []struct {
		name  string
		level strategy.Level
		check func(key int) bool
	}{
		{"global", strategy.LevelGlobal, func(key int) bool { return key == 0 }},
		{"per thread", strategy.LevelThread, func(key int) bool { return key >= 0 && key < 3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manual := &manualStrategy{}
			s, _, _ := newTestScheduler(t, Config{Threads: 3, Level: tt.level, Strategy: manual})

			block := make(chan struct{})
			for i := 0; i < 3; i++ {
				_ = s.Schedule(context.Background(), func(context.Context, int) { <-block }, false)
			}
			close(block)
			drain(t, s)

			manual.mu.Lock()
			defer manual.mu.Unlock()
			if len(manual.finished) != 3 {
				t.Fatalf("ThreadFinished calls = %d, want 3", len(manual.finished))
			}
			seen := make(map[int]bool)
			for _, key := range manual.finished {
				if !tt.check(key) {
					t.Errorf("unexpected key %d", key)
				}
				seen[key] = true
			}
			if tt.level == strategy.LevelThread && len(seen) != 3 {
				t.Errorf("distinct keys = %d, want 3", len(seen))
			}
		})
	}
}

func TestScheduler_SlotsAreReused(t *testing.T) {
	s, _, _ := newTestScheduler(t, Config{Threads: 2})

	var mu sync.Mutex
	slots := make(map[int]bool)
	for i := 0; i < 6; i++ {
		_ = s.Schedule(context.Background(), func(_ context.Context, slot int) {
			mu.Lock()
			slots[slot] = true
			mu.Unlock()
		}, true)
	}
	drain(t, s)

	for slot := range slots {
		if slot < 0 || slot >= 2 {
			t.Errorf("slot %d outside [0, 2)", slot)
		}
	}
}

func TestScheduler_PanicStillCompletes(t *testing.T) {
	s, rec, _ := newTestScheduler(t, Config{Threads: 1})

	_ = s.Schedule(context.Background(), func(context.Context, int) { panic("boom") }, true)
	_ = s.Schedule(context.Background(), func(context.Context, int) {}, true)
	drain(t, s)

	snap := rec.Snapshot()
	if snap.Thread.Active != 0 {
		t.Errorf("Thread.Active = %d, want 0", snap.Thread.Active)
	}
	if snap.Worker.Executed != 2 {
		t.Errorf("Worker.Executed = %d, want 2", snap.Worker.Executed)
	}
}

func TestScheduler_Hold(t *testing.T) {
	s, _, _ := newTestScheduler(t, Config{Threads: 1})

	drain(t, s)

	release := s.Hold()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Drain() error = %v, want %v", err, context.DeadlineExceeded)
	}

	release()
	release()
	drain(t, s)
}

func TestScheduler_FixedIntervalSpacing(t *testing.T) {
	interval := 30 * time.Millisecond
	s, _, _ := newTestScheduler(t, Config{Threads: 1, Strategy: strategy.NewFixedInterval(interval)})

	var mu sync.Mutex
	var starts []time.Time
	exec := func(context.Context, int) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
	}

	block := make(chan struct{})
	_ = s.Schedule(context.Background(), func(context.Context, int) { <-block }, false)
	for i := 0; i < 3; i++ {
		go func() { _ = s.Schedule(context.Background(), exec, false) }()
		want := i + 1
		waitFor(t, "waiter to queue", func() bool { return s.Waiting() == want })
	}
	close(block)
	drain(t, s)

	if len(starts) != 3 {
		t.Fatalf("starts = %d, want 3", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < interval-5*time.Millisecond {
			t.Errorf("gap %d = %v, want about %v", i, gap, interval)
		}
	}
}
