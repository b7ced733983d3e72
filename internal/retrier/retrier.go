// Package retrier runs one batch dispatch, re-invoking the worker on failure
// inside the slot the batch was admitted to.
package retrier

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	perrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jittakal/resistor/internal/analytics"
	apperrors "github.com/jittakal/resistor/internal/errors"
	"github.com/jittakal/resistor/pkg/events"
)

// Call is one worker invocation.
type Call func(ctx context.Context) error

// Config controls retry escalation.
type Config struct {
	// Retries is the maximum number of re-invocations per batch. Zero disables retries.
	Retries int
	// Backoff builds the delay policy for one batch. Nil retries immediately.
	Backoff func() backoff.BackOff
}

// ExponentialBackoff returns a Backoff factory with the given bounds and no
// elapsed-time limit; the retry count alone decides when to stop.
func ExponentialBackoff(initial, max time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = max
		b.MaxElapsedTime = 0
		b.Reset()
		return b
	}
}

// Retrier wraps worker calls with rejection and retry events.
type Retrier struct {
	cfg    Config
	rec    *analytics.Recorder
	bus    events.Bus
	logger *zap.Logger
}

// New creates a Retrier.
func New(cfg Config, rec *analytics.Recorder, bus events.Bus, logger *zap.Logger) *Retrier {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{cfg: cfg, rec: rec, bus: bus, logger: logger}
}

// Run invokes call until it succeeds, fails permanently, or the retries are
// used up. batch is only carried in event payloads. The returned error is
// the last failure; the engine does not propagate it.
func (r *Retrier) Run(ctx context.Context, batch any, call Call) error {
	var policy backoff.BackOff
	if r.cfg.Backoff != nil {
		policy = r.cfg.Backoff()
	}

	for attempt := 1; ; attempt++ {
		err := invoke(ctx, call)
		if err == nil {
			return nil
		}

		errorCount := r.rec.Failed()
		exhausted := attempt > r.cfg.Retries || apperrors.IsPermanent(err)

		r.bus.Emit(events.WorkerRejected, events.Rejected{
			Err:        err,
			Batch:      batch,
			ErrorCount: errorCount,
			Attempt:    attempt,
			Exhausted:  exhausted,
		})

		if exhausted {
			r.logger.Warn("batch rejected",
				zap.Error(err),
				zap.Int("attempts", attempt),
				zap.Int64("error_count", errorCount))
			return err
		}

		r.rec.Retried()
		r.bus.Emit(events.WorkerRetrying, events.Retrying{
			Err:        err,
			Batch:      batch,
			RetryCount: attempt,
		})
		r.logger.Debug("retrying batch", zap.Error(err), zap.Int("retry", attempt))

		if policy != nil {
			if werr := wait(ctx, policy.NextBackOff()); werr != nil {
				return perrors.Wrapf(err, "retry %d abandoned: %v", attempt, werr)
			}
		}
	}
}

// invoke runs call, turning a panic into an error carrying a stack trace.
func invoke(ctx context.Context, call Call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if perr, ok := r.(error); ok {
				err = perrors.Wrap(perr, "worker panic")
				return
			}
			err = perrors.Errorf("worker panic: %v", r)
		}
	}()
	return call(ctx)
}

func wait(ctx context.Context, d time.Duration) error {
	if d == backoff.Stop {
		return perrors.New("backoff stopped")
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
