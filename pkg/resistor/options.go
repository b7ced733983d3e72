package resistor

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jittakal/resistor/internal/retrier"
	"github.com/jittakal/resistor/pkg/strategy"
)

// Config holds the engine settings.
type Config struct {
	// Threads is the maximum number of concurrently running executions.
	Threads int `validate:"gt=0"`
	// BufferSize is the batch size threshold. One switches to a record worker.
	BufferSize int `validate:"gt=0"`
	// AutoFlush is the delay between automatic flush attempts. Zero disables it.
	AutoFlush time.Duration `validate:"gte=0"`
	// LimiterLevel selects one timing state for all slots or one per slot.
	LimiterLevel strategy.Level `validate:"oneof=global thread"`
	// Strategy decides when a queued flush may take a freed slot.
	Strategy strategy.Strategy `validate:"-"`
	// Retries is the maximum number of retries per batch. Zero disables retries.
	Retries int `validate:"gte=0"`
	// RetryBackoff builds the delay policy between retries. Nil retries immediately.
	RetryBackoff func() backoff.BackOff `validate:"-"`
}

// DefaultConfig returns the default settings: 10 threads, batches of 100,
// a one second auto-flush, a global Unbound limiter and no retries.
func DefaultConfig() Config {
	return Config{
		Threads:      10,
		BufferSize:   100,
		AutoFlush:    time.Second,
		LimiterLevel: strategy.LevelGlobal,
		Strategy:     strategy.NewUnbound(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Strategy == nil {
		return fmt.Errorf("%w: strategy is required", ErrInvalidConfig)
	}
	return nil
}

type settings struct {
	cfg    Config
	logger *zap.Logger
	ctx    context.Context
}

// Option overlays one setting on top of DefaultConfig.
type Option func(*settings)

// WithConfig replaces the whole configuration. Start from DefaultConfig to
// keep the defaults of fields you do not set.
func WithConfig(cfg Config) Option {
	return func(s *settings) { s.cfg = cfg }
}

// WithThreads sets the maximum number of concurrent executions.
func WithThreads(n int) Option {
	return func(s *settings) { s.cfg.Threads = n }
}

// WithBufferSize sets the batch size threshold.
func WithBufferSize(n int) Option {
	return func(s *settings) { s.cfg.BufferSize = n }
}

// WithAutoFlush flushes the buffer every d even when it is not full.
func WithAutoFlush(d time.Duration) Option {
	return func(s *settings) { s.cfg.AutoFlush = d }
}

// WithoutAutoFlush disables timer based flushing.
func WithoutAutoFlush() Option {
	return func(s *settings) { s.cfg.AutoFlush = 0 }
}

// WithLimiter sets the admission strategy and the level its timing state is kept at.
func WithLimiter(level strategy.Level, st strategy.Strategy) Option {
	return func(s *settings) {
		s.cfg.LimiterLevel = level
		s.cfg.Strategy = st
	}
}

// WithRetries retries a failed batch up to n times.
func WithRetries(n int) Option {
	return func(s *settings) { s.cfg.Retries = n }
}

// WithRetryBackoff waits between retries with an exponential backoff
// bounded by initial and max.
func WithRetryBackoff(initial, max time.Duration) Option {
	return func(s *settings) { s.cfg.RetryBackoff = retrier.ExponentialBackoff(initial, max) }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithContext sets the context handed to every worker call.
func WithContext(ctx context.Context) Option {
	return func(s *settings) { s.ctx = ctx }
}

// FlushOption configures a single Flush call.
type FlushOption func(*flushOptions)

type flushOptions struct {
	wait bool
}

// WaitForCompletion makes Flush return only after the flushed batch,
// including its retries, has finished.
func WaitForCompletion() FlushOption {
	return func(o *flushOptions) { o.wait = true }
}
