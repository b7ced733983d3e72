package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jittakal/resistor/internal/config/dto"
	"github.com/jittakal/resistor/pkg/resistor"
	"github.com/jittakal/resistor/pkg/strategy"
)

// NewStrategy builds the admission strategy named in cfg.
func NewStrategy(cfg dto.StrategyConfig) (strategy.Strategy, error) {
	interval := time.Duration(cfg.IntervalMS) * time.Millisecond
	switch cfg.Name {
	case "", "unbound":
		return strategy.NewUnbound(), nil
	case "interval":
		return strategy.NewFixedInterval(interval), nil
	case "window":
		if cfg.Occurrence <= 0 {
			return nil, fmt.Errorf("window strategy requires a positive occurrence, got %d", cfg.Occurrence)
		}
		return strategy.NewSlidingWindow(interval, cfg.Occurrence), nil
	case "token_bucket":
		if cfg.RatePerSecond <= 0 {
			return nil, fmt.Errorf("token_bucket strategy requires a positive rate, got %v", cfg.RatePerSecond)
		}
		return strategy.NewTokenBucket(cfg.RatePerSecond, cfg.Burst), nil
	default:
		return nil, fmt.Errorf("unsupported strategy: %s", cfg.Name)
	}
}

// EngineOptions translates the engine configuration into resistor options.
// ctx becomes the base context of every batch write.
func EngineOptions(ctx context.Context, cfg dto.EngineConfig) ([]resistor.Option, error) {
	level, err := strategy.ParseLevel(cfg.LimiterLevel)
	if err != nil {
		return nil, err
	}
	st, err := NewStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	opts := []resistor.Option{
		resistor.WithContext(ctx),
		resistor.WithThreads(cfg.Threads),
		resistor.WithBufferSize(cfg.BufferSize),
		resistor.WithLimiter(level, st),
		resistor.WithRetries(cfg.Retries),
	}
	if cfg.AutoFlushMS > 0 {
		opts = append(opts, resistor.WithAutoFlush(cfg.AutoFlush()))
	} else {
		opts = append(opts, resistor.WithoutAutoFlush())
	}
	if cfg.Retries > 0 && cfg.RetryInitialBackoffMS > 0 {
		initial := time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond
		maxBackoff := time.Duration(cfg.RetryMaxBackoffMS) * time.Millisecond
		if maxBackoff < initial {
			maxBackoff = initial
		}
		opts = append(opts, resistor.WithRetryBackoff(initial, maxBackoff))
	}
	return opts, nil
}
