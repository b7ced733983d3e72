// Package pipeline connects the batching engine to a sink. Records pushed by
// the Kafka consumer are batched by a Resistor and each batch is written by a
// sink under the configured concurrency cap and admission strategy. Batches
// that exhaust their retries are dead-lettered.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/jittakal/resistor/internal/errors"
	"github.com/jittakal/resistor/internal/kafka"
	"github.com/jittakal/resistor/pkg/analytics"
	"github.com/jittakal/resistor/pkg/event"
	"github.com/jittakal/resistor/pkg/events"
	"github.com/jittakal/resistor/pkg/resistor"
	"github.com/jittakal/resistor/pkg/sink"
)

const deadLetterTimeout = 30 * time.Second

// Metrics defines the batch metrics recorded by the pipeline.
type Metrics interface {
	ObserveBatchSize(records int)
	IncRejected(exhausted bool)
	IncRetried()
	IncBatchesWritten(backend, format, status string)
	ObserveSinkWrite(backend, format string, seconds float64, size int)
	IncSinkErrors(backend, operation string)
}

// Pipeline owns the engine and the sink it writes to.
type Pipeline struct {
	engine  *resistor.Resistor[event.Record]
	sink    sink.Sink
	format  string
	dlq     kafka.DeadLetterer
	metrics Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// New builds the engine from opts and subscribes the rejection and retry
// listeners. dlq, metrics and logger may be nil.
func New(sk sink.Sink, format string, dlq kafka.DeadLetterer, metrics Metrics, logger *zap.Logger, opts ...resistor.Option) (*Pipeline, error) {
	if sk == nil {
		return nil, errors.New("pipeline: sink is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		sink:    sk,
		format:  format,
		dlq:     dlq,
		metrics: metrics,
		logger:  logger.With(zap.String("sink", sk.Name())),
		now:     time.Now,
	}

	engine, err := resistor.New(resistor.Batch(p.write), append(opts, resistor.WithLogger(logger))...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	p.engine = engine

	engine.On(events.WorkerRejected, p.onRejected)
	engine.On(events.WorkerRetrying, p.onRetrying)
	return p, nil
}

// Push hands a record to the engine. See resistor.Resistor.Push.
func (p *Pipeline) Push(ctx context.Context, record event.Record) error {
	return p.engine.Push(ctx, record)
}

// Flush flushes the buffered records, optionally waiting for the batch.
func (p *Pipeline) Flush(ctx context.Context, wait bool) error {
	if wait {
		return p.engine.Flush(ctx, resistor.WaitForCompletion())
	}
	return p.engine.Flush(ctx)
}

// Analytics returns the engine snapshot.
func (p *Pipeline) Analytics() analytics.Snapshot {
	return p.engine.Analytics()
}

// Engine exposes the underlying engine.
func (p *Pipeline) Engine() *resistor.Resistor[event.Record] {
	return p.engine
}

// Shutdown flushes and drains the engine, then closes the sink. The sink is
// closed even when draining fails.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	drainErr := p.engine.Deregister(ctx)
	if drainErr != nil {
		p.logger.Error("engine did not drain", zap.Error(drainErr), zap.Any("analytics", p.engine.Analytics()))
	}
	if err := p.sink.Close(ctx); err != nil {
		return errors.Join(drainErr, fmt.Errorf("failed to close sink: %w", err))
	}
	return drainErr
}

func (p *Pipeline) write(ctx context.Context, batch []event.Record, slot int) error {
	if p.metrics != nil {
		p.metrics.ObserveBatchSize(len(batch))
	}

	start := p.now()
	result, err := p.sink.Write(ctx, batch)
	elapsed := p.now().Sub(start)

	if err != nil {
		if p.metrics != nil {
			p.metrics.IncBatchesWritten(p.sink.Name(), p.format, "error")
			var sinkErr *apperrors.SinkError
			if errors.As(err, &sinkErr) {
				p.metrics.IncSinkErrors(p.sink.Name(), sinkErr.Operation)
			} else {
				p.metrics.IncSinkErrors(p.sink.Name(), "write")
			}
		}
		p.logger.Warn("batch write failed",
			zap.Int("slot", slot),
			zap.Int("records", len(batch)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return err
	}

	if p.metrics != nil {
		p.metrics.IncBatchesWritten(p.sink.Name(), p.format, "success")
		p.metrics.ObserveSinkWrite(p.sink.Name(), p.format, elapsed.Seconds(), int(result.Bytes))
	}
	p.logger.Info("wrote batch",
		zap.Int("slot", slot),
		zap.Int("records", result.Records),
		zap.Int64("bytes", result.Bytes),
		zap.Strings("targets", result.Targets),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

func (p *Pipeline) onRejected(payload any) {
	rejected, ok := payload.(events.Rejected)
	if !ok {
		return
	}
	if p.metrics != nil {
		p.metrics.IncRejected(rejected.Exhausted)
	}
	if !rejected.Exhausted {
		return
	}

	batch, _ := rejected.Batch.([]event.Record)
	p.logger.Error("batch rejected",
		zap.Int("records", len(batch)),
		zap.Int("attempts", rejected.Attempt),
		zap.Error(rejected.Err),
	)
	if p.dlq == nil || len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deadLetterTimeout)
	defer cancel()
	letters := kafka.LettersFromRecords(batch, "sink_failed: "+rejected.Err.Error(), rejected.Attempt)
	if err := p.dlq.Publish(ctx, letters...); err != nil {
		p.logger.Error("failed to dead-letter rejected batch", zap.Int("records", len(batch)), zap.Error(err))
	}
}

func (p *Pipeline) onRetrying(payload any) {
	retrying, ok := payload.(events.Retrying)
	if !ok {
		return
	}
	if p.metrics != nil {
		p.metrics.IncRetried()
	}
	p.logger.Debug("retrying batch", zap.Int("retry", retrying.RetryCount), zap.Error(retrying.Err))
}
