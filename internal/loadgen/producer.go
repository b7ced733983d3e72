package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Mode selects the CloudEvents Kafka content mode.
type Mode string

const (
	ModeBinary     Mode = "binary"
	ModeStructured Mode = "structured"
)

// Encode turns a generated message into a producer message for topic.
func Encode(topic string, msg Message, mode Mode) (*sarama.ProducerMessage, error) {
	if msg.Event == nil {
		return &sarama.ProducerMessage{Topic: topic, Value: sarama.ByteEncoder(msg.Invalid)}, nil
	}
	e := msg.Event

	pm := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(e.ID()),
	}
	switch mode {
	case ModeStructured:
		body, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal cloud event: %w", err)
		}
		pm.Value = sarama.ByteEncoder(body)
		pm.Headers = []sarama.RecordHeader{
			{Key: []byte("content-type"), Value: []byte("application/cloudevents+json")},
		}
	case ModeBinary, "":
		headers := []sarama.RecordHeader{
			{Key: []byte("ce_specversion"), Value: []byte(e.SpecVersion())},
			{Key: []byte("ce_id"), Value: []byte(e.ID())},
			{Key: []byte("ce_source"), Value: []byte(e.Source())},
			{Key: []byte("ce_type"), Value: []byte(e.Type())},
		}
		if s := e.Subject(); s != "" {
			headers = append(headers, sarama.RecordHeader{Key: []byte("ce_subject"), Value: []byte(s)})
		}
		if !e.Time().IsZero() {
			headers = append(headers, sarama.RecordHeader{Key: []byte("ce_time"), Value: []byte(e.Time().UTC().Format(time.RFC3339Nano))})
		}
		for name, v := range e.Extensions() {
			headers = append(headers, sarama.RecordHeader{Key: []byte("ce_" + name), Value: []byte(fmt.Sprint(v))})
		}
		if ct := e.DataContentType(); ct != "" {
			headers = append(headers, sarama.RecordHeader{Key: []byte("content-type"), Value: []byte(ct)})
		}
		pm.Headers = headers
		pm.Value = sarama.ByteEncoder(e.Data())
	default:
		return nil, fmt.Errorf("unsupported content mode: %s", mode)
	}
	return pm, nil
}

// Metrics counts produced messages.
type Metrics struct {
	produced *prometheus.CounterVec
	failed   *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the load generator metrics with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		produced: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "resistor_loadgen_messages_produced_total",
			Help: "Total number of messages produced to Kafka",
		}, []string{"topic", "type"}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "resistor_loadgen_messages_failed_total",
			Help: "Total number of messages that could not be produced",
		}, []string{"topic", "type"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "resistor_loadgen_send_duration_seconds",
			Help:    "Duration of one producer batch",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RunConfig controls a load run.
type RunConfig struct {
	Topic string
	Mode  Mode
	// Rate is the number of messages per second. Zero sends as fast as possible.
	Rate float64
	// Count stops the run after this many messages. Zero runs until ctx ends.
	Count int
	// BatchSize is the number of messages per producer call.
	BatchSize int
}

// Runner drives a generator into a producer.
type Runner struct {
	producer  sarama.SyncProducer
	generator *Generator
	metrics   *Metrics
	logger    *zap.Logger
}

// NewRunner creates a Runner. metrics may be nil.
func NewRunner(producer sarama.SyncProducer, generator *Generator, metrics *Metrics, logger *zap.Logger) *Runner {
	return &Runner{producer: producer, generator: generator, metrics: metrics, logger: logger}
}

// Run produces messages until the count is reached or ctx is cancelled and
// returns the number of messages sent.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (int, error) {
	if cfg.Topic == "" {
		return 0, errors.New("topic is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}

	var tick <-chan time.Time
	if cfg.Rate > 0 {
		interval := time.Duration(float64(time.Second) * float64(cfg.BatchSize) / cfg.Rate)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	sent := 0
	for cfg.Count == 0 || sent < cfg.Count {
		if tick != nil {
			select {
			case <-ctx.Done():
				return sent, nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return sent, nil
		}

		n := cfg.BatchSize
		if cfg.Count > 0 && cfg.Count-sent < n {
			n = cfg.Count - sent
		}
		msgs, types, err := r.batch(cfg, n)
		if err != nil {
			return sent, err
		}

		start := time.Now()
		err = r.producer.SendMessages(msgs)
		if r.metrics != nil {
			r.metrics.duration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			r.count(cfg.Topic, types, false)
			r.logger.Error("failed to produce batch", zap.Int("messages", len(msgs)), zap.Error(err))
			return sent, fmt.Errorf("failed to produce batch: %w", err)
		}
		r.count(cfg.Topic, types, true)
		sent += len(msgs)
		r.logger.Debug("produced batch", zap.Int("messages", len(msgs)), zap.Int("sent", sent))
	}
	return sent, nil
}

func (r *Runner) batch(cfg RunConfig, n int) ([]*sarama.ProducerMessage, []string, error) {
	msgs := make([]*sarama.ProducerMessage, 0, n)
	types := make([]string, 0, n)
	for i := 0; i < n; i++ {
		msg, err := r.generator.Next()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate event: %w", err)
		}
		pm, err := Encode(cfg.Topic, msg, cfg.Mode)
		if err != nil {
			return nil, nil, err
		}
		msgs = append(msgs, pm)
		types = append(types, messageType(msg))
	}
	return msgs, types, nil
}

func (r *Runner) count(topic string, types []string, ok bool) {
	if r.metrics == nil {
		return
	}
	vec := r.metrics.failed
	if ok {
		vec = r.metrics.produced
	}
	for _, t := range types {
		vec.WithLabelValues(topic, t).Inc()
	}
}

func messageType(msg Message) string {
	if msg.Event == nil {
		return "invalid"
	}
	return msg.Event.Type()
}
