package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jittakal/resistor/pkg/analytics"
)

// Metrics holds all Prometheus metrics of the daemon.
type Metrics struct {
	// Consumer metrics
	MessagesConsumed   *prometheus.CounterVec
	InvalidEvents      *prometheus.CounterVec
	Rebalances         *prometheus.CounterVec
	PartitionsAssigned *prometheus.GaugeVec

	// Engine metrics
	BatchSize       prometheus.Histogram
	BatchesRetried  prometheus.Counter
	BatchesRejected *prometheus.CounterVec
	DeadLettered    *prometheus.CounterVec

	// Sink metrics
	BatchesWritten    *prometheus.CounterVec
	SinkWriteDuration *prometheus.HistogramVec
	ObjectSize        *prometheus.HistogramVec
	SinkErrors        *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics under namespace.
func NewMetrics(namespace string, registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Consumer metrics
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "kafka_messages_consumed_total",
				Help:      "Total number of messages consumed from Kafka",
			},
			[]string{"topic", "partition"},
		),
		InvalidEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "kafka_invalid_events_total",
				Help:      "Messages that could not be decoded or validated as CloudEvents",
			},
			[]string{"topic", "reason"},
		),
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "kafka_rebalance_total",
				Help:      "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),
		PartitionsAssigned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "kafka_partitions_assigned",
				Help:      "Number of partitions currently assigned to this consumer",
			},
			[]string{"topic"},
		),

		// Engine metrics
		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "engine_batch_records",
				Help:      "Number of records handed to the worker per batch",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		BatchesRetried: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_batches_retried_total",
				Help:      "Worker invocations that are retried after a failure",
			},
		),
		BatchesRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_batches_rejected_total",
				Help:      "Worker failures, labelled by whether retries were exhausted",
			},
			[]string{"exhausted"},
		),
		DeadLettered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dlq_messages_total",
				Help:      "Messages published to dead letter topics",
			},
			[]string{"topic", "status"},
		),

		// Sink metrics
		BatchesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_batches_written_total",
				Help:      "Total number of batches written to the sink",
			},
			[]string{"backend", "format", "status"},
		),
		SinkWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sink_write_duration_seconds",
				Help:      "Duration of sink writes including encoding",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend", "format"},
		),
		ObjectSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sink_object_size_bytes",
				Help:      "Size of encoded objects written to the sink",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
			},
			[]string{"backend", "format"},
		),
		SinkErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_errors_total",
				Help:      "Total number of sink errors",
			},
			[]string{"backend", "operation"},
		),
	}
}

// IncMessagesConsumed increments messages consumed counter.
func (m *Metrics) IncMessagesConsumed(topic string, partition int32) {
	m.MessagesConsumed.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Inc()
}

// IncInvalidEvents increments the invalid events counter.
func (m *Metrics) IncInvalidEvents(topic, reason string) {
	m.InvalidEvents.WithLabelValues(topic, reason).Inc()
}

// IncRebalances increments rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// SetPartitionsAssigned sets partitions assigned gauge.
func (m *Metrics) SetPartitionsAssigned(topic string, count float64) {
	m.PartitionsAssigned.WithLabelValues(topic).Set(count)
}

// ObserveBatchSize records the size of a dispatched batch.
func (m *Metrics) ObserveBatchSize(records int) {
	m.BatchSize.Observe(float64(records))
}

// IncRejected counts a worker failure.
func (m *Metrics) IncRejected(exhausted bool) {
	m.BatchesRejected.WithLabelValues(fmt.Sprintf("%t", exhausted)).Inc()
}

// IncRetried counts a retry.
func (m *Metrics) IncRetried() {
	m.BatchesRetried.Inc()
}

// IncDeadLettered counts a dead letter publish attempt.
func (m *Metrics) IncDeadLettered(topic, status string) {
	m.DeadLettered.WithLabelValues(topic, status).Inc()
}

// IncBatchesWritten increments batches written counter.
func (m *Metrics) IncBatchesWritten(backend, format, status string) {
	m.BatchesWritten.WithLabelValues(backend, format, status).Inc()
}

// ObserveSinkWrite observes the duration in seconds and size of a sink write.
func (m *Metrics) ObserveSinkWrite(backend, format string, seconds float64, size int) {
	m.SinkWriteDuration.WithLabelValues(backend, format).Observe(seconds)
	if size > 0 {
		m.ObjectSize.WithLabelValues(backend, format).Observe(float64(size))
	}
}

// IncSinkErrors increments sink errors counter.
func (m *Metrics) IncSinkErrors(backend, operation string) {
	m.SinkErrors.WithLabelValues(backend, operation).Inc()
}

// engineCollector exports an analytics snapshot on every scrape.
type engineCollector struct {
	snapshot func() analytics.Snapshot

	invoked, scheduled, executed, errors, retried *prometheus.Desc
	received, buffered                            *prometheus.Desc
	active, opened, closed, maxThreads            *prometheus.Desc
	waiting, maxWaiting, processTime              *prometheus.Desc
}

// NewEngineCollector returns a collector reading the engine counters from
// snapshot at scrape time.
func NewEngineCollector(namespace string, snapshot func() analytics.Snapshot) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "engine", name), help, nil, nil)
	}
	return &engineCollector{
		snapshot:    snapshot,
		invoked:     desc("worker_invoked_total", "Flush requests made to the worker"),
		scheduled:   desc("worker_scheduled_total", "Batches admitted for execution"),
		executed:    desc("worker_executed_total", "Batches that finished executing"),
		errors:      desc("worker_errors_total", "Failed worker calls"),
		retried:     desc("worker_retried_total", "Retried worker calls"),
		received:    desc("records_received_total", "Records pushed into the engine"),
		buffered:    desc("records_buffered", "Records waiting in the buffer"),
		active:      desc("threads_active", "Executions currently running"),
		opened:      desc("threads_opened_total", "Execution slots opened"),
		closed:      desc("threads_closed_total", "Execution slots closed"),
		maxThreads:  desc("threads_maximum", "Highest number of concurrent executions seen"),
		waiting:     desc("queue_waiting", "Flushes waiting for a free slot"),
		maxWaiting:  desc("queue_maximum", "Longest admission queue seen"),
		processTime: desc("worker_last_duration_seconds", "Duration of the most recent execution"),
	}
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.invoked, c.scheduled, c.executed, c.errors, c.retried,
		c.received, c.buffered, c.active, c.opened, c.closed,
		c.maxThreads, c.waiting, c.maxWaiting, c.processTime,
	} {
		ch <- d
	}
}

func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(c.invoked, s.Worker.Invoked)
	counter(c.scheduled, s.Worker.Scheduled)
	counter(c.executed, s.Worker.Executed)
	counter(c.errors, s.Worker.Errors)
	counter(c.retried, s.Worker.Retried)
	counter(c.received, s.Record.Received)
	gauge(c.buffered, float64(s.Record.Buffered))
	gauge(c.active, float64(s.Thread.Active))
	counter(c.opened, s.Thread.Opened)
	counter(c.closed, s.Thread.Closed)
	gauge(c.maxThreads, float64(s.Thread.Maximum))
	gauge(c.waiting, float64(s.Queue.Waiting))
	gauge(c.maxWaiting, float64(s.Queue.Maximum))
	gauge(c.processTime, s.Worker.ProcessTime.Seconds())
}
