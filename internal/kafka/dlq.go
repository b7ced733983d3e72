package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	apperrors "github.com/jittakal/resistor/internal/errors"
	"github.com/jittakal/resistor/pkg/event"
)

// Letter is one message routed to a dead letter topic.
type Letter struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	EventID   string
	// Payload is the original message value or the encoded CloudEvent.
	Payload  json.RawMessage
	Reason   string
	Attempts int
}

// envelope is the JSON value written to the dead letter topic.
type envelope struct {
	OriginalEvent     json.RawMessage `json:"original_event"`
	OriginalTopic     string          `json:"original_topic"`
	OriginalPartition int32           `json:"original_partition"`
	OriginalOffset    int64           `json:"original_offset"`
	FailureReason     string          `json:"failure_reason"`
	FailureTimestamp  time.Time       `json:"failure_timestamp"`
	Attempts          int             `json:"attempts"`
	ProcessorID       string          `json:"processor_id"`
}

// DLQMetrics records dead letter publishing.
type DLQMetrics interface {
	IncDeadLettered(topic, status string)
}

// DLQPublisher writes letters to "<source topic><suffix>".
type DLQPublisher struct {
	producer    sarama.SyncProducer
	suffix      string
	processorID string
	logger      *zap.Logger
	metrics     DLQMetrics
	now         func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewDLQPublisher wraps producer. metrics may be nil.
func NewDLQPublisher(producer sarama.SyncProducer, suffix, processorID string, logger *zap.Logger, metrics DLQMetrics) *DLQPublisher {
	return &DLQPublisher{
		producer:    producer,
		suffix:      suffix,
		processorID: processorID,
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
	}
}

// LettersFromRecords builds letters for records the sink gave up on.
func LettersFromRecords(records []event.Record, reason string, attempts int) []Letter {
	letters := make([]Letter, 0, len(records))
	for i := range records {
		r := &records[i]
		letter := Letter{
			Topic:     r.Kafka.Topic,
			Partition: r.Kafka.Partition,
			Offset:    r.Kafka.Offset,
			Key:       r.Kafka.Key,
			Reason:    reason,
			Attempts:  attempts,
		}
		if r.Event != nil {
			letter.EventID = r.Event.ID()
			if payload, err := json.Marshal(r.Event); err == nil {
				letter.Payload = payload
			}
		}
		letters = append(letters, letter)
	}
	return letters
}

// Publish sends letters in one producer call.
func (p *DLQPublisher) Publish(ctx context.Context, letters ...Letter) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return apperrors.ErrSinkClosed
	}
	if len(letters) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(letters))
	for _, l := range letters {
		msg, err := p.message(l)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		for _, m := range msgs {
			p.count(m.Topic, "failure")
		}
		return fmt.Errorf("failed to send %d messages to DLQ: %w", len(msgs), err)
	}

	for _, m := range msgs {
		p.count(m.Topic, "success")
	}
	p.logger.Warn("published to DLQ",
		zap.Int("messages", len(msgs)),
		zap.String("dlq_topic", msgs[0].Topic),
		zap.String("reason", letters[0].Reason),
	)
	return nil
}

func (p *DLQPublisher) message(l Letter) (*sarama.ProducerMessage, error) {
	payload := l.Payload
	if !json.Valid(payload) {
		// Raw values that are not JSON are kept as a string.
		quoted, err := json.Marshal(string(l.Payload))
		if err != nil {
			return nil, err
		}
		payload = quoted
	}

	value, err := json.Marshal(envelope{
		OriginalEvent:     payload,
		OriginalTopic:     l.Topic,
		OriginalPartition: l.Partition,
		OriginalOffset:    l.Offset,
		FailureReason:     l.Reason,
		FailureTimestamp:  p.now().UTC(),
		Attempts:          l.Attempts,
		ProcessorID:       p.processorID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal DLQ envelope: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: l.Topic + p.suffix,
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("failure_reason"), Value: []byte(l.Reason)},
			{Key: []byte("original_topic"), Value: []byte(l.Topic)},
			{Key: []byte("original_offset"), Value: []byte(strconv.FormatInt(l.Offset, 10))},
			{Key: []byte("processor_id"), Value: []byte(p.processorID)},
		},
	}
	switch {
	case len(l.Key) > 0:
		msg.Key = sarama.ByteEncoder(l.Key)
	case l.EventID != "":
		msg.Key = sarama.StringEncoder(l.EventID)
	}
	return msg, nil
}

func (p *DLQPublisher) count(topic, status string) {
	if p.metrics != nil {
		p.metrics.IncDeadLettered(topic, status)
	}
}

// Close closes the producer. Further publishes fail with ErrSinkClosed.
func (p *DLQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.producer.Close()
}
