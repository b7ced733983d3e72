package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	apperrors "github.com/jittakal/resistor/internal/errors"
	"github.com/jittakal/resistor/pkg/event"
)

// ConsumerConfig contains Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers           []string
	GroupID           string
	Topics            []string
	ClientID          string
	AutoOffsetReset   string
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	MaxProcessingTime time.Duration
	Security          SecurityConfig
}

// RecordSink accepts decoded records. Push owns the record once called,
// even when it returns an error.
type RecordSink interface {
	Push(ctx context.Context, record event.Record) error
}

// DeadLetterer receives messages that cannot be processed.
type DeadLetterer interface {
	Publish(ctx context.Context, letters ...Letter) error
}

// ConsumerMetrics defines metrics operations for the consumer.
type ConsumerMetrics interface {
	IncMessagesConsumed(topic string, partition int32)
	IncInvalidEvents(topic, reason string)
	IncRebalances(groupID string)
	SetPartitionsAssigned(topic string, count float64)
}

// Consumer reads CloudEvents from a consumer group and pushes them into a
// RecordSink. An offset is marked once its record was handed to the sink.
type Consumer struct {
	group   sarama.ConsumerGroup
	cfg     ConsumerConfig
	handler *handler
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewConsumer creates the consumer group. dlq and metrics may be nil.
func NewConsumer(
	cfg ConsumerConfig,
	sink RecordSink,
	validator event.Validator,
	dlq DeadLetterer,
	metrics ConsumerMetrics,
	logger *zap.Logger,
) (*Consumer, error) {
	if len(cfg.Brokers) == 0 || cfg.GroupID == "" || len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("%w: brokers, group id and topics are required", sarama.ErrInvalidConfig)
	}

	saramaConfig, err := NewSaramaConfig(cfg.ClientID, cfg.Security)
	if err != nil {
		return nil, err
	}
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = offsetInitial(cfg.AutoOffsetReset)
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Return.Errors = true
	if cfg.SessionTimeout > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = cfg.SessionTimeout
	}
	if cfg.HeartbeatInterval > 0 {
		saramaConfig.Consumer.Group.Heartbeat.Interval = cfg.HeartbeatInterval
	}
	saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	if cfg.MaxProcessingTime > 0 {
		saramaConfig.Consumer.MaxProcessingTime = cfg.MaxProcessingTime
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("kafka consumer created",
		zap.String("group_id", cfg.GroupID),
		zap.Strings("bootstrap_servers", cfg.Brokers),
		zap.Strings("topics", cfg.Topics),
	)

	return &Consumer{
		group:   group,
		cfg:     cfg,
		handler: newHandler(cfg.GroupID, sink, validator, dlq, metrics, logger),
		logger:  logger,
	}, nil
}

// Run consumes until ctx is cancelled or the group fails.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("consumer group error", zap.Error(err))
		}
	}()

	for {
		if err := c.group.Consume(ctx, c.cfg.Topics, c.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("consumer group: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Info("consumer group rebalanced, rejoining")
	}
}

// Ready reports whether a session with partition claims is active.
func (c *Consumer) Ready() bool {
	return c.handler.active.Load()
}

// Close leaves the group and commits marked offsets.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.group.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	c.logger.Info("kafka consumer closed")
	return nil
}

// handler implements sarama.ConsumerGroupHandler.
type handler struct {
	groupID   string
	sink      RecordSink
	validator event.Validator
	dlq       DeadLetterer
	metrics   ConsumerMetrics
	logger    *zap.Logger
	now       func() time.Time
	active    atomic.Bool
}

func newHandler(groupID string, sink RecordSink, validator event.Validator, dlq DeadLetterer, metrics ConsumerMetrics, logger *zap.Logger) *handler {
	return &handler{
		groupID:   groupID,
		sink:      sink,
		validator: validator,
		dlq:       dlq,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *handler) Setup(session sarama.ConsumerGroupSession) error {
	h.logger.Info("consumer group session setup",
		zap.String("member_id", session.MemberID()),
		zap.Int32("generation_id", session.GenerationID()),
	)
	if h.metrics != nil {
		h.metrics.IncRebalances(h.groupID)
		for topic, partitions := range session.Claims() {
			h.metrics.SetPartitionsAssigned(topic, float64(len(partitions)))
		}
	}
	h.active.Store(true)
	return nil
}

func (h *handler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.active.Store(false)
	h.logger.Info("consumer group session cleanup", zap.String("member_id", session.MemberID()))
	return nil
}

func (h *handler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			err := h.handle(ctx, msg)
			// The record is owned by the sink even when the session ended.
			session.MarkMessage(msg, "")
			if err != nil {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// handle pushes one message. Invalid messages go to the dead letter topic
// and are never retried; a non-nil error means ctx ended during Push.
func (h *handler) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if h.metrics != nil {
		h.metrics.IncMessagesConsumed(msg.Topic, msg.Partition)
	}

	e, err := Decode(msg)
	if err == nil && h.validator != nil {
		err = h.validator.Validate(e)
	}
	if err != nil {
		h.reject(ctx, msg, err)
		return nil
	}

	return h.sink.Push(ctx, event.Record{
		Event:      e,
		Kafka:      Metadata(msg),
		ReceivedAt: h.now().UTC(),
	})
}

func (h *handler) reject(ctx context.Context, msg *sarama.ConsumerMessage, cause error) {
	reason := "decode"
	var validationErr *apperrors.ValidationError
	if errors.As(cause, &validationErr) {
		reason = "validation"
	}

	h.logger.Warn("dropping invalid event",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.String("reason", reason),
		zap.Error(cause),
	)
	if h.metrics != nil {
		h.metrics.IncInvalidEvents(msg.Topic, reason)
	}
	if h.dlq == nil {
		return
	}

	letter := Letter{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Payload:   msg.Value,
		Reason:    cause.Error(),
	}
	if err := h.dlq.Publish(ctx, letter); err != nil {
		h.logger.Error("failed to dead letter invalid event", zap.Error(err), zap.Int64("offset", msg.Offset))
	}
}
