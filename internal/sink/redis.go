package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/jittakal/resistor/pkg/event"
	"github.com/jittakal/resistor/pkg/sink"
)

var _ sink.Sink = (*RedisStreamSink)(nil)

// RedisConfig contains Redis streams configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	// MaxLen caps the stream length approximately; zero disables trimming.
	MaxLen int64
}

// RedisStreamSink appends each record to a stream with a pipelined XADD.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamSink creates a client and pings the server.
func NewRedisStreamSink(ctx context.Context, cfg RedisConfig) (*RedisStreamSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisStreamSink{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen}, nil
}

// Name returns "redis".
func (s *RedisStreamSink) Name() string { return "redis" }

// Write appends records in one round trip.
func (s *RedisStreamSink) Write(ctx context.Context, records []event.Record) (sink.Result, error) {
	var result sink.Result
	if len(records) == 0 {
		return result, nil
	}

	pipe := s.client.Pipeline()
	for i := range records {
		values, size, err := streamValues(&records[i])
		if err != nil {
			return result, fail(s.Name(), "marshal", s.stream, err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: s.maxLen > 0,
			Values: values,
		})
		result.Bytes += int64(size)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return sink.Result{}, fail(s.Name(), "xadd", s.stream, err)
	}

	result.Records = len(records)
	result.Targets = []string{s.stream}
	return result, nil
}

// streamValues returns the stream entry fields of a record and the size of
// its serialised row.
func streamValues(r *event.Record) (map[string]any, int, error) {
	row := r.Row()
	payload, err := json.Marshal(row)
	if err != nil {
		return nil, 0, err
	}
	return map[string]any{
		"id":        row.ID,
		"type":      row.Type,
		"source":    row.Source,
		"topic":     row.KafkaTopic,
		"partition": strconv.Itoa(int(row.KafkaPartition)),
		"offset":    strconv.FormatInt(row.KafkaOffset, 10),
		"row":       payload,
	}, len(payload), nil
}

// Close closes the client.
func (s *RedisStreamSink) Close(context.Context) error {
	return s.client.Close()
}
