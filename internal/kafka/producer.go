package kafka

import (
	"fmt"

	"github.com/IBM/sarama"
)

// NewSyncProducer creates an idempotent producer waiting for all replicas.
func NewSyncProducer(brokers []string, clientID string, sec SecurityConfig) (sarama.SyncProducer, error) {
	cfg, err := NewSaramaConfig(clientID, sec)
	if err != nil {
		return nil, err
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}
	return producer, nil
}
