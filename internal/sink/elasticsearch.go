package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"

	apperrors "github.com/jittakal/resistor/internal/errors"
	"github.com/jittakal/resistor/pkg/event"
	"github.com/jittakal/resistor/pkg/sink"
)

var _ sink.Sink = (*ElasticsearchSink)(nil)

// ElasticsearchConfig contains Elasticsearch configuration.
type ElasticsearchConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

// ElasticsearchSink indexes records with the Bulk API. Documents are keyed
// by Kafka position so a retried batch overwrites instead of duplicating.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

// NewElasticsearchSink creates a client.
func NewElasticsearchSink(cfg ElasticsearchConfig) (*ElasticsearchSink, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticsearchSink{client: client, index: cfg.Index}, nil
}

// Name returns "elasticsearch".
func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

type bulkResponse struct {
	Errors bool                         `json:"errors"`
	Items  []map[string]bulkItemOutcome `json:"items"`
}

type bulkItemOutcome struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}

// Write sends one bulk request for the whole batch.
func (s *ElasticsearchSink) Write(ctx context.Context, records []event.Record) (sink.Result, error) {
	if len(records) == 0 {
		return sink.Result{}, nil
	}

	body, err := s.bulkBody(records)
	if err != nil {
		return sink.Result{}, fail(s.Name(), "marshal", s.index, err)
	}
	size := int64(len(body))

	res, err := s.client.Bulk(bytes.NewReader(body),
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithIndex(s.index),
	)
	if err != nil {
		return sink.Result{}, fail(s.Name(), "bulk", s.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return sink.Result{}, fail(s.Name(), "bulk", s.index, fmt.Errorf("bulk request failed: %s", res.Status()))
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return sink.Result{}, fail(s.Name(), "bulk", s.index, fmt.Errorf("failed to decode bulk response: %w", err))
	}
	if parsed.Errors {
		return sink.Result{}, itemsError(s.Name(), s.index, parsed)
	}

	return sink.Result{Records: len(records), Bytes: size, Targets: []string{s.index}}, nil
}

func (s *ElasticsearchSink) bulkBody(records []event.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		meta := map[string]map[string]string{"index": {"_index": s.index, "_id": documentID(&records[i])}}
		if err := enc.Encode(meta); err != nil {
			return nil, err
		}
		if err := enc.Encode(records[i].Row()); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// itemsError summarises rejected bulk items. Rejections caused by back
// pressure or server faults are retryable, mapping errors are not.
func itemsError(name, index string, res bulkResponse) error {
	var (
		failed    int
		retryable bool
		first     string
	)
	for _, item := range res.Items {
		for _, outcome := range item {
			if outcome.Error == nil {
				continue
			}
			failed++
			if outcome.Status == http.StatusTooManyRequests || outcome.Status >= http.StatusInternalServerError {
				retryable = true
			}
			if first == "" {
				first = fmt.Sprintf("%s: %s", outcome.Error.Type, outcome.Error.Reason)
			}
		}
	}

	err := &apperrors.SinkError{
		Sink:      name,
		Operation: "index",
		Target:    index,
		Err:       fmt.Errorf("%d documents rejected, first: %s", failed, first),
	}
	if !retryable {
		return apperrors.Permanent(err)
	}
	return err
}

// Close is a no-op.
func (s *ElasticsearchSink) Close(context.Context) error { return nil }
