package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/jittakal/resistor/pkg/event"
)

const (
	binaryPrefix      = "ce_"
	contentTypeHeader = "content-type"
)

// Decode parses a message as a CloudEvent. Messages carrying ce_* headers
// are read in binary content mode, everything else as a structured JSON event.
func Decode(msg *sarama.ConsumerMessage) (*cloudevents.Event, error) {
	headers := headerMap(msg.Headers)
	if _, ok := headers[binaryPrefix+"specversion"]; ok {
		return decodeBinary(headers, msg.Value)
	}

	e := cloudevents.NewEvent()
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cloud event: %w", err)
	}
	return &e, nil
}

func decodeBinary(headers map[string]string, value []byte) (*cloudevents.Event, error) {
	e := cloudevents.NewEvent(headers[binaryPrefix+"specversion"])
	for key, v := range headers {
		name, ok := strings.CutPrefix(key, binaryPrefix)
		if !ok {
			continue
		}
		switch name {
		case "specversion":
		case "id":
			e.SetID(v)
		case "source":
			e.SetSource(v)
		case "type":
			e.SetType(v)
		case "subject":
			e.SetSubject(v)
		case "dataschema":
			e.SetDataSchema(v)
		case "time":
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("invalid ce_time %q: %w", v, err)
			}
			e.SetTime(t)
		default:
			e.SetExtension(name, v)
		}
	}

	if len(value) > 0 {
		contentType := headers[contentTypeHeader]
		if contentType == "" {
			contentType = cloudevents.ApplicationJSON
		}
		if err := e.SetData(contentType, value); err != nil {
			return nil, fmt.Errorf("failed to set event data: %w", err)
		}
	}
	return &e, nil
}

// Metadata returns the Kafka position and headers of msg.
func Metadata(msg *sarama.ConsumerMessage) event.KafkaMetadata {
	return event.KafkaMetadata{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Headers:   headerMap(msg.Headers),
		Timestamp: msg.Timestamp,
	}
}

func headerMap(headers []*sarama.RecordHeader) map[string]string {
	result := make(map[string]string, len(headers))
	for _, h := range headers {
		if h == nil {
			continue
		}
		result[strings.ToLower(string(h.Key))] = string(h.Value)
	}
	return result
}
