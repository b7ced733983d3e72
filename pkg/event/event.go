package event

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// KafkaMetadata contains Kafka-specific metadata for an event.
type KafkaMetadata struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Headers   map[string]string
	Timestamp time.Time
}

// PartitionID uniquely identifies a Kafka partition.
type PartitionID struct {
	Topic     string
	Partition int32
}

// String returns a string representation of the partition ID in the format "topic-partition".
func (p PartitionID) String() string {
	return fmt.Sprintf("%s-%d", p.Topic, p.Partition)
}

// Record is one consumed event on its way to a sink.
type Record struct {
	Event      *cloudevents.Event
	Kafka      KafkaMetadata
	ReceivedAt time.Time
}

// PartitionID returns the partition the record was read from.
func (r *Record) PartitionID() PartitionID {
	return PartitionID{Topic: r.Kafka.Topic, Partition: r.Kafka.Partition}
}

// EventTime returns the CloudEvent time, or the Kafka timestamp when unset.
func (r *Record) EventTime() time.Time {
	if r.Event != nil && !r.Event.Time().IsZero() {
		return r.Event.Time()
	}
	return r.Kafka.Timestamp
}

// Row is the flat column set written by every sink.
type Row struct {
	SpecVersion     string    `json:"spec_version" bson:"spec_version"`
	ID              string    `json:"id" bson:"id"`
	Source          string    `json:"source" bson:"source"`
	Type            string    `json:"type" bson:"type"`
	Subject         string    `json:"subject,omitempty" bson:"subject,omitempty"`
	DataContentType string    `json:"data_content_type,omitempty" bson:"data_content_type,omitempty"`
	DataSchema      string    `json:"data_schema,omitempty" bson:"data_schema,omitempty"`
	Time            time.Time `json:"time" bson:"time"`
	Data            string    `json:"data" bson:"data"`
	KafkaTopic      string    `json:"kafka_topic" bson:"kafka_topic"`
	KafkaPartition  int32     `json:"kafka_partition" bson:"kafka_partition"`
	KafkaOffset     int64     `json:"kafka_offset" bson:"kafka_offset"`
	KafkaTimestamp  time.Time `json:"kafka_timestamp" bson:"kafka_timestamp"`
	IngestedAt      time.Time `json:"ingested_at" bson:"ingested_at"`
}

// Row flattens the record.
func (r *Record) Row() Row {
	row := Row{
		Time:           r.EventTime(),
		KafkaTopic:     r.Kafka.Topic,
		KafkaPartition: r.Kafka.Partition,
		KafkaOffset:    r.Kafka.Offset,
		KafkaTimestamp: r.Kafka.Timestamp,
		IngestedAt:     r.ReceivedAt,
	}
	if r.Event != nil {
		row.SpecVersion = r.Event.SpecVersion()
		row.ID = r.Event.ID()
		row.Source = r.Event.Source()
		row.Type = r.Event.Type()
		row.Subject = r.Event.Subject()
		row.DataContentType = r.Event.DataContentType()
		row.DataSchema = r.Event.DataSchema()
		row.Data = string(r.Event.Data())
	}
	return row
}

// FileFormat represents the object encoding used by blob sinks.
type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatAvro    FileFormat = "avro"
	FormatNDJSON  FileFormat = "ndjson"
)

// Validator validates CloudEvents.
type Validator interface {
	Validate(event *cloudevents.Event) error
}
