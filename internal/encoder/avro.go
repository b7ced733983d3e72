package encoder

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/resistor/pkg/encoder"
	"github.com/jittakal/resistor/pkg/event"
)

var _ encoder.Encoder = (*AvroEncoder)(nil)

const avroSchema = `{
	"type": "record",
	"name": "StoredEvent",
	"namespace": "io.resistor.events",
	"fields": [
		{"name": "spec_version", "type": "string"},
		{"name": "id", "type": "string"},
		{"name": "source", "type": "string"},
		{"name": "type", "type": "string"},
		{"name": "subject", "type": ["null", "string"], "default": null},
		{"name": "data_content_type", "type": ["null", "string"], "default": null},
		{"name": "data_schema", "type": ["null", "string"], "default": null},
		{"name": "time", "type": ["null", "string"], "default": null},
		{"name": "data", "type": "string"},
		{"name": "kafka_topic", "type": "string"},
		{"name": "kafka_partition", "type": "int"},
		{"name": "kafka_offset", "type": "long"},
		{"name": "kafka_timestamp", "type": "string"},
		{"name": "ingested_at", "type": "string"}
	]
}`

// AvroEncoder writes Avro Object Container Files.
//
// The codec selects either an OCF block codec ("null", "deflate", "snappy")
// or "gzip", which wraps an uncompressed container in a gzip stream.
type AvroEncoder struct {
	codec *goavro.Codec
	block string
	gzip  bool
}

// NewAvroEncoder creates an Avro encoder with the given codec.
func NewAvroEncoder(codecName string) (*AvroEncoder, error) {
	codec, err := goavro.NewCodec(avroSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	e := &AvroEncoder{codec: codec, block: goavro.CompressionNullLabel}
	switch strings.ToLower(codecName) {
	case "gzip":
		e.gzip = true
	case "deflate":
		e.block = goavro.CompressionDeflateLabel
	case "snappy":
		e.block = goavro.CompressionSnappyLabel
	case "", "null", "none", "uncompressed":
	default:
		return nil, fmt.Errorf("unsupported avro codec: %s", codecName)
	}
	return e, nil
}

// Encode writes records as one OCF stream.
func (e *AvroEncoder) Encode(w io.Writer, records []event.Record) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	var gz *gzip.Writer
	if e.gzip {
		gz = gzip.NewWriter(w)
		w = gz
	}

	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           e.codec,
		CompressionName: e.block,
	})
	if err != nil {
		return fmt.Errorf("failed to create OCF writer: %w", err)
	}

	native := make([]any, len(records))
	for i := range records {
		native[i] = toAvroMap(records[i].Row())
	}
	if err := ocf.Append(native); err != nil {
		return fmt.Errorf("failed to append avro records: %w", err)
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}
	return nil
}

func toAvroMap(row event.Row) map[string]any {
	m := map[string]any{
		"spec_version":      row.SpecVersion,
		"id":                row.ID,
		"source":            row.Source,
		"type":              row.Type,
		"subject":           nullable(row.Subject),
		"data_content_type": nullable(row.DataContentType),
		"data_schema":       nullable(row.DataSchema),
		"time":              nil,
		"data":              row.Data,
		"kafka_topic":       row.KafkaTopic,
		"kafka_partition":   row.KafkaPartition,
		"kafka_offset":      row.KafkaOffset,
		"kafka_timestamp":   row.KafkaTimestamp.Format(time.RFC3339Nano),
		"ingested_at":       row.IngestedAt.Format(time.RFC3339Nano),
	}
	if !row.Time.IsZero() {
		m["time"] = goavro.Union("string", row.Time.Format(time.RFC3339Nano))
	}
	return m
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return goavro.Union("string", s)
}

// Format returns the file format.
func (e *AvroEncoder) Format() event.FileFormat { return event.FormatAvro }

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	if e.gzip {
		return ".avro.gz"
	}
	return ".avro"
}

// ContentType returns the upload content type.
func (e *AvroEncoder) ContentType() string { return "application/avro" }
