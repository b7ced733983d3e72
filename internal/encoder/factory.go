// Package encoder implements the Parquet, Avro and NDJSON object encoders.
package encoder

import (
	"errors"
	"fmt"

	"github.com/jittakal/resistor/pkg/encoder"
	"github.com/jittakal/resistor/pkg/event"
)

// ErrNoRecords is returned when encoding an empty batch.
var ErrNoRecords = errors.New("no records to encode")

// New creates an encoder for format with the given compression codec.
func New(format event.FileFormat, compression string) (encoder.Encoder, error) {
	switch format {
	case event.FormatParquet:
		return NewParquetEncoder(compression), nil
	case event.FormatAvro:
		return NewAvroEncoder(compression)
	case event.FormatNDJSON:
		return NewNDJSONEncoder(compression), nil
	default:
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
}

// SupportedCompressions returns supported compression codecs for a given format.
func SupportedCompressions(format event.FileFormat) []string {
	switch format {
	case event.FormatParquet:
		return []string{"uncompressed", "snappy", "gzip", "lz4", "zstd"}
	case event.FormatAvro:
		return []string{"null", "deflate", "snappy", "gzip"}
	case event.FormatNDJSON:
		return []string{"none", "gzip"}
	default:
		return []string{}
	}
}

// DefaultCompression returns the default compression for a format.
func DefaultCompression(format event.FileFormat) string {
	switch format {
	case event.FormatParquet:
		return "snappy"
	case event.FormatAvro:
		return "deflate"
	default:
		return "none"
	}
}
