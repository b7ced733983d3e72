// Package encoder defines the object encoding used by blob sinks.
package encoder

import (
	"io"

	"github.com/jittakal/resistor/pkg/event"
)

// Encoder serialises a batch of records into a single object.
type Encoder interface {
	// Encode writes records to w. The writer is not closed.
	Encode(w io.Writer, records []event.Record) error

	// Format returns the file format this encoder produces.
	Format() event.FileFormat

	// FileExtension returns the object extension (e.g. ".parquet", ".avro.gz").
	FileExtension() string

	// ContentType returns the MIME type used for uploads.
	ContentType() string
}
