package encoder

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jittakal/resistor/pkg/encoder"
	"github.com/jittakal/resistor/pkg/event"
)

var _ encoder.Encoder = (*NDJSONEncoder)(nil)

// NDJSONEncoder writes one JSON row per line.
type NDJSONEncoder struct {
	gzip bool
}

// NewNDJSONEncoder creates an NDJSON encoder; "gzip" compresses the stream.
func NewNDJSONEncoder(compression string) *NDJSONEncoder {
	return &NDJSONEncoder{gzip: strings.EqualFold(compression, "gzip")}
}

// Encode writes records, each followed by a newline.
func (e *NDJSONEncoder) Encode(w io.Writer, records []event.Record) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	var gz *gzip.Writer
	if e.gzip {
		gz = gzip.NewWriter(w)
		w = gz
	}

	enc := json.NewEncoder(w)
	for i := range records {
		if err := enc.Encode(records[i].Row()); err != nil {
			return fmt.Errorf("failed to encode record %d: %w", i, err)
		}
	}

	if gz != nil {
		return gz.Close()
	}
	return nil
}

// Format returns the file format.
func (e *NDJSONEncoder) Format() event.FileFormat { return event.FormatNDJSON }

// FileExtension returns the file extension.
func (e *NDJSONEncoder) FileExtension() string {
	if e.gzip {
		return ".ndjson.gz"
	}
	return ".ndjson"
}

// ContentType returns the upload content type.
func (e *NDJSONEncoder) ContentType() string { return "application/x-ndjson" }
