package encoder

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/linkedin/goavro/v2"
	"github.com/parquet-go/parquet-go"

	"github.com/jittakal/resistor/pkg/event"
)

var testTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func testRecords(t *testing.T, n int) []event.Record {
	t.Helper()
	records := make([]event.Record, n)
	for i := range records {
		e := cloudevents.NewEvent()
		e.SetID(fmt.Sprintf("evt-%d", i))
		e.SetSource("/orders")
		e.SetType("order.created")
		e.SetTime(testTime)
		if i%2 == 0 {
			e.SetSubject("order")
		}
		if err := e.SetData(cloudevents.ApplicationJSON, map[string]int{"n": i}); err != nil {
			t.Fatalf("SetData() error = %v", err)
		}
		records[i] = event.Record{
			Event: &e,
			Kafka: event.KafkaMetadata{
				Topic:     "orders",
				Partition: 2,
				Offset:    int64(100 + i),
				Timestamp: testTime,
			},
			ReceivedAt: testTime.Add(time.Second),
		}
	}
	return records
}

func TestNew(t *testing.T) {
	tests := []struct {
		format      event.FileFormat
		compression string
		wantExt     string
		wantErr     bool
	}{
		{event.FormatParquet, "snappy", ".parquet", false},
		{event.FormatAvro, "deflate", ".avro", false},
		{event.FormatAvro, "gzip", ".avro.gz", false},
		{event.FormatAvro, "brotli", "", true},
		{event.FormatNDJSON, "none", ".ndjson", false},
		{event.FormatNDJSON, "gzip", ".ndjson.gz", false},
		{event.FileFormat("csv"), "", "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.format)+"/"+tt.compression, func(t *testing.T) {
			enc, err := New(tt.format, tt.compression)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if enc.Format() != tt.format {
				t.Errorf("Format() = %v, want %v", enc.Format(), tt.format)
			}
			if enc.FileExtension() != tt.wantExt {
				t.Errorf("FileExtension() = %v, want %v", enc.FileExtension(), tt.wantExt)
			}
		})
	}
}

func TestEncode_EmptyBatch(t *testing.T) {
	for _, format := range []event.FileFormat{event.FormatParquet, event.FormatAvro, event.FormatNDJSON} {
		enc, err := New(format, DefaultCompression(format))
		if err != nil {
			t.Fatalf("New(%s) error = %v", format, err)
		}
		if err := enc.Encode(&bytes.Buffer{}, nil); !errors.Is(err, ErrNoRecords) {
			t.Errorf("%s Encode(nil) error = %v, want %v", format, err, ErrNoRecords)
		}
	}
}

func TestParquetEncoder_Encode(t *testing.T) {
	for _, compression := range SupportedCompressions(event.FormatParquet) {
		t.Run(compression, func(t *testing.T) {
			var buf bytes.Buffer
			records := testRecords(t, 3)
			if err := NewParquetEncoder(compression).Encode(&buf, records); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			rows, err := parquet.Read[ParquetRow](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
			if err != nil {
				t.Fatalf("parquet.Read() error = %v", err)
			}
			if len(rows) != 3 {
				t.Fatalf("rows = %d, want 3", len(rows))
			}

			row := rows[1]
			if row.ID != "evt-1" || row.KafkaOffset != 101 || row.KafkaPartition != 2 {
				t.Errorf("row = %+v, want evt-1 at offset 101 partition 2", row)
			}
			if row.Subject != nil {
				t.Errorf("Subject = %v, want nil", *row.Subject)
			}
			if rows[0].Subject == nil || *rows[0].Subject != "order" {
				t.Errorf("rows[0].Subject = %v, want order", rows[0].Subject)
			}
			if row.Time == nil || !row.Time.Equal(testTime) {
				t.Errorf("Time = %v, want %v", row.Time, testTime)
			}
			if row.Data != `{"n":1}` {
				t.Errorf("Data = %v, want %v", row.Data, `{"n":1}`)
			}
		})
	}
}

func TestAvroEncoder_Encode(t *testing.T) {
	for _, codec := range SupportedCompressions(event.FormatAvro) {
		t.Run(codec, func(t *testing.T) {
			enc, err := NewAvroEncoder(codec)
			if err != nil {
				t.Fatalf("NewAvroEncoder() error = %v", err)
			}

			var buf bytes.Buffer
			if err := enc.Encode(&buf, testRecords(t, 4)); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			var src = bytes.NewReader(buf.Bytes())
			reader := &bytes.Buffer{}
			if codec == "gzip" {
				gz, err := gzip.NewReader(src)
				if err != nil {
					t.Fatalf("gzip.NewReader() error = %v", err)
				}
				if _, err := reader.ReadFrom(gz); err != nil {
					t.Fatalf("ReadFrom() error = %v", err)
				}
			} else {
				reader.Write(buf.Bytes())
			}

			ocf, err := goavro.NewOCFReader(reader)
			if err != nil {
				t.Fatalf("NewOCFReader() error = %v", err)
			}
			var decoded []map[string]any
			for ocf.Scan() {
				datum, err := ocf.Read()
				if err != nil {
					t.Fatalf("Read() error = %v", err)
				}
				decoded = append(decoded, datum.(map[string]any))
			}
			if len(decoded) != 4 {
				t.Fatalf("decoded = %d, want 4", len(decoded))
			}
			if got := decoded[3]["id"]; got != "evt-3" {
				t.Errorf("id = %v, want evt-3", got)
			}
			if got := decoded[3]["kafka_offset"]; got != int64(103) {
				t.Errorf("kafka_offset = %v, want 103", got)
			}
			if got := decoded[3]["subject"]; got != nil {
				t.Errorf("subject = %v, want nil", got)
			}
			subject, ok := decoded[0]["subject"].(map[string]any)
			if !ok || subject["string"] != "order" {
				t.Errorf("subject = %v, want union of order", decoded[0]["subject"])
			}
		})
	}
}

func TestNDJSONEncoder_Encode(t *testing.T) {
	var buf bytes.Buffer
	if err := NewNDJSONEncoder("none").Encode(&buf, testRecords(t, 3)); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	scanner := bufio.NewScanner(&buf)
	var lines int
	for scanner.Scan() {
		var row event.Row
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			t.Fatalf("line %d: Unmarshal() error = %v", lines, err)
		}
		if want := fmt.Sprintf("evt-%d", lines); row.ID != want {
			t.Errorf("line %d id = %v, want %v", lines, row.ID, want)
		}
		lines++
	}
	if lines != 3 {
		t.Errorf("lines = %d, want 3", lines)
	}
}

func TestNDJSONEncoder_Gzip(t *testing.T) {
	var buf bytes.Buffer
	if err := NewNDJSONEncoder("gzip").Encode(&buf, testRecords(t, 2)); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	gz, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	var plain bytes.Buffer
	if _, err := plain.ReadFrom(gz); err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if got := bytes.Count(plain.Bytes(), []byte("\n")); got != 2 {
		t.Errorf("newlines = %d, want 2", got)
	}
}
