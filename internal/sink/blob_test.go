package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"

	"github.com/jittakal/resistor/internal/encoder"
	apperrors "github.com/jittakal/resistor/internal/errors"
	"github.com/jittakal/resistor/pkg/event"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memoryStore) Put(_ context.Context, key string, body io.Reader, size int64, contentType string) error {
	if s.err != nil {
		return s.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size = %d, body = %d", size, len(data))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func (s *memoryStore) Location(key string) string { return "mem://" + key }
func (s *memoryStore) Close() error               { return nil }

type failingEncoder struct{ *encoder.NDJSONEncoder }

func (failingEncoder) Encode(io.Writer, []event.Record) error { return errors.New("boom") }

func record(t *testing.T, topic string, partition int32, offset int64, at time.Time) event.Record {
	t.Helper()
	e := cloudevents.NewEvent()
	e.SetID(fmt.Sprintf("%s-%d-%d", topic, partition, offset))
	e.SetSource("/test")
	e.SetType("test.event")
	e.SetTime(at)
	if err := e.SetData(cloudevents.ApplicationJSON, map[string]int64{"offset": offset}); err != nil {
		t.Fatalf("SetData() error = %v", err)
	}
	return event.Record{
		Event:      &e,
		Kafka:      event.KafkaMetadata{Topic: topic, Partition: partition, Offset: offset, Timestamp: at},
		ReceivedAt: at,
	}
}

func TestBlobSink_WriteGroupsByPartition(t *testing.T) {
	day1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	records := []event.Record{
		record(t, "orders", 0, 1, day1),
		record(t, "orders", 1, 1, day1),
		record(t, "orders", 0, 2, day1),
		record(t, "orders", 0, 3, day2),
	}

	store := newMemoryStore()
	s := NewBlobSink("mem", store, encoder.NewNDJSONEncoder("none"), NewRouter("events", "v10"), zap.NewNop())

	result, err := s.Write(context.Background(), records)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if result.Records != 4 {
		t.Errorf("Records = %d, want 4", result.Records)
	}
	if len(result.Targets) != 3 || len(store.objects) != 3 {
		t.Fatalf("objects = %d, targets = %d, want 3", len(store.objects), len(result.Targets))
	}

	wantPrefixes := []string{
		"mem://events/orders/v10/dt=2026-01-01/pid=0/",
		"mem://events/orders/v10/dt=2026-01-01/pid=1/",
		"mem://events/orders/v10/dt=2026-01-02/pid=0/",
	}
	var total int64
	for i, target := range result.Targets {
		if !strings.HasPrefix(target, wantPrefixes[i]) {
			t.Errorf("Targets[%d] = %v, want prefix %v", i, target, wantPrefixes[i])
		}
		key := strings.TrimPrefix(target, "mem://")
		total += int64(len(store.objects[key]))
		if store.types[key] != "application/x-ndjson" {
			t.Errorf("content type = %v, want application/x-ndjson", store.types[key])
		}
	}
	if result.Bytes != total {
		t.Errorf("Bytes = %d, want %d", result.Bytes, total)
	}

	first := strings.TrimPrefix(result.Targets[0], "mem://")
	if got := bytes.Count(store.objects[first], []byte("\n")); got != 2 {
		t.Errorf("lines in first object = %d, want 2", got)
	}
}

func TestBlobSink_WriteEmpty(t *testing.T) {
	store := newMemoryStore()
	s := NewBlobSink("mem", store, encoder.NewNDJSONEncoder(""), NewRouter("", "v10"), zap.NewNop())

	result, err := s.Write(context.Background(), nil)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if result.Records != 0 || len(store.objects) != 0 {
		t.Errorf("Write(nil) wrote %d records, %d objects", result.Records, len(store.objects))
	}
}

func TestBlobSink_Errors(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("encode failure is permanent", func(t *testing.T) {
		s := NewBlobSink("mem", newMemoryStore(), failingEncoder{encoder.NewNDJSONEncoder("")}, NewRouter("", "v10"), zap.NewNop())
		_, err := s.Write(context.Background(), []event.Record{record(t, "orders", 0, 1, at)})

		var sinkErr *apperrors.SinkError
		if !errors.As(err, &sinkErr) || sinkErr.Operation != "encode" {
			t.Fatalf("Write() error = %v, want encode SinkError", err)
		}
		if !apperrors.IsPermanent(err) {
			t.Errorf("IsPermanent(%v) = false, want true", err)
		}
	})

	t.Run("upload failure is retryable", func(t *testing.T) {
		store := newMemoryStore()
		store.err = apperrors.ErrConnectionLost
		s := NewBlobSink("mem", store, encoder.NewNDJSONEncoder(""), NewRouter("", "v10"), zap.NewNop())
		_, err := s.Write(context.Background(), []event.Record{record(t, "orders", 0, 1, at)})

		if !errors.Is(err, apperrors.ErrConnectionLost) {
			t.Fatalf("Write() error = %v, want %v", err, apperrors.ErrConnectionLost)
		}
		if apperrors.IsPermanent(err) {
			t.Errorf("IsPermanent(%v) = true, want false", err)
		}
	})
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	key := "orders/v10/dt=2026-01-01/pid=0/events_1.ndjson"
	if err := store.Put(context.Background(), key, strings.NewReader("hello\n"), 6, "application/x-ndjson"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("content = %q, want %q", data, "hello\n")
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "orders/v10/dt=2026-01-01/pid=0"))
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1 (no temp files left)", len(entries))
	}

	if got, want := store.Location(key), "file://"+filepath.ToSlash(filepath.Join(dir, key)); got != want {
		t.Errorf("Location() = %v, want %v", got, want)
	}
}

func TestFileStore_CancelledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Put(ctx, "a/b", strings.NewReader("x"), 1, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("Put() error = %v, want %v", err, context.Canceled)
	}
}
