package sink

import (
	"bytes"
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/jittakal/resistor/internal/errors"
	"github.com/jittakal/resistor/pkg/encoder"
	"github.com/jittakal/resistor/pkg/event"
	"github.com/jittakal/resistor/pkg/sink"
)

var _ sink.Sink = (*BlobSink)(nil)

// ObjectStore uploads finished objects.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// Location renders key as a URI for logs, e.g. s3://bucket/key.
	Location(key string) string
	Close() error
}

// BlobSink encodes each partition of a batch into one object and uploads it.
type BlobSink struct {
	name    string
	store   ObjectStore
	encoder encoder.Encoder
	router  sink.Router
	logger  *zap.Logger
	now     func() time.Time
}

// NewBlobSink creates a blob sink over store.
func NewBlobSink(name string, store ObjectStore, enc encoder.Encoder, router sink.Router, logger *zap.Logger) *BlobSink {
	return &BlobSink{
		name:    name,
		store:   store,
		encoder: enc,
		router:  router,
		logger:  logger,
		now:     time.Now,
	}
}

// Name returns the backend name.
func (s *BlobSink) Name() string { return s.name }

type objectGroup struct {
	prefix  string
	records []event.Record
}

// group splits records by routing prefix, keeping first-seen order.
func (s *BlobSink) group(records []event.Record) []*objectGroup {
	var groups []*objectGroup
	index := make(map[string]*objectGroup)
	for i := range records {
		r := &records[i]
		specVersion := ""
		if r.Event != nil {
			specVersion = r.Event.SpecVersion()
		}
		prefix := s.router.Route(r.PartitionID(), r.EventTime(), specVersion)
		g, ok := index[prefix]
		if !ok {
			g = &objectGroup{prefix: prefix}
			index[prefix] = g
			groups = append(groups, g)
		}
		g.records = append(g.records, *r)
	}
	return groups
}

// Write encodes and uploads one object per partition prefix. Objects
// uploaded before a failure stay in place; a retry writes them again under
// new names.
func (s *BlobSink) Write(ctx context.Context, records []event.Record) (sink.Result, error) {
	var result sink.Result
	if len(records) == 0 {
		return result, nil
	}

	for _, g := range s.group(records) {
		key := ObjectName(g.prefix, s.now(), s.encoder.FileExtension())

		var buf bytes.Buffer
		if err := s.encoder.Encode(&buf, g.records); err != nil {
			return result, fail(s.name, "encode", key, err)
		}
		size := int64(buf.Len())

		if err := s.store.Put(ctx, key, &buf, size, s.encoder.ContentType()); err != nil {
			return result, fail(s.name, "upload", s.store.Location(key), err)
		}

		s.logger.Debug("object written",
			zap.String("location", s.store.Location(key)),
			zap.Int("records", len(g.records)),
			zap.Int64("bytes", size),
		)
		result.Records += len(g.records)
		result.Bytes += size
		result.Targets = append(result.Targets, s.store.Location(key))
	}
	return result, nil
}

// Close closes the store.
func (s *BlobSink) Close(context.Context) error {
	return s.store.Close()
}

// fail builds a SinkError; failures that cannot succeed on retry are
// marked permanent.
func fail(name, operation, target string, err error) error {
	sinkErr := &apperrors.SinkError{Sink: name, Operation: operation, Target: target, Err: err}
	if !sinkErr.IsRetryable() {
		return apperrors.Permanent(sinkErr)
	}
	return sinkErr
}
