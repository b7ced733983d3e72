package sink

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jittakal/resistor/pkg/event"
	"github.com/jittakal/resistor/pkg/sink"
)

var _ sink.Sink = (*MongoSink)(nil)

// MongoConfig contains MongoDB configuration.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// MongoSink inserts one document per record. The document id is derived
// from the Kafka position, so a retried batch does not create duplicates.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoDocument struct {
	ID        string `bson:"_id"`
	event.Row `bson:",inline"`
}

// NewMongoSink connects and pings the primary.
func NewMongoSink(ctx context.Context, cfg MongoConfig) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return &MongoSink{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Name returns "mongodb".
func (s *MongoSink) Name() string { return "mongodb" }

// Write inserts records unordered. Duplicate key errors count as written.
func (s *MongoSink) Write(ctx context.Context, records []event.Record) (sink.Result, error) {
	if len(records) == 0 {
		return sink.Result{}, nil
	}

	docs := documents(records)
	_, err := s.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !onlyDuplicates(err) {
		return sink.Result{}, fail(s.Name(), "insert", s.collection.Name(), err)
	}

	return sink.Result{
		Records: len(records),
		Targets: []string{s.collection.Database().Name() + "." + s.collection.Name()},
	}, nil
}

func documents(records []event.Record) []any {
	docs := make([]any, len(records))
	for i := range records {
		docs[i] = mongoDocument{ID: documentID(&records[i]), Row: records[i].Row()}
	}
	return docs
}

// documentID identifies a record by its Kafka position.
func documentID(r *event.Record) string {
	return fmt.Sprintf("%s-%d-%d", r.Kafka.Topic, r.Kafka.Partition, r.Kafka.Offset)
}

const duplicateKeyCode = 11000

func onlyDuplicates(err error) bool {
	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) || bulkErr.WriteConcernError != nil {
		return false
	}
	for _, we := range bulkErr.WriteErrors {
		if we.Code != duplicateKeyCode {
			return false
		}
	}
	return len(bulkErr.WriteErrors) > 0
}

// Close disconnects the client.
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
