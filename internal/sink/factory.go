// Package sink implements the batch destinations of resistord: local files,
// S3, Azure Blob and GCS objects, Redis streams, MongoDB and Elasticsearch.
package sink

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jittakal/resistor/internal/config/dto"
	"github.com/jittakal/resistor/internal/encoder"
	"github.com/jittakal/resistor/pkg/event"
	"github.com/jittakal/resistor/pkg/sink"
)

const defaultVersion = "v10"

// New creates the sink selected by cfg.Sink.Backend.
func New(ctx context.Context, cfg *dto.ApplicationConfig, logger *zap.Logger) (sink.Sink, error) {
	sc := cfg.Sink
	logger = logger.With(zap.String("sink", sc.Backend))

	switch sc.Backend {
	case "redis":
		return NewRedisStreamSink(ctx, RedisConfig{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Stream:   sc.Redis.Stream,
			MaxLen:   sc.Redis.MaxLen,
		})
	case "mongodb":
		return NewMongoSink(ctx, MongoConfig{
			URI:        sc.MongoDB.URI,
			Database:   sc.MongoDB.Database,
			Collection: sc.MongoDB.Collection,
		})
	case "elasticsearch":
		return NewElasticsearchSink(ElasticsearchConfig{
			Addresses: sc.Elasticsearch.Addresses,
			Username:  sc.Elasticsearch.Username,
			Password:  sc.Elasticsearch.Password,
			Index:     sc.Elasticsearch.Index,
		})
	}

	format := event.FileFormat(sc.Format)
	enc, err := encoder.New(format, Compression(cfg))
	if err != nil {
		return nil, err
	}

	var (
		store    ObjectStore
		basePath string
	)
	switch sc.Backend {
	case "file":
		store, err = NewFileStore(sc.File.BasePath)
	case "s3":
		basePath = sc.S3.BasePath
		store, err = NewS3Store(ctx, S3Config{
			Bucket:       sc.S3.Bucket,
			Region:       sc.S3.Region,
			Endpoint:     sc.S3.Endpoint,
			UsePathStyle: sc.S3.UsePathStyle,
			SSEEnabled:   sc.S3.SSEEnabled,
			SSEKMSKeyID:  sc.S3.SSEKMSKeyID,
		})
	case "azure":
		basePath = sc.Azure.BasePath
		store, err = NewAzureStore(AzureConfig{
			AccountName:      sc.Azure.AccountName,
			Container:        sc.Azure.Container,
			ConnectionString: sc.Azure.ConnectionString,
		})
	case "gcs":
		basePath = sc.GCS.BasePath
		store, err = NewGCSStore(ctx, GCSConfig{
			Bucket:          sc.GCS.Bucket,
			CredentialsFile: sc.GCS.CredentialsFile,
			CredentialsJSON: sc.GCS.CredentialsJSON,
		})
	default:
		return nil, fmt.Errorf("unsupported sink backend: %s", sc.Backend)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("blob sink created",
		zap.String("format", string(format)),
		zap.String("compression", Compression(cfg)),
		zap.String("base_path", basePath),
	)
	return NewBlobSink(sc.Backend, store, enc, NewRouter(basePath, defaultVersion), logger), nil
}

// Compression returns the codec of the configured format: parquet and avro
// settings have their own sections, everything else uses sink.compression.
func Compression(cfg *dto.ApplicationConfig) string {
	switch event.FileFormat(cfg.Sink.Format) {
	case event.FormatParquet:
		if cfg.Parquet.Compression != "" {
			return cfg.Parquet.Compression
		}
	case event.FormatAvro:
		if cfg.Avro.Codec != "" {
			return cfg.Avro.Codec
		}
	}
	if cfg.Sink.Compression != "" {
		return cfg.Sink.Compression
	}
	return encoder.DefaultCompression(event.FileFormat(cfg.Sink.Format))
}
