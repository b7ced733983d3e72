package sink

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var _ ObjectStore = (*S3Store)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// S3Store uploads objects with the multipart upload manager.
type S3Store struct {
	uploader *manager.Uploader
	bucket   string
	sse      types.ServerSideEncryption
	kmsKeyID string
}

// NewS3Store loads the default AWS credential chain for cfg.Region.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	store := &S3Store{
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = 10 * 1024 * 1024
			u.Concurrency = 5
		}),
		bucket: cfg.Bucket,
	}
	if cfg.SSEEnabled {
		store.sse = types.ServerSideEncryptionAes256
		if cfg.SSEKMSKeyID != "" {
			store.sse = types.ServerSideEncryptionAwsKms
			store.kmsKeyID = cfg.SSEKMSKeyID
		}
	}
	return store, nil
}

// Put uploads body to the bucket.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, _ int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if s.sse != "" {
		input.ServerSideEncryption = s.sse
	}
	if s.kmsKeyID != "" {
		input.SSEKMSKeyId = aws.String(s.kmsKeyID)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// Location returns an s3:// URI.
func (s *S3Store) Location(key string) string {
	return "s3://" + s.bucket + "/" + key
}

// Close is a no-op; the SDK client holds no resources that need closing.
func (s *S3Store) Close() error { return nil }
