package sink

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

var _ ObjectStore = (*AzureStore)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName string
	Container   string
	// ConnectionString takes precedence over AccountName. Without it the
	// account URL is used anonymously, which suits SAS-signed endpoints.
	ConnectionString string
}

// AzureStore uploads block blobs.
type AzureStore struct {
	client    *azblob.Client
	container string
	account   string
}

// NewAzureStore creates a blob client.
func NewAzureStore(cfg AzureConfig) (*AzureStore, error) {
	var (
		client *azblob.Client
		err    error
	)
	if cfg.ConnectionString != "" {
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	} else {
		client, err = azblob.NewClientWithNoCredential(
			fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &AzureStore{client: client, container: cfg.Container, account: cfg.AccountName}, nil
}

// Put uploads body as a block blob.
func (s *AzureStore) Put(ctx context.Context, key string, body io.Reader, _ int64, contentType string) error {
	_, err := s.client.UploadStream(ctx, s.container, key, body, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}
	return nil
}

// Location returns a wasbs:// URI.
func (s *AzureStore) Location(key string) string {
	return fmt.Sprintf("wasbs://%s@%s.blob.core.windows.net/%s", s.container, s.account, key)
}

// Close is a no-op.
func (s *AzureStore) Close() error { return nil }
