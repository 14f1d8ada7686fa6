package archive

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// ObjectStorage is the subset of object storage the archiver needs.
// This interface enables testing the archiver without a bucket.
type ObjectStorage interface {
	// NewWriter opens a writer for the object. The upload is finalized on Close.
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser

	// NewReader opens the object for reading.
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// GCSStorage is the Google Cloud Storage implementation of ObjectStorage.
type GCSStorage struct {
	client *storage.Client
}

// NewGCSStorage creates a storage client.
// It assumes Application Default Credentials are configured (gcloud auth application-default login).
func NewGCSStorage(ctx context.Context) (*GCSStorage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStorage{client: client}, nil
}

// NewWriter implements ObjectStorage.
func (s *GCSStorage) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/x-ndjson"
	return w
}

// NewReader implements ObjectStorage.
func (s *GCSStorage) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	return r, nil
}

// Close releases the underlying client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

var _ ObjectStorage = (*GCSStorage)(nil)
