package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"docstack/internal/config"
	"docstack/internal/models"
)

// MinIOStore stores objects in a single MinIO bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIO connects to MinIO, verifies connectivity, and ensures the
// configured bucket exists.
func NewMinIO(ctx context.Context, cfg *config.MinIOConfig) (*MinIOStore, error) {
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create MinIO client: %w", err)
	}

	exists, err := c.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("MinIO connectivity check failed: %w", err)
	}
	if !exists {
		if err := c.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("unable to create bucket '%s': %w", cfg.Bucket, err)
		}
	}

	return &MinIOStore{client: c, bucket: cfg.Bucket}, nil
}

// Get reads the object's full content.
func (s *MinIOStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("unable to get object '%s': %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("object '%s': %w", key, models.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to read object '%s': %w", key, err)
	}
	return data, nil
}

// Put writes the object.
func (s *MinIOStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("unable to put object '%s': %w", key, err)
	}
	return nil
}

// HealthCheck verifies bucket reachability.
func (s *MinIOStore) HealthCheck(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("MinIO health check failed: %w", err)
	}
	return nil
}

var _ Store = (*MinIOStore)(nil)
