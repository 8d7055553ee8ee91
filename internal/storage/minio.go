package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/twelves/apiserver/config"
)

// MinioClient stores reports in a MinIO (or any S3 compatible) bucket.
type MinioClient struct {
	client *minio.Client
	bucket string
}

func NewMinioClient(cfg config.MinioConfig) (*MinioClient, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("minio endpoint is required")
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("minio credentials are required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("minio bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	return &MinioClient{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

func (m *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("minio: check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("minio: create bucket %s: %w", m.bucket, err)
	}
	return nil
}

func (m *MinioClient) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if _, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return fmt.Errorf("minio: put %s: %w", key, err)
	}
	return nil
}

// Get opens an object. A missing key surfaces on the first read.
func (m *MinioClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
}

func (m *MinioClient) Bucket() string {
	return m.bucket
}

// Close is a no-op; the MinIO client holds no long-lived connections.
func (m *MinioClient) Close() error {
	return nil
}
