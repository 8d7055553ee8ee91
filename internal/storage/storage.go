package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/twelves/apiserver/config"
)

// Backend is an object store for exported reports.
type Backend interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Bucket() string
	Close() error
}

// NewFromConfig builds the backend named by cfg.Backend ("minio" or "gcs").
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "minio":
		return NewMinioClient(cfg.Minio)
	case "gcs":
		return NewGCSClient(ctx, cfg.GCS)
	case "":
		return nil, fmt.Errorf("storage backend is not configured")
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
