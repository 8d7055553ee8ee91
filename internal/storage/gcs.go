package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/twelves/apiserver/config"
	"google.golang.org/api/option"
)

// GCSClient stores reports in a Google Cloud Storage bucket.
type GCSClient struct {
	client    *storage.Client
	bucket    string
	projectID string
}

func NewGCSClient(ctx context.Context, cfg config.GCSConfig) (*GCSClient, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &GCSClient{
		client:    client,
		bucket:    cfg.Bucket,
		projectID: cfg.ProjectID,
	}, nil
}

// EnsureBucket creates the bucket when it is missing. Creation needs a project id.
func (g *GCSClient) EnsureBucket(ctx context.Context) error {
	_, err := g.client.Bucket(g.bucket).Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return err
	}
	if strings.TrimSpace(g.projectID) == "" {
		return errors.New("gcs project id is required to create bucket")
	}
	return g.client.Bucket(g.bucket).Create(ctx, g.projectID, nil)
}

// Put streams r into the object. size is advisory; GCS writers are chunked.
func (g *GCSClient) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	writer := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return fmt.Errorf("gcs: put %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("gcs: put %s: %w", key, err)
	}
	return nil
}

func (g *GCSClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: get %s: %w", key, err)
	}
	return reader, nil
}

func (g *GCSClient) Bucket() string {
	return g.bucket
}

func (g *GCSClient) Close() error {
	return g.client.Close()
}
