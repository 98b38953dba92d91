package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/jjudge-oj/problemgen/config"
	"google.golang.org/api/option"
)

// Uploads at least this large use the SDK's resumable chunked writer.
const resumableThreshold = 16 << 20

// GCSStorage stores archives in a Google Cloud Storage bucket.
type GCSStorage struct {
	handle    *storage.BucketHandle
	bucket    string
	projectID string
}

func NewGCSStorage(ctx context.Context, cfg config.GCSConfig) (*GCSStorage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSStorage{
		handle:    client.Bucket(cfg.Bucket),
		bucket:    cfg.Bucket,
		projectID: cfg.ProjectID,
	}, nil
}

// EnsureBucket creates the bucket when it is missing. Creation needs a
// project id.
func (g *GCSStorage) EnsureBucket(ctx context.Context) error {
	_, err := g.handle.Attrs(ctx)
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return err
	}
	if strings.TrimSpace(g.projectID) == "" {
		return errors.New("gcs project id is required to create bucket")
	}
	return g.handle.Create(ctx, g.projectID, nil)
}

func (g *GCSStorage) Put(ctx context.Context, obj Object) error {
	w := g.handle.Object(obj.Key).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.Metadata = obj.Metadata
	if obj.Size > 0 && obj.Size < resumableThreshold {
		// Small archives go up in a single request.
		w.ChunkSize = 0
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (g *GCSStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.handle.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (g *GCSStorage) Delete(ctx context.Context, key string) error {
	err := g.handle.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (g *GCSStorage) Bucket() string {
	return g.bucket
}
