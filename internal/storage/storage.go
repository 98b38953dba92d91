package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jjudge-oj/problemgen/config"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// Object is a single upload.
type Object struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string

	// Metadata is stored as user metadata next to the object.
	Metadata map[string]string
}

// ObjectStorage holds generated testcase archives.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, obj Object) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// New returns the backend selected by cfg.Backend, or nil when archives are
// disabled. The bucket is created when missing.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Backend {
	case config.StorageBackendNone, "":
		return nil, nil
	case config.StorageBackendMinio:
		backend, err = NewMinioStorage(cfg.Minio)
	case config.StorageBackendGCS:
		backend, err = NewGCSStorage(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", backend.Bucket(), err)
	}
	return backend, nil
}
