package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/jjudge-oj/problemgen/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDisabledBackend(t *testing.T) {
	backend, err := New(context.Background(), config.StorageConfig{Backend: config.StorageBackendNone})
	require.NoError(t, err)
	assert.Nil(t, backend)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Backend: "s3"})
	require.Error(t, err)

	_, err = New(context.Background(), config.StorageConfig{
		Backend: config.StorageBackendMinio,
		Minio:   config.MinioConfig{Endpoint: "localhost:9000", Bucket: "b"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access key")
}

func TestMemoryStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage("archives")
	require.NoError(t, s.EnsureBucket(ctx))
	assert.Equal(t, "archives", s.Bucket())

	require.NoError(t, s.Put(ctx, Object{
		Key:         "a/b.tar.gz",
		Body:        strings.NewReader("payload"),
		Size:        7,
		ContentType: "application/gzip",
		Metadata:    map[string]string{"sha256": "abc"},
	}))
	contentType, metadata := s.Attrs("a/b.tar.gz")
	assert.Equal(t, "application/gzip", contentType)
	assert.Equal(t, "abc", metadata["sha256"])

	rc, err := s.Get(ctx, "a/b.tar.gz")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "payload", string(data))

	require.NoError(t, s.Delete(ctx, "a/b.tar.gz"))
	_, err = s.Get(ctx, "a/b.tar.gz")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	require.NoError(t, s.Delete(ctx, "a/b.tar.gz"))
}
