package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// MemoryStorage keeps objects in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

func NewMemoryStorage(bucket string) *MemoryStorage {
	return &MemoryStorage{bucket: bucket, objects: make(map[string]memoryObject)}
}

func (m *MemoryStorage) EnsureBucket(context.Context) error {
	return nil
}

func (m *MemoryStorage) Put(_ context.Context, obj Object) error {
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return err
	}
	metadata := make(map[string]string, len(obj.Metadata))
	for k, v := range obj.Metadata {
		metadata[k] = v
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[obj.Key] = memoryObject{data: data, contentType: obj.ContentType, metadata: metadata}
	return nil
}

func (m *MemoryStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStorage) Bucket() string {
	return m.bucket
}

// Attrs returns the content type and metadata stored with key.
func (m *MemoryStorage) Attrs(key string) (string, map[string]string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj := m.objects[key]
	return obj.contentType, obj.metadata
}
