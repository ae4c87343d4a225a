package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"vbt-go/internal/vbt"
)

// StoredObject is one object held by a MemoryStore.
type StoredObject struct {
	Key         string
	ContentType string
	Data        []byte
}

// MemoryStore is an in-memory implementation of the ObjectStore interface,
// useful for testing. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	buckets []string
	objects []StoredObject

	connectErr error
	listErr    error
	putErr     error
}

// NewMemoryStore creates a store that reports the given bucket names.
func NewMemoryStore(buckets ...string) *MemoryStore {
	return &MemoryStore{buckets: buckets}
}

// FailConnect makes TestConnection fail with err as the connectivity cause.
func (m *MemoryStore) FailConnect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// FailList makes ListBuckets fail with err as the connectivity cause.
func (m *MemoryStore) FailList(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// FailPut makes PutObject fail with err as the upload cause.
func (m *MemoryStore) FailPut(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

// TestConnection reports the injected failure, if any.
func (m *MemoryStore) TestConnection(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return &vbt.ConnectivityError{Op: "test connection", Err: m.connectErr}
	}
	return nil
}

// ListBuckets returns the configured bucket names.
func (m *MemoryStore) ListBuckets(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, &vbt.ConnectivityError{Op: "list buckets", Err: m.listErr}
	}
	return append([]string(nil), m.buckets...), nil
}

// PutObject records the uploaded object.
func (m *MemoryStore) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return &vbt.UploadError{Key: key, Err: fmt.Errorf("reading body: %w", err)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return &vbt.UploadError{Key: key, Err: m.putErr}
	}
	if size >= 0 && int64(len(data)) != size {
		return &vbt.UploadError{Key: key, Err: fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))}
	}
	m.objects = append(m.objects, StoredObject{Key: key, ContentType: contentType, Data: data})
	return nil
}

// Objects returns a copy of everything uploaded so far.
func (m *MemoryStore) Objects() []StoredObject {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StoredObject(nil), m.objects...)
}

// Compile-time check that MemoryStore implements vbt.ObjectStore.
var _ vbt.ObjectStore = (*MemoryStore)(nil)
