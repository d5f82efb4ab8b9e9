package content

import (
	"context"
	"fmt"
	"sync"

	"github.com/TheMichaelB/blockbox/internal/models"
)

// MockStore is an in-memory Store for tests.
type MockStore struct {
	mu sync.Mutex

	blobs map[string][]byte
	meta  map[string]Metadata

	// PutErrors are returned by successive Put calls, one per call, before
	// any payload is stored. A nil entry lets that call through.
	PutErrors []error

	// Error injection per operation
	GetError    error
	ExistsError error
	UnpinError  error

	PutCalls   int
	UnpinCalls int
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		blobs: make(map[string][]byte),
		meta:  make(map[string]Metadata),
	}
}

// Put stores a copy of payload.
func (m *MockStore) Put(ctx context.Context, payload []byte, meta Metadata) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PutCalls++
	if len(m.PutErrors) > 0 {
		err := m.PutErrors[0]
		m.PutErrors = m.PutErrors[1:]
		if err != nil {
			return "", err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", &models.StoreError{Kind: models.StoreErrNetwork, Op: "put", Err: err}
	}
	if len(payload) == 0 {
		return "", &models.StoreError{Kind: models.StoreErrInvalid, Op: "put", Err: models.ErrEmptyPayload}
	}

	id, err := ComputeCID(payload)
	if err != nil {
		return "", &models.StoreError{Kind: models.StoreErrInvalid, Op: "put", Err: err}
	}
	m.blobs[id] = append([]byte(nil), payload...)
	m.meta[id] = meta
	return id, nil
}

// Get returns a copy of the stored payload.
func (m *MockStore) Get(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetError != nil {
		return nil, m.GetError
	}
	data, ok := m.blobs[id]
	if !ok {
		return nil, &models.StoreError{Kind: models.StoreErrNotFound, Op: "get", CID: id, Err: fmt.Errorf("not stored")}
	}
	return append([]byte(nil), data...), nil
}

// Exists reports whether id is stored.
func (m *MockStore) Exists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ExistsError != nil {
		return false, m.ExistsError
	}
	_, ok := m.blobs[id]
	return ok, nil
}

// Unpin removes id.
func (m *MockStore) Unpin(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UnpinCalls++
	if m.UnpinError != nil {
		return m.UnpinError
	}
	if _, ok := m.blobs[id]; !ok {
		return &models.StoreError{Kind: models.StoreErrNotFound, Op: "unpin", CID: id, Err: fmt.Errorf("not pinned")}
	}
	delete(m.blobs, id)
	delete(m.meta, id)
	return nil
}

// Blob returns the raw stored bytes for assertions.
func (m *MockStore) Blob(id string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[id]
	return data, ok
}

// Metadata implements MetadataReader.
func (m *MockStore) Metadata(ctx context.Context, id string) (Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.meta[id]
	if !ok {
		return Metadata{}, &models.StoreError{Kind: models.StoreErrNotFound, Op: "metadata", CID: id, Err: fmt.Errorf("not pinned")}
	}
	return meta, nil
}

// Meta returns the metadata recorded with id.
func (m *MockStore) Meta(id string) (Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.meta[id]
	return meta, ok
}

// Len returns the number of stored blobs.
func (m *MockStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

// Corrupt overwrites the stored bytes for id.
func (m *MockStore) Corrupt(id string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[id] = data
}
