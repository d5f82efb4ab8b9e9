package state

import (
	"sort"
	"sync"

	"github.com/TheMichaelB/blockbox/internal/models"
)

// MockStore provides an in-memory implementation for testing.
type MockStore struct {
	mu         sync.RWMutex
	partitions map[string][]models.FileRecord

	// Error injection
	LoadError  error
	SaveError  error
	loadErrors map[string]error

	// Call tracking
	SaveCalls int
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a mock state store.
func NewMockStore() *MockStore {
	return &MockStore{
		partitions: make(map[string][]models.FileRecord),
	}
}

// Load returns a copy of the stored partition.
func (m *MockStore) Load(identity string) ([]models.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.LoadError != nil {
		return nil, m.LoadError
	}
	if err, ok := m.loadErrors[identity]; ok {
		return nil, err
	}

	if records, ok := m.partitions[identity]; ok {
		return models.CloneRecords(records), nil
	}

	return nil, ErrStateNotFound
}

// Save stores a copy of the partition.
func (m *MockStore) Save(identity string, records []models.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveCalls++
	if m.SaveError != nil {
		return m.SaveError
	}

	m.partitions[identity] = models.CloneRecords(records)
	return nil
}

// Reset removes a partition.
func (m *MockStore) Reset(identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.partitions, identity)
	return nil
}

// List returns all identities, sorted.
func (m *MockStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	identities := make([]string, 0, len(m.partitions))
	for identity := range m.partitions {
		identities = append(identities, identity)
	}
	sort.Strings(identities)
	return identities, nil
}

// Lock acquires an exclusive lock (no-op for mock).
func (m *MockStore) Lock(identity string) (UnlockFunc, error) {
	return func() {}, nil
}

// Migrate copies partitions into target.
func (m *MockStore) Migrate(target Store) error {
	_, err := Migrate(m, target)
	return err
}

// Close closes the store (no-op for mock).
func (m *MockStore) Close() error {
	return nil
}

// Helper methods for testing

// SetError injects a save failure; nil clears it.
func (m *MockStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveError = err
}

// FailLoad makes Load fail for one identity only.
func (m *MockStore) FailLoad(identity string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErrors == nil {
		m.loadErrors = make(map[string]error)
	}
	m.loadErrors[identity] = err
}

// Partition returns the raw stored records without copying.
func (m *MockStore) Partition(identity string) ([]models.FileRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records, ok := m.partitions[identity]
	return records, ok
}

// Clear removes all partitions.
func (m *MockStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partitions = make(map[string][]models.FileRecord)
}
