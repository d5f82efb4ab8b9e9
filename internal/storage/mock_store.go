package storage

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type mockFile struct {
	data    []byte
	mode    os.FileMode
	modTime time.Time
}

// MockStore is an in-memory BlobStore. Save always overwrites.
type MockStore struct {
	mu    sync.RWMutex
	files map[string]mockFile

	// SaveError, when set, fails every Save.
	SaveError error
	// ModTimeError, when set, fails every SetModTime.
	ModTimeError error
}

var _ BlobStore = (*MockStore)(nil)

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{files: make(map[string]mockFile)}
}

// Save implements BlobStore.
func (m *MockStore) Save(path string, data []byte, mode os.FileMode) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveError != nil {
		return "", m.SaveError
	}

	m.files[path] = mockFile{
		data:    append([]byte(nil), data...),
		mode:    mode,
		modTime: time.Now(),
	}
	return path, nil
}

// Read implements BlobStore.
func (m *MockStore) Read(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return append([]byte(nil), f.data...), nil
}

// Delete implements BlobStore.
func (m *MockStore) Delete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, path)
	return nil
}

// Exists implements BlobStore.
func (m *MockStore) Exists(path string) (bool, error) {
	return m.FileExists(path), nil
}

// Stat implements BlobStore.
func (m *MockStore) Stat(path string) (FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[path]
	if !ok {
		return FileInfo{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return FileInfo{Path: path, Size: int64(len(f.data)), Mode: f.mode, ModTime: f.modTime}, nil
}

// List implements BlobStore.
func (m *MockStore) List(dir string) ([]FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := strings.TrimSuffix(dir, "/")
	if prefix != "" {
		prefix += "/"
	}

	var files []FileInfo
	for p, f := range m.files {
		if strings.HasPrefix(p, prefix) {
			files = append(files, FileInfo{Path: p, Size: int64(len(f.data)), Mode: f.mode, ModTime: f.modTime})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// SetModTime implements BlobStore.
func (m *MockStore) SetModTime(path string, modTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ModTimeError != nil {
		return m.ModTimeError
	}
	f, ok := m.files[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	f.modTime = modTime
	m.files[path] = f
	return nil
}

// FileExists reports whether path was saved.
func (m *MockStore) FileExists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.files[path]
	return ok
}

// Len returns the number of stored files.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
