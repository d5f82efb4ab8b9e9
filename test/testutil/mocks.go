package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/TheMichaelB/blockbox/internal/content"
	"github.com/TheMichaelB/blockbox/internal/crypto"
	"github.com/TheMichaelB/blockbox/internal/models"
	"github.com/TheMichaelB/blockbox/internal/state"
)

// MockContentStore is an expectation-based content store.
type MockContentStore struct {
	mock.Mock
}

var _ content.Store = (*MockContentStore)(nil)

func NewMockContentStore() *MockContentStore {
	return &MockContentStore{}
}

func (m *MockContentStore) Put(ctx context.Context, payload []byte, meta content.Metadata) (string, error) {
	args := m.Called(ctx, payload, meta)
	return args.String(0), args.Error(1)
}

func (m *MockContentStore) Get(ctx context.Context, cid string) ([]byte, error) {
	args := m.Called(ctx, cid)
	if data := args.Get(0); data != nil {
		return data.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockContentStore) Exists(ctx context.Context, cid string) (bool, error) {
	args := m.Called(ctx, cid)
	return args.Bool(0), args.Error(1)
}

func (m *MockContentStore) Unpin(ctx context.Context, cid string) error {
	args := m.Called(ctx, cid)
	return args.Error(0)
}

// MockCryptoProvider mocks crypto operations.
type MockCryptoProvider struct {
	mock.Mock
}

var _ crypto.Provider = (*MockCryptoProvider)(nil)

func NewMockCryptoProvider() *MockCryptoProvider {
	return &MockCryptoProvider{}
}

func (m *MockCryptoProvider) DeriveKey(identity string) ([]byte, error) {
	args := m.Called(identity)
	if key := args.Get(0); key != nil {
		return key.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCryptoProvider) GenerateKey() ([]byte, error) {
	args := m.Called()
	if key := args.Get(0); key != nil {
		return key.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCryptoProvider) EncryptData(plaintext, key []byte) ([]byte, error) {
	args := m.Called(plaintext, key)
	if data := args.Get(0); data != nil {
		return data.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCryptoProvider) DecryptData(ciphertext, key []byte) ([]byte, error) {
	args := m.Called(ciphertext, key)
	if data := args.Get(0); data != nil {
		return data.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCryptoProvider) EncryptFile(file *models.File, key []byte) (*models.EncryptedFile, error) {
	args := m.Called(file, key)
	if enc := args.Get(0); enc != nil {
		return enc.(*models.EncryptedFile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCryptoProvider) DecryptFile(ciphertext, key []byte, name, mimeType string) (*models.DecryptedFile, error) {
	args := m.Called(ciphertext, key, name, mimeType)
	if dec := args.Get(0); dec != nil {
		return dec.(*models.DecryptedFile), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockStateStore mocks registry persistence.
type MockStateStore struct {
	mock.Mock
}

var _ state.Store = (*MockStateStore)(nil)

func NewMockStateStore() *MockStateStore {
	return &MockStateStore{}
}

func (m *MockStateStore) Load(identity string) ([]models.FileRecord, error) {
	args := m.Called(identity)
	if records := args.Get(0); records != nil {
		return records.([]models.FileRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStateStore) Save(identity string, records []models.FileRecord) error {
	args := m.Called(identity, records)
	return args.Error(0)
}

func (m *MockStateStore) Reset(identity string) error {
	args := m.Called(identity)
	return args.Error(0)
}

func (m *MockStateStore) List() ([]string, error) {
	args := m.Called()
	if ids := args.Get(0); ids != nil {
		return ids.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStateStore) Lock(identity string) (state.UnlockFunc, error) {
	args := m.Called(identity)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func() {}, nil
}

func (m *MockStateStore) Migrate(target state.Store) error {
	args := m.Called(target)
	return args.Error(0)
}

func (m *MockStateStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// AssertMockExpectations asserts expectations on every mock.
func AssertMockExpectations(t mock.TestingT, mocks ...interface{}) {
	for _, m := range mocks {
		if mockObj, ok := m.(interface{ AssertExpectations(mock.TestingT) bool }); ok {
			mockObj.AssertExpectations(t)
		}
	}
}
