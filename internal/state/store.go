package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TheMichaelB/blockbox/internal/models"
)

// Store persists one registry partition per identity. A partition is the
// ordered list of file records under the key models.RegistryKey(identity).
type Store interface {
	// Load retrieves the records for an identity.
	Load(identity string) ([]models.FileRecord, error)

	// Save replaces the records for an identity.
	Save(identity string, records []models.FileRecord) error

	// Reset removes the partition for an identity.
	Reset(identity string) error

	// List returns all identities with a partition.
	List() ([]string, error)

	// Lock acquires an exclusive lock for an identity.
	Lock(identity string) (UnlockFunc, error)

	// Migrate copies every partition into target.
	Migrate(target Store) error

	// Close releases resources.
	Close() error
}

// UnlockFunc releases an identity lock.
type UnlockFunc func()

// Errors
var (
	ErrStateNotFound = errors.New("state not found")
	ErrStateLocked   = errors.New("state is locked")
	ErrStateCorrupt  = errors.New("state file is corrupt")

	// ErrMigrationIncomplete means some source partitions could not be read.
	ErrMigrationIncomplete = errors.New("migration incomplete")
)

// CurrentSchemaVersion for migrations.
const CurrentSchemaVersion = 1

// LockTimeout bounds how long Lock waits for a held partition.
var LockTimeout = 5 * time.Second

// Partition wraps persisted records with store metadata.
type Partition struct {
	Key           string              `json:"key"`
	Records       []models.FileRecord `json:"records"`
	SchemaVersion int                 `json:"schema_version"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Checksum      string              `json:"checksum,omitempty"`
}

// EncodeRecords is the canonical value stored under a registry key: the JSON
// list of records. An empty partition encodes as [].
func EncodeRecords(records []models.FileRecord) ([]byte, error) {
	if records == nil {
		records = []models.FileRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshal records: %w", err)
	}
	return data, nil
}

// DecodeRecords reverses EncodeRecords.
func DecodeRecords(data []byte) ([]models.FileRecord, error) {
	var records []models.FileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateCorrupt, err)
	}
	if records == nil {
		records = []models.FileRecord{}
	}
	return records, nil
}

// Migrate copies every partition from src into target and returns how many
// were copied. Partitions that fail to load are skipped; a failed save
// aborts.
func Migrate(src, target Store) (int, error) {
	identities, err := src.List()
	if err != nil {
		return 0, fmt.Errorf("list identities: %w", err)
	}

	copied := 0
	var skipped []error
	for _, identity := range identities {
		records, err := src.Load(identity)
		if errors.Is(err, ErrStateNotFound) {
			continue
		}
		if err != nil {
			skipped = append(skipped, fmt.Errorf("load identity %s: %w", identity, err))
			continue
		}

		if err := target.Save(identity, records); err != nil {
			return copied, fmt.Errorf("save identity %s: %w", identity, err)
		}
		copied++
	}

	if len(skipped) > 0 {
		return copied, fmt.Errorf("%w: %d of %d partitions not copied: %w",
			ErrMigrationIncomplete, len(skipped), len(identities), errors.Join(skipped...))
	}
	return copied, nil
}

// KeyedLocks hands out one in-process lock per identity. Lock waits at
// most LockTimeout.
type KeyedLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{slots: make(map[string]chan struct{})}
}

// Lock acquires identity's lock or fails with ErrStateLocked.
func (k *KeyedLocks) Lock(identity string) (UnlockFunc, error) {
	k.mu.Lock()
	slot, ok := k.slots[identity]
	if !ok {
		slot = make(chan struct{}, 1)
		k.slots[identity] = slot
	}
	k.mu.Unlock()

	timer := time.NewTimer(LockTimeout)
	defer timer.Stop()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", ErrStateLocked, identity)
	}
}
