package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
)

var bucketRegistry = []byte("registry")

// BoltStore keeps each partition as one bbolt value: the JSON record list
// under its registry key.
type BoltStore struct {
	db     *bbolt.DB
	logger *events.Logger
	locks  *KeyedLocks
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens or creates the bbolt database at dbPath.
func NewBoltStore(dbPath string, logger *events.Logger) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRegistry)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket %q: %w", bucketRegistry, err)
	}

	return &BoltStore{
		db:     db,
		logger: logger.WithField("component", "bolt_state_store"),
		locks:  NewKeyedLocks(),
	}, nil
}

// Load retrieves a partition.
func (s *BoltStore) Load(identity string) ([]models.FileRecord, error) {
	s.logger.WithField("identity", identity).Debug("Loading state from bolt")

	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketRegistry).Get([]byte(models.RegistryKey(identity)))
		if v == nil {
			return ErrStateNotFound
		}
		// v is only valid inside the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return DecodeRecords(data)
}

// Save replaces a partition.
func (s *BoltStore) Save(identity string, records []models.FileRecord) error {
	s.logger.WithFields(map[string]interface{}{
		"identity": identity,
		"records":  len(records),
	}).Debug("Saving state to bolt")

	data, err := EncodeRecords(records)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRegistry).Put([]byte(models.RegistryKey(identity)), data)
	})
}

// Reset removes a partition.
func (s *BoltStore) Reset(identity string) error {
	s.logger.WithField("identity", identity).Info("Resetting state in bolt")

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRegistry).Delete([]byte(models.RegistryKey(identity)))
	})
}

// List returns all identities in key order.
func (s *BoltStore) List() ([]string, error) {
	var identities []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRegistry).ForEach(func(k, _ []byte) error {
			if identity, ok := models.IdentityFromRegistryKey(string(k)); ok {
				identities = append(identities, identity)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan partitions: %w", err)
	}
	return identities, nil
}

// Lock acquires a lock for an identity.
func (s *BoltStore) Lock(identity string) (UnlockFunc, error) {
	return s.locks.Lock(identity)
}

// Migrate transfers all partitions to another store.
func (s *BoltStore) Migrate(target Store) error {
	n, err := Migrate(s, target)
	s.logger.WithField("count", n).Info("Migrated states")
	return err
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
