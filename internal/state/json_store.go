package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
	"github.com/TheMichaelB/blockbox/internal/storage"
)

const (
	partitionExt = ".json"
	backupExt    = ".backup"
)

// JSONStore keeps one checksummed JSON file per identity, named after its
// registry key. The previous version of each file is kept as a backup and
// used when the current one fails to parse or verify.
type JSONStore struct {
	files  *storage.LocalStore
	locks  *KeyedLocks
	logger *events.Logger
}

var _ Store = (*JSONStore)(nil)

// NewJSONStore opens a store in dir.
func NewJSONStore(dir string, logger *events.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	files, err := storage.NewLocalStore(dir, logger)
	if err != nil {
		return nil, err
	}
	files.SetMaxFileSize(0)

	return &JSONStore{
		files:  files,
		locks:  NewKeyedLocks(),
		logger: logger.WithField("component", "json_state_store"),
	}, nil
}

// Load implements Store.
func (s *JSONStore) Load(identity string) ([]models.FileRecord, error) {
	name := partitionFile(identity)

	data, err := s.files.Read(name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read partition: %w", err)
	}

	p, err := decodePartition(data)
	if err == nil {
		if p.SchemaVersion != CurrentSchemaVersion {
			s.logger.WithField("version", p.SchemaVersion).Warn("Partition schema version differs")
		}
		return p.Records, nil
	}

	log := s.logger.WithError(err).WithField("identity", identity)
	backup, backupErr := s.files.Read(name + backupExt)
	if backupErr == nil {
		if p, backupErr = decodePartition(backup); backupErr == nil {
			log.Warn("Partition unreadable, loaded backup")
			return p.Records, nil
		}
	}

	log.Error("Partition unreadable and no usable backup")
	return nil, err
}

// Save implements Store. The write is atomic.
func (s *JSONStore) Save(identity string, records []models.FileRecord) error {
	if records == nil {
		records = []models.FileRecord{}
	}

	p := Partition{
		Key:           models.RegistryKey(identity),
		Records:       records,
		SchemaVersion: CurrentSchemaVersion,
		UpdatedAt:     time.Now().UTC(),
	}
	sum, err := partitionChecksum(p)
	if err != nil {
		return err
	}
	p.Checksum = sum

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode partition: %w", err)
	}

	name := partitionFile(identity)
	if prev, err := s.files.Read(name); err == nil {
		if _, err := s.files.Save(name+backupExt, prev, 0600); err != nil {
			s.logger.WithError(err).Warn("Could not back up partition")
		}
	}

	if _, err := s.files.Save(name, data, 0600); err != nil {
		return fmt.Errorf("write partition: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"identity": identity,
		"records":  len(records),
	}).Debug("Partition saved")
	return nil
}

// Reset implements Store. The backup goes too.
func (s *JSONStore) Reset(identity string) error {
	name := partitionFile(identity)
	if err := s.files.Delete(name); err != nil {
		return err
	}
	return s.files.Delete(name + backupExt)
}

// List implements Store. Files that are not partitions are ignored.
func (s *JSONStore) List() ([]string, error) {
	files, err := s.files.List("")
	if err != nil {
		return nil, err
	}

	var identities []string
	for _, f := range files {
		if strings.Contains(f.Path, "/") || path.Ext(f.Path) != partitionExt {
			continue
		}
		if id, ok := models.IdentityFromRegistryKey(strings.TrimSuffix(f.Path, partitionExt)); ok {
			identities = append(identities, id)
		}
	}
	return identities, nil
}

// Lock implements Store with in-process locks.
func (s *JSONStore) Lock(identity string) (UnlockFunc, error) {
	return s.locks.Lock(identity)
}

// Migrate implements Store.
func (s *JSONStore) Migrate(target Store) error {
	n, err := Migrate(s, target)
	s.logger.WithField("count", n).Info("Migrated partitions")
	return err
}

// Close implements Store.
func (s *JSONStore) Close() error {
	return nil
}

func partitionFile(identity string) string {
	return models.RegistryKey(identity) + partitionExt
}

func decodePartition(data []byte) (Partition, error) {
	var p Partition
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrStateCorrupt, err)
	}
	if p.Checksum != "" {
		sum, err := partitionChecksum(p)
		if err != nil || sum != p.Checksum {
			return p, fmt.Errorf("%w: checksum mismatch", ErrStateCorrupt)
		}
	}
	if p.Records == nil {
		p.Records = []models.FileRecord{}
	}
	return p, nil
}

// partitionChecksum hashes p with its checksum field cleared.
func partitionChecksum(p Partition) (string, error) {
	p.Checksum = ""
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode partition: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
