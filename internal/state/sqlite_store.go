package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
)

// SQLiteStore implements SQLite-based partition storage. Records are rows
// ordered by their position in the partition.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
	locks  *KeyedLocks
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a SQLite state store.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_state_store"),
		locks:  NewKeyedLocks(),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables and indexes.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS partitions (
        partition_key TEXT PRIMARY KEY,
        identity TEXT NOT NULL UNIQUE,
        created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
        updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS file_records (
        partition_key TEXT NOT NULL,
        position INTEGER NOT NULL,
        id TEXT NOT NULL,
        name TEXT NOT NULL,
        size INTEGER NOT NULL,
        mime_type TEXT NOT NULL,
        cid TEXT NOT NULL,
        encrypted INTEGER NOT NULL,
        created_at TEXT NOT NULL,
        owner TEXT NOT NULL,
        checksum TEXT,
        algorithm TEXT,
        payload BLOB,
        PRIMARY KEY (partition_key, position),
        FOREIGN KEY (partition_key) REFERENCES partitions(partition_key) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_file_records_id ON file_records(partition_key, id);

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	return nil
}

// Load retrieves a partition from the database.
func (s *SQLiteStore) Load(identity string) ([]models.FileRecord, error) {
	s.logger.WithField("identity", identity).Debug("Loading state from SQLite")

	key := models.RegistryKey(identity)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRow(`SELECT 1 FROM partitions WHERE partition_key = ?`, key).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query partition: %w", err)
	}

	rows, err := tx.Query(`
        SELECT id, name, size, mime_type, cid, encrypted, created_at, owner, checksum, algorithm, payload
        FROM file_records
        WHERE partition_key = ?
        ORDER BY position
    `, key)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []models.FileRecord{}
	for rows.Next() {
		var (
			r         models.FileRecord
			createdAt string
			checksum  sql.NullString
			algorithm sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Size, &r.MimeType, &r.CID, &r.Encrypted,
			&createdAt, &r.Owner, &checksum, &algorithm, &r.Payload); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}

		r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("%w: record %s created_at: %v", ErrStateCorrupt, r.ID, err)
		}
		r.Checksum = checksum.String
		r.Algorithm = algorithm.String
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return records, nil
}

// Save replaces a partition in one transaction.
func (s *SQLiteStore) Save(identity string, records []models.FileRecord) error {
	s.logger.WithFields(map[string]interface{}{
		"identity": identity,
		"records":  len(records),
	}).Debug("Saving state to SQLite")

	key := models.RegistryKey(identity)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
        INSERT INTO partitions (partition_key, identity, updated_at)
        VALUES (?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(partition_key) DO UPDATE SET
            updated_at = CURRENT_TIMESTAMP
    `, key, identity)
	if err != nil {
		return fmt.Errorf("upsert partition: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM file_records WHERE partition_key = ?", key); err != nil {
		return fmt.Errorf("delete old records: %w", err)
	}

	stmt, err := tx.Prepare(`
        INSERT INTO file_records
            (partition_key, position, id, name, size, mime_type, cid, encrypted, created_at, owner, checksum, algorithm, payload)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.Exec(key, i, r.ID, r.Name, r.Size, r.MimeType, r.CID, r.Encrypted,
			r.CreatedAt.Format(time.RFC3339Nano), r.Owner, r.Checksum, r.Algorithm, r.Payload); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// Reset removes a partition and its records.
func (s *SQLiteStore) Reset(identity string) error {
	s.logger.WithField("identity", identity).Info("Resetting state in SQLite")

	_, err := s.db.Exec("DELETE FROM partitions WHERE partition_key = ?", models.RegistryKey(identity))
	if err != nil {
		return fmt.Errorf("delete partition: %w", err)
	}

	return nil
}

// List returns all identities.
func (s *SQLiteStore) List() ([]string, error) {
	rows, err := s.db.Query("SELECT identity FROM partitions ORDER BY identity")
	if err != nil {
		return nil, fmt.Errorf("query partitions: %w", err)
	}
	defer rows.Close()

	var identities []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, id)
	}

	return identities, rows.Err()
}

// Lock acquires a lock for an identity.
func (s *SQLiteStore) Lock(identity string) (UnlockFunc, error) {
	return s.locks.Lock(identity)
}

// Migrate transfers all partitions to another store.
func (s *SQLiteStore) Migrate(target Store) error {
	n, err := Migrate(s, target)
	s.logger.WithField("count", n).Info("Migrated states")
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
