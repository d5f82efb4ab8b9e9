package state_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
	"github.com/TheMichaelB/blockbox/internal/state"
)

func testLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

func testRecord(owner string, n int) models.FileRecord {
	return models.FileRecord{
		ID:        fmt.Sprintf("1700000000%03d-rec-%d", n, n),
		Name:      fmt.Sprintf("file-%d.txt", n),
		Size:      int64(10 * n),
		MimeType:  "text/plain",
		CID:       fmt.Sprintf("bafkrei-test-%d", n),
		Encrypted: true,
		CreatedAt: time.Date(2024, 1, 15, 10, 30, n, 0, time.UTC),
		Owner:     owner,
		Checksum:  fmt.Sprintf("sum-%d", n),
		Algorithm: models.AlgorithmAESGCM,
	}
}

func TestJSONStore(t *testing.T) {
	store, err := state.NewJSONStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func TestSQLiteStore(t *testing.T) {
	store, err := state.NewSQLiteStore(filepath.Join(t.TempDir(), "registry.db"), testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func TestBoltStore(t *testing.T) {
	store, err := state.NewBoltStore(filepath.Join(t.TempDir(), "nested", "registry.bolt"), testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func TestMockStore(t *testing.T) {
	testStoreOperations(t, state.NewMockStore())
}

func testStoreOperations(t *testing.T, store state.Store) {
	identity := "0xabc"

	t.Run("load non-existent", func(t *testing.T) {
		_, err := store.Load(identity)
		assert.ErrorIs(t, err, state.ErrStateNotFound)
	})

	t.Run("save and load preserves order and fields", func(t *testing.T) {
		records := []models.FileRecord{testRecord(identity, 3), testRecord(identity, 1), testRecord(identity, 2)}
		records[1].Payload = []byte{0x00, 0x01, 0xfe, 0xff}

		require.NoError(t, store.Save(identity, records))

		loaded, err := store.Load(identity)
		require.NoError(t, err)
		assert.Equal(t, records, loaded)
	})

	t.Run("update existing", func(t *testing.T) {
		records := []models.FileRecord{testRecord(identity, 1)}
		require.NoError(t, store.Save(identity, records))

		loaded, err := store.Load(identity)
		require.NoError(t, err)
		assert.Equal(t, records, loaded)
	})

	t.Run("empty partition is not missing", func(t *testing.T) {
		require.NoError(t, store.Save("0xempty", nil))

		loaded, err := store.Load("0xempty")
		require.NoError(t, err)
		assert.NotNil(t, loaded)
		assert.Empty(t, loaded)
	})

	t.Run("list identities", func(t *testing.T) {
		require.NoError(t, store.Save("0xdef", []models.FileRecord{testRecord("0xdef", 9)}))

		identities, err := store.List()
		require.NoError(t, err)

		assert.Contains(t, identities, identity)
		assert.Contains(t, identities, "0xdef")
		assert.Contains(t, identities, "0xempty")
	})

	t.Run("partitions are isolated", func(t *testing.T) {
		other, err := store.Load("0xdef")
		require.NoError(t, err)
		require.Len(t, other, 1)
		assert.Equal(t, "0xdef", other[0].Owner)

		mine, err := store.Load(identity)
		require.NoError(t, err)
		for _, r := range mine {
			assert.Equal(t, identity, r.Owner)
		}
	})

	t.Run("reset identity", func(t *testing.T) {
		require.NoError(t, store.Reset(identity))

		_, err := store.Load(identity)
		assert.ErrorIs(t, err, state.ErrStateNotFound)

		_, err = store.Load("0xdef")
		assert.NoError(t, err)
	})

	t.Run("concurrent locking", func(t *testing.T) {
		if _, ok := store.(*state.MockStore); ok {
			t.Skip("mock locks are no-ops")
		}

		unlock1, err := store.Lock("lock-test")
		require.NoError(t, err)

		done := make(chan bool)
		go func() {
			unlock2, err := store.Lock("lock-test")
			if err == nil {
				defer unlock2()
			}
			done <- (err == nil)
		}()

		select {
		case success := <-done:
			if success {
				t.Error("Second lock acquired too quickly")
			}
		case <-time.After(100 * time.Millisecond):
		}

		unlock1()

		select {
		case success := <-done:
			if !success {
				t.Error("Second lock failed after first was released")
			}
		case <-time.After(1 * time.Second):
			t.Error("Second lock never acquired")
		}
	})
}

func TestJSONStoreFileLayout(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := state.NewJSONStore(tmpDir, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Save("0xabc", []models.FileRecord{testRecord("0xabc", 1)}))

	data, err := os.ReadFile(filepath.Join(tmpDir, "BlockBox_files_0xabc.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"key": "BlockBox_files_0xabc"`)
	assert.Contains(t, string(data), `"checksum"`)

	// Stray files are not partitions
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "notes.json"), []byte("{}"), 0600))
	identities, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"0xabc"}, identities)
}

func TestJSONStoreCorruption(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := state.NewJSONStore(tmpDir, testLogger())
	require.NoError(t, err)

	identity := "0xc0ffee"
	require.NoError(t, store.Save(identity, []models.FileRecord{testRecord(identity, 1)}))

	statePath := filepath.Join(tmpDir, models.RegistryKey(identity)+".json")
	require.NoError(t, os.WriteFile(statePath, []byte("invalid json"), 0600))

	_, err = store.Load(identity)
	assert.ErrorIs(t, err, state.ErrStateCorrupt)
}

func TestJSONStoreChecksumMismatch(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := state.NewJSONStore(tmpDir, testLogger())
	require.NoError(t, err)

	identity := "0xbad"
	require.NoError(t, store.Save(identity, []models.FileRecord{testRecord(identity, 1)}))

	statePath := filepath.Join(tmpDir, models.RegistryKey(identity)+".json")
	data, err := os.ReadFile(statePath)
	require.NoError(t, err)

	tampered := bytes.Replace(data, []byte(`"size": 10`), []byte(`"size": 11`), 1)
	require.NotEqual(t, data, tampered)
	require.NoError(t, os.WriteFile(statePath, tampered, 0600))

	_, err = store.Load(identity)
	assert.ErrorIs(t, err, state.ErrStateCorrupt)
}

func TestJSONStoreBackupRecovery(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := state.NewJSONStore(tmpDir, testLogger())
	require.NoError(t, err)
	defer store.Close()

	identity := "0xbac"

	initial := []models.FileRecord{testRecord(identity, 1)}
	require.NoError(t, store.Save(identity, initial))

	updated := []models.FileRecord{testRecord(identity, 1), testRecord(identity, 2)}
	require.NoError(t, store.Save(identity, updated))

	loaded, err := store.Load(identity)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	mainPath := filepath.Join(tmpDir, models.RegistryKey(identity)+".json")
	require.NoError(t, os.WriteFile(mainPath, []byte("corrupted"), 0600))

	recovered, err := store.Load(identity)
	require.NoError(t, err)
	assert.Equal(t, initial, recovered)
}

func TestMigration(t *testing.T) {
	tmpDir := t.TempDir()
	logger := testLogger()

	jsonStore, err := state.NewJSONStore(filepath.Join(tmpDir, "json"), logger)
	require.NoError(t, err)
	defer jsonStore.Close()

	identities := []string{"0x01", "0x02", "0x03"}
	for i, identity := range identities {
		records := []models.FileRecord{testRecord(identity, i), testRecord(identity, i+10)}
		require.NoError(t, jsonStore.Save(identity, records))
	}

	sqliteStore, err := state.NewSQLiteStore(filepath.Join(tmpDir, "registry.db"), logger)
	require.NoError(t, err)
	defer sqliteStore.Close()

	boltStore, err := state.NewBoltStore(filepath.Join(tmpDir, "registry.bolt"), logger)
	require.NoError(t, err)
	defer boltStore.Close()

	require.NoError(t, jsonStore.Migrate(sqliteStore))
	require.NoError(t, sqliteStore.Migrate(boltStore))

	migrated, err := boltStore.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, identities, migrated)

	for _, identity := range identities {
		want, err := jsonStore.Load(identity)
		require.NoError(t, err)
		got, err := boltStore.Load(identity)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestMigrateSaveFailure(t *testing.T) {
	src := state.NewMockStore()
	require.NoError(t, src.Save("0x01", []models.FileRecord{testRecord("0x01", 1)}))
	require.NoError(t, src.Save("0x02", []models.FileRecord{testRecord("0x02", 2)}))

	dst := state.NewMockStore()
	dst.SetError(assert.AnError)

	n, err := state.Migrate(src, dst)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, n)
}

func TestMigrateReportsUnreadablePartitions(t *testing.T) {
	src := state.NewMockStore()
	for _, identity := range []string{"0x01", "0x02", "0x03"} {
		require.NoError(t, src.Save(identity, []models.FileRecord{testRecord(identity, 1)}))
	}
	src.FailLoad("0x02", state.ErrStateCorrupt)

	dst := state.NewMockStore()
	n, err := state.Migrate(src, dst)

	require.Error(t, err)
	assert.ErrorIs(t, err, state.ErrMigrationIncomplete)
	assert.ErrorIs(t, err, state.ErrStateCorrupt)
	assert.Contains(t, err.Error(), "0x02")
	assert.Equal(t, 2, n)

	// Readable partitions are still copied.
	for _, identity := range []string{"0x01", "0x03"} {
		_, ok := dst.Partition(identity)
		assert.True(t, ok, identity)
	}
	_, ok := dst.Partition("0x02")
	assert.False(t, ok)

	assert.ErrorIs(t, src.Migrate(state.NewMockStore()), state.ErrMigrationIncomplete)
}

func TestLargePartition(t *testing.T) {
	sqliteStore, err := state.NewSQLiteStore(filepath.Join(t.TempDir(), "large.db"), testLogger())
	require.NoError(t, err)
	defer sqliteStore.Close()

	identity := "0xlarge"

	records := make([]models.FileRecord, 500)
	for i := range records {
		records[i] = testRecord(identity, i)
	}

	require.NoError(t, sqliteStore.Save(identity, records))

	loaded, err := sqliteStore.Load(identity)
	require.NoError(t, err)

	require.Len(t, loaded, 500)
	assert.Equal(t, records[42], loaded[42])
	assert.Equal(t, records[499].ID, loaded[499].ID)
}

func TestEncodeRecords(t *testing.T) {
	data, err := state.EncodeRecords(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	records, err := state.DecodeRecords(data)
	require.NoError(t, err)
	assert.NotNil(t, records)

	_, err = state.DecodeRecords([]byte("{"))
	assert.ErrorIs(t, err, state.ErrStateCorrupt)
}

func TestKeyedLocksTimeout(t *testing.T) {
	prev := state.LockTimeout
	state.LockTimeout = 20 * time.Millisecond
	t.Cleanup(func() { state.LockTimeout = prev })

	locks := state.NewKeyedLocks()

	unlock, err := locks.Lock("0xabc")
	require.NoError(t, err)

	_, err = locks.Lock("0xabc")
	assert.ErrorIs(t, err, state.ErrStateLocked)

	// Other identities are independent.
	unlockOther, err := locks.Lock("0xdef")
	require.NoError(t, err)
	unlockOther()

	unlock()
	unlock()

	again, err := locks.Lock("0xabc")
	require.NoError(t, err)
	again()
}

func TestJSONStoreResetRemovesBackup(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := state.NewJSONStore(tmpDir, testLogger())
	require.NoError(t, err)

	identity := "0xabc"
	require.NoError(t, store.Save(identity, []models.FileRecord{testRecord(identity, 1)}))
	require.NoError(t, store.Save(identity, []models.FileRecord{testRecord(identity, 2)}))
	assert.FileExists(t, filepath.Join(tmpDir, models.RegistryKey(identity)+".json.backup"))

	require.NoError(t, store.Reset(identity))
	assert.NoFileExists(t, filepath.Join(tmpDir, models.RegistryKey(identity)+".json"))
	assert.NoFileExists(t, filepath.Join(tmpDir, models.RegistryKey(identity)+".json.backup"))

	identities, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, identities)
}
