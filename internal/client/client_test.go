package client_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/blockbox/internal/client"
	"github.com/TheMichaelB/blockbox/internal/config"
	"github.com/TheMichaelB/blockbox/internal/content"
	"github.com/TheMichaelB/blockbox/internal/crypto"
	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
	"github.com/TheMichaelB/blockbox/internal/state"
	"github.com/TheMichaelB/blockbox/internal/storage"
)

type harness struct {
	client  *client.Client
	content *content.MockStore
	state   *state.MockStore
	exports *storage.MockStore
}

func testLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		content: content.NewMockStore(),
		state:   state.NewMockStore(),
		exports: storage.NewMockStore(),
	}
	h.client = client.NewWithServices(config.DefaultConfig(), client.Services{
		Crypto:  crypto.NewProvider(),
		Content: h.content,
		State:   h.state,
		Exports: h.exports,
	}, testLogger())
	return h
}

func TestDisconnectedOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.Upload(ctx, []models.File{{Name: "a", Data: []byte("a")}})
	assert.ErrorIs(t, err, models.ErrNotConnected)

	_, err = h.client.Download(ctx, "x")
	assert.ErrorIs(t, err, models.ErrNotConnected)

	_, err = h.client.Export(ctx, "x")
	assert.ErrorIs(t, err, models.ErrNotConnected)

	assert.ErrorIs(t, h.client.Delete(ctx, "x", true), models.ErrNotConnected)

	_, err = h.client.List(ctx)
	assert.ErrorIs(t, err, models.ErrNotConnected)

	_, err = h.client.Stats(ctx)
	assert.ErrorIs(t, err, models.ErrNotConnected)

	_, err = h.client.StoredMetadata(ctx, "x")
	assert.ErrorIs(t, err, models.ErrNotConnected)

	_, err = h.client.KeyFingerprint()
	assert.ErrorIs(t, err, models.ErrNotConnected)

	assert.Equal(t, models.ErrCodeIdentity, models.Code(err))
}

func TestSessionFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.client.Connect(ctx, "0xABC"))
	assert.Equal(t, "0xabc", h.client.Identity())
	assert.True(t, h.client.Connected())

	fp, err := h.client.KeyFingerprint()
	require.NoError(t, err)
	assert.Len(t, fp, 16)

	summary, err := h.client.Upload(ctx, []models.File{
		{Name: "hello.txt", Data: []byte("hello wrld"), MimeType: "text/plain"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)
	id := summary.Results[0].Record.ID

	stats, err := h.client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFiles)
	assert.Equal(t, int64(10), stats.TotalSize)
	assert.Equal(t, 1, stats.EncryptedFiles)

	file, err := h.client.Download(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello wrld"), file.Data)
	assert.Equal(t, "hello.txt", file.Name)
	assert.Equal(t, "text/plain", file.MimeType)

	meta, err := h.client.StoredMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", meta.Name)
	assert.Equal(t, "0xabc", meta.Owner)
	blob, ok := h.content.Blob(summary.Results[0].Record.CID)
	require.True(t, ok)
	assert.EqualValues(t, len(blob), meta.Size)

	path, err := h.client.Export(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", path)
	assert.True(t, h.exports.FileExists("hello.txt"))

	h.client.Disconnect()
	assert.False(t, h.client.Connected())

	// records survive a reconnect
	require.NoError(t, h.client.Connect(ctx, "0xabc"))
	records, err := h.client.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)

	fp2, err := h.client.KeyFingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp, fp2)
}

func TestStoredMetadataWithoutSupport(t *testing.T) {
	// Embedding hides the mock's Metadata method, like a Kubo node.
	bare := struct{ content.Store }{content.NewMockStore()}
	c := client.NewWithServices(config.DefaultConfig(), client.Services{
		Crypto:  crypto.NewProvider(),
		Content: bare,
		State:   state.NewMockStore(),
		Exports: storage.NewMockStore(),
	}, testLogger())
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx, "0xabc"))
	summary, err := c.Upload(ctx, []models.File{{Name: "a.txt", Data: []byte("a")}})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)

	_, err = c.StoredMetadata(ctx, summary.Results[0].Record.ID)
	assert.ErrorIs(t, err, content.ErrNoMetadata)

	_, err = c.StoredMetadata(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
}

func TestIdentitiesAreIsolated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.client.Connect(ctx, "0xaaa"))
	summary, err := h.client.Upload(ctx, []models.File{{Name: "a.txt", Data: []byte("a")}})
	require.NoError(t, err)
	id := summary.Results[0].Record.ID

	require.NoError(t, h.client.Connect(ctx, "0xbbb"))
	assert.Equal(t, "0xbbb", h.client.Identity())

	records, err := h.client.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = h.client.Download(ctx, id)
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	upload := func(t *testing.T, h *harness) models.FileRecord {
		t.Helper()
		require.NoError(t, h.client.Connect(ctx, "0xabc"))
		summary, err := h.client.Upload(ctx, []models.File{{Name: "a.txt", Data: []byte("delete me")}})
		require.NoError(t, err)
		require.Equal(t, 1, summary.Succeeded)
		return *summary.Results[0].Record
	}

	t.Run("keep content", func(t *testing.T) {
		h := newHarness(t)
		rec := upload(t, h)

		require.NoError(t, h.client.Delete(ctx, rec.ID, false))

		_, ok := h.content.Blob(rec.CID)
		assert.True(t, ok)
		assert.Equal(t, 0, h.content.UnpinCalls)

		records, err := h.client.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("unpin", func(t *testing.T) {
		h := newHarness(t)
		rec := upload(t, h)

		require.NoError(t, h.client.Delete(ctx, rec.ID, true))

		_, ok := h.content.Blob(rec.CID)
		assert.False(t, ok)
	})

	t.Run("twice", func(t *testing.T) {
		h := newHarness(t)
		rec := upload(t, h)

		require.NoError(t, h.client.Delete(ctx, rec.ID, true))
		assert.ErrorIs(t, h.client.Delete(ctx, rec.ID, true), models.ErrRecordNotFound)

		stats, err := h.client.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.TotalFiles)
	})

	t.Run("content already gone", func(t *testing.T) {
		h := newHarness(t)
		rec := upload(t, h)
		require.NoError(t, h.content.Unpin(ctx, rec.CID))

		assert.NoError(t, h.client.Delete(ctx, rec.ID, true))
	})

	t.Run("unpin failure keeps removal", func(t *testing.T) {
		h := newHarness(t)
		rec := upload(t, h)
		h.content.UnpinError = &models.StoreError{Kind: models.StoreErrAuth, Op: "unpin", Err: errors.New("denied")}

		err := h.client.Delete(ctx, rec.ID, true)
		require.Error(t, err)
		assert.Equal(t, models.ErrCodeStorage, models.Code(err))

		_, err = h.client.Download(ctx, rec.ID)
		assert.ErrorIs(t, err, models.ErrRecordNotFound)
	})

	t.Run("registry failure keeps content", func(t *testing.T) {
		h := newHarness(t)
		rec := upload(t, h)
		h.state.SetError(errors.New("disk full"))

		err := h.client.Delete(ctx, rec.ID, true)
		var regErr *models.RegistryError
		require.ErrorAs(t, err, &regErr)

		_, ok := h.content.Blob(rec.CID)
		assert.True(t, ok)
	})
}

func TestConnectInvalidIdentity(t *testing.T) {
	h := newHarness(t)

	err := h.client.Connect(context.Background(), "  ")
	assert.ErrorIs(t, err, models.ErrInvalidIdentity)
	assert.False(t, h.client.Connected())
}

func TestConnectLoadFailure(t *testing.T) {
	h := newHarness(t)
	h.state.LoadError = errors.New("corrupt")

	err := h.client.Connect(context.Background(), "0xabc")
	var regErr *models.RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.False(t, h.client.Connected())
}

func TestNewFromConfig(t *testing.T) {
	backends := []string{config.RegistryJSON, config.RegistrySQLite, config.RegistryBolt}

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()

			cfg := config.DefaultConfig()
			cfg.Content.Dir = filepath.Join(dir, "content")
			cfg.Registry.Backend = backend
			cfg.Registry.Dir = filepath.Join(dir, "registry")
			cfg.Storage.DataDir = dir
			cfg.Storage.ExportDir = filepath.Join(dir, "exports")
			require.NoError(t, cfg.Validate())

			c, err := client.New(cfg, testLogger())
			require.NoError(t, err)

			ctx := context.Background()
			require.NoError(t, c.Connect(ctx, "0xabc"))
			summary, err := c.Upload(ctx, []models.File{{Name: "n.txt", Data: []byte("persisted")}})
			require.NoError(t, err)
			require.Equal(t, 1, summary.Succeeded)
			id := summary.Results[0].Record.ID
			require.NoError(t, c.Close())

			// a second client over the same directories sees the record
			c2, err := client.New(cfg, testLogger())
			require.NoError(t, err)
			defer c2.Close()

			require.NoError(t, c2.Connect(ctx, "0xabc"))
			file, err := c2.Download(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, []byte("persisted"), file.Data)

			path, err := c2.Export(ctx, id)
			require.NoError(t, err)
			assert.FileExists(t, filepath.Join(dir, "exports", path))
		})
	}
}

func TestOpenStoresRejectUnknownBackends(t *testing.T) {
	ctx := context.Background()

	_, _, err := client.OpenContentStore(ctx, &config.ContentConfig{Backend: "ftp"}, testLogger())
	assert.ErrorIs(t, err, models.ErrInvalidConfig)

	_, err = client.OpenStateStore(ctx, &config.RegistryConfig{Backend: "csv"}, testLogger())
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestOpenIPFSStoreUsesConfiguredToken(t *testing.T) {
	cfg := config.DefaultConfig().Content
	cfg.Backend = config.ContentIPFS
	cfg.APIToken = "  tok  "

	store, tr, err := client.OpenContentStore(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	require.NotNil(t, tr)
	defer tr.Close()

	assert.IsType(t, &content.IPFSStore{}, store)
	assert.Equal(t, "tok", tr.GetToken())
}
