package content_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/blockbox/internal/content"
	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
)

func testLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

func TestStores(t *testing.T) {
	factories := map[string]func(t *testing.T) content.Store{
		"local": func(t *testing.T) content.Store {
			store, err := content.NewLocalStore(t.TempDir(), testLogger())
			require.NoError(t, err)
			return store
		},
		"mock": func(t *testing.T) content.Store {
			return content.NewMockStore()
		},
	}

	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			testStoreContract(t, factory)
		})
	}
}

func testStoreContract(t *testing.T, newStore func(t *testing.T) content.Store) {
	ctx := context.Background()
	meta := content.Metadata{Name: "hello.txt", MimeType: "text/plain", Owner: "0xabc"}

	t.Run("PutGet", func(t *testing.T) {
		store := newStore(t)

		id, err := store.Put(ctx, []byte("hello"), meta)
		require.NoError(t, err)
		assert.Equal(t, helloCID, id)

		data, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), data)

		ok, err := store.Exists(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("PutIsIdempotent", func(t *testing.T) {
		store := newStore(t)

		first, err := store.Put(ctx, []byte("hello world"), meta)
		require.NoError(t, err)
		second, err := store.Put(ctx, []byte("hello world"), meta)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("BinaryPayload", func(t *testing.T) {
		store := newStore(t)

		payload := make([]byte, 4097)
		for i := range payload {
			payload[i] = byte(i)
		}

		id, err := store.Put(ctx, payload, meta)
		require.NoError(t, err)

		data, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Put(ctx, nil, meta)
		assert.ErrorIs(t, err, models.ErrEmptyPayload)
		assert.False(t, models.IsTransient(err))
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(ctx, helloCID)
		assert.True(t, models.IsNotFound(err))

		ok, err := store.Exists(ctx, helloCID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Unpin", func(t *testing.T) {
		store := newStore(t)

		id, err := store.Put(ctx, []byte("hello"), meta)
		require.NoError(t, err)

		require.NoError(t, store.Unpin(ctx, id))

		ok, err := store.Exists(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = store.Get(ctx, id)
		assert.True(t, models.IsNotFound(err))
	})

	t.Run("UnpinMissing", func(t *testing.T) {
		store := newStore(t)

		err := store.Unpin(ctx, helloCID)
		var storeErr *models.StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, models.StoreErrNotFound, storeErr.Kind)
		assert.Equal(t, "unpin", storeErr.Op)
	})
}
