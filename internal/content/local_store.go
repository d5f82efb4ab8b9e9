package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
	"github.com/TheMichaelB/blockbox/internal/storage"
)

// MaxBlobSize caps a single payload in the local store.
const MaxBlobSize = 4 << 30

const metaSuffix = ".meta.json"

// LocalStore is a filesystem content store. Blobs live under a two-character
// shard taken from the end of the CID, each with a JSON metadata sidecar.
type LocalStore struct {
	blobs  *storage.LocalStore
	logger *events.Logger
}

var (
	_ Store          = (*LocalStore)(nil)
	_ MetadataReader = (*LocalStore)(nil)
)

// NewLocalStore opens or creates a local content store rooted at dir.
func NewLocalStore(dir string, logger *events.Logger) (*LocalStore, error) {
	blobs, err := storage.NewLocalStore(dir, logger)
	if err != nil {
		return nil, &models.StoreError{Kind: models.StoreErrInvalid, Op: "open", Err: err}
	}
	blobs.SetConflictStrategy(storage.ConflictOverwrite)
	blobs.SetMaxFileSize(MaxBlobSize)

	return &LocalStore{
		blobs:  blobs,
		logger: logger.WithField("component", "content_local"),
	}, nil
}

// Dir returns the store root.
func (s *LocalStore) Dir() string {
	return s.blobs.BaseDir()
}

// Put writes payload under its CID. Writing an existing CID is a no-op for
// the blob and refreshes the sidecar.
func (s *LocalStore) Put(ctx context.Context, payload []byte, meta Metadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &models.StoreError{Kind: models.StoreErrNetwork, Op: "put", Err: err}
	}
	if len(payload) == 0 {
		return "", &models.StoreError{Kind: models.StoreErrInvalid, Op: "put", Err: models.ErrEmptyPayload}
	}

	id, err := ComputeCID(payload)
	if err != nil {
		return "", &models.StoreError{Kind: models.StoreErrInvalid, Op: "put", Err: err}
	}

	blobPath := s.blobPath(id)
	exists, err := s.blobs.Exists(blobPath)
	if err != nil {
		return "", &models.StoreError{Kind: models.StoreErrInvalid, Op: "put", CID: id, Err: err}
	}

	if !exists {
		if err := s.blobs.Write(blobPath, payload, 0600); err != nil {
			return "", s.wrap("put", id, err)
		}
	}

	if meta.Size == 0 {
		meta.Size = int64(len(payload))
	}
	sidecar, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", &models.StoreError{Kind: models.StoreErrInvalid, Op: "put", CID: id, Err: err}
	}
	if err := s.blobs.Write(blobPath+metaSuffix, sidecar, 0600); err != nil {
		return "", s.wrap("put", id, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"cid":     id,
		"size":    len(payload),
		"deduped": exists,
	}).Debug("Stored blob")

	return id, nil
}

// Get reads and verifies the blob for id.
func (s *LocalStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &models.StoreError{Kind: models.StoreErrNetwork, Op: "get", CID: id, Err: err}
	}
	if _, err := ParseCID(id); err != nil {
		return nil, err
	}

	data, err := s.blobs.Read(s.blobPath(id))
	if err != nil {
		return nil, s.wrap("get", id, err)
	}

	if err := VerifyCID(id, data); err != nil {
		s.logger.WithField("cid", id).Error("Blob failed verification")
		return nil, err
	}
	return data, nil
}

// Exists reports whether id is stored.
func (s *LocalStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &models.StoreError{Kind: models.StoreErrNetwork, Op: "exists", CID: id, Err: err}
	}
	if _, err := ParseCID(id); err != nil {
		return false, err
	}

	ok, err := s.blobs.Exists(s.blobPath(id))
	if err != nil {
		return false, s.wrap("exists", id, err)
	}
	return ok, nil
}

// Unpin deletes the blob and its sidecar.
func (s *LocalStore) Unpin(ctx context.Context, id string) error {
	ok, err := s.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return &models.StoreError{Kind: models.StoreErrNotFound, Op: "unpin", CID: id, Err: storage.ErrNotFound}
	}

	blobPath := s.blobPath(id)
	if err := s.blobs.Delete(blobPath + metaSuffix); err != nil {
		return s.wrap("unpin", id, err)
	}
	if err := s.blobs.Delete(blobPath); err != nil {
		return s.wrap("unpin", id, err)
	}

	s.logger.WithField("cid", id).Debug("Unpinned blob")
	return nil
}

// Metadata returns the sidecar recorded for id.
func (s *LocalStore) Metadata(ctx context.Context, id string) (Metadata, error) {
	var meta Metadata
	if err := ctx.Err(); err != nil {
		return meta, &models.StoreError{Kind: models.StoreErrNetwork, Op: "metadata", CID: id, Err: err}
	}
	if _, err := ParseCID(id); err != nil {
		return meta, err
	}

	data, err := s.blobs.Read(s.blobPath(id) + metaSuffix)
	if err != nil {
		return meta, s.wrap("metadata", id, err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, &models.StoreError{Kind: models.StoreErrInvalid, Op: "metadata", CID: id, Err: err}
	}
	return meta, nil
}

func (s *LocalStore) blobPath(id string) string {
	shard := "__"
	if len(id) >= 2 {
		shard = id[len(id)-2:]
	}
	return path.Join(shard, id)
}

func (s *LocalStore) wrap(op, id string, err error) error {
	kind := models.StoreErrInvalid
	switch {
	case errors.Is(err, storage.ErrNotFound):
		kind = models.StoreErrNotFound
	case errors.Is(err, models.ErrFileTooLarge):
		kind = models.StoreErrQuota
	}
	return &models.StoreError{Kind: kind, Op: op, CID: id, Err: fmt.Errorf("local: %w", err)}
}
