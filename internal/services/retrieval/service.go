// Package retrieval fetches, decrypts and verifies stored files.
package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TheMichaelB/blockbox/internal/content"
	"github.com/TheMichaelB/blockbox/internal/crypto"
	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
	"github.com/TheMichaelB/blockbox/internal/storage"
)

// ExportMode is the permission applied to exported files.
const ExportMode os.FileMode = 0600

// Service reverses the upload path for a single record.
type Service struct {
	crypto crypto.Provider
	store  content.Store
	logger *events.Logger
}

// NewService creates a retrieval service.
func NewService(provider crypto.Provider, store content.Store, logger *events.Logger) *Service {
	return &Service{
		crypto: provider,
		store:  store,
		logger: logger.WithField("service", "retrieval"),
	}
}

// Download returns the plaintext of record. The ciphertext comes from the
// record itself when it carries one, otherwise from the content store.
func (s *Service) Download(ctx context.Context, record *models.FileRecord, key []byte) (*models.DecryptedFile, error) {
	if record == nil {
		return nil, fmt.Errorf("download: %w", models.ErrRecordNotFound)
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"id":   record.ID,
		"name": record.Name,
		"cid":  record.CID,
	})

	ciphertext, err := s.fetch(ctx, record)
	if err != nil {
		log.WithError(err).Warn("Fetch failed")
		return nil, err
	}

	file, err := s.crypto.DecryptFile(ciphertext, key, record.Name, record.MimeType)
	if err != nil {
		log.WithError(err).Warn("Decrypt failed")
		return nil, err
	}

	if err := crypto.VerifyFile(file, record); err != nil {
		log.WithError(err).Error("Integrity check failed")
		return nil, err
	}

	log.WithField("size", len(file.Data)).Debug("File downloaded")
	return file, nil
}

func (s *Service) fetch(ctx context.Context, record *models.FileRecord) ([]byte, error) {
	if record.HasInlinePayload() {
		payload := make([]byte, len(record.Payload))
		copy(payload, record.Payload)
		return payload, nil
	}
	if record.CID == "" {
		return nil, &models.StoreError{
			Kind: models.StoreErrInvalid,
			Op:   "get",
			Err:  fmt.Errorf("record %s has no CID", record.ID),
		}
	}
	return s.store.Get(ctx, record.CID)
}

// Export downloads record and writes it to sink under its original name. It
// returns the path written, which differs from the name when the sink renames
// on conflict and is empty when the sink skips existing files.
func (s *Service) Export(ctx context.Context, record *models.FileRecord, key []byte, sink storage.BlobStore) (string, error) {
	file, err := s.Download(ctx, record, key)
	if err != nil {
		return "", err
	}

	name := filepath.Base(file.Name)
	written, err := sink.Save(name, file.Data, ExportMode)
	if err != nil {
		return "", fmt.Errorf("export %s: %w", name, err)
	}
	if written == "" {
		s.logger.WithContext(ctx).WithField("name", name).Info("Export skipped, file exists")
		return "", nil
	}

	if !record.CreatedAt.IsZero() {
		if err := sink.SetModTime(written, record.CreatedAt); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("path", written).Warn("Could not set modification time")
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"id":   record.ID,
		"path": written,
	}).Info("File exported")

	return written, nil
}
