package crypto

import (
	"fmt"
	"strings"

	"github.com/TheMichaelB/blockbox/internal/models"
)

// EncryptFile encrypts a file's raw bytes. The ciphertext carries no
// metadata, so name, size, MIME type and checksum travel alongside it.
func (p *CryptoProvider) EncryptFile(file *models.File, key []byte) (*models.EncryptedFile, error) {
	if file == nil {
		return nil, &models.EncryptError{Reason: "no file", Err: models.ErrEmptyPayload}
	}
	if strings.TrimSpace(file.Name) == "" {
		return nil, &models.EncryptError{Reason: "missing file name", Err: models.ErrMissingName}
	}

	ciphertext, err := p.EncryptData(file.Data, key)
	if err != nil {
		if encErr, ok := err.(*models.EncryptError); ok {
			encErr.Name = file.Name
		}
		return nil, err
	}

	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = models.DetectMimeType(file.Name, file.Data)
	}

	return &models.EncryptedFile{
		Ciphertext: ciphertext,
		Name:       file.Name,
		Size:       file.Size(),
		MimeType:   mimeType,
		Checksum:   ContentHash(file.Data),
		Algorithm:  models.AlgorithmAESGCM,
	}, nil
}

// DecryptFile decrypts a file payload and reattaches the caller's metadata.
func (p *CryptoProvider) DecryptFile(ciphertext, key []byte, name, mimeType string) (*models.DecryptedFile, error) {
	data, err := p.DecryptData(ciphertext, key)
	if err != nil {
		if decErr, ok := err.(*models.DecryptError); ok {
			decErr.Name = name
		}
		return nil, err
	}

	if mimeType == "" {
		mimeType = models.DefaultMimeType
	}

	return &models.DecryptedFile{
		Data:     data,
		Name:     name,
		MimeType: mimeType,
	}, nil
}

// VerifyFile checks a decrypted file against its record.
func VerifyFile(file *models.DecryptedFile, record *models.FileRecord) error {
	if int64(len(file.Data)) != record.Size {
		return &models.IntegrityError{
			Name:     record.Name,
			Expected: fmt.Sprintf("%d bytes", record.Size),
			Actual:   fmt.Sprintf("%d bytes", len(file.Data)),
		}
	}
	if record.Checksum != "" && !VerifyIntegrity(file.Data, record.Checksum) {
		return &models.IntegrityError{
			Name:     record.Name,
			Expected: record.Checksum,
			Actual:   ContentHash(file.Data),
		}
	}
	return nil
}
