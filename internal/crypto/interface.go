package crypto

import "github.com/TheMichaelB/blockbox/internal/models"

// Provider defines the interface for cryptographic operations.
type Provider interface {
	// DeriveKey derives the file encryption key for a wallet identity.
	DeriveKey(identity string) ([]byte, error)

	// GenerateKey returns a fresh random key.
	GenerateKey() ([]byte, error)

	// EncryptData encrypts plaintext using AES-GCM.
	EncryptData(plaintext, key []byte) ([]byte, error)

	// DecryptData decrypts ciphertext using AES-GCM.
	DecryptData(ciphertext, key []byte) ([]byte, error)

	// EncryptFile encrypts a file, carrying its metadata out of band.
	EncryptFile(file *models.File, key []byte) (*models.EncryptedFile, error)

	// DecryptFile decrypts a file payload and reattaches its metadata.
	DecryptFile(ciphertext, key []byte, name, mimeType string) (*models.DecryptedFile, error)
}
