package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/TheMichaelB/blockbox/internal/models"
)

const (
	// Key sizes
	KeySize   = 32 // AES-256
	NonceSize = 12 // GCM standard
	TagSize   = 16 // GCM tag

	// HKDF parameters for identity keys. Changing either string orphans every
	// file encrypted under the old derivation.
	IdentitySalt = "blockbox-identity-v1"
	IdentityInfo = "blockbox-file-encryption"
)

// Errors
var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	ErrInvalidKey        = errors.New("invalid key size")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrInvalidArmor      = errors.New("invalid armored payload")
)

// CryptoProvider handles all cryptographic operations.
type CryptoProvider struct{}

// NewProvider creates a crypto provider.
func NewProvider() Provider {
	return &CryptoProvider{}
}

// EncryptionInfo describes the cipher suite.
type EncryptionInfo struct {
	Algorithm string `json:"algorithm"`
	KeySize   int    `json:"key_size"`
	Mode      string `json:"mode"`
	NonceSize int    `json:"nonce_size"`
	TagSize   int    `json:"tag_size"`
}

// Info returns the cipher suite parameters.
func Info() EncryptionInfo {
	return EncryptionInfo{
		Algorithm: models.AlgorithmAESGCM,
		KeySize:   KeySize * 8,
		Mode:      "GCM",
		NonceSize: NonceSize,
		TagSize:   TagSize,
	}
}

// DeriveKey derives the file key for a wallet identity. The result depends on
// the normalized identity alone, so the same wallet reproduces the same key in
// every session and the key never has to be persisted.
func (p *CryptoProvider) DeriveKey(identity string) ([]byte, error) {
	normalized, err := models.NormalizeIdentity(identity)
	if err != nil {
		return nil, err
	}

	reader := hkdf.New(sha256.New, []byte(normalized), []byte(IdentitySalt), []byte(IdentityInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return key, nil
}

// GenerateKey returns a random 256-bit key.
func (p *CryptoProvider) GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// EncryptData encrypts plaintext using AES-GCM.
func (p *CryptoProvider) EncryptData(plaintext, key []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, &models.EncryptError{Reason: "empty plaintext", Err: models.ErrEmptyPayload}
	}

	ciphertext, err := seal(plaintext, key)
	if err != nil {
		return nil, &models.EncryptError{Reason: "seal", Err: err}
	}
	return ciphertext, nil
}

// DecryptData decrypts ciphertext using AES-GCM.
func (p *CryptoProvider) DecryptData(ciphertext, key []byte) ([]byte, error) {
	plaintext, err := open(ciphertext, key)
	if err != nil {
		return nil, &models.DecryptError{Reason: decryptReason(err), Err: err}
	}
	return plaintext, nil
}

func decryptReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidKey):
		return "bad key"
	case errors.Is(err, ErrInvalidCiphertext):
		return "truncated ciphertext"
	case errors.Is(err, ErrDecryptionFailed):
		return "wrong key or corrupted data"
	default:
		return "cipher setup"
	}
}
