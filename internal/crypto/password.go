package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/TheMichaelB/blockbox/internal/models"
)

const (
	// PBKDF2 parameters for password-sealed payloads
	DefaultIterations = 100000
	SaltSize          = 32
)

// ErrEmptyPassword is returned when sealing or opening without a password.
var ErrEmptyPassword = errors.New("password is required")

// DeriveKeyFromPassword stretches a password into an AES key.
func DeriveKeyFromPassword(password string, salt []byte) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if len(salt) < SaltSize {
		return nil, fmt.Errorf("salt too short: %d bytes", len(salt))
	}
	return pbkdf2.Key([]byte(password), salt, DefaultIterations, KeySize, sha256.New), nil
}

// SealWithPassword encrypts data under a password.
// Returns: salt || nonce || ciphertext || tag
func SealWithPassword(data []byte, password string) ([]byte, error) {
	if len(data) == 0 {
		return nil, &models.EncryptError{Reason: "empty plaintext", Err: models.ErrEmptyPayload}
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key, err := DeriveKeyFromPassword(password, salt)
	if err != nil {
		return nil, &models.EncryptError{Reason: "derive key", Err: err}
	}

	sealed, err := seal(data, key)
	if err != nil {
		return nil, &models.EncryptError{Reason: "seal", Err: err}
	}

	return append(salt, sealed...), nil
}

// OpenWithPassword reverses SealWithPassword.
func OpenWithPassword(sealed []byte, password string) ([]byte, error) {
	if len(sealed) < SaltSize+NonceSize+TagSize {
		return nil, &models.DecryptError{Reason: "truncated ciphertext", Err: ErrInvalidCiphertext}
	}

	key, err := DeriveKeyFromPassword(password, sealed[:SaltSize])
	if err != nil {
		return nil, &models.DecryptError{Reason: "derive key", Err: err}
	}

	data, err := open(sealed[SaltSize:], key)
	if err != nil {
		return nil, &models.DecryptError{Reason: "wrong password or corrupted data", Err: err}
	}
	return data, nil
}
