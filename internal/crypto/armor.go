package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Armor encodes binary ciphertext for text transports. Always pair with
// Unarmor; no other text transcoding is byte-safe.
func Armor(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Unarmor decodes Armor output.
func Unarmor(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArmor, err)
	}
	return data, nil
}

// ContentHash returns the hex SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity compares data against a ContentHash value.
func VerifyIntegrity(data []byte, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(ContentHash(data)), []byte(hash)) == 1
}

// KeyFingerprint identifies a key without revealing it.
func KeyFingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}
