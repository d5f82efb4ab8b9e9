package models

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// RegistryKeyPrefix namespaces persisted registry partitions.
const RegistryKeyPrefix = "BlockBox_files_"

// NormalizeIdentity canonicalises a wallet address so that equal identities
// compare equal. Hex addresses are case-insensitive.
func NormalizeIdentity(address string) (string, error) {
	id := norm.NFKC.String(strings.TrimSpace(address))
	if id == "" {
		return "", ErrInvalidIdentity
	}
	if strings.ContainsAny(id, "/\\\x00") {
		return "", ErrInvalidIdentity
	}
	if strings.HasPrefix(id, "0x") || strings.HasPrefix(id, "0X") {
		id = "0x" + strings.ToLower(id[2:])
	}
	return id, nil
}

// RegistryKey returns the persistence key for an identity's partition.
func RegistryKey(identity string) string {
	return RegistryKeyPrefix + identity
}

// IdentityFromRegistryKey reverses RegistryKey.
func IdentityFromRegistryKey(key string) (string, bool) {
	if !strings.HasPrefix(key, RegistryKeyPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(key, RegistryKeyPrefix)
	return id, id != ""
}
