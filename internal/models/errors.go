package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeEncryption = "ENCRYPTION_ERROR"
	ErrCodeDecryption = "DECRYPTION_ERROR"
	ErrCodeStorage    = "STORAGE_ERROR"
	ErrCodeRegistry   = "REGISTRY_ERROR"
	ErrCodeIntegrity  = "INTEGRITY_ERROR"
	ErrCodeNetwork    = "NETWORK_ERROR"
	ErrCodeConfig     = "CONFIG_ERROR"
	ErrCodeIdentity   = "IDENTITY_ERROR"
	ErrCodeUnknown    = "UNKNOWN_ERROR"
)

// Sentinel errors
var (
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrNotConnected    = errors.New("no wallet connected")
	ErrRecordNotFound  = errors.New("file record not found")
	ErrEmptyPayload    = errors.New("empty payload")
	ErrFileTooLarge    = errors.New("file too large")
	ErrMissingName     = errors.New("file name is required")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

// EncryptError reports malformed input to the codec. It is never retryable.
type EncryptError struct {
	Name   string
	Reason string
	Err    error
}

func (e *EncryptError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("encrypt %s: %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("encrypt: %s: %v", e.Reason, e.Err)
}

func (e *EncryptError) Unwrap() error {
	return e.Err
}

// DecryptError represents a decryption failure: wrong key, truncated or
// tampered ciphertext.
type DecryptError struct {
	Name   string
	Reason string
	Err    error
}

func (e *DecryptError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("decrypt %s: %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("decrypt: %s: %v", e.Reason, e.Err)
}

func (e *DecryptError) Unwrap() error {
	return e.Err
}

// StoreErrorKind classifies content store failures.
type StoreErrorKind string

const (
	StoreErrNetwork  StoreErrorKind = "network"
	StoreErrNotFound StoreErrorKind = "not_found"
	StoreErrAuth     StoreErrorKind = "auth"
	StoreErrQuota    StoreErrorKind = "quota"
	StoreErrInvalid  StoreErrorKind = "invalid"
)

// StoreError is a content store failure.
type StoreError struct {
	Kind StoreErrorKind
	Op   string
	CID  string
	Err  error
}

func (e *StoreError) Error() string {
	if e.CID != "" {
		return fmt.Sprintf("content store %s [%s]: %s: %v", e.Op, e.Kind, e.CID, e.Err)
	}
	return fmt.Sprintf("content store %s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the operation may succeed.
func (e *StoreError) Transient() bool {
	return e.Kind == StoreErrNetwork
}

// IsTransient reports whether err is a retryable content store failure.
func IsTransient(err error) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Transient()
	}
	return false
}

// IsNotFound reports whether err means the content or record is absent.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrRecordNotFound) {
		return true
	}
	var storeErr *StoreError
	return errors.As(err, &storeErr) && storeErr.Kind == StoreErrNotFound
}

// RegistryError is a local persistence failure. The registry guarantees the
// in-memory and persisted views were left unchanged when one is returned.
type RegistryError struct {
	Op       string
	Identity string
	Err      error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry %s for %s: %v", e.Op, e.Identity, e.Err)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// IntegrityError represents a checksum or size mismatch after decryption.
type IntegrityError struct {
	Name     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: expected %s, got %s",
		e.Name, e.Expected, e.Actual)
}

// Code maps an error to its display code.
func Code(err error) string {
	if err == nil {
		return ""
	}

	var (
		encErr       *EncryptError
		decErr       *DecryptError
		storeErr     *StoreError
		registryErr  *RegistryError
		integrityErr *IntegrityError
	)

	switch {
	case errors.As(err, &integrityErr):
		return ErrCodeIntegrity
	case errors.As(err, &decErr):
		return ErrCodeDecryption
	case errors.As(err, &encErr):
		return ErrCodeEncryption
	case errors.As(err, &storeErr):
		if storeErr.Transient() {
			return ErrCodeNetwork
		}
		return ErrCodeStorage
	case errors.As(err, &registryErr):
		return ErrCodeRegistry
	case errors.Is(err, ErrInvalidIdentity), errors.Is(err, ErrNotConnected):
		return ErrCodeIdentity
	case errors.Is(err, ErrInvalidConfig):
		return ErrCodeConfig
	default:
		return ErrCodeUnknown
	}
}
