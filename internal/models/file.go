package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AlgorithmAESGCM names the cipher recorded on encrypted records.
const AlgorithmAESGCM = "AES-256-GCM"

// File is a plaintext file handed to the upload path by the host.
type File struct {
	Name     string
	Data     []byte
	MimeType string
}

// Size returns the payload length in bytes.
func (f *File) Size() int64 {
	return int64(len(f.Data))
}

// EncryptedFile is the codec output: ciphertext plus the metadata that is not
// recoverable from it.
type EncryptedFile struct {
	Ciphertext []byte
	Name       string
	Size       int64
	MimeType   string
	Checksum   string
	Algorithm  string
}

// DecryptedFile is what the retrieval path hands to the export sink.
type DecryptedFile struct {
	Data     []byte
	Name     string
	MimeType string
}

// FileRecord is one entry of an identity's file registry.
type FileRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mime_type"`
	CID       string    `json:"cid"`
	Encrypted bool      `json:"encrypted"`
	CreatedAt time.Time `json:"created_at"`
	Owner     string    `json:"owner"`
	Checksum  string    `json:"checksum,omitempty"`
	Algorithm string    `json:"algorithm,omitempty"`

	// Payload holds the ciphertext inline when the uploader is configured to
	// keep it; otherwise the bytes live only in the content store.
	Payload []byte `json:"payload,omitempty"`
}

// NewRecordID returns a time-ordered unique record ID.
func NewRecordID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())
}

// HasInlinePayload reports whether the ciphertext is carried in the record.
func (r *FileRecord) HasInlinePayload() bool {
	return len(r.Payload) > 0
}

// Validate checks the record structure.
func (r *FileRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("record ID is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("record name is required")
	}
	if r.Size < 0 {
		return errors.New("record size cannot be negative")
	}
	if strings.TrimSpace(r.Owner) == "" {
		return errors.New("record owner is required")
	}
	if r.CID == "" && !r.HasInlinePayload() {
		return fmt.Errorf("record %s has neither a CID nor an inline payload", r.ID)
	}
	return nil
}

// Clone returns a deep copy.
func (r FileRecord) Clone() FileRecord {
	if r.Payload != nil {
		payload := make([]byte, len(r.Payload))
		copy(payload, r.Payload)
		r.Payload = payload
	}
	return r
}

// CloneRecords deep-copies a record list, preserving order.
func CloneRecords(records []FileRecord) []FileRecord {
	out := make([]FileRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
