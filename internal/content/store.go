package content

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout bounds a single remote store call.
const DefaultTimeout = 30 * time.Second

// Metadata describes a payload at put time. Stores may persist it alongside
// the content but never interpret it.
type Metadata struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size"`
	Owner    string `json:"owner,omitempty"`
}

// Store is a content-addressed blob store. Every failure is returned as a
// *models.StoreError.
type Store interface {
	// Put stores payload and returns its content identifier.
	Put(ctx context.Context, payload []byte, meta Metadata) (string, error)

	// Get fetches the payload stored under cid.
	Get(ctx context.Context, cid string) ([]byte, error)

	// Exists reports whether cid is stored.
	Exists(ctx context.Context, cid string) (bool, error)

	// Unpin releases cid. Unpinning an absent cid is a not_found error.
	Unpin(ctx context.Context, cid string) error
}

// ErrNoMetadata is returned for stores that keep no put-time metadata.
var ErrNoMetadata = errors.New("store keeps no metadata")

// MetadataReader is implemented by stores that persist Metadata next to the
// payload.
type MetadataReader interface {
	Metadata(ctx context.Context, cid string) (Metadata, error)
}

// ReadMetadata returns the metadata store kept for cid, or ErrNoMetadata.
func ReadMetadata(ctx context.Context, store Store, cid string) (Metadata, error) {
	reader, ok := store.(MetadataReader)
	if !ok {
		return Metadata{}, ErrNoMetadata
	}
	return reader.Metadata(ctx, cid)
}

// withTimeout applies d to ctx unless ctx already has an earlier deadline.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < d {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
