// Package storage writes plain files under a single root directory. It backs
// the export sink for decrypted downloads and the blob tree of the local
// content store.
package storage

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Sentinel errors.
var (
	ErrNotFound    = errors.New("storage: file not found")
	ErrExists      = errors.New("storage: file already exists")
	ErrInvalidPath = errors.New("storage: invalid path")
)

// BlobStore is a rooted file tree. Paths are slash separated and relative to
// the root.
type BlobStore interface {
	// Save writes data atomically and reports the path actually written.
	// It differs from path under ConflictRename and is empty under
	// ConflictSkip.
	Save(path string, data []byte, mode os.FileMode) (string, error)

	Read(path string) ([]byte, error)

	// Delete removes a file. Deleting a missing file is not an error.
	Delete(path string) error

	Exists(path string) (bool, error)

	Stat(path string) (FileInfo, error)

	// List returns every regular file under dir, sorted by path.
	List(dir string) ([]FileInfo, error)

	SetModTime(path string, modTime time.Time) error
}

// FileInfo describes one stored file.
type FileInfo struct {
	Path      string
	Size      int64
	Mode      os.FileMode
	ModTime   time.Time
	IsDir     bool
	IsSymlink bool
}

// ConflictStrategy decides what Save does when the target already exists.
type ConflictStrategy int

const (
	ConflictOverwrite ConflictStrategy = iota
	ConflictRename                     // write "name (n).ext" instead
	ConflictError
	ConflictSkip
)

var conflictNames = map[string]ConflictStrategy{
	"":          ConflictOverwrite,
	"overwrite": ConflictOverwrite,
	"rename":    ConflictRename,
	"error":     ConflictError,
	"skip":      ConflictSkip,
}

// ParseConflictStrategy maps a flag value to a strategy.
func ParseConflictStrategy(s string) (ConflictStrategy, error) {
	strategy, ok := conflictNames[s]
	if !ok {
		return ConflictOverwrite, fmt.Errorf("unknown conflict strategy %q (want overwrite, rename, error or skip)", s)
	}
	return strategy, nil
}

func (c ConflictStrategy) String() string {
	switch c {
	case ConflictRename:
		return "rename"
	case ConflictError:
		return "error"
	case ConflictSkip:
		return "skip"
	default:
		return "overwrite"
	}
}
