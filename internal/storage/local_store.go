package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
)

// DefaultMaxFileSize bounds a single Save unless overridden.
const DefaultMaxFileSize = 100 << 20

// LocalStore is a BlobStore on the local filesystem. Writes go to a temp
// file in the target directory and are renamed into place.
type LocalStore struct {
	root     string
	conflict ConflictStrategy
	maxSize  int64
	logger   *events.Logger
}

var _ BlobStore = (*LocalStore)(nil)

// NewLocalStore roots a store at dir, creating it if needed.
func NewLocalStore(dir string, logger *events.Logger) (*LocalStore, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", dir, err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create root %s: %w", root, err)
	}

	return &LocalStore{
		root:     root,
		conflict: ConflictOverwrite,
		maxSize:  DefaultMaxFileSize,
		logger:   logger.WithField("component", "file_store"),
	}, nil
}

// SetConflictStrategy sets what Save does with an existing target.
func (s *LocalStore) SetConflictStrategy(strategy ConflictStrategy) {
	s.conflict = strategy
}

// SetMaxFileSize sets the largest payload Save accepts. Zero or less
// disables the limit.
func (s *LocalStore) SetMaxFileSize(size int64) {
	s.maxSize = size
}

// BaseDir returns the absolute root.
func (s *LocalStore) BaseDir() string {
	return s.root
}

// Write is Save without the written path.
func (s *LocalStore) Write(name string, data []byte, mode os.FileMode) error {
	_, err := s.Save(name, data, mode)
	return err
}

// Save implements BlobStore.
func (s *LocalStore) Save(name string, data []byte, mode os.FileMode) (string, error) {
	rel, err := s.clean(name)
	if err != nil {
		return "", err
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return "", fmt.Errorf("%w: %s is %d bytes (max %d)", models.ErrFileTooLarge, name, len(data), s.maxSize)
	}

	target := s.abs(rel)
	if _, err := os.Lstat(target); err == nil {
		switch s.conflict {
		case ConflictError:
			return "", fmt.Errorf("%w: %s", ErrExists, rel)
		case ConflictSkip:
			s.logger.WithField("path", rel).Debug("Target exists, skipping")
			return "", nil
		case ConflictRename:
			rel = s.freeName(rel)
			target = s.abs(rel)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("create parent of %s: %w", rel, err)
	}
	if err := writeAtomic(target, data, mode); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"path": rel,
		"size": len(data),
	}).Debug("File written")

	return rel, nil
}

// Read implements BlobStore. Symlinks are never followed.
func (s *LocalStore) Read(name string) ([]byte, error) {
	rel, err := s.clean(name)
	if err != nil {
		return nil, err
	}

	target := s.abs(rel)
	info, err := os.Lstat(target)
	if err != nil {
		return nil, s.statErr(rel, err)
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return nil, fmt.Errorf("%w: %s is a symlink", ErrInvalidPath, rel)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, s.statErr(rel, err)
	}
	return data, nil
}

// Delete implements BlobStore and prunes directories it leaves empty.
func (s *LocalStore) Delete(name string) error {
	rel, err := s.clean(name)
	if err != nil {
		return err
	}

	target := s.abs(rel)
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", rel, err)
	}

	for dir := filepath.Dir(target); dir != s.root; dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// Exists implements BlobStore.
func (s *LocalStore) Exists(name string) (bool, error) {
	rel, err := s.clean(name)
	if err != nil {
		return false, err
	}

	_, err = os.Lstat(s.abs(rel))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Stat implements BlobStore.
func (s *LocalStore) Stat(name string) (FileInfo, error) {
	rel, err := s.clean(name)
	if err != nil {
		return FileInfo{}, err
	}

	info, err := os.Lstat(s.abs(rel))
	if err != nil {
		return FileInfo{}, s.statErr(rel, err)
	}
	return fileInfo(rel, info), nil
}

// List implements BlobStore. An empty dir lists the whole tree.
func (s *LocalStore) List(dir string) ([]FileInfo, error) {
	base := s.root
	if dir != "" {
		rel, err := s.clean(dir)
		if err != nil {
			return nil, err
		}
		base = s.abs(rel)
	}

	var files []FileInfo
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || isTemp(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		files = append(files, fileInfo(filepath.ToSlash(rel), info))
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// SetModTime implements BlobStore.
func (s *LocalStore) SetModTime(name string, modTime time.Time) error {
	rel, err := s.clean(name)
	if err != nil {
		return err
	}
	if err := os.Chtimes(s.abs(rel), time.Now(), modTime); err != nil {
		return s.statErr(rel, err)
	}
	return nil
}

// clean turns a caller path into a slash separated path that stays inside
// the root. Leading slashes are dropped so "/a/b" means "a/b".
func (s *LocalStore) clean(name string) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: NUL byte in %q", ErrInvalidPath, name)
	}

	slashed := strings.ReplaceAll(name, `\`, "/")
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q escapes the store root", ErrInvalidPath, name)
		}
		if len(part) > 255 {
			return "", fmt.Errorf("%w: path element longer than 255 bytes", ErrInvalidPath)
		}
	}

	rel := path.Clean("/" + slashed)[1:]
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", fmt.Errorf("%w: %q is not a local path", ErrInvalidPath, name)
	}
	return rel, nil
}

func (s *LocalStore) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

func (s *LocalStore) statErr(rel string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	return fmt.Errorf("%s: %w", rel, err)
}

// freeName finds the first "name (n).ext" sibling of rel that is unused.
func (s *LocalStore) freeName(rel string) string {
	ext := path.Ext(rel)
	stem := strings.TrimSuffix(rel, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, err := os.Lstat(s.abs(candidate)); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
	}
}

const tempPattern = ".blockbox-*.tmp"

func isTemp(name string) bool {
	return strings.HasPrefix(name, ".blockbox-") && strings.HasSuffix(name, ".tmp")
}

func writeAtomic(target string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), tempPattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		return err
	}
	committed = true
	return nil
}

func fileInfo(rel string, info fs.FileInfo) FileInfo {
	return FileInfo{
		Path:      rel,
		Size:      info.Size(),
		Mode:      info.Mode(),
		ModTime:   info.ModTime(),
		IsDir:     info.IsDir(),
		IsSymlink: info.Mode()&fs.ModeSymlink != 0,
	}
}
