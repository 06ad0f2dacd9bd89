// Package disk stores objects as plain files in one local directory.
package disk

import (
	"os"
	"path/filepath"

	"coffrefort/pkg/log"
	"coffrefort/pkg/objectstore"
)

const (
	dirPerm    = 0750
	filePerm   = 0640
	tempSubdir = ".tmp"
)

// Store implements objectstore.Store on the local filesystem.
// Objects are written to a temp file first and renamed into place.
type Store struct {
	dir     string
	tempDir string
}

var _ objectstore.Store = (*Store)(nil)

// New creates a store rooted at dir. Directories are created on demand;
// a failure here is only logged and resurfaces on the first write.
func New(dir string) *Store {
	store := &Store{
		dir:     dir,
		tempDir: filepath.Join(dir, tempSubdir),
	}

	if err := os.MkdirAll(store.tempDir, dirPerm); err != nil {
		log.Warn().Err(err).Str("upload_dir", dir).Msg("Failed to create upload directory")
	}
	return store
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// objectPath returns the on-disk path of name, or "" for invalid names.
func (s *Store) objectPath(name string) string {
	if !objectstore.ValidateName(name) {
		return ""
	}
	return filepath.Join(s.dir, name)
}
