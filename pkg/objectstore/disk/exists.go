package disk

import (
	"context"
	"os"

	"coffrefort/pkg/objectstore"
)

// Exists reports whether a regular file is stored under name.
func (s *Store) Exists(_ context.Context, name string) (bool, error) {
	targetPath := s.objectPath(name)
	if targetPath == "" {
		return false, objectstore.InvalidNameError{Name: name}
	}

	info, err := os.Stat(targetPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
