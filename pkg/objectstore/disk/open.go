package disk

import (
	"context"
	"io"
	"os"

	"coffrefort/pkg/log"
	"coffrefort/pkg/objectstore"
)

// Open returns a reader over the object stored under name.
func (s *Store) Open(_ context.Context, name string) (io.ReadCloser, error) {
	targetPath := s.objectPath(name)
	if targetPath == "" {
		return nil, objectstore.InvalidNameError{Name: name}
	}

	//nolint:gosec // targetPath is built from a validated flat name
	file, err := os.Open(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("name", name).Msg("Object not found")
			return nil, objectstore.ObjectNotFoundError{Name: name}
		}
		log.Error().Err(err).Str("target_path", targetPath).Msg("Failed to open object")
		return nil, err
	}
	return file, nil
}
