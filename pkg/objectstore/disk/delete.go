package disk

import (
	"context"
	"os"

	"coffrefort/pkg/log"
	"coffrefort/pkg/objectstore"
)

// Delete removes the object stored under name.
func (s *Store) Delete(_ context.Context, name string) error {
	targetPath := s.objectPath(name)
	if targetPath == "" {
		return objectstore.InvalidNameError{Name: name}
	}

	if err := os.Remove(targetPath); err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("name", name).Msg("Object not found for delete")
			return objectstore.ObjectNotFoundError{Name: name}
		}
		log.Error().Err(err).Str("target_path", targetPath).Msg("Failed to delete object")
		return err
	}

	log.Info().Str("name", name).Msg("Object deleted")
	return nil
}
