package disk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"coffrefort/pkg/log"
	"coffrefort/pkg/objectstore"
)

// Put stores the reader's content under name.
func (s *Store) Put(ctx context.Context, name string, reader io.Reader) (*objectstore.PutResult, error) {
	targetPath := s.objectPath(name)
	if targetPath == "" {
		return nil, objectstore.InvalidNameError{Name: name}
	}

	if exists, err := s.Exists(ctx, name); err != nil {
		return nil, err
	} else if exists {
		return nil, objectstore.ObjectExistsError{Name: name}
	}

	if err := os.MkdirAll(s.tempDir, dirPerm); err != nil {
		log.Error().Err(err).Str("temp_dir", s.tempDir).Msg("Failed to create temporary directory")
		return nil, err
	}

	tempFile, err := os.CreateTemp(s.tempDir, "upload-*")
	if err != nil {
		log.Error().Err(err).Msg("Failed to create temporary file")
		return nil, err
	}
	tempPath := tempFile.Name()
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			log.Error().Err(err).Str("temp_file", tempPath).Msg("Failed to remove temporary file")
		}
	}()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(hasher, tempFile), &contextReader{ctx: ctx, reader: reader})
	if err != nil {
		_ = tempFile.Close()
		log.Error().Err(err).Str("name", name).Msg("Failed to write object")
		return nil, err
	}

	if err := tempFile.Chmod(filePerm); err != nil {
		log.Warn().Err(err).Str("temp_file", tempPath).Msg("Failed to set object permissions")
	}

	if err := tempFile.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close temporary file")
		return nil, err
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		log.Error().Err(err).Str("target_path", targetPath).Msg("Failed to move object into place")
		return nil, err
	}
	committed = true

	checksum := hex.EncodeToString(hasher.Sum(nil))
	log.Debug().Str("name", name).Int64("size", size).Str("sha256", checksum).Msg("Object stored")
	return &objectstore.PutResult{Size: size, SHA256: checksum}, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.reader.Read(p)
}
