package s3

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"coffrefort/pkg/log"
	"coffrefort/pkg/objectstore"
)

const checksumMetadataKey = "sha256"

// Put spools the content to a temp file to learn its size and checksum,
// then uploads it with a known content length.
func (s *Store) Put(ctx context.Context, name string, reader io.Reader) (*objectstore.PutResult, error) {
	if !objectstore.ValidateName(name) {
		return nil, objectstore.InvalidNameError{Name: name}
	}

	exists, err := s.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, objectstore.ObjectExistsError{Name: name}
	}

	spool, err := os.CreateTemp("", "coffrefort-s3-*")
	if err != nil {
		log.Error().Err(err).Msg("Failed to create spool file")
		return nil, err
	}
	defer func() {
		if err := spool.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close spool file")
		}
		if err := os.Remove(spool.Name()); err != nil {
			log.Warn().Err(err).Str("spool_file", spool.Name()).Msg("Failed to remove spool file")
		}
	}()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(hasher, spool), reader)
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("Failed to spool object")
		return nil, err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	checksum := hex.EncodeToString(hasher.Sum(nil))

	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(name),
		Body:          spool,
		ContentLength: aws.Int64(size),
		Metadata:      map[string]string{checksumMetadataKey: checksum},
	})
	if err != nil {
		log.Error().Err(err).Str("bucket", s.bucket).Str("name", name).Msg("Failed to upload object")
		return nil, err
	}

	log.Debug().Str("bucket", s.bucket).Str("name", name).Int64("size", size).Msg("Object stored")
	return &objectstore.PutResult{Size: size, SHA256: checksum}, nil
}
