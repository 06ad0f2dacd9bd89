package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"coffrefort/pkg/log"
	"coffrefort/pkg/objectstore"
)

// Delete removes the object. S3 deletes are idempotent, so existence is
// checked first to report ObjectNotFoundError like the disk backend.
func (s *Store) Delete(ctx context.Context, name string) error {
	if !objectstore.ValidateName(name) {
		return objectstore.InvalidNameError{Name: name}
	}

	exists, err := s.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return objectstore.ObjectNotFoundError{Name: name}
	}

	if _, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	}); err != nil {
		log.Error().Err(err).Str("bucket", s.bucket).Str("name", name).Msg("Failed to delete object")
		return err
	}
	return nil
}
