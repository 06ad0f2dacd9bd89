package s3

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"coffrefort/pkg/objectstore"
)

// Open streams the object body. The caller closes it.
func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !objectstore.ValidateName(name) {
		return nil, objectstore.InvalidNameError{Name: name}
	}

	output, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, objectstore.ObjectNotFoundError{Name: name}
		}
		return nil, err
	}
	return output.Body, nil
}
