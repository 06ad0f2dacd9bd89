package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"coffrefort/pkg/objectstore"
)

func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	if !objectstore.ValidateName(name) {
		return false, objectstore.InvalidNameError{Name: name}
	}

	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
