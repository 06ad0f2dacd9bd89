package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/suite"

	"coffrefort/pkg/objectstore"
)

// fakeAPI is an in-memory bucket.
type fakeAPI struct {
	mu       sync.Mutex
	objects  map[string][]byte
	metadata map[string]map[string]string
	headErr  error
	lengths  []int64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		objects:  make(map[string][]byte),
		metadata: make(map[string]map[string]string),
	}
}

func (f *fakeAPI) PutObject(_ context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.metadata[aws.ToString(in.Key)] = in.Metadata
	f.lengths = append(f.lengths, aws.ToInt64(in.ContentLength))
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeAPI) DeleteObject(_ context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeAPI) HeadObject(_ context.Context, in *awss3.HeadObjectInput, _ ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &awss3.HeadObjectOutput{}, nil
}

type S3StoreTestSuite struct {
	suite.Suite
	api   *fakeAPI
	store *Store
	ctx   context.Context
}

func (s *S3StoreTestSuite) SetupTest() {
	s.api = newFakeAPI()
	s.store = NewWithClient(s.api, "vault")
	s.ctx = context.Background()
}

func (s *S3StoreTestSuite) TestPutOpenRoundTrip() {
	content := []byte("\x89PNG fake image bytes")
	sum := sha256.Sum256(content)

	result, err := s.store.Put(s.ctx, "f_1_img.png", bytes.NewReader(content))
	s.Require().NoError(err)
	s.Equal(int64(len(content)), result.Size)
	s.Equal(hex.EncodeToString(sum[:]), result.SHA256)
	s.Equal([]int64{int64(len(content))}, s.api.lengths)
	s.Equal(result.SHA256, s.api.metadata["f_1_img.png"][checksumMetadataKey])

	body, err := s.store.Open(s.ctx, "f_1_img.png")
	s.Require().NoError(err)
	defer body.Close()
	data, err := io.ReadAll(body)
	s.Require().NoError(err)
	s.Equal(content, data)
}

func (s *S3StoreTestSuite) TestPutExisting() {
	_, err := s.store.Put(s.ctx, "dup.pdf", strings.NewReader("a"))
	s.Require().NoError(err)

	_, err = s.store.Put(s.ctx, "dup.pdf", strings.NewReader("b"))
	var existsErr objectstore.ObjectExistsError
	s.True(errors.As(err, &existsErr))
}

func (s *S3StoreTestSuite) TestMissingObject() {
	_, err := s.store.Open(s.ctx, "missing.pdf")
	var notFoundErr objectstore.ObjectNotFoundError
	s.True(errors.As(err, &notFoundErr))

	s.True(errors.As(s.store.Delete(s.ctx, "missing.pdf"), &notFoundErr))

	exists, err := s.store.Exists(s.ctx, "missing.pdf")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *S3StoreTestSuite) TestDelete() {
	_, err := s.store.Put(s.ctx, "gone.pdf", strings.NewReader("bytes"))
	s.Require().NoError(err)

	s.NoError(s.store.Delete(s.ctx, "gone.pdf"))

	exists, err := s.store.Exists(s.ctx, "gone.pdf")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *S3StoreTestSuite) TestInvalidName() {
	_, err := s.store.Put(s.ctx, "../x", strings.NewReader("x"))
	var invalidErr objectstore.InvalidNameError
	s.True(errors.As(err, &invalidErr))
	s.Empty(s.api.objects)
}

func (s *S3StoreTestSuite) TestHeadFailurePropagates() {
	s.api.headErr = &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}

	_, err := s.store.Put(s.ctx, "x.pdf", strings.NewReader("x"))
	var apiErr smithy.APIError
	s.Require().True(errors.As(err, &apiErr))
	s.Equal("AccessDenied", apiErr.ErrorCode())
}

func (s *S3StoreTestSuite) TestGenericNotFoundCode() {
	s.api.headErr = &smithy.GenericAPIError{Code: "NotFound"}

	exists, err := s.store.Exists(s.ctx, "x.pdf")
	s.NoError(err)
	s.False(exists)
}

func (s *S3StoreTestSuite) TestNewRequiresBucket() {
	_, err := New(s.ctx, Config{Region: "us-east-1"})
	s.ErrorIs(err, ErrBucketRequired)
}

func (s *S3StoreTestSuite) TestNewBuildsClient() {
	store, err := New(s.ctx, Config{
		Bucket:       "vault",
		Region:       "us-east-1",
		Endpoint:     "http://localhost:9000",
		AccessKey:    "minio",
		SecretKey:    "minio123",
		UsePathStyle: true,
	})
	s.Require().NoError(err)
	s.Equal("vault", store.Bucket())
}

func TestS3StoreTestSuite(t *testing.T) {
	suite.Run(t, new(S3StoreTestSuite))
}
