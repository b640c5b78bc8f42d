package storage_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"inventory/internal/storage"
	"inventory/internal/testutil"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockS3 struct {
	mock.Mock
	uploaded []byte
}

func (m *MockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(params.Body)
	m.uploaded = body
	args := m.Called(aws.ToString(params.Bucket), aws.ToString(params.Key), aws.ToString(params.ContentType))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *MockS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(aws.ToString(params.Bucket), aws.ToString(params.Key))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.DeleteObjectOutput), args.Error(1)
}

func newS3Store(client storage.S3API) *storage.S3Store {
	return storage.NewS3Store(client, storage.S3Config{
		Bucket:        "inventory-images",
		Region:        "eu-west-1",
		PublicBaseURL: "https://cdn.example.com/",
		Prefix:        "products/",
	})
}

func TestS3Store_Save(t *testing.T) {
	client := new(MockS3)
	store := newS3Store(client)

	client.On("PutObject", "inventory-images", mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "products/") && strings.HasSuffix(key, ".gif")
	}), "image/gif").Return(&s3.PutObjectOutput{}, nil).Once()

	ref, err := store.Save(context.Background(), testutil.FileHeader(t, "anim.gif", "image/gif", []byte("gif!")))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "https://cdn.example.com/products/"), ref)
	assert.Equal(t, "gif!", string(client.uploaded))
	client.AssertExpectations(t)
}

func TestS3Store_SaveFailure(t *testing.T) {
	client := new(MockS3)
	store := newS3Store(client)
	client.On("PutObject", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("access denied")).Once()

	_, err := store.Save(context.Background(), testutil.FileHeader(t, "a.png", "image/png", []byte("x")))
	assert.ErrorContains(t, err, "access denied")
}

func TestS3Store_Remove(t *testing.T) {
	client := new(MockS3)
	store := newS3Store(client)
	client.On("DeleteObject", "inventory-images", "products/abc.png").Return(&s3.DeleteObjectOutput{}, nil).Once()

	require.NoError(t, store.Remove(context.Background(), "https://cdn.example.com/products/abc.png"))
	// not ours: no call expected
	require.NoError(t, store.Remove(context.Background(), "/uploads/abc.png"))
	client.AssertExpectations(t)
}

func TestS3Store_DefaultPublicURL(t *testing.T) {
	client := new(MockS3)
	store := storage.NewS3Store(client, storage.S3Config{Bucket: "b", Region: "us-east-1", Prefix: "p/"})
	client.On("PutObject", "b", mock.Anything, "image/png").Return(&s3.PutObjectOutput{}, nil).Once()

	ref, err := store.Save(context.Background(), testutil.FileHeader(t, "a.png", "image/png", []byte("x")))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "https://b.s3.us-east-1.amazonaws.com/p/"), ref)
}
