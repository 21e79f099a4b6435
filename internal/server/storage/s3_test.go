package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3Client struct {
	putInputs    []*s3.PutObjectInput
	deleteInputs []*s3.DeleteObjectInput
	putErr       error
	deleteErr    error
	headErr      error
}

func (f *fakeS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putInputs = append(f.putInputs, params)
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleteInputs = append(f.deleteInputs, params)
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func TestS3Store_Put(t *testing.T) {
	t.Run("uploads with public-read ACL and content type", func(t *testing.T) {
		client := &fakeS3Client{}
		store := NewS3StoreWithClient(client, "stash-files", "https://cdn.example.com")

		err := store.Put(context.Background(), "aB3dE9xy.png", strings.NewReader("png bytes"), 9, "image/png")
		require.NoError(t, err)

		require.Len(t, client.putInputs, 1)
		in := client.putInputs[0]
		assert.Equal(t, "stash-files", aws.ToString(in.Bucket))
		assert.Equal(t, "aB3dE9xy.png", aws.ToString(in.Key))
		assert.Equal(t, "image/png", aws.ToString(in.ContentType))
		assert.Equal(t, types.ObjectCannedACLPublicRead, in.ACL)

		body, err := io.ReadAll(in.Body)
		require.NoError(t, err)
		assert.Equal(t, "png bytes", string(body))
	})

	t.Run("defaults content type", func(t *testing.T) {
		client := &fakeS3Client{}
		store := NewS3StoreWithClient(client, "stash-files", "https://cdn.example.com")

		err := store.Put(context.Background(), "blob.bin", strings.NewReader("x"), 1, "")
		require.NoError(t, err)
		assert.Equal(t, "application/octet-stream", aws.ToString(client.putInputs[0].ContentType))
	})

	t.Run("propagates write failures", func(t *testing.T) {
		client := &fakeS3Client{putErr: errors.New("access denied")}
		store := NewS3StoreWithClient(client, "stash-files", "https://cdn.example.com")

		err := store.Put(context.Background(), "x.txt", strings.NewReader("x"), 1, "text/plain")
		require.Error(t, err)
	})
}

func TestS3Store_Delete(t *testing.T) {
	client := &fakeS3Client{}
	store := NewS3StoreWithClient(client, "stash-files", "https://cdn.example.com")

	require.NoError(t, store.Delete(context.Background(), "aB3dE9xy.png"))
	require.Len(t, client.deleteInputs, 1)
	assert.Equal(t, "aB3dE9xy.png", aws.ToString(client.deleteInputs[0].Key))
}

func TestS3Store_URL(t *testing.T) {
	t.Run("explicit base URL", func(t *testing.T) {
		store := NewS3StoreWithClient(&fakeS3Client{}, "stash-files", "https://cdn.example.com")
		assert.Equal(t, "https://cdn.example.com/aB3dE9xy.png", store.URL("aB3dE9xy.png"))
	})

	t.Run("derived from endpoint", func(t *testing.T) {
		url := publicBaseURL(S3Config{
			Bucket:   "stash-files",
			Region:   "us-east-1",
			Endpoint: "https://minio.internal:9000",
		})
		assert.Equal(t, "https://minio.internal:9000/stash-files/", url)
	})

	t.Run("derived from region", func(t *testing.T) {
		url := publicBaseURL(S3Config{Bucket: "stash-files", Region: "eu-west-1"})
		assert.Equal(t, "https://stash-files.s3.eu-west-1.amazonaws.com/", url)
	})
}

func TestS3Store_Healthy(t *testing.T) {
	store := NewS3StoreWithClient(&fakeS3Client{headErr: errors.New("no such bucket")}, "stash-files", "https://cdn.example.com")
	assert.Error(t, store.Healthy(context.Background()))
}
