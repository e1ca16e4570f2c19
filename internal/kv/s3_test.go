package kv_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wfs-go/internal/kv"
)

// fakeS3 is an in-memory bucket speaking the S3 client API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(append([]byte{}, data...)))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

var errMultipart = errors.New("multipart uploads are not used for small values")

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errMultipart
}

func TestS3KV_Contract(t *testing.T) {
	runKVContract(t, kv.NewS3KVFromClient(newFakeS3(), "bucket", "wfs/"))
}

func TestS3KV_UsesPrefix(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := kv.NewS3KVFromClient(fake, "bucket", "tenant-a/")

	require.NoError(t, store.Set(ctx, "syncq/jobs", []byte("{}")))
	_, ok := fake.objects["tenant-a/syncq/jobs"]
	assert.True(t, ok)
}

func TestS3KV_PropagatesErrors(t *testing.T) {
	fake := newFakeS3()
	fake.getErr = errors.New("access denied")
	store := kv.NewS3KVFromClient(fake, "bucket", "")

	_, _, err := store.Get(context.Background(), "k")
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3KV_RequiresBucket(t *testing.T) {
	_, err := kv.NewS3KV(context.Background(), kv.S3Options{Region: "eu-west-1"})
	assert.Error(t, err)
}
