package storage

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API
	objects  map[string][]byte
	modified map[string]time.Time
	deleted  []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, modified: map[string]time.Time{}}
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.StringValue(in.Key)
	f.objects[key] = body
	f.modified[key] = time.Now()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	body := f.objects[aws.StringValue(in.Key)]
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	key := aws.StringValue(in.Key)
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2PagesWithContext(_ aws.Context, _ *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	page := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		page.Contents = append(page.Contents, &s3.Object{Key: aws.String(key), LastModified: aws.Time(f.modified[key])})
	}
	fn(page, true)
	return nil
}

func TestS3StoragePrefixesKeys(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := NewS3StorageWithClient(client, "bucket", "/exports/")

	key, err := store.Save(ctx, "ledger/2024.xlsx", []byte("xlsx"), "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "ledger/2024.xlsx", key)
	assert.Contains(t, client.objects, "exports/ledger/2024.xlsx")

	rc, err := store.Open(ctx, key)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "xlsx", string(body))
}

func TestS3StorageCleanup(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := NewS3StorageWithClient(client, "bucket", "exports")

	_, err := store.Save(ctx, "old.csv", []byte("1"), "")
	require.NoError(t, err)
	_, err = store.Save(ctx, "fresh.csv", []byte("2"), "")
	require.NoError(t, err)
	client.modified["exports/old.csv"] = time.Now().Add(-72 * time.Hour)

	deleted, err := store.CleanupOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"old.csv"}, deleted)
	assert.Contains(t, client.objects, "exports/fresh.csv")
}
