package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStore keeps images as objects in a MinIO (or any S3-compatible) bucket.
type MinIOStore struct {
	mc     *minio.Client
	bucket string
}

// NewMinIOClient creates a MinIO client with static credentials.
func NewMinIOClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return mc, nil
}

// EnsureBucket creates bucketName if it does not exist.
func EnsureBucket(ctx context.Context, client *minio.Client, bucketName string) error {
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucketName, err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
		}
	}

	return nil
}

// NewMinIOStore creates a store over an existing bucket.
func NewMinIOStore(mc *minio.Client, bucket string) *MinIOStore {
	return &MinIOStore{mc: mc, bucket: bucket}
}

// Put uploads data and returns an s3://bucket/object reference.
func (s *MinIOStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	name := objectName(key, contentType)

	info, err := s.mc.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image %s: %w", key, err)
	}

	return s.ref(info.Key), nil
}

// Get downloads the image stored under key.
func (s *MinIOStore) Get(ctx context.Context, key string) ([]byte, error) {
	name, ok, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	obj, err := s.mc.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get image %s: %w", key, err)
	}
	defer func() {
		_ = obj.Close()
	}()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether an object is stored under key and returns its reference.
func (s *MinIOStore) Exists(ctx context.Context, key string) (string, bool, error) {
	name, ok, err := s.find(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	return s.ref(name), true, nil
}

// find lists objects with the key as prefix and returns the one that is key plus an image extension.
func (s *MinIOStore) find(ctx context.Context, key string) (string, bool, error) {
	// Cancelling stops the listing goroutine when we return early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.mc.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: key}) {
		if obj.Err != nil {
			return "", false, fmt.Errorf("failed to list images for %s: %w", key, obj.Err)
		}
		if strings.HasPrefix(obj.Key, key+".") && hasKnownExtension(obj.Key) {
			return obj.Key, true, nil
		}
	}
	return "", false, nil
}

func (s *MinIOStore) ref(name string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, name)
}
