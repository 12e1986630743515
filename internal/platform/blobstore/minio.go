package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const hashMetaKey = "Sha256"

// MinIOStore stores blobs in an S3 compatible bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore connects to endpoint (host:port) and makes sure the bucket
// exists.
func NewMinIOStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinIOStore, error) {
	c, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := c.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := c.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return &MinIOStore{client: c, bucket: bucket}, nil
}

func (s *MinIOStore) Put(ctx context.Context, key, contentType string, content io.Reader) (*Object, error) {
	data, obj, err := prepare(key, contentType, content)
	if err != nil {
		return nil, err
	}
	_, err = s.client.PutObject(ctx, s.bucket, obj.Key, bytes.NewReader(data), obj.Size, minio.PutObjectOptions{
		ContentType:  obj.ContentType,
		UserMetadata: map[string]string{hashMetaKey: obj.Hash},
	})
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", obj.Key, err)
	}
	return obj, nil
}

func (s *MinIOStore) Get(ctx context.Context, key string) (io.ReadCloser, *Object, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("stat %s: %w", key, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("get %s: %w", key, err)
	}

	hash := info.UserMetadata[hashMetaKey]
	if hash == "" {
		hash = info.UserMetadata["X-Amz-Meta-"+hashMetaKey]
	}
	return obj, &Object{
		Key:         key,
		ContentType: info.ContentType,
		Size:        info.Size,
		Hash:        hash,
		StoredAt:    info.LastModified.UTC(),
	}, nil
}

func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("stat %s: %w", key, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
