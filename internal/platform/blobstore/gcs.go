package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore stores blobs in a Google Cloud Storage bucket using application
// default credentials.
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Put(ctx context.Context, key, contentType string, content io.Reader) (*Object, error) {
	data, obj, err := prepare(key, contentType, content)
	if err != nil {
		return nil, err
	}

	w := s.client.Bucket(s.bucket).Object(obj.Key).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.Metadata = map[string]string{"sha256": obj.Hash}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("write %s: %w", obj.Key, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", obj.Key, err)
	}
	return obj, nil
}

func (s *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, *Object, error) {
	handle := s.client.Bucket(s.bucket).Object(key)
	attrs, err := handle.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("attrs %s: %w", key, err)
	}
	r, err := handle.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("read %s: %w", key, err)
	}
	return r, &Object{
		Key:         key,
		ContentType: attrs.ContentType,
		Size:        attrs.Size,
		Hash:        attrs.Metadata["sha256"],
		StoredAt:    attrs.Updated.UTC(),
	}, nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
