// Package blobstore provides the content area that holds uploaded image
// binaries. It defines the BlobStore interface and implementations backed by
// memory (tests and development), the local filesystem, MinIO/S3 and Google
// Cloud Storage.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrEmptyContent       = errors.New("file is empty")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrInvalidKey         = errors.New("invalid blob key")
)

// ---------------------------------------------------------------------------
// Validation constants
// ---------------------------------------------------------------------------

// MaxFileSize is the maximum allowed blob size in bytes (100 MB).
const MaxFileSize = 100 * 1024 * 1024

// AllowedContentTypes lists the image formats accepted by the classifier.
var AllowedContentTypes = map[string]bool{
	"image/png":         true,
	"image/jpeg":        true,
	"image/tiff":        true,
	"image/bmp":         true,
	"image/dicom":       true,
	"application/dicom": true,
}

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// Object describes a stored blob.
type Object struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash,omitempty"`
	StoredAt    time.Time `json:"stored_at"`
}

// BlobStore defines the contract for content-area backends. Writes to the
// same key replace the previous content; writes to distinct keys never
// interfere.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, content io.Reader) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *Object, error)
	Delete(ctx context.Context, key string) error
}

// PatientKey returns the storage key for filename inside the namespace of the
// given patient, e.g. "patients/12/healthy.png".
func PatientKey(patientID int64, filename string) (string, error) {
	name := BaseName(filename)
	if name == "" {
		return "", fmt.Errorf("%w: empty file name", ErrInvalidKey)
	}
	return CleanKey("patients/" + strconv.FormatInt(patientID, 10) + "/" + name)
}

// BaseName strips any directory component a client may have sent with the
// file name, including Windows style separators.
func BaseName(filename string) string {
	name := strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

// CleanKey validates a slash separated key and rejects anything that could
// escape the content area.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return key, nil
}

// ResolveContentType returns declared when it is specific, otherwise the type
// sniffed from the first bytes of data.
func ResolveContentType(declared string, data []byte) string {
	ct := strings.TrimSpace(strings.Split(declared, ";")[0])
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
		ct = strings.TrimSpace(strings.Split(ct, ";")[0])
	}
	return ct
}

// readContent reads content into memory so size and hash can be computed
// before the backend write.
func readContent(content io.Reader) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, "", ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyContent
	}
	h := sha256.Sum256(data)
	return data, fmt.Sprintf("%x", h), nil
}

// prepare validates key and content and returns the bytes to store together
// with the object description.
func prepare(key, contentType string, content io.Reader) ([]byte, *Object, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, nil, err
	}
	data, hash, err := readContent(content)
	if err != nil {
		return nil, nil, err
	}
	ct := ResolveContentType(contentType, data)
	if !AllowedContentTypes[ct] {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidContentType, ct)
	}
	return data, &Object{
		Key:         key,
		ContentType: ct,
		Size:        int64(len(data)),
		Hash:        hash,
		StoredAt:    time.Now().UTC(),
	}, nil
}

// ---------------------------------------------------------------------------
// Backend selection
// ---------------------------------------------------------------------------

// Options selects and configures a backend.
type Options struct {
	Backend string // fs, memory, minio, gcs
	Dir     string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	GCSBucket string
}

// Open returns the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (BlobStore, error) {
	switch opts.Backend {
	case "memory":
		return NewInMemoryBlobStore(), nil
	case "fs", "":
		return NewFSStore(opts.Dir)
	case "minio":
		return NewMinIOStore(ctx, opts.MinIOEndpoint, opts.MinIOAccessKey, opts.MinIOSecretKey, opts.MinIOBucket, opts.MinIOUseSSL)
	case "gcs":
		return NewGCSStore(ctx, opts.GCSBucket)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", opts.Backend)
	}
}

func nopCloserBytes(data []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(data))
}
