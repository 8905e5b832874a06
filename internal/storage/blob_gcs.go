package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSBlobStore keeps blobs as objects in a Cloud Storage bucket.
type GCSBlobStore struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	prefix string
}

var _ BlobStore = (*GCSBlobStore)(nil)

// NewGCSBlobStore uses application default credentials.
func NewGCSBlobStore(ctx context.Context, bucket, prefix string) (*GCSBlobStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}
	return &GCSBlobStore{
		client: client,
		bucket: client.Bucket(bucket),
		prefix: prefix,
	}, nil
}

func (s *GCSBlobStore) Backend() string { return "gcs" }

func (s *GCSBlobStore) object(name string) *gcs.ObjectHandle {
	if s.prefix != "" {
		name = path.Join(s.prefix, name)
	}
	return s.bucket.Object(name)
}

// Put only creates; an existing object with the same name is left as is.
func (s *GCSBlobStore) Put(ctx context.Context, name string, data []byte) error {
	w := s.object(name).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write %s to gcs: %w", name, err)
	}

	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return nil
		}
		return fmt.Errorf("failed to finalize %s in gcs: %w", name, err)
	}
	return nil
}

func (s *GCSBlobStore) Get(ctx context.Context, name string) ([]byte, error) {
	r, err := s.object(name).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s in gcs: %w", name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from gcs: %w", name, err)
	}
	return data, nil
}

func (s *GCSBlobStore) Delete(ctx context.Context, name string) error {
	err := s.object(name).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return ErrBlobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s from gcs: %w", name, err)
	}
	return nil
}

// Close releases the gcs client.
func (s *GCSBlobStore) Close() error {
	return s.client.Close()
}
