// Package storage wraps the managed object store that holds user uploads.
// Objects are named {userId}/{fileId}{ext}; retrieval is through signed URLs
// with a bounded lifetime, never through public objects.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type ObjectStore struct {
	client *storage.Client
	bucket string
	urlTTL time.Duration
}

func NewObjectStore(ctx context.Context, bucket, credentialsFile string, urlTTL time.Duration) (*ObjectStore, error) {
	if urlTTL <= 0 {
		urlTTL = 24 * time.Hour
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client failed: %w", err)
	}

	return &ObjectStore{
		client: client,
		bucket: bucket,
		urlTTL: urlTTL,
	}, nil
}

func (s *ObjectStore) Upload(ctx context.Context, objectName, contentType string, r io.Reader) error {
	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %s failed: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close object writer for %s failed: %w", objectName, err)
	}
	return nil
}

func (s *ObjectStore) SignedURL(objectName string) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(objectName, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.urlTTL),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("sign url for %s failed: %w", objectName, err)
	}
	return url, nil
}

func (s *ObjectStore) Download(ctx context.Context, objectName string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object %s failed: %w", objectName, err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s failed: %w", objectName, err)
	}
	return b, nil
}

func (s *ObjectStore) Delete(ctx context.Context, objectName string) error {
	if err := s.client.Bucket(s.bucket).Object(objectName).Delete(ctx); err != nil {
		return fmt.Errorf("delete object %s failed: %w", objectName, err)
	}
	return nil
}

func (s *ObjectStore) Close() error {
	return s.client.Close()
}
