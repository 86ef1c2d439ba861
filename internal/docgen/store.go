package docgen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// LocalStore writes documents under Root. References look like local://<key>.
type LocalStore struct {
	Root string
}

func (s LocalStore) Put(_ context.Context, key string, content []byte) (string, error) {
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	path := filepath.Join(s.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	return "local://" + key, nil
}

// GCSStore writes documents to a Cloud Storage bucket. References look like
// gs://<bucket>/<key>.
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(ctx context.Context, bucket, credentialsFile string) (*GCSStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("gcs bucket required")
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, content []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "text/markdown; charset=utf-8"
	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return "gs://" + s.bucket + "/" + key, nil
}

func (s *GCSStore) Close() error { return s.client.Close() }
