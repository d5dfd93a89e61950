package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	storage_go "github.com/supabase-community/storage-go"
)

// Storage defines the interface for object storage operations
type Storage interface {
	// Upload stores data under bucket/objectPath and returns its public URL
	Upload(ctx context.Context, bucket, objectPath string, data []byte, contentType string) (string, error)

	// Delete removes an object
	Delete(ctx context.Context, bucket, objectPath string) error
}

// ObjectPath builds a collision-free key below prefix that keeps the
// extension of filename.
func ObjectPath(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if prefix == "" {
		return uuid.NewString() + ext
	}
	return path.Join(prefix, uuid.NewString()+ext)
}

// SupabaseStorage implements Storage with Supabase Storage buckets.
type SupabaseStorage struct {
	client *storage_go.Client
	// the client keeps per-upload options in shared transport headers
	mu sync.Mutex
}

func NewSupabaseStorage(client *storage_go.Client) *SupabaseStorage {
	return &SupabaseStorage{client: client}
}

func (s *SupabaseStorage) Upload(ctx context.Context, bucket, objectPath string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	upsert := false
	opts := storage_go.FileOptions{ContentType: &contentType, Upsert: &upsert}

	s.mu.Lock()
	_, err := s.client.UploadFile(bucket, objectPath, bytes.NewReader(data), opts)
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("failed to upload %s/%s: %w", bucket, objectPath, err)
	}

	return s.client.GetPublicUrl(bucket, objectPath).SignedURL, nil
}

func (s *SupabaseStorage) Delete(ctx context.Context, bucket, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.client.RemoveFile(bucket, []string{objectPath}); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", bucket, objectPath, err)
	}
	return nil
}

// LocalStorage implements Storage interface using local filesystem. Objects
// are served by whatever exposes baseDir under baseURL.
type LocalStorage struct {
	baseDir string
	baseURL string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// resolve maps bucket/objectPath into baseDir, rejecting keys that escape it.
func (s *LocalStorage) resolve(bucket, objectPath string) (string, error) {
	full := filepath.Join(s.baseDir, bucket, filepath.FromSlash(objectPath))
	rel, err := filepath.Rel(s.baseDir, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid object path: must be within storage directory")
	}
	return full, nil
}

func (s *LocalStorage) Upload(ctx context.Context, bucket, objectPath string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := s.resolve(bucket, objectPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		os.Remove(full) // Clean up on error
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	u, err := url.JoinPath(s.baseURL, "files", bucket, objectPath)
	if err != nil {
		return "", fmt.Errorf("failed to build object URL: %w", err)
	}
	return u, nil
}

func (s *LocalStorage) Delete(ctx context.Context, bucket, objectPath string) error {
	full, err := s.resolve(bucket, objectPath)
	if err != nil {
		return err
	}
	return os.Remove(full)
}
