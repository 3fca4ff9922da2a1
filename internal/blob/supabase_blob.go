package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	storage "github.com/supabase-community/storage-go"
)

// SupabaseStore adapts the teacher's StorageClient into the generic Store
// interface: instead of a per-user/per-project path, every object lives
// under a content-addressed or upload-staging key in a single bucket.
type SupabaseStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

func NewSupabaseStore(supabaseURL, serviceKey, bucket string) (*SupabaseStore, error) {
	baseURL := supabaseURL
	if len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	client := storage.NewClient(baseURL+"/storage/v1", serviceKey, nil)
	return &SupabaseStore{client: client, bucket: bucket, baseURL: baseURL}, nil
}

func (s *SupabaseStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	upsert := true
	contentType := "application/octet-stream"
	_, err = s.client.UploadFile(s.bucket, key, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return 0, fmt.Errorf("blob: upload %s: %w", key, err)
	}
	return int64(len(data)), nil
}

func (s *SupabaseStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := s.client.DownloadFile(s.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("blob: download %s: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *SupabaseStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.RemoveFile(s.bucket, []string{key})
	return err
}

func (s *SupabaseStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.DownloadFile(s.bucket, key)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// PublicURL returns the opaque retrieval URL for a stored key, per the
// Artifact Registry's "blob-backed URL (opaque, may be pre-signed)" contract.
func (s *SupabaseStore) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}

var ErrNotFound = errors.New("blob: not found")
