package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// FSStore is a local-filesystem-backed Store used in development and tests
// when no Supabase project is configured. The retrieval pack's Supabase
// storage client has no local-disk analogue, so this one concern is built
// on the standard library directly.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FSStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(p)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(f, r)
}

func (s *FSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, os.ErrNotExist
		}
		return nil, err
	}
	return f, nil
}

func (s *FSStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// PublicURL returns a file-scheme reference to the stored key. Development
// and test builds serve no HTTP object URLs, so the raw path stands in for
// the pre-signed URL a deployed Supabase bucket would return.
func (s *FSStore) PublicURL(key string) string {
	return "file://" + s.path(key)
}
