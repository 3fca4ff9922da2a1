// Package blob implements the content-addressed Blob Store of spec §3/§4.1:
// write-once storage keyed by the SHA-256 digest of the full content.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
)

// URLer is implemented by Store backends that can produce a retrievable
// (possibly pre-signed) URL for a key, per the Artifact Registry contract.
type URLer interface {
	PublicURL(key string) string
}

// Store is the interface every backing implementation (local filesystem,
// Supabase Storage) satisfies. Keys are opaque paths; content-addressing is
// layered on top by the caller, not the Store itself.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ChunkKey is the temporary staging path for a single chunk of an
// in-progress upload session, before the digest is known.
func ChunkKey(uploadID string, index int) string {
	return "uploads/" + uploadID + "/chunks/" + strconv.Itoa(index)
}

// BlobKey is the permanent content-addressed path for a finished blob.
func BlobKey(digest string) string {
	return "blobs/" + digest
}

// Digest streams r, returning the lowercase hex SHA-256 digest and the byte
// count, without holding the whole content in memory.
func Digest(r io.Reader) (digest string, size int64, err error) {
	h := sha256.New()
	size, err = io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// TeeDigest wraps r so that reading it through the returned reader also
// feeds the digest; call Sum after fully draining it.
type TeeDigest struct {
	io.Reader
	hash interface {
		Sum([]byte) []byte
	}
}

func NewTeeDigest(r io.Reader) *TeeDigest {
	h := sha256.New()
	return &TeeDigest{Reader: io.TeeReader(r, h), hash: h}
}

func (t *TeeDigest) Sum() string {
	return hex.EncodeToString(t.hash.Sum(nil))
}

// DetectContentType sniffs the content type from the leading bytes of data,
// the way net/http's server does for response bodies. The detected type is
// authoritative for downstream processing; client-declared type is used
// only for quota accounting (§4.1).
func DetectContentType(data []byte) string {
	return http.DetectContentType(data)
}
