// Package upload implements the Upload Assembler of spec §4.1: resumable
// chunked upload sessions that promote into a content-addressed Blob once
// every chunk has arrived.
package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"viralclip-backend/internal/apperr"
	"viralclip-backend/internal/blob"
	"viralclip-backend/internal/metrics"
	"viralclip-backend/internal/models"
	"viralclip-backend/internal/store"
)

var allowedExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".webm": true, ".avi": true,
}

// uploadRepo and blobRepo are the slices of store.UploadRepo / store.BlobRepo
// the Assembler needs, declared locally so tests can supply in-memory fakes
// without a database.
type uploadRepo interface {
	Create(u *models.UploadSession) error
	Get(id string) (*models.UploadSession, error)
	Save(u *models.UploadSession) error
	Delete(id string) error
	ListExpired(now time.Time) ([]*models.UploadSession, error)
}

type blobRepo interface {
	Create(b *models.Blob) error
}

// Assembler coordinates session bookkeeping (via Job Store's UploadRepo)
// and byte staging (via the Blob Store), per-session writes serialized by a
// dedicated mutex so concurrent chunk writers never race the bitmap update.
type Assembler struct {
	uploads        uploadRepo
	blobs          blobRepo
	blobStore      blob.Store
	maxUploadBytes int64
	defaultChunk   int64
	ttl            time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAssembler(uploads *store.UploadRepo, blobs *store.BlobRepo, blobStore blob.Store, maxUploadBytes, defaultChunk int64, ttl time.Duration) *Assembler {
	return newAssembler(uploads, blobs, blobStore, maxUploadBytes, defaultChunk, ttl)
}

func newAssembler(uploads uploadRepo, blobs blobRepo, blobStore blob.Store, maxUploadBytes, defaultChunk int64, ttl time.Duration) *Assembler {
	return &Assembler{
		uploads:        uploads,
		blobs:          blobs,
		blobStore:      blobStore,
		maxUploadBytes: maxUploadBytes,
		defaultChunk:   defaultChunk,
		ttl:            ttl,
		locks:          make(map[string]*sync.Mutex),
	}
}

func (a *Assembler) lockFor(id string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[id]
	if !ok {
		l = &sync.Mutex{}
		a.locks[id] = l
	}
	return l
}

// Init validates and creates a new session per §4.1. A size of exactly
// maxUploadBytes is accepted; size+1 is rejected with KindOversize.
func (a *Assembler) Init(principalID, filename string, size int64, declaredType string, chunkSize int64) (*models.UploadSession, error) {
	if principalID == "" || filename == "" || size <= 0 {
		return nil, apperr.New(apperr.KindInvalidParameters, "filename and a positive size are required")
	}
	if size > a.maxUploadBytes {
		return nil, apperr.New(apperr.KindOversize, fmt.Sprintf("size %d exceeds max_upload_bytes %d", size, a.maxUploadBytes))
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, apperr.New(apperr.KindRejectedType, fmt.Sprintf("extension %q is not an accepted video type", ext))
	}

	if chunkSize <= 0 {
		chunkSize = a.defaultChunk
	}

	id := uuid.NewString()
	session := models.NewUploadSession(id, principalID, filename, size, declaredType, chunkSize, a.ttl)
	if err := a.uploads.Create(session); err != nil {
		return nil, apperr.Wrap(apperr.KindTransientIO, "persist upload session", err)
	}
	return session, nil
}

// WriteChunk is idempotent: an identical-length rewrite of an already
// accepted index is a no-op success; a different length is a conflict.
func (a *Assembler) WriteChunk(ctx context.Context, uploadID string, index int, data []byte) error {
	lock := a.lockFor(uploadID)
	lock.Lock()
	defer lock.Unlock()

	session, err := a.uploads.Get(uploadID)
	if err != nil {
		if err == store.ErrNotFound {
			return apperr.New(apperr.KindNotFound, "upload session not found")
		}
		return apperr.Wrap(apperr.KindTransientIO, "load upload session", err)
	}
	if session.Expired(time.Now()) {
		return apperr.New(apperr.KindExpired, "upload session expired")
	}
	if index < 0 || index >= session.TotalChunks {
		return apperr.New(apperr.KindInvalidParameters, "chunk index out of range")
	}

	expected := session.ExpectedLength(index)
	if prevLen, ok := session.ChunkLengths[index]; ok {
		if prevLen == int64(len(data)) {
			return nil
		}
		return apperr.New(apperr.KindConflict, "chunk already received with a different length")
	}
	if int64(len(data)) != expected {
		return apperr.New(apperr.KindInvalidParameters, fmt.Sprintf("chunk %d must be %d bytes, got %d", index, expected, len(data)))
	}

	if _, err := a.blobStore.Put(ctx, blob.ChunkKey(uploadID, index), bytes.NewReader(data)); err != nil {
		return apperr.Wrap(apperr.KindTransientIO, "stage chunk", err)
	}

	session.Received.Set(index)
	session.ChunkLengths[index] = int64(len(data))
	if err := a.uploads.Save(session); err != nil {
		return apperr.Wrap(apperr.KindTransientIO, "persist chunk state", err)
	}
	metrics.UploadBytesTotal.Add(float64(len(data)))
	return nil
}

// Complete streams the staged chunks in index order, computing the content
// digest and detecting the content type from leading bytes, writes the
// assembled file under its digest key, and deletes the session.
func (a *Assembler) Complete(ctx context.Context, uploadID, principalID string) (string, error) {
	lock := a.lockFor(uploadID)
	lock.Lock()
	defer lock.Unlock()

	session, err := a.uploads.Get(uploadID)
	if err != nil {
		if err == store.ErrNotFound {
			return "", apperr.New(apperr.KindNotFound, "upload session not found")
		}
		return "", apperr.Wrap(apperr.KindTransientIO, "load upload session", err)
	}
	if !session.Complete() {
		return "", apperr.New(apperr.KindIncomplete, "not all chunks have been received")
	}

	hasher := sha256.New()
	var sniff []byte
	var total int64
	readers := make([]func() (io.ReadCloser, error), session.TotalChunks)
	for i := 0; i < session.TotalChunks; i++ {
		idx := i
		readers[i] = func() (io.ReadCloser, error) {
			return a.blobStore.Get(ctx, blob.ChunkKey(uploadID, idx))
		}
	}

	for i, open := range readers {
		rc, err := open()
		if err != nil {
			return "", apperr.Wrap(apperr.KindTransientIO, fmt.Sprintf("read chunk %d", i), err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", apperr.Wrap(apperr.KindTransientIO, fmt.Sprintf("read chunk %d", i), err)
		}
		hasher.Write(data)
		total += int64(len(data))
		if len(sniff) < 512 {
			sniff = append(sniff, data...)
		}
		if err := appendToStaging(ctx, a.blobStore, uploadID, data); err != nil {
			return "", apperr.Wrap(apperr.KindTransientIO, "assemble staged file", err)
		}
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	contentType := blob.DetectContentType(sniff)

	staged, err := a.blobStore.Get(ctx, stagingFinalKey(uploadID))
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransientIO, "read assembled file", err)
	}
	if _, err := a.blobStore.Put(ctx, blob.BlobKey(digest), staged); err != nil {
		staged.Close()
		return "", apperr.Wrap(apperr.KindTransientIO, "write final blob", err)
	}
	staged.Close()

	if err := a.blobs.Create(&models.Blob{
		ID:               digest,
		Size:             total,
		ContentType:      contentType,
		OwnerPrincipalID: principalID,
	}); err != nil {
		return "", apperr.Wrap(apperr.KindTransientIO, "persist blob row", err)
	}

	for i := 0; i < session.TotalChunks; i++ {
		_ = a.blobStore.Delete(ctx, blob.ChunkKey(uploadID, i))
	}
	_ = a.blobStore.Delete(ctx, stagingFinalKey(uploadID))
	_ = a.uploads.Delete(uploadID)

	return digest, nil
}

// Abort deletes all partial data for a session without ever promoting it to
// a blob, used for both explicit abort and TTL expiry sweeps.
func (a *Assembler) Abort(ctx context.Context, uploadID string) error {
	lock := a.lockFor(uploadID)
	lock.Lock()
	defer lock.Unlock()

	session, err := a.uploads.Get(uploadID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return apperr.Wrap(apperr.KindTransientIO, "load upload session", err)
	}
	for i := 0; i < session.TotalChunks; i++ {
		_ = a.blobStore.Delete(ctx, blob.ChunkKey(uploadID, i))
	}
	_ = a.blobStore.Delete(ctx, stagingFinalKey(uploadID))
	return a.uploads.Delete(uploadID)
}

// ExpireStale sweeps sessions past their TTL, the background half of the
// "abort / TTL expiry" operation in §4.1.
func (a *Assembler) ExpireStale(ctx context.Context) (int, error) {
	expired, err := a.uploads.ListExpired(time.Now())
	if err != nil {
		return 0, err
	}
	for _, s := range expired {
		_ = a.Abort(ctx, s.ID)
	}
	return len(expired), nil
}

func stagingFinalKey(uploadID string) string {
	return "uploads/" + uploadID + "/staged"
}

// appendToStaging reads the current staged bytes (if any), appends data,
// and rewrites the staging key. Chunk counts are small enough per session
// that buffering in memory during assembly is acceptable; a production
// deployment would stream this through a multi-part upload instead.
func appendToStaging(ctx context.Context, store blob.Store, uploadID string, data []byte) error {
	key := stagingFinalKey(uploadID)
	var existing []byte
	if rc, err := store.Get(ctx, key); err == nil {
		existing, _ = io.ReadAll(rc)
		rc.Close()
	}
	combined := append(existing, data...)
	_, err := store.Put(ctx, key, bytes.NewReader(combined))
	return err
}
