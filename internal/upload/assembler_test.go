package upload

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viralclip-backend/internal/apperr"
	"viralclip-backend/internal/blob"
	"viralclip-backend/internal/models"
	"viralclip-backend/internal/store"
)

type fakeUploadRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.UploadSession
}

func newFakeUploadRepo() *fakeUploadRepo {
	return &fakeUploadRepo{sessions: make(map[string]*models.UploadSession)}
}

func (f *fakeUploadRepo) Create(u *models.UploadSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[u.ID] = u
	return nil
}

func (f *fakeUploadRepo) Get(id string) (*models.UploadSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUploadRepo) Save(u *models.UploadSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[u.ID] = u
	return nil
}

func (f *fakeUploadRepo) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *fakeUploadRepo) ListExpired(now time.Time) ([]*models.UploadSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.UploadSession
	for _, u := range f.sessions {
		if u.Expired(now) {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeBlobRepo struct {
	mu      sync.Mutex
	created []*models.Blob
}

func (f *fakeBlobRepo) Create(b *models.Blob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, b)
	return nil
}

func newTestAssembler(t *testing.T) (*Assembler, *fakeUploadRepo, *fakeBlobRepo) {
	t.Helper()
	fs, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)
	uploads := newFakeUploadRepo()
	blobs := &fakeBlobRepo{}
	a := newAssembler(uploads, blobs, fs, 1<<20, 4, time.Hour)
	return a, uploads, blobs
}

func TestAssembler_InitRejectsOversize(t *testing.T) {
	a, _, _ := newTestAssembler(t)
	_, err := a.Init("user-1", "clip.mp4", 2<<20, "video/mp4", 4)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindOversize, ae.Kind)
}

func TestAssembler_InitRejectsBadExtension(t *testing.T) {
	a, _, _ := newTestAssembler(t)
	_, err := a.Init("user-1", "clip.exe", 100, "application/octet-stream", 4)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindRejectedType, ae.Kind)
}

func TestAssembler_FullUploadRoundTrip(t *testing.T) {
	a, _, blobs := newTestAssembler(t)
	ctx := context.Background()

	content := []byte("0123456789abcdef")
	session, err := a.Init("user-1", "clip.mp4", int64(len(content)), "video/mp4", 4)
	require.NoError(t, err)
	require.Equal(t, 4, session.TotalChunks)

	for i := 0; i < session.TotalChunks; i++ {
		start := i * 4
		end := start + 4
		if end > len(content) {
			end = len(content)
		}
		err := a.WriteChunk(ctx, session.ID, i, content[start:end])
		require.NoError(t, err)
	}

	// Rewriting the same chunk with identical bytes is idempotent.
	require.NoError(t, a.WriteChunk(ctx, session.ID, 0, content[0:4]))

	digest, err := a.Complete(ctx, session.ID, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, digest)
	require.Len(t, blobs.created, 1)
	assert.Equal(t, int64(len(content)), blobs.created[0].Size)
}

func TestAssembler_WriteChunkConflictOnLengthMismatch(t *testing.T) {
	a, _, _ := newTestAssembler(t)
	ctx := context.Background()

	session, err := a.Init("user-1", "clip.mp4", 8, "video/mp4", 4)
	require.NoError(t, err)

	require.NoError(t, a.WriteChunk(ctx, session.ID, 0, []byte("abcd")))
	err = a.WriteChunk(ctx, session.ID, 0, []byte("ab"))
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindConflict, ae.Kind)
}

func TestAssembler_CompleteBeforeAllChunksIsIncomplete(t *testing.T) {
	a, _, _ := newTestAssembler(t)
	ctx := context.Background()

	session, err := a.Init("user-1", "clip.mp4", 8, "video/mp4", 4)
	require.NoError(t, err)
	require.NoError(t, a.WriteChunk(ctx, session.ID, 0, []byte("abcd")))

	_, err = a.Complete(ctx, session.ID, "user-1")
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindIncomplete, ae.Kind)
}

func TestAssembler_AbortRemovesSession(t *testing.T) {
	a, uploads, _ := newTestAssembler(t)
	ctx := context.Background()

	session, err := a.Init("user-1", "clip.mp4", 8, "video/mp4", 4)
	require.NoError(t, err)
	require.NoError(t, a.WriteChunk(ctx, session.ID, 0, []byte("abcd")))

	require.NoError(t, a.Abort(ctx, session.ID))
	_, err = uploads.Get(session.ID)
	assert.Error(t, err)
}
