package blob

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_PutGetRoundTrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("hello clip pipeline")
	n, err := store.Put(nil, BlobKey("abc123"), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	exists, err := store.Exists(nil, BlobKey("abc123"))
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Get(nil, BlobKey("abc123"))
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, store.Delete(nil, BlobKey("abc123")))
	exists, err = store.Exists(nil, BlobKey("abc123"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDigest(t *testing.T) {
	digest, size, err := Digest(bytes.NewReader([]byte("abc")))
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", digest)
}

func TestTeeDigestMatchesDigest(t *testing.T) {
	data := []byte("the quick brown fox")
	want, _, err := Digest(bytes.NewReader(data))
	require.NoError(t, err)

	td := NewTeeDigest(bytes.NewReader(data))
	_, err = io.ReadAll(td)
	require.NoError(t, err)
	assert.Equal(t, want, td.Sum())
}
