package badger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docreply/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_PathIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := OpenBackend(path, false)
	assert.ErrorContains(t, err, "is not a directory")
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	err = backend.WithTx(func(tx *badger.Txn) error { return nil }, false)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestNextIDSkipsZero(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	seq, err := backend.GetSequence("testseq")
	require.NoError(t, err)
	defer seq.Release()

	first, err := nextID(seq)
	require.NoError(t, err)
	second, err := nextID(seq)
	require.NoError(t, err)

	assert.NotZero(t, first)
	assert.Greater(t, second, first)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(0), cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}

func TestKeyOrdering(t *testing.T) {
	assert.Less(t, string(makeChunkKey("d", 9)), string(makeChunkKey("d", 10)))
	assert.Less(t, string(makeChunkKey("d", 255)), string(makeChunkKey("d", 256)))
	assert.Equal(t, uint32(256), ordinalSuffix(makeChunkKey("d", 256)))
	assert.EqualValues(t, 77, idSuffix(makeMappingPhoneKey("+91", 77)))

	// A phone that extends another must not fall under its prefix.
	short := string(makeMappingPhonePrefix("+9198"))
	long := string(makeMappingPhoneKey("+91987", 1))
	assert.NotEqual(t, short, long[:len(short)])
}
