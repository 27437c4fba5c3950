package keyval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runStoreTests(t *testing.T, store Store) {
	t.Helper()

	_, err := store.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put("REC::1", []byte("one")))
	require.NoError(t, store.Put("REC::2", []byte("two")))
	require.NoError(t, store.Put("AGG::alice", []byte("counter")))

	v, err := store.Get("REC::1")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), v)

	// Overwrite.
	require.NoError(t, store.Put("REC::1", []byte("uno")))
	v, err = store.Get("REC::1")
	require.NoError(t, err)
	assert.Equal(t, []byte("uno"), v)

	entries, err := store.List("REC::")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, []byte("two"), entries["REC::2"])

	require.NoError(t, store.Delete("REC::2"))
	_, err = store.Get("REC::2")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is not an error.
	assert.NoError(t, store.Delete("REC::2"))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	runStoreTests(t, store)
}

func TestBadgerStore(t *testing.T) {
	store, err := NewBadgerStore(BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	defer store.Close()
	runStoreTests(t, store)
}

func TestBadgerStoreRequiresPath(t *testing.T) {
	_, err := NewBadgerStore(BadgerConfig{})
	assert.Error(t, err)
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBadgerStore(BadgerConfig{Path: dir})
	require.NoError(t, err)
	require.NoError(t, store.Put("KEYS", []byte(`["alice"]`)))
	require.NoError(t, store.Close())

	reopened, err := NewBadgerStore(BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()
	v, err := reopened.Get("KEYS")
	require.NoError(t, err)
	assert.Equal(t, []byte(`["alice"]`), v)
}
