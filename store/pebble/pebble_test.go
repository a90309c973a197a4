package pebble

import (
	"path/filepath"
	"testing"

	"github.com/ostafen/unqkv/store"
	"github.com/ostafen/unqkv/store/storetest"
	"github.com/stretchr/testify/require"
)

func TestPebbleEngine(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Engine {
		e, err := Open("", store.OpenCreate, Options{InMemory: true, CacheSize: 1 << 20})
		require.NoError(t, err)
		return e
	}, true)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"), store.OpenReadWrite, Options{})
	require.ErrorIs(t, err, store.ErrCannotOpen)
}

func TestPersistence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pebble")

	e, err := Open(dir, store.OpenCreate, Options{})
	require.NoError(t, err)
	require.NoError(t, e.Store([]byte("committed"), []byte("1")))
	require.NoError(t, e.Commit())
	require.NoError(t, e.Store([]byte("dropped"), []byte("2")))
	require.NoError(t, e.Close(false))

	e, err = Open(dir, store.OpenReadWrite, Options{})
	require.NoError(t, err)
	defer e.Close(true)

	v, err := e.Fetch([]byte("committed"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	_, err = e.Fetch([]byte("dropped"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestInMemoryReadOnly(t *testing.T) {
	e, err := Open("", store.OpenReadOnly, Options{InMemory: true})
	require.NoError(t, err)
	defer e.Close(true)

	require.ErrorIs(t, e.Store([]byte("k"), []byte("v")), store.ErrReadOnly)
	require.ErrorIs(t, e.Begin(), store.ErrReadOnly)

	_, err = e.Fetch([]byte("k"))
	require.ErrorIs(t, err, store.ErrNotFound)
}
