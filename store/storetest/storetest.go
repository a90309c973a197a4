// Package storetest checks that a store.Engine behaves like the rest.
package storetest

import (
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/ostafen/unqkv/store"
	"github.com/stretchr/testify/require"
)

// Opener returns a new, empty, writable engine.
type Opener func(t *testing.T) store.Engine

// Run exercises the engine returned by open. ordered tells whether cursors
// traverse keys in byte order and honor range seeks.
func Run(t *testing.T, open Opener, ordered bool) {
	tests := map[string]func(t *testing.T, e store.Engine){
		"StoreFetch":     testStoreFetch,
		"Append":         testAppend,
		"Delete":         testDelete,
		"EmptyValue":     testEmptyValue,
		"Rollback":       testRollback,
		"CursorWalk":     testCursorWalk,
		"CursorTxView":   testCursorTxView,
		"ClosedEngine":   testClosedEngine,
		"CloseRollsBack": testCloseRollsBack,
	}
	if ordered {
		tests["RangeSeek"] = testRangeSeek
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			e := open(t)
			defer e.Close(true)
			test(t, e)
		})
	}
}

func testStoreFetch(t *testing.T, e store.Engine) {
	records := map[string]string{"": "empty key", "\x00\xff": "binary"}
	for i := 0; i < 50; i++ {
		records[gofakeit.LetterN(12)] = gofakeit.Word()
	}

	for k, v := range records {
		require.NoError(t, e.Store([]byte(k), []byte(v)))
	}
	require.NoError(t, e.Commit())

	for k, v := range records {
		got, err := e.Fetch([]byte(k))
		require.NoError(t, err)
		require.Equal(t, []byte(v), got)
	}

	_, err := e.Fetch([]byte("missing"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testAppend(t *testing.T, e store.Engine) {
	require.NoError(t, e.Append([]byte("k"), []byte("ab")))
	require.NoError(t, e.Append([]byte("k"), []byte("cd")))

	got, err := e.Fetch([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abcd"), got)
}

func testDelete(t *testing.T, e store.Engine) {
	require.NoError(t, e.Store([]byte("k"), []byte("v")))
	require.NoError(t, e.Delete([]byte("k")))
	require.ErrorIs(t, e.Delete([]byte("k")), store.ErrNotFound)

	_, err := e.Fetch([]byte("k"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testEmptyValue(t *testing.T, e store.Engine) {
	require.NoError(t, e.Store([]byte("k"), nil))

	got, err := e.Fetch([]byte("k"))
	require.NoError(t, err)
	require.Empty(t, got)
}

func testRollback(t *testing.T, e store.Engine) {
	require.NoError(t, e.Store([]byte("a"), []byte("1")))
	require.NoError(t, e.Commit())

	require.NoError(t, e.Begin())
	require.NoError(t, e.Store([]byte("a"), []byte("2")))
	require.NoError(t, e.Store([]byte("b"), []byte("2")))
	require.NoError(t, e.Rollback())

	got, err := e.Fetch([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)

	_, err = e.Fetch([]byte("b"))
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, e.Rollback())
	require.NoError(t, e.Commit())
}

func testCursorWalk(t *testing.T, e store.Engine) {
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, e.Store([]byte(k), []byte(k+k)))
	}

	c, err := e.Cursor()
	require.NoError(t, err)
	defer c.Release()

	seen := make(map[string]string)
	for err = c.First(); err == nil; err = c.Next() {
		require.True(t, c.Valid())
		k, kerr := c.Key()
		require.NoError(t, kerr)
		v, verr := c.Data()
		require.NoError(t, verr)
		seen[string(k)] = string(v)
	}
	require.ErrorIs(t, err, store.ErrDone)
	require.False(t, c.Valid())
	require.Equal(t, map[string]string{"a": "aa", "b": "bb", "c": "cc"}, seen)

	require.ErrorIs(t, c.Seek([]byte("x"), store.MatchExact), store.ErrNotFound)
	require.NoError(t, c.Seek([]byte("b"), store.MatchExact))
	require.NoError(t, c.Reset())
	require.False(t, c.Valid())
	_, err = c.Key()
	require.ErrorIs(t, err, store.ErrEOF)
}

func testCursorTxView(t *testing.T, e store.Engine) {
	require.NoError(t, e.Begin())
	require.NoError(t, e.Store([]byte("pending"), []byte("v")))

	c, err := e.Cursor()
	require.NoError(t, err)
	defer c.Release()

	require.NoError(t, c.First())
	k, err := c.Key()
	require.NoError(t, err)
	require.Equal(t, []byte("pending"), k)
}

func testRangeSeek(t *testing.T, e store.Engine) {
	for _, k := range []string{"b", "a", "d", "c"} {
		require.NoError(t, e.Store([]byte(k), []byte(k)))
	}

	c, err := e.Cursor()
	require.NoError(t, err)
	defer c.Release()

	var keys []string
	for err = c.Last(); err == nil; err = c.Prev() {
		k, _ := c.Key()
		keys = append(keys, string(k))
	}
	require.Equal(t, []string{"d", "c", "b", "a"}, keys)

	require.NoError(t, c.Seek([]byte("bb"), store.MatchLE))
	k, _ := c.Key()
	require.Equal(t, []byte("b"), k)

	require.NoError(t, c.Seek([]byte("b"), store.MatchGE))
	k, _ = c.Key()
	require.Equal(t, []byte("c"), k)

	require.ErrorIs(t, c.Seek([]byte("d"), store.MatchGE), store.ErrNotFound)
}

func testClosedEngine(t *testing.T, e store.Engine) {
	require.NoError(t, e.Close(true))

	require.ErrorIs(t, e.Store([]byte("k"), []byte("v")), store.ErrClosed)
	_, err := e.Fetch([]byte("k"))
	require.ErrorIs(t, err, store.ErrClosed)
	_, err = e.Cursor()
	require.ErrorIs(t, err, store.ErrClosed)
	require.ErrorIs(t, e.Close(true), store.ErrClosed)
}

func testCloseRollsBack(t *testing.T, e store.Engine) {
	require.NoError(t, e.Store([]byte("k"), []byte("v")))
	require.NoError(t, e.Close(false))
}
