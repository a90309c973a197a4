package store

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// sliceNav navigates a sorted list of keys whose values equal the keys.
type sliceNav struct {
	keys []string
}

func (n *sliceNav) index(key []byte) int {
	return sort.SearchStrings(n.keys, string(key))
}

func (n *sliceNav) First() ([]byte, error) {
	if len(n.keys) == 0 {
		return nil, ErrDone
	}
	return []byte(n.keys[0]), nil
}

func (n *sliceNav) Last() ([]byte, error) {
	if len(n.keys) == 0 {
		return nil, ErrDone
	}
	return []byte(n.keys[len(n.keys)-1]), nil
}

func (n *sliceNav) After(key []byte) ([]byte, error) {
	i := n.index(key)
	if i < len(n.keys) && n.keys[i] == string(key) {
		i++
	}
	if i >= len(n.keys) {
		return nil, ErrDone
	}
	return []byte(n.keys[i]), nil
}

func (n *sliceNav) Before(key []byte) ([]byte, error) {
	i := n.index(key) - 1
	if i < 0 {
		return nil, ErrDone
	}
	return []byte(n.keys[i]), nil
}

func (n *sliceNav) Get(key []byte) ([]byte, error) {
	i := n.index(key)
	if i < len(n.keys) && n.keys[i] == string(key) {
		return bytes.Clone(key), nil
	}
	return nil, ErrNotFound
}

func TestNavCursorWalk(t *testing.T) {
	c := NewCursor(&sliceNav{keys: []string{"a", "b", "c"}}, true)

	require.False(t, c.Valid())
	require.ErrorIs(t, c.Next(), ErrDone)

	var keys []string
	for err := c.First(); err == nil; err = c.Next() {
		k, kerr := c.Key()
		require.NoError(t, kerr)
		keys = append(keys, string(k))
	}
	require.Equal(t, []string{"a", "b", "c"}, keys)
	require.False(t, c.Valid())

	_, err := c.Key()
	require.ErrorIs(t, err, ErrEOF)
	_, err = c.Data()
	require.ErrorIs(t, err, ErrEOF)

	require.NoError(t, c.Last())
	require.NoError(t, c.Prev())
	data, err := c.Data()
	require.NoError(t, err)
	require.Equal(t, []byte("b"), data)
}

func TestNavCursorSeek(t *testing.T) {
	c := NewCursor(&sliceNav{keys: []string{"a", "c", "e"}}, true)

	require.NoError(t, c.Seek([]byte("c"), MatchLE))
	k, _ := c.Key()
	require.Equal(t, []byte("a"), k)

	require.NoError(t, c.Seek([]byte("c"), MatchGE))
	k, _ = c.Key()
	require.Equal(t, []byte("e"), k)

	require.ErrorIs(t, c.Seek([]byte("e"), MatchGE), ErrNotFound)
	require.False(t, c.Valid())
	require.ErrorIs(t, c.Seek([]byte("a"), MatchLE), ErrNotFound)
	require.ErrorIs(t, c.Seek([]byte("b"), MatchExact), ErrNotFound)
	require.ErrorIs(t, c.Seek([]byte("b"), SeekDirection(7)), ErrInvalid)
}

func TestNavCursorUnranged(t *testing.T) {
	c := NewCursor(&sliceNav{keys: []string{"a", "c", "e"}}, false)

	require.ErrorIs(t, c.Seek([]byte("b"), MatchGE), ErrNotFound)
	require.NoError(t, c.Seek([]byte("c"), MatchGE))
	k, _ := c.Key()
	require.Equal(t, []byte("c"), k)
}

func TestNavCursorDeletedPosition(t *testing.T) {
	nav := &sliceNav{keys: []string{"a", "b", "c"}}
	c := NewCursor(nav, true)

	require.NoError(t, c.Seek([]byte("b"), MatchExact))
	nav.keys = []string{"a", "c"}
	require.False(t, c.Valid())

	require.NoError(t, c.Next())
	k, _ := c.Key()
	require.Equal(t, []byte("c"), k)
}

func TestNavCursorRelease(t *testing.T) {
	c := NewCursor(&sliceNav{keys: []string{"a"}}, true)
	require.NoError(t, c.First())
	require.NoError(t, c.Release())

	require.False(t, c.Valid())
	require.ErrorIs(t, c.First(), ErrClosed)
	require.ErrorIs(t, c.Reset(), ErrClosed)
	require.ErrorIs(t, c.Seek([]byte("a"), MatchExact), ErrClosed)
}

func TestWrap(t *testing.T) {
	require.NoError(t, Wrap(ErrBusy, nil))

	err := Wrap(ErrBusy, ErrLimit)
	require.ErrorIs(t, err, ErrBusy)
	require.ErrorIs(t, err, ErrLimit)

	require.True(t, ReadOnly(OpenReadOnly|OpenMMap))
	require.False(t, ReadOnly(OpenCreate))
}

func TestStatusIs(t *testing.T) {
	require.ErrorIs(t, Status(-6), ErrNotFound)
	require.ErrorIs(t, Status(-28), ErrDone)
	require.NotErrorIs(t, Status(-6), ErrDone)
	require.NotErrorIs(t, Status(-2), ErrNotFound)
}
