package unqkv

import (
	"bytes"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/ostafen/unqkv/store"
	"github.com/stretchr/testify/require"
)

// faultyEngine fails the selected calls of the wrapped engine.
type faultyEngine struct {
	store.Engine
	rollbackErr error
	cursorErr   error
}

func (e *faultyEngine) Rollback() error {
	if e.rollbackErr != nil {
		return e.rollbackErr
	}
	return e.Engine.Rollback()
}

func (e *faultyEngine) Cursor() (store.Cursor, error) {
	if e.cursorErr != nil {
		return nil, e.cursorErr
	}
	return e.Engine.Cursor()
}

func TestExportImport(t *testing.T) {
	runHandleTest(t, func(t *testing.T, src *Handle) {
		records := map[string][]byte{
			"":      []byte("empty key"),
			"empty": {},
		}
		for i := 0; i < 50; i++ {
			records[gofakeit.UUID()] = []byte(gofakeit.Sentence(3))
		}
		for k, v := range records {
			require.True(t, src.Store([]byte(k), v))
		}

		var buf bytes.Buffer
		require.True(t, src.Export(&buf))

		dst := New(WithEngine(EngineBTree))
		require.True(t, dst.Open(MemoryName, Create))
		defer dst.Close()

		require.True(t, dst.Import(&buf))

		n := 0
		cur := dst.Cursor()
		defer cur.Close()
		require.True(t, cur.ForEach(func(key, value []byte) error {
			n++
			require.Equal(t, records[string(key)], value)
			return nil
		}))
		require.Equal(t, len(records), n)
	})
}

func TestImportGarbage(t *testing.T) {
	h := New()
	require.True(t, h.Open(MemoryName, Create))
	defer h.Close()

	require.True(t, h.Store([]byte("kept"), []byte("v")))
	require.True(t, h.Commit())

	require.False(t, h.Import(bytes.NewReader([]byte{0xc1, 0xc1})))
	require.Equal(t, IoError, h.LastResultCode())
	require.Equal(t, []byte("v"), h.Fetch([]byte("kept")))
}

func TestExportUnopened(t *testing.T) {
	var buf bytes.Buffer
	h := New()
	require.False(t, h.Export(&buf))
	require.Equal(t, CorruptPointer, h.LastResultCode())
}

func TestImportReportsFailedRollback(t *testing.T) {
	h := New()
	require.True(t, h.Open(MemoryName, Create))
	defer h.Close()

	h.engine = &faultyEngine{Engine: h.engine, rollbackErr: store.ErrBusy}

	require.False(t, h.Import(bytes.NewReader([]byte{0xc1})))
	require.Equal(t, Busy, h.LastResultCode())
}

func TestExportKeepsCursorCode(t *testing.T) {
	h := New()
	require.True(t, h.Open(MemoryName, Create))
	defer h.Close()

	h.engine = &faultyEngine{Engine: h.engine, cursorErr: store.ErrLimit}

	var buf bytes.Buffer
	require.False(t, h.Export(&buf))
	require.Equal(t, Limit, h.LastResultCode())
}
