package unqkv

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"
)

var testEngines = []string{EngineHash, EngineBTree, EngineBolt, EngineBadger, EnginePebble}

// testName returns an in-memory name for engines that support it and a
// fresh file path otherwise.
func testName(t *testing.T, engine string) string {
	if engine == EngineBolt {
		return filepath.Join(t.TempDir(), "test.db")
	}
	return MemoryName
}

func runHandleTest(t *testing.T, test func(t *testing.T, h *Handle)) {
	runEngineTest(t, testEngines, test)
}

func runEngineTest(t *testing.T, engines []string, test func(t *testing.T, h *Handle)) {
	for _, engine := range engines {
		t.Run(engine, func(t *testing.T) {
			h := New(WithEngine(engine))
			require.True(t, h.Open(testName(t, engine), Create), h.LastResultCode().String())
			defer h.Close()

			test(t, h)
		})
	}
}

func TestStoreFetch(t *testing.T) {
	runHandleTest(t, func(t *testing.T, h *Handle) {
		records := map[string][]byte{
			"":         []byte("empty key"),
			"empty":    {},
			"binary":   {0x00, 0xff, 0x00, 0x01},
			"\x00\xff": []byte("binary key"),
		}
		for i := 0; i < 100; i++ {
			records[gofakeit.LetterN(10)] = []byte(gofakeit.Sentence(5))
		}

		for k, v := range records {
			require.True(t, h.Store([]byte(k), v))
		}

		for k, v := range records {
			got := h.Fetch([]byte(k))
			require.Equal(t, Ok, h.LastResultCode())
			require.NotNil(t, got)
			require.Equal(t, v, got)
		}
	})
}

func TestStoreOverwrites(t *testing.T) {
	runHandleTest(t, func(t *testing.T, h *Handle) {
		require.True(t, h.Store([]byte("k"), []byte("v1")))
		require.True(t, h.Store([]byte("k"), []byte("v2")))
		require.Equal(t, []byte("v2"), h.Fetch([]byte("k")))
	})
}

func TestAppend(t *testing.T) {
	runHandleTest(t, func(t *testing.T, h *Handle) {
		require.True(t, h.Append([]byte("k"), []byte("hello, ")))
		require.True(t, h.Append([]byte("k"), []byte("world")))
		require.Equal(t, []byte("hello, world"), h.Fetch([]byte("k")))

		require.True(t, h.Store([]byte("s"), []byte("abc")))
		require.True(t, h.Append([]byte("s"), []byte("def")))
		require.Equal(t, []byte("abcdef"), h.Fetch([]byte("s")))
	})
}

func TestRemove(t *testing.T) {
	runHandleTest(t, func(t *testing.T, h *Handle) {
		require.True(t, h.Store([]byte("k"), []byte("v")))
		require.True(t, h.Remove([]byte("k")))

		value := h.Fetch([]byte("k"))
		require.Empty(t, value)
		require.NotNil(t, value)
		require.Equal(t, NotFound, h.LastResultCode())

		require.False(t, h.Remove([]byte("k")))
		require.Equal(t, NotFound, h.LastResultCode())
	})
}

func TestFetchEmptyValue(t *testing.T) {
	runHandleTest(t, func(t *testing.T, h *Handle) {
		require.True(t, h.Store([]byte("k"), nil))

		require.Empty(t, h.Fetch([]byte("k")))
		require.Equal(t, Ok, h.LastResultCode())

		require.Empty(t, h.Fetch([]byte("missing")))
		require.Equal(t, NotFound, h.LastResultCode())
	})
}

func TestRollback(t *testing.T) {
	runHandleTest(t, func(t *testing.T, h *Handle) {
		require.True(t, h.Store([]byte("committed"), []byte("1")))
		require.True(t, h.Commit())

		require.True(t, h.Begin())
		require.True(t, h.Store([]byte("pending"), []byte("2")))
		require.True(t, h.Append([]byte("committed"), []byte("x")))
		require.True(t, h.Remove([]byte("committed")))
		require.Equal(t, []byte("2"), h.Fetch([]byte("pending")))
		require.True(t, h.Rollback())

		h.Fetch([]byte("pending"))
		require.Equal(t, NotFound, h.LastResultCode())
		require.Equal(t, []byte("1"), h.Fetch([]byte("committed")))
	})
}

func TestRollbackImplicitTransaction(t *testing.T) {
	runHandleTest(t, func(t *testing.T, h *Handle) {
		require.True(t, h.Store([]byte("k"), []byte("v")))
		require.True(t, h.Rollback())

		h.Fetch([]byte("k"))
		require.Equal(t, NotFound, h.LastResultCode())
	})
}

func TestRedundantTransactionControl(t *testing.T) {
	runHandleTest(t, func(t *testing.T, h *Handle) {
		require.True(t, h.Commit())
		require.True(t, h.Rollback())
		require.True(t, h.Begin())
		require.True(t, h.Begin())
		require.True(t, h.Commit())
	})
}

func TestUnopenedHandle(t *testing.T) {
	h := New()

	require.False(t, h.Store([]byte("k"), []byte("v")))
	require.Equal(t, CorruptPointer, h.LastResultCode())

	require.Empty(t, h.Fetch([]byte("k")))
	require.Equal(t, CorruptPointer, h.LastResultCode())

	for _, op := range []func() bool{h.Begin, h.Commit, h.Rollback, h.Close} {
		require.False(t, op())
		require.Equal(t, CorruptPointer, h.LastResultCode())
	}

	require.True(t, h.Open(MemoryName, Create))
	require.True(t, h.Close())

	require.False(t, h.Append([]byte("k"), []byte("v")))
	require.Equal(t, CorruptPointer, h.LastResultCode())
}

func TestReopen(t *testing.T) {
	h := New()
	require.True(t, h.Open(MemoryName, Create))

	require.False(t, h.Open(MemoryName, Create))
	require.Equal(t, Locked, h.LastResultCode())

	require.True(t, h.Close())
	require.True(t, h.Open(MemoryName, Create))
	require.True(t, h.Close())
}

func TestInvalidOption(t *testing.T) {
	h := New(WithEngine("leveldb"))
	require.False(t, h.Open(MemoryName, Create))
	require.Equal(t, Invalid, h.LastResultCode())

	h = New(WithGCDiscardRatio(2))
	require.False(t, h.Open(MemoryName, Create))
	require.Equal(t, Invalid, h.LastResultCode())
}

func TestBoltHasNoMemoryMode(t *testing.T) {
	h := New(WithEngine(EngineBolt))
	require.False(t, h.Open(MemoryName, Create))
	require.Equal(t, NotImplemented, h.LastResultCode())
}

func TestOpenMissingReadWrite(t *testing.T) {
	for _, engine := range []string{EngineBolt, EngineBadger, EnginePebble} {
		t.Run(engine, func(t *testing.T) {
			h := New(WithEngine(engine))
			require.False(t, h.Open(filepath.Join(t.TempDir(), "missing"), ReadWrite))
			require.Equal(t, CannotOpen, h.LastResultCode())
		})
	}
}

func diskName(dir, engine string) string {
	return filepath.Join(dir, engine+".db")
}

func TestCloseCommits(t *testing.T) {
	for _, engine := range []string{EngineBolt, EngineBadger, EnginePebble} {
		t.Run(engine, func(t *testing.T) {
			name := diskName(t.TempDir(), engine)

			h := New(WithEngine(engine))
			require.True(t, h.Open(name, Create))
			require.True(t, h.Store([]byte("k"), []byte("v")))
			require.True(t, h.Close())

			require.True(t, h.Open(name, ReadWrite))
			require.Equal(t, []byte("v"), h.Fetch([]byte("k")))
			require.True(t, h.Close())
		})
	}
}

func TestCloseWithoutAutoCommit(t *testing.T) {
	for _, engine := range []string{EngineBolt, EngineBadger, EnginePebble} {
		t.Run(engine, func(t *testing.T) {
			name := diskName(t.TempDir(), engine)

			h := New(WithEngine(engine), WithAutoCommit(false))
			require.True(t, h.Open(name, Create))
			require.True(t, h.Store([]byte("committed"), []byte("1")))
			require.True(t, h.Commit())
			require.True(t, h.Store([]byte("dropped"), []byte("2")))
			require.True(t, h.Close())

			require.True(t, h.Open(name, ReadWrite))
			require.Equal(t, []byte("1"), h.Fetch([]byte("committed")))
			h.Fetch([]byte("dropped"))
			require.Equal(t, NotFound, h.LastResultCode())
			require.True(t, h.Close())
		})
	}
}

func TestReadOnly(t *testing.T) {
	for _, mode := range []OpenMode{ReadOnly, ReadOnlyWithMMap} {
		name := filepath.Join(t.TempDir(), "test.db")

		h := New()
		require.True(t, h.Open(name, Create))
		require.True(t, h.Store([]byte("k"), []byte("v")))
		require.True(t, h.Close())

		require.True(t, h.Open(name, mode))
		require.Equal(t, []byte("v"), h.Fetch([]byte("k")))

		require.False(t, h.Store([]byte("k"), []byte("w")))
		require.Equal(t, IsReadOnly, h.LastResultCode())
		require.False(t, h.Remove([]byte("k")))
		require.Equal(t, IsReadOnly, h.LastResultCode())
		require.False(t, h.Begin())
		require.Equal(t, IsReadOnly, h.LastResultCode())

		require.True(t, h.Close())
	}
}

func TestMemoryReadOnly(t *testing.T) {
	for _, engine := range []string{EngineHash, EngineBTree, EngineBadger, EnginePebble} {
		h := New(WithEngine(engine))
		require.True(t, h.Open(MemoryName, ReadOnly), engine)
		require.False(t, h.Store([]byte("k"), []byte("v")))
		require.Equal(t, IsReadOnly, h.LastResultCode())
		require.True(t, h.Close())
	}
}

func TestOpenLockedFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "test.db")

	owner := New()
	require.True(t, owner.Open(name, Create))
	defer owner.Close()

	h := New(WithOpenTimeout(50 * time.Millisecond))
	require.False(t, h.Open(name, ReadWrite))
	require.Equal(t, Busy, h.LastResultCode())
	require.True(t, h.LastResultCode().Retryable())

	require.True(t, owner.Close())
	require.True(t, h.Open(name, ReadWrite))
	require.True(t, h.Close())
}

func TestDefaultOpenTimeout(t *testing.T) {
	name := filepath.Join(t.TempDir(), "test.db")

	owner := New()
	require.True(t, owner.Open(name, Create))
	defer owner.Close()

	done := make(chan ResultCode, 1)
	go func() {
		h := New()
		h.Open(name, ReadWrite)
		done <- h.LastResultCode()
	}()

	select {
	case code := <-done:
		require.Equal(t, Busy, code)
	case <-time.After(OpenTimeoutDefault + 5*time.Second):
		t.Fatal("open on a locked file did not give up")
	}
}
