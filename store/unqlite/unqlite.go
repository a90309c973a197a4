// Package unqlite binds the native UnQLite library at runtime through purego.
// Every call maps one-to-one onto the C API and status codes are returned
// untouched as store.Status.
package unqlite

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/ostafen/unqkv/store"
)

const statusOK = 0

// Options select the shared library to load.
type Options struct {
	// LibraryPath overrides the UNQLITE_LIBRARY environment variable and the
	// platform default names.
	LibraryPath string
}

var ErrLibraryNotFound = errors.New("unqlite: shared library not found")

var (
	unqliteOpen     func(ppDB *uintptr, zFilename string, iMode uint32) int32
	unqliteClose    func(pDb uintptr) int32
	unqliteKvStore  func(pDb uintptr, pKey unsafe.Pointer, nKeyLen int32, pData unsafe.Pointer, nDataLen int64) int32
	unqliteKvAppend func(pDb uintptr, pKey unsafe.Pointer, nKeyLen int32, pData unsafe.Pointer, nDataLen int64) int32
	unqliteKvFetch  func(pDb uintptr, pKey unsafe.Pointer, nKeyLen int32, pBuf unsafe.Pointer, pBufLen *int64) int32
	unqliteKvDelete func(pDb uintptr, pKey unsafe.Pointer, nKeyLen int32) int32
	unqliteBegin    func(pDb uintptr) int32
	unqliteCommit   func(pDb uintptr) int32
	unqliteRollback func(pDb uintptr) int32

	cursorInit    func(pDb uintptr, ppOut *uintptr) int32
	cursorRelease func(pDb uintptr, pCur uintptr) int32
	cursorReset   func(pCur uintptr) int32
	cursorSeek    func(pCur uintptr, pKey unsafe.Pointer, nKeyLen int32, iPos int32) int32
	cursorFirst   func(pCur uintptr) int32
	cursorLast    func(pCur uintptr) int32
	cursorNext    func(pCur uintptr) int32
	cursorPrev    func(pCur uintptr) int32
	cursorValid   func(pCur uintptr) int32
	cursorKey     func(pCur uintptr, pBuf unsafe.Pointer, pnByte *int32) int32
	cursorData    func(pCur uintptr, pBuf unsafe.Pointer, pnData *int64) int32
)

var (
	loadOnce sync.Once
	loadErr  error
)

func libraryNames(override string) []string {
	if override != "" {
		return []string{override}
	}
	if env := os.Getenv("UNQLITE_LIBRARY"); env != "" {
		return []string{env}
	}
	switch runtime.GOOS {
	case "darwin":
		return []string{"libunqlite.dylib"}
	case "windows":
		return []string{"unqlite.dll"}
	}
	return []string{"libunqlite.so", "libunqlite.so.0"}
}

// Load resolves the UnQLite symbols. It is safe to call repeatedly; only the
// first call has an effect.
func Load(opts Options) error {
	loadOnce.Do(func() {
		var lib uintptr
		for _, name := range libraryNames(opts.LibraryPath) {
			handle, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
			if err == nil {
				lib = handle
				break
			}
		}
		if lib == 0 {
			loadErr = ErrLibraryNotFound
			return
		}

		purego.RegisterLibFunc(&unqliteOpen, lib, "unqlite_open")
		purego.RegisterLibFunc(&unqliteClose, lib, "unqlite_close")
		purego.RegisterLibFunc(&unqliteKvStore, lib, "unqlite_kv_store")
		purego.RegisterLibFunc(&unqliteKvAppend, lib, "unqlite_kv_append")
		purego.RegisterLibFunc(&unqliteKvFetch, lib, "unqlite_kv_fetch")
		purego.RegisterLibFunc(&unqliteKvDelete, lib, "unqlite_kv_delete")
		purego.RegisterLibFunc(&unqliteBegin, lib, "unqlite_begin")
		purego.RegisterLibFunc(&unqliteCommit, lib, "unqlite_commit")
		purego.RegisterLibFunc(&unqliteRollback, lib, "unqlite_rollback")

		purego.RegisterLibFunc(&cursorInit, lib, "unqlite_kv_cursor_init")
		purego.RegisterLibFunc(&cursorRelease, lib, "unqlite_kv_cursor_release")
		purego.RegisterLibFunc(&cursorReset, lib, "unqlite_kv_cursor_reset")
		purego.RegisterLibFunc(&cursorSeek, lib, "unqlite_kv_cursor_seek")
		purego.RegisterLibFunc(&cursorFirst, lib, "unqlite_kv_cursor_first_entry")
		purego.RegisterLibFunc(&cursorLast, lib, "unqlite_kv_cursor_last_entry")
		purego.RegisterLibFunc(&cursorNext, lib, "unqlite_kv_cursor_next_entry")
		purego.RegisterLibFunc(&cursorPrev, lib, "unqlite_kv_cursor_prev_entry")
		purego.RegisterLibFunc(&cursorValid, lib, "unqlite_kv_cursor_valid_entry")
		purego.RegisterLibFunc(&cursorKey, lib, "unqlite_kv_cursor_key")
		purego.RegisterLibFunc(&cursorData, lib, "unqlite_kv_cursor_data")
	})
	return loadErr
}

func status(rc int32) error {
	if rc == statusOK {
		return nil
	}
	return store.Status(rc)
}

// ptr returns a pointer to the first byte of b, or nil for an empty slice.
func ptr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

type engine struct {
	db uintptr
}

func (e *engine) check() error {
	if e.db == 0 {
		return store.ErrClosed
	}
	return nil
}

// Open opens name (":mem:" for a private in-memory database) with the
// UNQLITE_OPEN_* flags.
func Open(name string, flags uint32, opts Options) (store.Engine, error) {
	if err := Load(opts); err != nil {
		return nil, store.Wrap(store.ErrCannotOpen, err)
	}

	var db uintptr
	if err := status(unqliteOpen(&db, name, flags)); err != nil {
		return nil, err
	}
	return &engine{db: db}, nil
}

func (e *engine) write(fn func(pDb uintptr, pKey unsafe.Pointer, nKeyLen int32, pData unsafe.Pointer, nDataLen int64) int32, key, value []byte) error {
	if err := e.check(); err != nil {
		return err
	}
	rc := fn(e.db, ptr(key), int32(len(key)), ptr(value), int64(len(value)))
	runtime.KeepAlive(key)
	runtime.KeepAlive(value)
	return status(rc)
}

func (e *engine) Store(key, value []byte) error {
	return e.write(unqliteKvStore, key, value)
}

func (e *engine) Append(key, value []byte) error {
	return e.write(unqliteKvAppend, key, value)
}

// Fetch queries the record length first, then fills a buffer of that size.
func (e *engine) Fetch(key []byte) ([]byte, error) {
	if err := e.check(); err != nil {
		return nil, err
	}

	var n int64
	rc := unqliteKvFetch(e.db, ptr(key), int32(len(key)), nil, &n)
	if err := status(rc); err != nil {
		runtime.KeepAlive(key)
		return nil, err
	}

	if n == 0 {
		runtime.KeepAlive(key)
		return []byte{}, nil
	}

	buf := make([]byte, n)
	rc = unqliteKvFetch(e.db, ptr(key), int32(len(key)), ptr(buf), &n)
	runtime.KeepAlive(key)
	if err := status(rc); err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (e *engine) Delete(key []byte) error {
	if err := e.check(); err != nil {
		return err
	}
	rc := unqliteKvDelete(e.db, ptr(key), int32(len(key)))
	runtime.KeepAlive(key)
	return status(rc)
}

func (e *engine) Begin() error {
	if err := e.check(); err != nil {
		return err
	}
	return status(unqliteBegin(e.db))
}

func (e *engine) Commit() error {
	if err := e.check(); err != nil {
		return err
	}
	return status(unqliteCommit(e.db))
}

func (e *engine) Rollback() error {
	if err := e.check(); err != nil {
		return err
	}
	return status(unqliteRollback(e.db))
}

// Close commits through unqlite_close. With commit false the pending
// transaction is rolled back first, which is what the library does when
// auto-commit is disabled.
func (e *engine) Close(commit bool) error {
	if err := e.check(); err != nil {
		return err
	}
	if !commit {
		if err := e.Rollback(); err != nil {
			return err
		}
	}
	err := status(unqliteClose(e.db))
	e.db = 0
	return err
}

func (e *engine) Cursor() (store.Cursor, error) {
	if err := e.check(); err != nil {
		return nil, err
	}

	var cur uintptr
	if err := status(cursorInit(e.db, &cur)); err != nil {
		return nil, err
	}
	return &cursor{db: e.db, cur: cur}, nil
}

type cursor struct {
	db  uintptr
	cur uintptr
}

func (c *cursor) Seek(key []byte, dir store.SeekDirection) error {
	rc := cursorSeek(c.cur, ptr(key), int32(len(key)), int32(dir))
	runtime.KeepAlive(key)
	return status(rc)
}

func (c *cursor) First() error { return status(cursorFirst(c.cur)) }
func (c *cursor) Last() error  { return status(cursorLast(c.cur)) }
func (c *cursor) Next() error  { return status(cursorNext(c.cur)) }
func (c *cursor) Prev() error  { return status(cursorPrev(c.cur)) }
func (c *cursor) Reset() error { return status(cursorReset(c.cur)) }

func (c *cursor) Valid() bool {
	return cursorValid(c.cur) == 1
}

func (c *cursor) Key() ([]byte, error) {
	var n int32
	if err := status(cursorKey(c.cur, nil, &n)); err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if err := status(cursorKey(c.cur, ptr(buf), &n)); err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c *cursor) Data() ([]byte, error) {
	var n int64
	if err := status(cursorData(c.cur, nil, &n)); err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if err := status(cursorData(c.cur, ptr(buf), &n)); err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c *cursor) Release() error {
	if c.cur == 0 {
		return fmt.Errorf("%w: cursor already released", store.ErrInvalid)
	}
	err := status(cursorRelease(c.db, c.cur))
	c.cur = 0
	return err
}
