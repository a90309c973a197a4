// Package btree implements an ordered in-memory engine on top of a
// copy-on-write B-tree. A transaction is a clone of the tree taken before
// its first write; rolling back swaps the clone back in.
package btree

import (
	"bytes"
	"sync"

	"github.com/google/btree"
	"github.com/ostafen/unqkv/store"
)

const degree = 32

type item struct {
	key   []byte
	value []byte
}

func byKey(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

type btreeEngine struct {
	mu       sync.RWMutex
	readOnly bool
	closed   bool

	tree *btree.BTreeG[item]
	// snapshot is non-nil while a transaction is open.
	snapshot *btree.BTreeG[item]
}

func Open(flags uint32) store.Engine {
	return &btreeEngine{
		readOnly: store.ReadOnly(flags),
		tree:     btree.NewG[item](degree, byKey),
	}
}

func (e *btreeEngine) checkWrite() error {
	if e.closed {
		return store.ErrClosed
	}
	if e.readOnly {
		return store.ErrReadOnly
	}
	return nil
}

func (e *btreeEngine) begin() {
	if e.snapshot == nil {
		e.snapshot = e.tree.Clone()
	}
}

func (e *btreeEngine) Store(key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkWrite(); err != nil {
		return err
	}
	e.begin()
	e.tree.ReplaceOrInsert(item{
		key:   append([]byte{}, key...),
		value: append([]byte{}, value...),
	})
	return nil
}

func (e *btreeEngine) Append(key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkWrite(); err != nil {
		return err
	}
	e.begin()

	old, _ := e.tree.Get(item{key: key})
	newValue := make([]byte, 0, len(old.value)+len(value))
	newValue = append(append(newValue, old.value...), value...)
	e.tree.ReplaceOrInsert(item{key: append([]byte{}, key...), value: newValue})
	return nil
}

func (e *btreeEngine) Fetch(key []byte) ([]byte, error) {
	return e.Get(key)
}

func (e *btreeEngine) Delete(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkWrite(); err != nil {
		return err
	}
	if !e.tree.Has(item{key: key}) {
		return store.ErrNotFound
	}
	e.begin()
	e.tree.Delete(item{key: key})
	return nil
}

func (e *btreeEngine) Begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkWrite(); err != nil {
		return err
	}
	e.begin()
	return nil
}

func (e *btreeEngine) Commit() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkWrite(); err != nil {
		return err
	}
	e.snapshot = nil
	return nil
}

func (e *btreeEngine) Rollback() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkWrite(); err != nil {
		return err
	}
	e.rollback()
	return nil
}

func (e *btreeEngine) rollback() {
	if e.snapshot != nil {
		e.tree = e.snapshot
		e.snapshot = nil
	}
}

func (e *btreeEngine) Cursor() (store.Cursor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, store.ErrClosed
	}
	return store.NewCursor(e, true), nil
}

func (e *btreeEngine) Close(commit bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return store.ErrClosed
	}
	if commit {
		e.snapshot = nil
	} else {
		e.rollback()
	}
	e.closed = true
	return nil
}

func (e *btreeEngine) edge(pick func() (item, bool)) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, store.ErrClosed
	}
	it, ok := pick()
	if !ok {
		return nil, store.ErrDone
	}
	return it.key, nil
}

func (e *btreeEngine) First() ([]byte, error) {
	return e.edge(func() (item, bool) { return e.tree.Min() })
}

func (e *btreeEngine) Last() ([]byte, error) {
	return e.edge(func() (item, bool) { return e.tree.Max() })
}

func (e *btreeEngine) After(key []byte) ([]byte, error) {
	return e.edge(func() (found item, ok bool) {
		e.tree.AscendGreaterOrEqual(item{key: key}, func(it item) bool {
			if bytes.Equal(it.key, key) {
				return true
			}
			found, ok = it, true
			return false
		})
		return
	})
}

func (e *btreeEngine) Before(key []byte) ([]byte, error) {
	return e.edge(func() (found item, ok bool) {
		e.tree.DescendLessOrEqual(item{key: key}, func(it item) bool {
			if bytes.Equal(it.key, key) {
				return true
			}
			found, ok = it, true
			return false
		})
		return
	})
}

func (e *btreeEngine) Get(key []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, store.ErrClosed
	}
	it, ok := e.tree.Get(item{key: key})
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte{}, it.value...), nil
}
