// Package hash implements an in-memory engine without key ordering.
//
// Records are traversed in insertion order and cursor range seeks degrade to
// exact matches, the same way a hash-indexed engine behaves.
package hash

import (
	"sync"

	"github.com/google/btree"
	"github.com/ostafen/unqkv/store"
)

type record struct {
	seq   uint64
	key   string
	value []byte
}

func bySeq(a, b *record) bool {
	return a.seq < b.seq
}

// undo holds the state of a key before a change made inside a transaction.
// A nil prev means the key did not exist.
type undo struct {
	key  string
	prev *record
}

type hashEngine struct {
	sync.Mutex
	readOnly bool
	closed   bool

	records map[string]*record
	order   *btree.BTreeG[*record]
	nextSeq uint64

	inTx    bool
	journal []undo
}

// Open returns a new empty engine. flags are UNQLITE_OPEN_* bits.
func Open(flags uint32) store.Engine {
	return &hashEngine{
		readOnly: store.ReadOnly(flags),
		records:  make(map[string]*record),
		order:    btree.NewG[*record](32, bySeq),
		nextSeq:  1,
	}
}

func (e *hashEngine) checkWrite() error {
	if e.closed {
		return store.ErrClosed
	}
	if e.readOnly {
		return store.ErrReadOnly
	}
	return nil
}

func (e *hashEngine) remember(key string) {
	e.inTx = true

	var prev *record
	if rec, ok := e.records[key]; ok {
		cp := *rec
		prev = &cp
	}
	e.journal = append(e.journal, undo{key: key, prev: prev})
}

func (e *hashEngine) put(key string, value []byte) {
	e.remember(key)

	if rec, ok := e.records[key]; ok {
		rec.value = value
		return
	}

	rec := &record{seq: e.nextSeq, key: key, value: value}
	e.nextSeq++
	e.records[key] = rec
	e.order.ReplaceOrInsert(rec)
}

func (e *hashEngine) Store(key, value []byte) error {
	e.Lock()
	defer e.Unlock()

	if err := e.checkWrite(); err != nil {
		return err
	}
	e.put(string(key), append([]byte{}, value...))
	return nil
}

func (e *hashEngine) Append(key, value []byte) error {
	e.Lock()
	defer e.Unlock()

	if err := e.checkWrite(); err != nil {
		return err
	}

	var old []byte
	if rec, ok := e.records[string(key)]; ok {
		old = rec.value
	}
	newValue := make([]byte, 0, len(old)+len(value))
	newValue = append(append(newValue, old...), value...)
	e.put(string(key), newValue)
	return nil
}

func (e *hashEngine) Fetch(key []byte) ([]byte, error) {
	return e.Get(key)
}

func (e *hashEngine) Delete(key []byte) error {
	e.Lock()
	defer e.Unlock()

	if err := e.checkWrite(); err != nil {
		return err
	}

	rec, ok := e.records[string(key)]
	if !ok {
		return store.ErrNotFound
	}
	e.remember(rec.key)
	e.remove(rec)
	return nil
}

func (e *hashEngine) remove(rec *record) {
	delete(e.records, rec.key)
	e.order.Delete(rec)
}

func (e *hashEngine) Begin() error {
	e.Lock()
	defer e.Unlock()

	if err := e.checkWrite(); err != nil {
		return err
	}
	e.inTx = true
	return nil
}

func (e *hashEngine) Commit() error {
	e.Lock()
	defer e.Unlock()

	if err := e.checkWrite(); err != nil {
		return err
	}
	e.inTx = false
	e.journal = nil
	return nil
}

func (e *hashEngine) Rollback() error {
	e.Lock()
	defer e.Unlock()

	if err := e.checkWrite(); err != nil {
		return err
	}
	e.rollback()
	return nil
}

func (e *hashEngine) rollback() {
	for i := len(e.journal) - 1; i >= 0; i-- {
		u := e.journal[i]
		if rec, ok := e.records[u.key]; ok {
			e.remove(rec)
		}
		if u.prev != nil {
			e.records[u.key] = u.prev
			e.order.ReplaceOrInsert(u.prev)
		}
	}
	e.inTx = false
	e.journal = nil
}

func (e *hashEngine) Cursor() (store.Cursor, error) {
	e.Lock()
	defer e.Unlock()

	if e.closed {
		return nil, store.ErrClosed
	}
	return store.NewCursor(e, false), nil
}

func (e *hashEngine) Close(commit bool) error {
	e.Lock()
	defer e.Unlock()

	if e.closed {
		return store.ErrClosed
	}
	if !commit {
		e.rollback()
	}
	e.closed = true
	e.records = nil
	e.order.Clear(false)
	return nil
}

func (e *hashEngine) First() ([]byte, error) {
	e.Lock()
	defer e.Unlock()

	if e.closed {
		return nil, store.ErrClosed
	}
	rec, ok := e.order.Min()
	if !ok {
		return nil, store.ErrDone
	}
	return []byte(rec.key), nil
}

func (e *hashEngine) Last() ([]byte, error) {
	e.Lock()
	defer e.Unlock()

	if e.closed {
		return nil, store.ErrClosed
	}
	rec, ok := e.order.Max()
	if !ok {
		return nil, store.ErrDone
	}
	return []byte(rec.key), nil
}

// After returns the record inserted right after key. A key that no longer
// exists has no successor.
func (e *hashEngine) After(key []byte) ([]byte, error) {
	e.Lock()
	defer e.Unlock()

	if e.closed {
		return nil, store.ErrClosed
	}

	cur, ok := e.records[string(key)]
	if !ok {
		return nil, store.ErrDone
	}

	var next *record
	e.order.AscendGreaterOrEqual(&record{seq: cur.seq + 1}, func(rec *record) bool {
		next = rec
		return false
	})
	if next == nil {
		return nil, store.ErrDone
	}
	return []byte(next.key), nil
}

func (e *hashEngine) Before(key []byte) ([]byte, error) {
	e.Lock()
	defer e.Unlock()

	if e.closed {
		return nil, store.ErrClosed
	}

	cur, ok := e.records[string(key)]
	if !ok {
		return nil, store.ErrDone
	}

	var prev *record
	e.order.DescendLessOrEqual(&record{seq: cur.seq - 1}, func(rec *record) bool {
		prev = rec
		return false
	})
	if prev == nil {
		return nil, store.ErrDone
	}
	return []byte(prev.key), nil
}

func (e *hashEngine) Get(key []byte) ([]byte, error) {
	e.Lock()
	defer e.Unlock()

	if e.closed {
		return nil, store.ErrClosed
	}

	rec, ok := e.records[string(key)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte{}, rec.value...), nil
}
