// Package pebble implements an ordered LSM engine on cockroachdb/pebble.
// The open write transaction is an indexed batch, so reads made while it is
// open observe its uncommitted writes.
package pebble

import (
	"errors"
	"io"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/ostafen/unqkv/internal"
	"github.com/ostafen/unqkv/log"
	"github.com/ostafen/unqkv/store"
	"github.com/rs/zerolog"
)

// Options tune the pebble connection.
type Options struct {
	InMemory bool
	// CacheSize in bytes; zero keeps pebble's default.
	CacheSize int64
}

// reader is satisfied by both *pebble.DB and an indexed *pebble.Batch.
type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

type KVStore struct {
	mu       sync.Mutex
	db       *pebble.DB
	readOnly bool
	batch    *pebble.Batch
}

// Open opens the pebble directory dir. flags are UNQLITE_OPEN_* bits.
func Open(dir string, flags uint32, opts Options) (store.Engine, error) {
	readOnly := store.ReadOnly(flags)

	popts := &pebble.Options{
		ReadOnly:         readOnly,
		ErrorIfNotExists: flags&store.OpenCreate == 0,
		Logger:           logger{log.Engine.With().Str("engine", "pebble").Logger()},
	}
	if opts.CacheSize > 0 {
		cache := pebble.NewCache(opts.CacheSize)
		defer cache.Unref()
		popts.Cache = cache
	}
	if opts.InMemory {
		// a fresh memory FS holds no database for pebble to open read-only;
		// writes are still refused through readOnly
		dir = ""
		popts.FS = vfs.NewMem()
		popts.ErrorIfNotExists = false
		popts.ReadOnly = false
	}

	db, err := pebble.Open(dir, popts)
	if err != nil {
		return nil, store.Wrap(store.ErrCannotOpen, err)
	}
	return &KVStore{db: db, readOnly: readOnly}, nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pebble.ErrNotFound):
		return store.ErrNotFound
	case errors.Is(err, pebble.ErrReadOnly):
		return store.Wrap(store.ErrReadOnly, err)
	case errors.Is(err, pebble.ErrClosed):
		return store.Wrap(store.ErrClosed, err)
	}
	return err
}

func (p *KVStore) view(fn func(r reader) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return store.ErrClosed
	}
	if p.batch != nil {
		return mapErr(fn(p.batch))
	}
	return mapErr(fn(p.db))
}

func (p *KVStore) update(fn func(b *pebble.Batch) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return store.ErrClosed
	}
	if p.readOnly {
		return store.ErrReadOnly
	}
	p.begin()
	return mapErr(fn(p.batch))
}

func (p *KVStore) begin() {
	if p.batch == nil {
		p.batch = p.db.NewIndexedBatch()
	}
}

func get(r reader, key []byte) ([]byte, error) {
	value, closer, err := r.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return append([]byte{}, value...), nil
}

func (p *KVStore) Store(key, value []byte) error {
	return p.update(func(b *pebble.Batch) error {
		return b.Set(internal.EncodeKey(key), value, nil)
	})
}

func (p *KVStore) Append(key, value []byte) error {
	return p.update(func(b *pebble.Batch) error {
		k := internal.EncodeKey(key)
		old, err := get(b, k)
		if err != nil && !errors.Is(err, pebble.ErrNotFound) {
			return err
		}
		return b.Set(k, append(old, value...), nil)
	})
}

func (p *KVStore) Fetch(key []byte) ([]byte, error) {
	return p.Get(key)
}

func (p *KVStore) Delete(key []byte) error {
	return p.update(func(b *pebble.Batch) error {
		k := internal.EncodeKey(key)
		if _, err := get(b, k); err != nil {
			return err
		}
		return b.Delete(k, nil)
	})
}

func (p *KVStore) Begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return store.ErrClosed
	}
	if p.readOnly {
		return store.ErrReadOnly
	}
	p.begin()
	return nil
}

func (p *KVStore) finish(commit bool) error {
	if p.batch == nil {
		return nil
	}
	b := p.batch
	p.batch = nil

	var err error
	if commit {
		err = b.Commit(pebble.Sync)
	}
	if cerr := b.Close(); err == nil {
		err = cerr
	}
	return mapErr(err)
}

func (p *KVStore) Commit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return store.ErrClosed
	}
	if p.readOnly {
		return store.ErrReadOnly
	}
	return p.finish(true)
}

func (p *KVStore) Rollback() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return store.ErrClosed
	}
	if p.readOnly {
		return store.ErrReadOnly
	}
	return p.finish(false)
}

func (p *KVStore) Cursor() (store.Cursor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil, store.ErrClosed
	}
	return store.NewCursor(p, true), nil
}

func (p *KVStore) Close(commit bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return store.ErrClosed
	}

	txErr := p.finish(commit)
	err := p.db.Close()
	p.db = nil
	if txErr != nil {
		return txErr
	}
	return mapErr(err)
}

func (p *KVStore) iterate(position func(it *pebble.Iterator) bool) ([]byte, error) {
	var key []byte
	err := p.view(func(r reader) error {
		it, err := r.NewIter(nil)
		if err != nil {
			return err
		}
		defer it.Close()

		if !position(it) {
			return store.ErrDone
		}
		key, err = internal.DecodeKey(it.Key())
		return err
	})
	return key, err
}

func (p *KVStore) First() ([]byte, error) {
	return p.iterate(func(it *pebble.Iterator) bool { return it.First() })
}

func (p *KVStore) Last() ([]byte, error) {
	return p.iterate(func(it *pebble.Iterator) bool { return it.Last() })
}

func (p *KVStore) After(key []byte) ([]byte, error) {
	target := internal.EncodeKey(key)
	return p.iterate(func(it *pebble.Iterator) bool {
		if !it.SeekGE(target) {
			return false
		}
		if string(it.Key()) == string(target) {
			return it.Next()
		}
		return true
	})
}

func (p *KVStore) Before(key []byte) ([]byte, error) {
	target := internal.EncodeKey(key)
	return p.iterate(func(it *pebble.Iterator) bool { return it.SeekLT(target) })
}

func (p *KVStore) Get(key []byte) ([]byte, error) {
	var value []byte
	err := p.view(func(r reader) error {
		var err error
		value, err = get(r, internal.EncodeKey(key))
		return err
	})
	return value, err
}

// logger routes pebble's event logging through zerolog.
type logger struct {
	zerolog.Logger
}

func (l logger) Infof(format string, args ...interface{}) {
	l.Logger.Debug().Msgf(format, args...)
}

func (l logger) Errorf(format string, args ...interface{}) {
	l.Logger.Error().Msgf(format, args...)
}

func (l logger) Fatalf(format string, args ...interface{}) {
	l.Logger.Fatal().Msgf(format, args...)
}
