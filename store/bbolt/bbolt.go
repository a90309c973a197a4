package bbolt

import (
	"bytes"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/ostafen/unqkv/internal"
	"github.com/ostafen/unqkv/store"
	"go.etcd.io/bbolt"
)

const rootBucket = "root"

// Options tune the bbolt connection.
type Options struct {
	// Timeout bounds the wait for the file lock. Zero waits forever.
	Timeout time.Duration
}

type boltStore struct {
	mu       sync.Mutex
	db       *bbolt.DB
	readOnly bool

	// tx is the open write transaction, implicit or explicit.
	tx *bbolt.Tx
}

// Open opens the database file at path. flags are UNQLITE_OPEN_* bits.
func Open(path string, flags uint32, opts Options) (store.Engine, error) {
	readOnly := store.ReadOnly(flags)
	if flags&store.OpenCreate == 0 {
		if _, err := os.Stat(path); err != nil {
			return nil, store.Wrap(store.ErrCannotOpen, err)
		}
	}

	db, err := bbolt.Open(path, 0666, &bbolt.Options{
		Timeout:  opts.Timeout,
		ReadOnly: readOnly,
	})
	if err != nil {
		return nil, mapErr(err)
	}

	s := &boltStore{db: db, readOnly: readOnly}
	if !readOnly {
		if err := s.createRootBucketIfNotExists(); err != nil {
			db.Close()
			return nil, mapErr(err)
		}
	}
	return s, nil
}

func (s *boltStore) createRootBucketIfNotExists() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(rootBucket))
		return err
	})
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bbolt.ErrTimeout):
		return store.Wrap(store.ErrBusy, err)
	case errors.Is(err, bbolt.ErrDatabaseReadOnly), errors.Is(err, bbolt.ErrTxNotWritable):
		return store.Wrap(store.ErrReadOnly, err)
	case errors.Is(err, bbolt.ErrDatabaseNotOpen), errors.Is(err, bbolt.ErrTxClosed):
		return store.Wrap(store.ErrClosed, err)
	case errors.Is(err, bbolt.ErrKeyTooLarge), errors.Is(err, bbolt.ErrValueTooLarge):
		return store.Wrap(store.ErrLimit, err)
	case errors.Is(err, bbolt.ErrInvalid), errors.Is(err, bbolt.ErrVersionMismatch), errors.Is(err, bbolt.ErrChecksum):
		return store.Wrap(store.ErrCannotOpen, err)
	}
	return err
}

func (s *boltStore) view(fn func(b *bbolt.Bucket) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return store.ErrClosed
	}

	if s.tx != nil {
		return fn(s.tx.Bucket([]byte(rootBucket)))
	}
	return mapErr(s.db.View(func(tx *bbolt.Tx) error {
		return fn(tx.Bucket([]byte(rootBucket)))
	}))
}

func (s *boltStore) update(fn func(b *bbolt.Bucket) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return store.ErrClosed
	}
	if s.readOnly {
		return store.ErrReadOnly
	}
	if err := s.begin(); err != nil {
		return err
	}
	return mapErr(fn(s.tx.Bucket([]byte(rootBucket))))
}

func (s *boltStore) begin() error {
	if s.tx != nil {
		return nil
	}
	tx, err := s.db.Begin(true)
	if err != nil {
		return mapErr(err)
	}
	s.tx = tx
	return nil
}

// lookup tells a missing key apart from an empty value, which Bucket.Get
// cannot do.
func lookup(b *bbolt.Bucket, key []byte) ([]byte, bool) {
	k, v := b.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false
	}
	return v, true
}

func (s *boltStore) Store(key, value []byte) error {
	return s.update(func(b *bbolt.Bucket) error {
		return b.Put(internal.EncodeKey(key), append([]byte{}, value...))
	})
}

func (s *boltStore) Append(key, value []byte) error {
	return s.update(func(b *bbolt.Bucket) error {
		k := internal.EncodeKey(key)
		old, _ := lookup(b, k)
		newValue := make([]byte, 0, len(old)+len(value))
		newValue = append(append(newValue, old...), value...)
		return b.Put(k, newValue)
	})
}

func (s *boltStore) Fetch(key []byte) ([]byte, error) {
	return s.Get(key)
}

func (s *boltStore) Delete(key []byte) error {
	return s.update(func(b *bbolt.Bucket) error {
		k := internal.EncodeKey(key)
		if _, ok := lookup(b, k); !ok {
			return store.ErrNotFound
		}
		return b.Delete(k)
	})
}

func (s *boltStore) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return store.ErrClosed
	}
	if s.readOnly {
		return store.ErrReadOnly
	}
	return s.begin()
}

func (s *boltStore) finish(commit bool) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if commit {
		return mapErr(tx.Commit())
	}
	return mapErr(tx.Rollback())
}

func (s *boltStore) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return store.ErrClosed
	}
	if s.readOnly {
		return store.ErrReadOnly
	}
	return s.finish(true)
}

func (s *boltStore) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return store.ErrClosed
	}
	if s.readOnly {
		return store.ErrReadOnly
	}
	return s.finish(false)
}

func (s *boltStore) Cursor() (store.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, store.ErrClosed
	}
	return store.NewCursor(s, true), nil
}

func (s *boltStore) Close(commit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return store.ErrClosed
	}

	txErr := s.finish(commit)
	err := s.db.Close()
	s.db = nil
	if txErr != nil {
		return txErr
	}
	return mapErr(err)
}

func (s *boltStore) seek(fn func(c *bbolt.Cursor) []byte) ([]byte, error) {
	var key []byte
	err := s.view(func(b *bbolt.Bucket) error {
		if b == nil {
			return store.ErrDone
		}

		k := fn(b.Cursor())
		if k == nil {
			return store.ErrDone
		}

		var err error
		key, err = internal.DecodeKey(k)
		return err
	})
	return key, err
}

func (s *boltStore) First() ([]byte, error) {
	return s.seek(func(c *bbolt.Cursor) []byte {
		k, _ := c.First()
		return k
	})
}

func (s *boltStore) Last() ([]byte, error) {
	return s.seek(func(c *bbolt.Cursor) []byte {
		k, _ := c.Last()
		return k
	})
}

func (s *boltStore) After(key []byte) ([]byte, error) {
	target := internal.EncodeKey(key)
	return s.seek(func(c *bbolt.Cursor) []byte {
		k, _ := c.Seek(target)
		if k != nil && bytes.Equal(k, target) {
			k, _ = c.Next()
		}
		return k
	})
}

func (s *boltStore) Before(key []byte) ([]byte, error) {
	target := internal.EncodeKey(key)
	return s.seek(func(c *bbolt.Cursor) []byte {
		k, _ := c.Seek(target)
		if k == nil {
			k, _ = c.Last()
			return k
		}
		k, _ = c.Prev()
		return k
	})
}

func (s *boltStore) Get(key []byte) ([]byte, error) {
	var value []byte
	err := s.view(func(b *bbolt.Bucket) error {
		if b == nil {
			return store.ErrNotFound
		}

		v, ok := lookup(b, internal.EncodeKey(key))
		if !ok {
			return store.ErrNotFound
		}
		value = append([]byte{}, v...)
		return nil
	})
	return value, err
}
