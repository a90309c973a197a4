package badger

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ostafen/unqkv/internal"
	"github.com/ostafen/unqkv/log"
	"github.com/ostafen/unqkv/store"
	"github.com/rs/zerolog"
)

// Options tune the badger connection.
type Options struct {
	InMemory       bool
	GCInterval     time.Duration
	GCDiscardRatio float64
}

type badgerStore struct {
	mu       sync.Mutex
	db       *badger.DB
	readOnly bool
	txn      *badger.Txn

	chWg   sync.WaitGroup
	chQuit chan struct{}

	gcInterval     time.Duration
	gcDiscardRatio float64
}

// Open opens the badger directory dir. flags are UNQLITE_OPEN_* bits.
func Open(dir string, flags uint32, opts Options) (store.Engine, error) {
	readOnly := store.ReadOnly(flags)

	bopts := badger.DefaultOptions(dir).
		WithLogger(logger{log.Engine.With().Str("engine", "badger").Logger()})
	if opts.InMemory {
		bopts = bopts.WithDir("").WithValueDir("").WithInMemory(true)
	} else {
		if flags&store.OpenCreate == 0 {
			if _, err := os.Stat(dir); err != nil {
				return nil, store.Wrap(store.ErrCannotOpen, err)
			}
		}
		bopts = bopts.WithReadOnly(readOnly)
	}
	return OpenWithOptions(bopts, readOnly, opts)
}

func OpenWithOptions(bopts badger.Options, readOnly bool, opts Options) (store.Engine, error) {
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, store.Wrap(store.ErrCannotOpen, err)
	}

	s := &badgerStore{
		db:             db,
		readOnly:       readOnly,
		chQuit:         make(chan struct{}, 1),
		gcInterval:     opts.GCInterval,
		gcDiscardRatio: opts.GCDiscardRatio,
	}
	if !readOnly && !bopts.InMemory && s.gcInterval > 0 {
		s.startGC()
	}
	return s, nil
}

func (s *badgerStore) startGC() {
	s.chWg.Add(1)

	go func() {
		defer s.chWg.Done()

		ticker := time.NewTicker(s.gcInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.chQuit:
				return

			case <-ticker.C:
				err := s.db.RunValueLogGC(s.gcDiscardRatio)
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					log.Engine.Warn().Err(err).Msg("RunValueLogGC")
				}
			}
		}
	}()
}

func (s *badgerStore) stopGC() {
	s.chQuit <- struct{}{}
	s.chWg.Wait()
	close(s.chQuit)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return store.ErrNotFound
	case errors.Is(err, badger.ErrTxnTooBig):
		return store.Wrap(store.ErrLimit, err)
	case errors.Is(err, badger.ErrConflict):
		return store.Wrap(store.ErrBusy, err)
	case errors.Is(err, badger.ErrBlockedWrites):
		return store.Wrap(store.ErrLocked, err)
	case errors.Is(err, badger.ErrReadOnlyTxn):
		return store.Wrap(store.ErrReadOnly, err)
	case errors.Is(err, badger.ErrDBClosed), errors.Is(err, badger.ErrDiscardedTxn):
		return store.Wrap(store.ErrClosed, err)
	case errors.Is(err, badger.ErrInvalidRequest):
		return store.Wrap(store.ErrInvalid, err)
	}
	return err
}

func (s *badgerStore) view(fn func(txn *badger.Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return store.ErrClosed
	}
	if s.txn != nil {
		return mapErr(fn(s.txn))
	}
	return mapErr(s.db.View(fn))
}

func (s *badgerStore) update(fn func(txn *badger.Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return store.ErrClosed
	}
	if s.readOnly {
		return store.ErrReadOnly
	}
	s.begin()
	return mapErr(fn(s.txn))
}

func (s *badgerStore) begin() {
	if s.txn == nil {
		s.txn = s.db.NewTransaction(true)
	}
}

func getItemValue(item *badger.Item) ([]byte, error) {
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return append([]byte{}, value...), nil
}

func (s *badgerStore) Store(key, value []byte) error {
	return s.update(func(txn *badger.Txn) error {
		return txn.Set(internal.EncodeKey(key), append([]byte{}, value...))
	})
}

func (s *badgerStore) Append(key, value []byte) error {
	return s.update(func(txn *badger.Txn) error {
		k := internal.EncodeKey(key)

		var old []byte
		item, err := txn.Get(k)
		if err == nil {
			old, err = getItemValue(item)
		}
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(k, append(old, value...))
	})
}

func (s *badgerStore) Fetch(key []byte) ([]byte, error) {
	return s.Get(key)
}

func (s *badgerStore) Delete(key []byte) error {
	return s.update(func(txn *badger.Txn) error {
		k := internal.EncodeKey(key)
		if _, err := txn.Get(k); err != nil {
			return err
		}
		return txn.Delete(k)
	})
}

func (s *badgerStore) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return store.ErrClosed
	}
	if s.readOnly {
		return store.ErrReadOnly
	}
	s.begin()
	return nil
}

func (s *badgerStore) finish(commit bool) error {
	if s.txn == nil {
		return nil
	}
	txn := s.txn
	s.txn = nil
	if commit {
		return mapErr(txn.Commit())
	}
	txn.Discard()
	return nil
}

func (s *badgerStore) Commit() error {
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

func (s *badgerStore) Rollback() error {
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

func (s *badgerStore) Cursor() (store.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, store.ErrClosed
	}
	return store.NewCursor(s, true), nil
}

func (s *badgerStore) Close(commit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return store.ErrClosed
	}

	txErr := s.finish(commit)
	s.stopGC()
	err := s.db.Close()
	s.db = nil
	if txErr != nil {
		return txErr
	}
	return mapErr(err)
}

// iterate positions a fresh iterator with seek and returns the decoded key
// it lands on.
func (s *badgerStore) iterate(reverse bool, seek func(it *badger.Iterator)) ([]byte, error) {
	var key []byte
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = reverse

		it := txn.NewIterator(opts)
		defer it.Close()

		seek(it)
		if !it.Valid() {
			return store.ErrDone
		}

		var err error
		key, err = internal.DecodeKey(it.Item().KeyCopy(nil))
		return err
	})
	return key, err
}

func (s *badgerStore) First() ([]byte, error) {
	return s.iterate(false, func(it *badger.Iterator) { it.Rewind() })
}

func (s *badgerStore) Last() ([]byte, error) {
	return s.iterate(true, func(it *badger.Iterator) { it.Rewind() })
}

func (s *badgerStore) After(key []byte) ([]byte, error) {
	return s.iterate(false, skipEqual(internal.EncodeKey(key)))
}

func (s *badgerStore) Before(key []byte) ([]byte, error) {
	return s.iterate(true, skipEqual(internal.EncodeKey(key)))
}

// skipEqual seeks to target and steps over it, so that the iterator lands
// strictly past target in its own direction.
func skipEqual(target []byte) func(it *badger.Iterator) {
	return func(it *badger.Iterator) {
		it.Seek(target)
		if it.Valid() && string(it.Item().Key()) == string(target) {
			it.Next()
		}
	}
}

func (s *badgerStore) Get(key []byte) ([]byte, error) {
	var value []byte
	err := s.view(func(txn *badger.Txn) error {
		item, err := txn.Get(internal.EncodeKey(key))
		if err != nil {
			return err
		}
		value, err = getItemValue(item)
		return err
	})
	return value, err
}

// logger routes badger's internal logging through zerolog.
type logger struct {
	zerolog.Logger
}

func (l logger) Errorf(format string, args ...interface{}) {
	l.Logger.Error().Msgf(format, args...)
}

func (l logger) Warningf(format string, args ...interface{}) {
	l.Logger.Warn().Msgf(format, args...)
}

func (l logger) Infof(format string, args ...interface{}) {
	l.Logger.Debug().Msgf(format, args...)
}

func (l logger) Debugf(format string, args ...interface{}) {
	l.Logger.Trace().Msgf(format, args...)
}
