package store

import (
	"errors"
	"fmt"
)

// SeekDirection selects how Cursor.Seek positions a cursor relative to the
// seek key. Values match UNQLITE_CURSOR_MATCH_*.
type SeekDirection int

const (
	MatchExact SeekDirection = 1
	MatchLE    SeekDirection = 2
	MatchGE    SeekDirection = 3
)

// Open flags, identical to UNQLITE_OPEN_*.
const (
	OpenReadOnly  uint32 = 0x00000001
	OpenReadWrite uint32 = 0x00000002
	OpenCreate    uint32 = 0x00000004
	OpenMMap      uint32 = 0x00000100
)

// ReadOnly reports whether flags request a read-only connection.
func ReadOnly(flags uint32) bool {
	return flags&OpenReadOnly != 0
}

// Engine is a single connection to a key/value storage engine.
//
// Mutating calls open a write transaction when none is active. The
// transaction stays open until Commit, Rollback or Close, and every read
// made through the engine (including cursors) observes it.
type Engine interface {
	Store(key, value []byte) error
	Append(key, value []byte) error
	Fetch(key []byte) ([]byte, error)
	Delete(key []byte) error

	Begin() error
	Commit() error
	Rollback() error

	Cursor() (Cursor, error)

	// Close releases the connection. A pending transaction is committed
	// when commit is true, rolled back otherwise.
	Close(commit bool) error
}

// Cursor is an engine iterator. Moving past either end leaves the cursor
// invalid and returns ErrDone.
type Cursor interface {
	Seek(key []byte, dir SeekDirection) error
	First() error
	Last() error
	Next() error
	Prev() error
	Valid() bool
	Key() ([]byte, error)
	Data() ([]byte, error)
	Reset() error
	Release() error
}

var (
	ErrNotFound       = errors.New("no such record")
	ErrDone           = errors.New("no more records")
	ErrEOF            = errors.New("cursor is not positioned on a record")
	ErrReadOnly       = errors.New("read-only engine")
	ErrClosed         = errors.New("engine is closed")
	ErrBusy           = errors.New("database file is locked")
	ErrLocked         = errors.New("forbidden operation")
	ErrLimit          = errors.New("engine limit reached")
	ErrFull           = errors.New("database is full")
	ErrInvalid        = errors.New("invalid parameter")
	ErrEmpty          = errors.New("empty record")
	ErrExists         = errors.New("record exists")
	ErrAbort          = errors.New("operation aborted")
	ErrNotImplemented = errors.New("operation not implemented by engine")
	ErrCannotOpen     = errors.New("unable to open database")
)

// Status is a raw integer status returned by a native engine.
type Status int

func (s Status) Error() string {
	return fmt.Sprintf("engine status %d", int(s))
}

var statusKinds = map[Status]error{
	-4:  ErrLocked,
	-6:  ErrNotFound,
	-7:  ErrLimit,
	-9:  ErrInvalid,
	-10: ErrAbort,
	-11: ErrExists,
	-14: ErrBusy,
	-17: ErrNotImplemented,
	-18: ErrEOF,
	-24: ErrClosed,
	-28: ErrDone,
	-73: ErrFull,
	-74: ErrCannotOpen,
	-75: ErrReadOnly,
}

// Is lets errors.Is match a native status against the sentinel of the same
// kind.
func (s Status) Is(target error) bool {
	kind, ok := statusKinds[s]
	return ok && kind == target
}

// Wrap annotates err with the sentinel kind so that errors.Is matches both.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, err)
}
