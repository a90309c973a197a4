package unqkv

import (
	"errors"
	"os"
	"strconv"

	"github.com/ostafen/unqkv/store"
)

// ResultCode is the outcome of the last operation on a Handle or Cursor.
// Values are identical to UnQLite's status codes.
type ResultCode int

const (
	Ok ResultCode = 0

	NoMemory        ResultCode = -1
	IoError         ResultCode = -2
	Empty           ResultCode = -3
	Locked          ResultCode = -4
	NotFound        ResultCode = -6
	Limit           ResultCode = -7
	Invalid         ResultCode = -9
	Abort           ResultCode = -10
	Exists          ResultCode = -11
	UnknownError    ResultCode = -13
	Busy            ResultCode = -14
	NotImplemented  ResultCode = -17
	EndOfInput      ResultCode = -18
	PermissionError ResultCode = -19
	NoSuchFunction  ResultCode = -20
	CorruptPointer  ResultCode = -24
	Done            ResultCode = -28
	CompileError    ResultCode = -70
	VMError         ResultCode = -71
	Full            ResultCode = -73
	CannotOpen      ResultCode = -74
	IsReadOnly      ResultCode = -75
	LockingError    ResultCode = -76
)

var codeNames = map[ResultCode]string{
	Ok:              "Ok",
	NoMemory:        "NoMemory",
	IoError:         "IoError",
	Empty:           "Empty",
	Locked:          "Locked",
	NotFound:        "NotFound",
	Limit:           "Limit",
	Invalid:         "Invalid",
	Abort:           "Abort",
	Exists:          "Exists",
	UnknownError:    "UnknownError",
	Busy:            "Busy",
	NotImplemented:  "NotImplemented",
	EndOfInput:      "EndOfInput",
	PermissionError: "PermissionError",
	NoSuchFunction:  "NoSuchFunction",
	CorruptPointer:  "CorruptPointer",
	Done:            "Done",
	CompileError:    "CompileError",
	VMError:         "VMError",
	Full:            "Full",
	CannotOpen:      "CannotOpen",
	IsReadOnly:      "IsReadOnly",
	LockingError:    "LockingError",
}

func (c ResultCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "ResultCode(" + strconv.Itoa(int(c)) + ")"
}

// Retryable reports whether the failure is a transient lock conflict.
// Nothing in this package retries on its own.
func (c ResultCode) Retryable() bool {
	return c == Busy || c == Locked
}

// OpenMode holds the UNQLITE_OPEN_* bits passed to the engine.
type OpenMode uint32

const (
	// Create opens the database read+write, creating it when missing.
	Create = OpenMode(store.OpenCreate)
	// ReadWrite opens an existing database read+write.
	ReadWrite = OpenMode(store.OpenReadWrite)
	// ReadOnly refuses store, append, delete and transaction control.
	ReadOnly = OpenMode(store.OpenReadOnly)
	// ReadOnlyWithMMap is ReadOnly over a memory view of the whole file.
	ReadOnlyWithMMap = OpenMode(store.OpenReadOnly | store.OpenMMap)
)

// SeekDirection controls Cursor.Seek.
type SeekDirection = store.SeekDirection

const (
	// ExactMatch leaves the cursor on the key, or at EOF with NotFound.
	ExactMatch = store.MatchExact
	// Le moves to the largest key smaller than the seek key.
	Le = store.MatchLE
	// Ge moves to the smallest key larger than the seek key.
	Ge = store.MatchGE
)

var sentinelCodes = []struct {
	err  error
	code ResultCode
}{
	{store.ErrNotFound, NotFound},
	{store.ErrDone, Done},
	{store.ErrEOF, EndOfInput},
	{store.ErrReadOnly, IsReadOnly},
	{store.ErrClosed, CorruptPointer},
	{store.ErrBusy, Busy},
	{store.ErrLocked, Locked},
	{store.ErrLimit, Limit},
	{store.ErrFull, Full},
	{store.ErrInvalid, Invalid},
	{store.ErrEmpty, Empty},
	{store.ErrExists, Exists},
	{store.ErrAbort, Abort},
	{store.ErrNotImplemented, NotImplemented},
	{store.ErrCannotOpen, CannotOpen},
	{os.ErrPermission, PermissionError},
	{os.ErrNotExist, CannotOpen},
}

// codeOf translates an engine error into a ResultCode.
func codeOf(err error) ResultCode {
	if err == nil {
		return Ok
	}

	var status store.Status
	if errors.As(err, &status) {
		return ResultCode(status)
	}

	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return IoError
}
