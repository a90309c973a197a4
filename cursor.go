package unqkv

import (
	"github.com/ostafen/unqkv/store"
	"github.com/rs/zerolog"
)

// Cursor iterates over the records of a Handle in engine-defined order.
//
// A freshly created cursor is not positioned: call First, Last or Seek
// before reading. Moving past either end leaves the cursor invalid with
// result code Done. The owning Handle must stay open for the whole lifetime
// of the cursor, and Close must be called to release the engine iterator.
type Cursor struct {
	handle *Handle
	cursor store.Cursor
	code   ResultCode
	logger zerolog.Logger
}

func newCursor(h *Handle) *Cursor {
	c := &Cursor{
		handle: h,
		logger: h.logger.With().Str("component", "cursor").Logger(),
	}

	if h.engine == nil {
		c.setCode("init", store.ErrClosed)
		return c
	}

	cur, err := h.engine.Cursor()
	if c.setCode("init", err) {
		c.cursor = cur
	}
	return c
}

// LastResultCode returns the result code of the last cursor operation.
func (c *Cursor) LastResultCode() ResultCode {
	return c.code
}

func (c *Cursor) setCode(op string, err error) bool {
	c.code = codeOf(err)
	if c.code != Ok {
		c.logger.Debug().Str("op", op).Stringer("code", c.code).Err(err).Msg("cursor operation failed")
	}
	return c.code == Ok
}

func (c *Cursor) do(op string, fn func(cur store.Cursor) error) bool {
	if c.cursor == nil {
		return c.setCode(op, store.ErrClosed)
	}
	return c.setCode(op, fn(c.cursor))
}

// Reset returns the cursor to its unpositioned state.
func (c *Cursor) Reset() bool {
	return c.do("reset", store.Cursor.Reset)
}

// Seek positions the cursor relative to key according to dir.
//
// Le and Ge are honored only by engines with ordered keys; other engines
// perform an exact match instead.
func (c *Cursor) Seek(key []byte, dir SeekDirection) bool {
	return c.do("seek", func(cur store.Cursor) error {
		return cur.Seek(key, dir)
	})
}

// First moves to the first record.
func (c *Cursor) First() bool {
	return c.do("first", store.Cursor.First)
}

// Last moves to the last record.
func (c *Cursor) Last() bool {
	return c.do("last", store.Cursor.Last)
}

// Next moves to the following record.
func (c *Cursor) Next() bool {
	return c.do("next", store.Cursor.Next)
}

// Previous moves to the preceding record.
func (c *Cursor) Previous() bool {
	return c.do("previous", store.Cursor.Prev)
}

// IsValid reports whether the cursor points to a record. The engine is asked
// every time.
func (c *Cursor) IsValid() bool {
	return c.cursor != nil && c.cursor.Valid()
}

func (c *Cursor) read(op string, fn func(cur store.Cursor) ([]byte, error)) []byte {
	var data []byte
	ok := c.do(op, func(cur store.Cursor) error {
		var err error
		data, err = fn(cur)
		return err
	})
	if !ok || data == nil {
		return []byte{}
	}
	return data
}

// Key returns the key of the current record, empty if the cursor is not
// valid.
func (c *Cursor) Key() []byte {
	return c.read("key", store.Cursor.Key)
}

// Value returns the value of the current record, empty if the cursor is not
// valid.
func (c *Cursor) Value() []byte {
	return c.read("value", store.Cursor.Data)
}

// ValueText returns Value as a string.
func (c *Cursor) ValueText() string {
	return string(c.Value())
}

// ForEach visits every record from the first one. An error returned by fn
// stops the traversal and sets Abort.
func (c *Cursor) ForEach(fn func(key, value []byte) error) bool {
	for c.First(); c.IsValid(); c.Next() {
		key := c.Key()
		if c.code != Ok {
			return false
		}
		value := c.Value()
		if c.code != Ok {
			return false
		}
		if err := fn(key, value); err != nil {
			c.setCode("foreach", store.Wrap(store.ErrAbort, err))
			return false
		}
	}

	switch c.code {
	case Ok, Done, EndOfInput:
	default:
		return false
	}
	c.code = Ok
	return true
}

// Close releases the engine iterator. The cursor is unusable afterwards.
func (c *Cursor) Close() bool {
	if !c.do("close", store.Cursor.Release) {
		return false
	}
	c.cursor = nil
	return true
}
