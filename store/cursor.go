package store

import "errors"

// Navigator resolves positions against an engine's current view. Engines
// that can answer these questions get a Cursor for free through NewCursor.
//
// Every method returns ErrDone when no record satisfies the request.
type Navigator interface {
	First() ([]byte, error)
	Last() ([]byte, error)
	// After returns the key following key in traversal order.
	After(key []byte) ([]byte, error)
	// Before returns the key preceding key in traversal order.
	Before(key []byte) ([]byte, error)
	Get(key []byte) ([]byte, error)
}

type navCursor struct {
	nav    Navigator
	ranged bool

	pos      []byte
	released bool
}

// NewCursor returns a cursor that remembers the key it is positioned on and
// re-resolves every move against nav. When ranged is false, MatchLE and
// MatchGE seeks behave like MatchExact.
func NewCursor(nav Navigator, ranged bool) Cursor {
	return &navCursor{nav: nav, ranged: ranged}
}

func (c *navCursor) move(key []byte, err error) error {
	if err != nil {
		c.pos = nil
		return err
	}
	c.pos = append(make([]byte, 0, len(key)), key...)
	return nil
}

func (c *navCursor) Seek(key []byte, dir SeekDirection) error {
	if c.released {
		return ErrClosed
	}

	if !c.ranged {
		dir = MatchExact
	}

	switch dir {
	case MatchExact:
		_, err := c.nav.Get(key)
		return c.move(key, err)
	case MatchLE:
		k, err := c.nav.Before(key)
		return c.move(k, notFound(err))
	case MatchGE:
		k, err := c.nav.After(key)
		return c.move(k, notFound(err))
	}
	c.pos = nil
	return ErrInvalid
}

func notFound(err error) error {
	if errors.Is(err, ErrDone) {
		return ErrNotFound
	}
	return err
}

func (c *navCursor) First() error {
	if c.released {
		return ErrClosed
	}
	return c.move(c.nav.First())
}

func (c *navCursor) Last() error {
	if c.released {
		return ErrClosed
	}
	return c.move(c.nav.Last())
}

func (c *navCursor) Next() error {
	if c.released {
		return ErrClosed
	}
	if c.pos == nil {
		return ErrDone
	}
	return c.move(c.nav.After(c.pos))
}

func (c *navCursor) Prev() error {
	if c.released {
		return ErrClosed
	}
	if c.pos == nil {
		return ErrDone
	}
	return c.move(c.nav.Before(c.pos))
}

// Valid also fails when the record under the cursor has been deleted.
func (c *navCursor) Valid() bool {
	if c.released || c.pos == nil {
		return false
	}
	_, err := c.nav.Get(c.pos)
	return err == nil
}

func (c *navCursor) Key() ([]byte, error) {
	if !c.Valid() {
		return nil, ErrEOF
	}
	return append([]byte{}, c.pos...), nil
}

func (c *navCursor) Data() ([]byte, error) {
	if !c.Valid() {
		return nil, ErrEOF
	}
	return c.nav.Get(c.pos)
}

func (c *navCursor) Reset() error {
	if c.released {
		return ErrClosed
	}
	c.pos = nil
	return nil
}

func (c *navCursor) Release() error {
	c.released = true
	c.pos = nil
	return nil
}
