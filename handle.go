package unqkv

import (
	"github.com/gofrs/uuid/v5"
	"github.com/ostafen/unqkv/log"
	"github.com/ostafen/unqkv/store"
	"github.com/rs/zerolog"
)

// Handle owns one connection to a storage engine.
//
// Every method records a ResultCode retrievable through LastResultCode and
// returns true only when that code is Ok. A Handle is not safe for concurrent
// use; callers sharing one across goroutines must serialize access.
type Handle struct {
	id     uuid.UUID
	config *Config
	optErr error
	logger zerolog.Logger

	engine store.Engine
	code   ResultCode
}

// New constructs an unopened Handle. Option errors are reported by Open.
func New(opts ...Option) *Handle {
	h := &Handle{id: uuid.Must(uuid.NewV4())}

	cfg, err := defaultConfig().applyOptions(opts)
	if err != nil {
		h.optErr = err
		cfg = defaultConfig()
	}
	h.config = cfg

	logger := log.Handle
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	if lvl, err := log.ParseLogLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		logger = logger.Level(lvl)
	}
	h.logger = logger.With().Stringer("handle", h.id).Logger()
	return h
}

// ID identifies the handle in log output.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// LastResultCode returns the result code of the last operation.
func (h *Handle) LastResultCode() ResultCode {
	return h.code
}

func (h *Handle) setCode(op string, err error) bool {
	h.code = codeOf(err)
	if h.code != Ok {
		h.logger.Debug().Str("op", op).Stringer("code", h.code).Err(err).Msg("operation failed")
	}
	return h.code == Ok
}

// setResult records a code that was already translated, such as one taken
// from a cursor.
func (h *Handle) setResult(op string, code ResultCode) bool {
	h.code = code
	if code != Ok {
		h.logger.Debug().Str("op", op).Stringer("code", code).Msg("operation failed")
	}
	return code == Ok
}

func (h *Handle) checkOpen(op string) bool {
	if h.engine == nil {
		return h.setCode(op, store.ErrClosed)
	}
	return true
}

// Open connects the handle to the database called name. ":mem:" or an empty
// name creates a private in-memory database that vanishes on Close.
func (h *Handle) Open(name string, mode OpenMode) bool {
	if h.optErr != nil {
		return h.setCode("open", store.Wrap(store.ErrInvalid, h.optErr))
	}
	if h.engine != nil {
		return h.setCode("open", store.ErrLocked)
	}

	engine, err := openEngine(name, mode, h.config)
	if !h.setCode("open", err) {
		return false
	}
	h.engine = engine

	h.logger.Info().Str("name", name).Str("engine", h.config.Engine).
		Uint32("mode", uint32(mode)).Msg("database opened")
	return true
}

// Close releases the connection. A pending transaction is committed, or
// rolled back when auto-commit is disabled. Cursors created from this handle
// must be closed before.
func (h *Handle) Close() bool {
	if !h.checkOpen("close") {
		return false
	}

	err := h.engine.Close(!h.config.DisableAutoCommit)
	h.engine = nil
	if !h.setCode("close", err) {
		return false
	}
	h.logger.Info().Msg("database closed")
	return true
}

// Store writes value under key, replacing any previous value.
func (h *Handle) Store(key, value []byte) bool {
	if !h.checkOpen("store") {
		return false
	}
	return h.setCode("store", h.engine.Store(key, value))
}

// Append writes value under key, concatenating it to any previous value.
func (h *Handle) Append(key, value []byte) bool {
	if !h.checkOpen("append") {
		return false
	}
	return h.setCode("append", h.engine.Append(key, value))
}

// Fetch returns the value stored under key. On failure the result is empty
// and LastResultCode tells a missing key (NotFound) apart from an empty value.
func (h *Handle) Fetch(key []byte) []byte {
	if !h.checkOpen("fetch") {
		return []byte{}
	}

	value, err := h.engine.Fetch(key)
	if !h.setCode("fetch", err) || value == nil {
		return []byte{}
	}
	return value
}

// Remove deletes the record stored under key. NotFound if it does not exist.
func (h *Handle) Remove(key []byte) bool {
	if !h.checkOpen("remove") {
		return false
	}
	return h.setCode("remove", h.engine.Delete(key))
}

// Cursor returns a new cursor over this handle. The cursor keeps its own
// result code; the handle's code is left untouched.
func (h *Handle) Cursor() *Cursor {
	return newCursor(h)
}

// Begin opens a write transaction. It is a no-op when one is already open.
//
// Calling Begin is optional: the engine opens a transaction on the first
// store, append or remove and keeps it open until Commit, Rollback or Close.
// Explicit transactions batch many writes and allow a rollback.
func (h *Handle) Begin() bool {
	if !h.checkOpen("begin") {
		return false
	}
	return h.setCode("begin", h.engine.Begin())
}

// Commit makes all changes of the open transaction durable.
func (h *Handle) Commit() bool {
	if !h.checkOpen("commit") {
		return false
	}
	return h.setCode("commit", h.engine.Commit())
}

// Rollback reverts all changes of the open transaction. It is a no-op when
// no transaction is open.
func (h *Handle) Rollback() bool {
	if !h.checkOpen("rollback") {
		return false
	}
	return h.setCode("rollback", h.engine.Rollback())
}
