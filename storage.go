package unqkv

import (
	"fmt"

	"github.com/ostafen/unqkv/store"
	"github.com/ostafen/unqkv/store/badger"
	"github.com/ostafen/unqkv/store/bbolt"
	"github.com/ostafen/unqkv/store/btree"
	"github.com/ostafen/unqkv/store/hash"
	"github.com/ostafen/unqkv/store/pebble"
	"github.com/ostafen/unqkv/store/unqlite"
)

// Engine names accepted by WithEngine.
const (
	EngineAuto    = ""
	EngineHash    = "hash"
	EngineBTree   = "btree"
	EngineBolt    = "bbolt"
	EngineBadger  = "badger"
	EnginePebble  = "pebble"
	EngineUnQLite = "unqlite"
)

// MemoryName opens a private in-memory database that vanishes on Close.
const MemoryName = ":mem:"

func isInMemory(name string) bool {
	return name == "" || name == MemoryName
}

type engineOpener func(name string, flags uint32, c *Config) (store.Engine, error)

var engines = map[string]engineOpener{
	EngineHash: func(_ string, flags uint32, _ *Config) (store.Engine, error) {
		return hash.Open(flags), nil
	},
	EngineBTree: func(_ string, flags uint32, _ *Config) (store.Engine, error) {
		return btree.Open(flags), nil
	},
	EngineBolt: func(name string, flags uint32, c *Config) (store.Engine, error) {
		if isInMemory(name) {
			return nil, fmt.Errorf("%w: bbolt has no in-memory mode", store.ErrNotImplemented)
		}
		return bbolt.Open(name, flags, bbolt.Options{Timeout: c.OpenTimeout})
	},
	EngineBadger: func(name string, flags uint32, c *Config) (store.Engine, error) {
		return badger.Open(name, flags, badger.Options{
			InMemory:       isInMemory(name),
			GCInterval:     c.GCReclaimInterval,
			GCDiscardRatio: c.GCDiscardRatio,
		})
	},
	EnginePebble: func(name string, flags uint32, c *Config) (store.Engine, error) {
		return pebble.Open(name, flags, pebble.Options{
			InMemory:  isInMemory(name),
			CacheSize: c.CacheSize,
		})
	},
	EngineUnQLite: func(name string, flags uint32, c *Config) (store.Engine, error) {
		if name == "" {
			name = MemoryName
		}
		return unqlite.Open(name, flags, unqlite.Options{LibraryPath: c.LibraryPath})
	},
}

func openEngine(name string, mode OpenMode, c *Config) (store.Engine, error) {
	kind := c.Engine
	if kind == EngineAuto {
		kind = EngineBolt
		if isInMemory(name) {
			kind = EngineHash
		}
	}

	open, ok := engines[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown engine %q", store.ErrNotImplemented, kind)
	}
	return open(name, uint32(mode), c)
}
