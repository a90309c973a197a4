package unqkv

import (
	"fmt"
	"os"
	"time"

	"github.com/ostafen/unqkv/log"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	GCReclaimIntervalDefault = time.Minute * 5
	GCDiscardRatioDefault    = 0.5
	OpenTimeoutDefault       = time.Second
)

// Config contains handle configuration parameters
type Config struct {
	// Engine names the storage engine. Empty selects the hash engine for
	// in-memory names and bbolt for file paths.
	Engine string `yaml:"engine"`
	// DisableAutoCommit rolls back a pending transaction on Close instead of
	// committing it.
	DisableAutoCommit bool `yaml:"disable_auto_commit"`
	// OpenTimeout bounds the wait for the database file lock (bbolt). Open
	// fails with Busy when it expires.
	OpenTimeout time.Duration `yaml:"open_timeout"`

	GCReclaimInterval time.Duration `yaml:"gc_reclaim_interval"`
	GCDiscardRatio    float64       `yaml:"gc_discard_ratio"`
	CacheSize         int64         `yaml:"cache_size"`

	// LibraryPath locates the native UnQLite shared library.
	LibraryPath string `yaml:"library_path"`

	LogLevel string          `yaml:"log_level"`
	Logger   *zerolog.Logger `yaml:"-"`
}

func defaultConfig() *Config {
	return &Config{
		Engine:            EngineAuto,
		OpenTimeout:       OpenTimeoutDefault,
		GCReclaimInterval: GCReclaimIntervalDefault,
		GCDiscardRatio:    GCDiscardRatioDefault,
	}
}

func (c *Config) applyOptions(opts []Option) (*Config, error) {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, c.validate()
}

func (c *Config) validate() error {
	if _, ok := engines[c.Engine]; !ok && c.Engine != EngineAuto {
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	if c.GCDiscardRatio <= 0 || c.GCDiscardRatio >= 1 {
		return fmt.Errorf("gc discard ratio must be in (0, 1), got %v", c.GCDiscardRatio)
	}
	if c.LogLevel != "" {
		if _, err := log.ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// LoadConfig reads a YAML configuration file. Missing fields keep their
// defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := defaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, c.validate()
}

// Option is a function that takes a config struct and modifies it
type Option func(c *Config) error

// fillDefaults sets zero tuning fields to their defaults.
func (c *Config) fillDefaults() {
	d := defaultConfig()
	if c.OpenTimeout == 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	if c.GCReclaimInterval == 0 {
		c.GCReclaimInterval = d.GCReclaimInterval
	}
	if c.GCDiscardRatio == 0 {
		c.GCDiscardRatio = d.GCDiscardRatio
	}
}

// WithConfig replaces the whole configuration. Zero OpenTimeout,
// GCReclaimInterval and GCDiscardRatio take their defaults, so a partially
// filled Config is enough.
func WithConfig(cfg *Config) Option {
	return func(c *Config) error {
		*c = *cfg
		c.fillDefaults()
		return nil
	}
}

// WithConfigFile loads the configuration from a YAML file.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		cfg, err := LoadConfig(path)
		if err != nil {
			return err
		}
		*c = *cfg
		return nil
	}
}

// WithEngine selects the storage engine by name.
func WithEngine(name string) Option {
	return func(c *Config) error {
		c.Engine = name
		return nil
	}
}

// WithAutoCommit allows to enable/disable committing the pending transaction on Close.
func WithAutoCommit(enable bool) Option {
	return func(c *Config) error {
		c.DisableAutoCommit = !enable
		return nil
	}
}

func WithOpenTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.OpenTimeout = d
		return nil
	}
}

func WithGCReclaimInterval(d time.Duration) Option {
	return func(c *Config) error {
		c.GCReclaimInterval = d
		return nil
	}
}

func WithGCDiscardRatio(ratio float64) Option {
	return func(c *Config) error {
		c.GCDiscardRatio = ratio
		return nil
	}
}

func WithCacheSize(bytes int64) Option {
	return func(c *Config) error {
		c.CacheSize = bytes
		return nil
	}
}

func WithLibraryPath(path string) Option {
	return func(c *Config) error {
		c.LibraryPath = path
		return nil
	}
}

// WithLogger sets the logger used by the handle and its cursors.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) error {
		c.Logger = &l
		return nil
	}
}
