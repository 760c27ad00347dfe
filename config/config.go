// Package config loads the TOML configuration of a tenantkv server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jrife/tenantkv/cost"
	"github.com/jrife/tenantkv/lock"
	"github.com/jrife/tenantkv/storage"
	"github.com/jrife/tenantkv/storage/kv"
)

const (
	defaultListenAddr     = "127.0.0.1:8080"
	defaultLogLevel       = "info"
	defaultBackendPlugin  = "redis"
	defaultBackendTimeout = 5 * time.Second
	defaultOverflowTimeout = 30 * time.Second
	defaultLogMaxSize     = 300
)

// Duration is a time.Duration written as a string
// such as "200ms" or "1m30s"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))

	if err != nil {
		return err
	}

	d.Duration = duration

	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// FileLogConfig configures log rotation
type FileLogConfig struct {
	// Filename is the log file. Logs go to stderr if it is empty.
	Filename string `toml:"filename"`
	// MaxSize is the size in megabytes at which the file is rotated
	MaxSize int `toml:"max-size"`
	// MaxDays is the number of days rotated files are kept
	MaxDays int `toml:"max-days"`
	// MaxBackups is the number of rotated files kept
	MaxBackups int `toml:"max-backups"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string        `toml:"level"`
	File  FileLogConfig `toml:"file"`
}

// BackendConfig selects and configures the kv backend
type BackendConfig struct {
	Plugin string `toml:"plugin"`
	// Timeout bounds every backend round-trip
	Timeout   Duration               `toml:"timeout"`
	ScanCount int64                  `toml:"scan-count"`
	Options   map[string]interface{} `toml:"options"`
}

// LockConfig configures the lock manager
type LockConfig struct {
	RetryDelay Duration `toml:"retry-delay"`
	RetryCount int      `toml:"retry-count"`
	Expiry     Duration `toml:"expiry"`
}

// CostConfig holds the price list
type CostConfig struct {
	List       int64 `toml:"list"`
	Store      int64 `toml:"store"`
	Exists     int64 `toml:"exists"`
	MemoryUnit int64 `toml:"memory-unit"`
}

// Tiers returns the price list as cost tiers
func (c CostConfig) Tiers() cost.Tiers {
	return cost.Tiers{
		List:       c.List,
		Store:      c.Store,
		Exists:     c.Exists,
		MemoryUnit: c.MemoryUnit,
	}
}

// OverflowConfig configures the content store for large
// values. Overflow is disabled when Plugin is empty.
type OverflowConfig struct {
	Plugin    string   `toml:"plugin"`
	Threshold int      `toml:"threshold"`
	Endpoint  string   `toml:"endpoint"`
	AccessKey string   `toml:"access-key"`
	SecretKey string   `toml:"secret-key"`
	Bucket    string   `toml:"bucket"`
	Secure    bool     `toml:"secure"`
	Timeout   Duration `toml:"timeout"`
}

// Config is the configuration of a tenantkv server
type Config struct {
	ListenAddr string         `toml:"listen-addr"`
	Log        LogConfig      `toml:"log"`
	Backend    BackendConfig  `toml:"backend"`
	Lock       LockConfig     `toml:"lock"`
	Cost       CostConfig     `toml:"cost"`
	Overflow   OverflowConfig `toml:"overflow"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	c := &Config{}
	c.Adjust()

	return c
}

// Load reads the configuration at path and applies defaults
// to anything it leaves out. Unknown keys are an error.
func Load(path string) (*Config, error) {
	c := &Config{}
	meta, err := toml.DecodeFile(path, c)

	if err != nil {
		return nil, fmt.Errorf("could not decode %s: %s", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) != 0 {
		items := make([]string, 0, len(undecoded))

		for _, key := range undecoded {
			items = append(items, key.String())
		}

		return nil, fmt.Errorf("config contains undefined items: %s", strings.Join(items, ", "))
	}

	c.Adjust()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Adjust fills in defaults for unset values
func (c *Config) Adjust() {
	adjustString(&c.ListenAddr, defaultListenAddr)
	adjustString(&c.Log.Level, defaultLogLevel)
	adjustInt(&c.Log.File.MaxSize, defaultLogMaxSize)
	adjustString(&c.Backend.Plugin, defaultBackendPlugin)
	adjustDuration(&c.Backend.Timeout, defaultBackendTimeout)

	if c.Backend.ScanCount == 0 {
		c.Backend.ScanCount = storage.DefaultScanCount
	}

	if c.Backend.Options == nil {
		c.Backend.Options = map[string]interface{}{}
	}

	adjustDuration(&c.Lock.RetryDelay, lock.DefaultRetryDelay)
	adjustInt(&c.Lock.RetryCount, lock.DefaultRetryCount)
	adjustDuration(&c.Lock.Expiry, lock.DefaultExpiry)

	tiers := cost.DefaultTiers()
	adjustInt64(&c.Cost.List, tiers.List)
	adjustInt64(&c.Cost.Store, tiers.Store)
	adjustInt64(&c.Cost.Exists, tiers.Exists)
	adjustInt64(&c.Cost.MemoryUnit, tiers.MemoryUnit)

	adjustInt(&c.Overflow.Threshold, storage.DefaultOverflowThreshold)
	adjustDuration(&c.Overflow.Timeout, defaultOverflowTimeout)
}

// Validate checks that every value is in range
func (c *Config) Validate() error {
	switch {
	case c.Backend.Timeout.Duration < 0:
		return errors.New("backend.timeout must not be negative")
	case c.Backend.ScanCount < 0:
		return errors.New("backend.scan-count must not be negative")
	case c.Lock.RetryDelay.Duration <= 0:
		return errors.New("lock.retry-delay must be positive")
	case c.Lock.RetryCount <= 0:
		return errors.New("lock.retry-count must be positive")
	case c.Lock.Expiry.Duration < time.Millisecond:
		return errors.New("lock.expiry must be at least 1ms")
	case c.Cost.List < 0 || c.Cost.Store < 0 || c.Cost.Exists < 0 || c.Cost.MemoryUnit < 0:
		return errors.New("costs must not be negative")
	case c.Overflow.Threshold <= 0:
		return errors.New("overflow.threshold must be positive")
	}

	return nil
}

// BackendOptions returns the options passed to the backend plugin
func (c *Config) BackendOptions() kv.PluginOptions {
	return kv.PluginOptions(c.Backend.Options)
}

func adjustString(v *string, defValue string) {
	if len(*v) == 0 {
		*v = defValue
	}
}

func adjustInt(v *int, defValue int) {
	if *v == 0 {
		*v = defValue
	}
}

func adjustInt64(v *int64, defValue int64) {
	if *v == 0 {
		*v = defValue
	}
}

func adjustDuration(v *Duration, defValue time.Duration) {
	if v.Duration == 0 {
		v.Duration = defValue
	}
}
