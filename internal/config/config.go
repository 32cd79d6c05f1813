package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Remote dataset source
	Remote RemoteConfig `mapstructure:"remote"`

	// Update scheduling and retry behavior
	Update UpdateConfig `mapstructure:"update"`

	// Local storage
	Storage StorageConfig `mapstructure:"storage"`

	// Notification server (serve mode)
	Server ServerConfig `mapstructure:"server"`

	// Logging
	Log LogConfig `mapstructure:"log"`
}

// RemoteConfig describes the dataset download source.
type RemoteConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// UpdateConfig controls the update-with-retry primitive.
type UpdateConfig struct {
	DefaultLang string        `mapstructure:"default_lang"`
	MaxRetries  int           `mapstructure:"max_retries"` // per step, after the first attempt
	RetryDelay  time.Duration `mapstructure:"retry_delay"` // initial backoff
	MaxDelay    time.Duration `mapstructure:"max_delay"`   // backoff cap
}

// StorageConfig selects and locates the persistent store.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // sqlite or bolt
	DataDir string `mapstructure:"data_dir"`
}

// ServerConfig for the WebSocket notification bridge.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
	File   string `mapstructure:"file"`   // empty = stderr
}

// Path returns the on-disk location of the store for the configured
// backend.
func (c *StorageConfig) Path() string {
	switch c.Backend {
	case "bolt":
		return filepath.Join(c.DataDir, "jiten.bolt")
	default:
		return filepath.Join(c.DataDir, "jiten.db")
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	switch c.Storage.Backend {
	case "sqlite", "bolt":
	default:
		return fmt.Errorf("storage.backend must be sqlite or bolt, got %q", c.Storage.Backend)
	}
	if c.Update.MaxRetries < 0 {
		return fmt.Errorf("update.max_retries must not be negative")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "jiten")
	}
	return ".jiten"
}
