// Package config loads the settings of a portfolio data directory.
//
// Values come from, in increasing precedence: built-in defaults,
// <data-dir>/config.yaml, GYEOL_* environment variables. Command line flags
// are applied by the caller on top.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// FileName is the config file inside the data directory.
const FileName = "config.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GYEOL_"

// Blob backends.
const (
	BackendSQLite = "sqlite"
	BackendDir    = "dir"
	BackendMemory = "memory"
)

// Config configures a portfolio data directory.
type Config struct {
	// DataDir is the directory holding the document, blobs and history. It is
	// never read from the config file it contains.
	DataDir string `yaml:"-"`

	// StorageKey names the stored document; the file is <StorageKey>.json.
	StorageKey string `yaml:"storage_key" env:"STORAGE_KEY"`
	// BlobBackend is one of sqlite, dir or memory.
	BlobBackend string `yaml:"blob_backend" env:"BLOB_BACKEND"`
	// History commits the document to a git repository after every save.
	History            bool   `yaml:"history" env:"HISTORY"`
	HistoryAuthorName  string `yaml:"history_author_name" env:"HISTORY_AUTHOR_NAME"`
	HistoryAuthorEmail string `yaml:"history_author_email" env:"HISTORY_AUTHOR_EMAIL"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	// BackupInterval is the minimum delay between two automatic backups.
	BackupInterval time.Duration `yaml:"backup_interval" env:"BACKUP_INTERVAL"`
}

// Default returns the built-in configuration for dataDir.
func Default(dataDir string) *Config {
	return &Config{
		DataDir:            dataDir,
		StorageKey:         "geurim-gyeol-portfolio",
		BlobBackend:        BackendSQLite,
		History:            true,
		HistoryAuthorName:  "gyeol",
		HistoryAuthorEmail: "gyeol@localhost",
		LogLevel:           "info",
		BackupInterval:     2 * time.Second,
	}
}

// Load returns the configuration of dataDir. A missing config file is not an
// error.
//
// The result is not validated so callers can apply overrides first; call
// Validate before use.
func Load(dataDir string) (*Config, error) {
	c := Default(dataDir)
	b, err := os.ReadFile(filepath.Join(dataDir, FileName)) //nolint:gosec // G304: user-chosen data directory
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if c.DataDir == "" {
		c.DataDir = dataDir
	}
	return c, nil
}

// Save writes c to the config file of its data directory.
func (c *Config) Save() error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(c.DataDir, 0o750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.DataDir, FileName), b, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	return nil
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data directory is required")
	}
	if strings.TrimSpace(c.StorageKey) == "" {
		return errors.New("storage_key must not be empty")
	}
	if strings.ContainsAny(c.StorageKey, `/\`) || strings.HasPrefix(c.StorageKey, ".") {
		return fmt.Errorf("invalid storage_key %q", c.StorageKey)
	}
	switch c.BlobBackend {
	case BackendSQLite, BackendDir, BackendMemory:
	default:
		return fmt.Errorf("unknown blob_backend %q", c.BlobBackend)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.BackupInterval < 0 {
		return errors.New("backup_interval must be non-negative")
	}
	return nil
}

// Level returns the parsed LogLevel.
func (c *Config) Level() slog.Level {
	l, _ := ParseLevel(c.LogLevel)
	return l
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", s)
	}
}
