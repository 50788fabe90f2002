package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/mailstore/xtime"
)

var (
	journalModes = []string{"DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF"}
	syncModes    = []string{"OFF", "NORMAL", "FULL", "EXTRA"}
)

// Config represents the application configuration, backed by a filesystem for
// persistence.
type Config struct {
	Store  Store
	Backup Backup

	fs   vfs.FileSystem
	path string
}

// NewConfig creates a new Config instance with the specified filesystem
// and configuration file path.
func NewConfig(fs vfs.FileSystem, path string) *Config {
	return &Config{fs: fs, path: path}
}

// Load reads and parses the configuration file from the filesystem.
// If the file doesn't exist, it initializes with an empty configuration.
func (c *Config) Load() error {
	configJSON, err := vfs.ReadFile(c.fs, c.path)
	if err != nil && !vfs.IsErrNotExist(err) {
		return fmt.Errorf("failed reading configuration file: %w", err)
	}

	if len(configJSON) == 0 {
		configJSON = []byte("{}")
	}

	if err = json.Unmarshal(configJSON, c); err != nil {
		return fmt.Errorf("failed parsing configuration file: %w", err)
	}

	return nil
}

// Path returns the filesystem path where the configuration is stored.
func (c *Config) Path() string {
	return c.path
}

// Save writes the current configuration to the filesystem as JSON.
func (c *Config) Save() error {
	if err := c.fs.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed creating configuration directory: %w", err)
	}
	configJSON, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed serializing configuration data: %w", err)
	}
	if err = vfs.WriteFile(c.fs, c.path, configJSON, 0o644); err != nil {
		return fmt.Errorf("failed writing configuration file: %w", err)
	}

	return nil
}

// Store defines configuration options of the mail store database.
type Store struct {
	// Path is the SQLite database file.
	Path sql.Null[string] `json:"path"`
	// JournalMode is the SQLite journal mode, e.g. WAL or DELETE.
	JournalMode sql.Null[string] `json:"journal_mode"`
	// Synchronous is the SQLite synchronous level, e.g. NORMAL or FULL.
	Synchronous sql.Null[string] `json:"synchronous"`
	// BusyTimeout is the amount of time to wait for a locked database.
	// It serializes from/to xtime.Duration string values.
	BusyTimeout sql.Null[time.Duration] `json:"busy_timeout"`
}

// Backup defines configuration options of store backups.
type Backup struct {
	// Dir is the directory backups are written to.
	Dir sql.Null[string] `json:"dir"`
	// BeforeMigrate enables writing a backup before a stale store is migrated.
	BeforeMigrate sql.Null[bool] `json:"before_migrate"`
	// Retention is the amount of time backups are kept for. Older backups are
	// removed after a new backup is written. Zero keeps backups forever.
	// It serializes from/to xtime.Duration string values.
	Retention sql.Null[time.Duration] `json:"retention"`
}

type cfgWrapper struct {
	Store  storeCfgWrapper  `json:"store"`
	Backup backupCfgWrapper `json:"backup"`
}
type storeCfgWrapper struct {
	Path        string `json:"path,omitempty"`
	JournalMode string `json:"journal_mode,omitempty"`
	Synchronous string `json:"synchronous,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
type backupCfgWrapper struct {
	Dir           string `json:"dir,omitempty"`
	BeforeMigrate *bool  `json:"before_migrate,omitempty"`
	Retention     string `json:"retention,omitempty"`
}

// MarshalJSON implements custom JSON marshaling to convert sql.Null values
// to their underlying types, omitting invalid/null fields from the output.
func (c Config) MarshalJSON() ([]byte, error) {
	w := cfgWrapper{}

	if c.Store.Path.Valid {
		w.Store.Path = c.Store.Path.V
	}
	if c.Store.JournalMode.Valid {
		w.Store.JournalMode = c.Store.JournalMode.V
	}
	if c.Store.Synchronous.Valid {
		w.Store.Synchronous = c.Store.Synchronous.V
	}
	if c.Store.BusyTimeout.Valid {
		w.Store.BusyTimeout = xtime.FormatDuration(c.Store.BusyTimeout.V, time.Millisecond)
	}

	if c.Backup.Dir.Valid {
		w.Backup.Dir = c.Backup.Dir.V
	}
	if c.Backup.BeforeMigrate.Valid {
		w.Backup.BeforeMigrate = &c.Backup.BeforeMigrate.V
	}
	if c.Backup.Retention.Valid {
		w.Backup.Retention = xtime.FormatDuration(c.Backup.Retention.V, time.Hour)
	}

	//nolint:wrapcheck // This is fine.
	return json.Marshal(w)
}

// UnmarshalJSON implements custom JSON unmarshaling to convert plain values
// into sql.Null types and parse duration strings into time.Duration values.
func (c *Config) UnmarshalJSON(data []byte) error {
	var w cfgWrapper
	if err := json.Unmarshal(data, &w); err != nil {
		//nolint:wrapcheck // This is fine.
		return err
	}

	if w.Store.Path != "" {
		c.Store.Path = sql.Null[string]{V: w.Store.Path, Valid: true}
	}
	if w.Store.JournalMode != "" {
		mode, err := parseEnum("journal mode", w.Store.JournalMode, journalModes)
		if err != nil {
			return err
		}
		c.Store.JournalMode = sql.Null[string]{V: mode, Valid: true}
	}
	if w.Store.Synchronous != "" {
		mode, err := parseEnum("synchronous level", w.Store.Synchronous, syncModes)
		if err != nil {
			return err
		}
		c.Store.Synchronous = sql.Null[string]{V: mode, Valid: true}
	}
	if w.Store.BusyTimeout != "" {
		dur, err := xtime.ParseDuration(w.Store.BusyTimeout)
		if err != nil {
			return fmt.Errorf("failed parsing store busy timeout: %w", err)
		}
		if dur < 0 {
			return fmt.Errorf("invalid store busy timeout %s: must not be negative", w.Store.BusyTimeout)
		}
		c.Store.BusyTimeout = sql.Null[time.Duration]{V: dur, Valid: true}
	}

	if w.Backup.Dir != "" {
		c.Backup.Dir = sql.Null[string]{V: w.Backup.Dir, Valid: true}
	}
	if w.Backup.BeforeMigrate != nil {
		c.Backup.BeforeMigrate = sql.Null[bool]{V: *w.Backup.BeforeMigrate, Valid: true}
	}
	if w.Backup.Retention != "" {
		dur, err := xtime.ParseDuration(w.Backup.Retention)
		if err != nil {
			return fmt.Errorf("failed parsing backup retention: %w", err)
		}
		if dur < 0 {
			return fmt.Errorf("invalid backup retention %s: must not be negative", w.Backup.Retention)
		}
		c.Backup.Retention = sql.Null[time.Duration]{V: dur, Valid: true}
	}

	return nil
}

// SetDefaults sets default configuration values if they weren't set already.
// Relative store and backup paths are resolved from dataDir.
func (c *Config) SetDefaults(dataDir string) {
	if !c.Store.Path.Valid {
		c.Store.Path = sql.Null[string]{V: "mailstore.db", Valid: true}
	}
	if !filepath.IsAbs(c.Store.Path.V) {
		c.Store.Path.V = filepath.Join(dataDir, c.Store.Path.V)
	}
	if !c.Store.JournalMode.Valid {
		c.Store.JournalMode = sql.Null[string]{V: "WAL", Valid: true}
	}
	if !c.Store.Synchronous.Valid {
		c.Store.Synchronous = sql.Null[string]{V: "NORMAL", Valid: true}
	}
	if !c.Store.BusyTimeout.Valid {
		c.Store.BusyTimeout = sql.Null[time.Duration]{V: 5 * time.Second, Valid: true}
	}

	if !c.Backup.Dir.Valid {
		c.Backup.Dir = sql.Null[string]{V: "backups", Valid: true}
	}
	if !filepath.IsAbs(c.Backup.Dir.V) {
		c.Backup.Dir.V = filepath.Join(dataDir, c.Backup.Dir.V)
	}
	if !c.Backup.BeforeMigrate.Valid {
		c.Backup.BeforeMigrate = sql.Null[bool]{V: true, Valid: true}
	}
	if !c.Backup.Retention.Valid {
		c.Backup.Retention = sql.Null[time.Duration]{V: 30 * xtime.Day, Valid: true}
	}
}

func parseEnum(name, val string, valid []string) (string, error) {
	v := strings.ToUpper(val)
	if !slices.Contains(valid, v) {
		return "", fmt.Errorf("invalid %s '%s': must be one of %s",
			name, val, strings.Join(valid, ", "))
	}
	return v, nil
}
