// Package config holds engine configuration with optional overrides from
// a .refract.kdl file at the project root.
package config

import "path/filepath"

// Config is the full engine configuration.
type Config struct {
	Project     Project
	Scan        Scan
	Find        Find
	Backups     Backups
	Performance Performance
	Exclude     []string
}

// Project identifies the codebase being refactored.
type Project struct {
	Root     string
	Name     string
	Language string // empty means auto-detect
}

// Scan bounds the project file walk.
type Scan struct {
	MaxFileSize  int64
	MaxFileCount int
	TimeoutMs    int // snapshot load deadline; expiry truncates the scan
	WatchMode    bool
}

// Find controls symbol search behavior.
type Find struct {
	MaxResults int
}

// Backups controls the pre-edit snapshot store.
type Backups struct {
	Dir        string // empty means <root>/.refract/backups
	MaxAgeDays int
	Keep       int // minimum backups retained regardless of age
}

// Performance bounds resource usage.
type Performance struct {
	MaxGoroutines int
	DebounceMs    int
}

// Default returns the configuration used when no .refract.kdl exists.
func Default() *Config {
	return &Config{
		Scan: Scan{
			MaxFileSize:  4 * 1024 * 1024,
			MaxFileCount: 10000,
			TimeoutMs:    30000,
			WatchMode:    false,
		},
		Find: Find{
			MaxResults: 100,
		},
		Backups: Backups{
			MaxAgeDays: 7,
			Keep:       5,
		},
		Performance: Performance{
			MaxGoroutines: 4,
			DebounceMs:    100,
		},
		Exclude: []string{
			"**/.*/**",
			"**/node_modules/**",
			"**/vendor/**",
			"**/venv/**",
			"**/.venv/**",
			"**/site-packages/**",
			"**/__pycache__/**",
			"**/*.pyc",
			"**/dist/**",
			"**/build/**",
			"**/.pytest_cache/**",
			"**/.mypy_cache/**",
			"**/.ruff_cache/**",
			"**/*.egg-info/**",
		},
	}
}

// BackupDir resolves the backup directory, defaulting under the project root.
func (c *Config) BackupDir() string {
	if c.Backups.Dir != "" {
		if filepath.IsAbs(c.Backups.Dir) {
			return c.Backups.Dir
		}
		return filepath.Join(c.Project.Root, c.Backups.Dir)
	}
	return filepath.Join(c.Project.Root, ".refract", "backups")
}
