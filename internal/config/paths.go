package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// EnvConfigPath is the environment variable for explicit config path
	EnvConfigPath = "LABELCOMPOSER_CONFIG"
	// ConfigFileName is the config file name looked up in the working directory
	ConfigFileName = "labelcomposer.yaml"
	// AppDirName is the directory name used below XDG and system roots
	AppDirName = "labelcomposer"
	// DatabaseFileName is the scheme store created in the data directory
	DatabaseFileName = "labelcomposer.db"

	memoryDatabase = ":memory:"
)

// searchPaths lists config candidates in priority order
func searchPaths() []string {
	var paths []string
	if explicit := os.Getenv(EnvConfigPath); explicit != "" {
		paths = append(paths, explicit)
	}
	paths = append(paths, ConfigFileName)
	if dir := xdgDir("XDG_CONFIG_HOME", ".config"); dir != "" {
		paths = append(paths, filepath.Join(dir, "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", AppDirName, "config.yaml"))
}

// FindConfigPath returns the first existing config file, or "" when none
// exists. A missing $LABELCOMPOSER_CONFIG target falls through to the next
// location.
func FindConfigPath() string {
	for _, path := range searchPaths() {
		if !fileExists(path) {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	return ""
}

// DefaultConfigPath returns the preferred location for a new config file
func DefaultConfigPath() string {
	if dir := xdgDir("XDG_CONFIG_HOME", ".config"); dir != "" {
		return filepath.Join(dir, "config.yaml")
	}
	return ConfigFileName
}

// DefaultDatabasePath places the scheme store in the XDG data directory so
// every working directory shares one store.
func DefaultDatabasePath() string {
	if dir := xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")); dir != "" {
		return filepath.Join(dir, DatabaseFileName)
	}
	return DatabaseFileName
}

// xdgDir resolves the app directory below $env, or below $HOME/fallback
func xdgDir(env, fallback string) string {
	if root := os.Getenv(env); root != "" {
		return filepath.Join(root, AppDirName)
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, fallback, AppDirName)
	}
	return ""
}

// EnsureParentDir creates the directory that will hold path. In-memory and
// URI database names have no directory.
func EnsureParentDir(path string) error {
	if path == memoryDatabase || strings.HasPrefix(path, "file:") {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0755)
}

// resolvePaths makes relative paths in the file relative to the file's own
// directory instead of the working directory.
func (c *Config) resolvePaths(configPath string) {
	base := filepath.Dir(configPath)
	if c.Database.Path != memoryDatabase && !strings.HasPrefix(c.Database.Path, "file:") {
		c.Database.Path = relativeTo(base, c.Database.Path)
	}
	c.Schemes.Dir = relativeTo(base, c.Schemes.Dir)
}

func relativeTo(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
