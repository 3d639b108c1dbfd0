package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ConfigHelpers provides convenient access to global configuration
type ConfigHelpers struct {
	config *GlobalConfig
}

// NewConfigHelpers creates a new config helpers instance
func NewConfigHelpers(config *GlobalConfig) *ConfigHelpers {
	return &ConfigHelpers{config: config}
}

// TempDir returns the directory per-dependency work directories are created in
func (c *ConfigHelpers) TempDir() string {
	if c.config.TempDir == "" {
		return os.TempDir()
	}
	return c.config.TempDir
}

// ReportDir returns the absolute path to the report directory
func (c *ConfigHelpers) ReportDir() (string, error) {
	return filepath.Abs(c.config.ReportDir)
}

// LogLevel returns the configured log level
func (c *ConfigHelpers) LogLevel() string {
	return c.config.Logging.Level
}

// IsDebugMode returns true if debug logging is enabled
func (c *ConfigHelpers) IsDebugMode() bool {
	return c.config.Logging.Level == "debug"
}

// HTTPTimeout returns the whole-request timeout for downloads. Zero means
// no timeout.
func (c *ConfigHelpers) HTTPTimeout() (time.Duration, error) {
	if c.config.HTTPTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.config.HTTPTimeout)
	if err != nil {
		return 0, fmt.Errorf("parsing http_timeout %q: %w", c.config.HTTPTimeout, err)
	}
	return d, nil
}

// GetConfig returns the underlying global config (for advanced usage)
func (c *ConfigHelpers) GetConfig() *GlobalConfig {
	return c.config
}

// CreateTempDir ensures the temp directory exists
func (c *ConfigHelpers) CreateTempDir() (string, error) {
	dir := c.TempDir()
	return dir, createDirIfNotExists(dir)
}

// CreateReportDir ensures the report directory exists
func (c *ConfigHelpers) CreateReportDir() (string, error) {
	dir, err := c.ReportDir()
	if err != nil {
		return "", fmt.Errorf("resolving report directory: %w", err)
	}
	return dir, createDirIfNotExists(dir)
}

// Helper function to create directories
func createDirIfNotExists(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
