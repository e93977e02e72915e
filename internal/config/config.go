package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultServerURL    = "http://localhost:8080"
	DefaultSyncInterval = 60 * time.Second
	DefaultDebounce     = 2 * time.Second
)

// Config holds user preferences
type Config struct {
	ServerURL     string `yaml:"server_url" json:"server_url"`         // Remote document service
	DBPath        string `yaml:"db_path" json:"db_path"`               // Local SQLite file
	ConfirmDelete bool   `yaml:"confirm_delete" json:"confirm_delete"` // Require confirmation for delete

	// Background sync
	AutoSync     bool          `yaml:"auto_sync" json:"auto_sync"`
	SyncInterval time.Duration `yaml:"sync_interval" json:"sync_interval"` // Lifecycle tick + quick sync period
	Debounce     time.Duration `yaml:"debounce" json:"debounce"`           // Delay before uploading after an edit

	// Logging configuration
	LogLevel   string `yaml:"log_level" json:"log_level"`     // Log level: DEBUG, INFO, WARN, ERROR
	LogFile    string `yaml:"log_file" json:"log_file"`       // Path to log file
	LogConsole bool   `yaml:"log_console" json:"log_console"` // Enable console logging
}

// Dir returns ~/.duetask, or DUETASK_HOME when set
func Dir() string {
	if dir := os.Getenv("DUETASK_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".duetask")
}

// DefaultConfig returns default settings
func DefaultConfig() *Config {
	dir := Dir()

	return &Config{
		ServerURL:     getEnv("DUETASK_SERVER", DefaultServerURL),
		DBPath:        getEnv("DUETASK_DB", filepath.Join(dir, "duetask.db")),
		ConfirmDelete: true,
		AutoSync:      getEnv("DUETASK_AUTO_SYNC", "true") == "true",
		SyncInterval:  getEnvDuration("DUETASK_SYNC_INTERVAL", DefaultSyncInterval),
		Debounce:      getEnvDuration("DUETASK_DEBOUNCE", DefaultDebounce),
		LogLevel:      getEnv("DUETASK_LOG_LEVEL", "INFO"),
		LogFile:       getEnv("DUETASK_LOG_FILE", filepath.Join(dir, "logs", "duetask.log")),
		LogConsole:    getEnv("DUETASK_LOG_CONSOLE", "false") == "true",
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration accepts either a Go duration ("90s") or plain seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// Path returns the location of config.yaml
func Path() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load loads config from ~/.duetask/config.yaml
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile loads config from path, falling back to defaults if it does not exist
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = DefaultDebounce
	}

	return cfg, nil
}

// Save saves config to ~/.duetask/config.yaml
func (c *Config) Save() error {
	return c.SaveFile(Path())
}

// SaveFile writes the config as YAML to path
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
