// Package config handles chatsync configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration structure for chatsync.
type Config struct {
	// API settings
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Session identifies the authenticated user
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Polling intervals
	Polling PollingConfig `yaml:"polling" mapstructure:"polling"`

	// Message channel settings
	Messages MessagesConfig `yaml:"messages" mapstructure:"messages"`

	// Snapshot cache settings
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`

	// Metrics settings
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// APIConfig contains portal API settings.
type APIConfig struct {
	// BaseURL is the portal origin, e.g. https://portal.example.com.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Timeout bounds requests made outside a poller.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// RefundPath is the refund existence endpoint; {userId} is substituted.
	RefundPath string `yaml:"refund_path" mapstructure:"refund_path"`
}

// SessionConfig contains the authenticated user context.
type SessionConfig struct {
	// UserID is the authenticated user's id.
	UserID string `yaml:"user_id" mapstructure:"user_id"`

	// FullName is used for provisional messages.
	FullName string `yaml:"full_name" mapstructure:"full_name"`

	// Role selects the inbox flavor (admin, manager, member).
	Role string `yaml:"role" mapstructure:"role"`

	// ManagerID is the member's manager, for the inbox bootstrap.
	ManagerID string `yaml:"manager_id" mapstructure:"manager_id"`

	// Token is the bearer token.
	Token string `yaml:"token" mapstructure:"token"`

	// TokenFile is read when Token is empty.
	TokenFile string `yaml:"token_file" mapstructure:"token_file"`
}

// PollingConfig contains polling intervals.
type PollingConfig struct {
	// GroupInterval is how often the group list is polled.
	GroupInterval time.Duration `yaml:"group_interval" mapstructure:"group_interval"`

	// DirectInterval is how often the direct-thread list is polled.
	DirectInterval time.Duration `yaml:"direct_interval" mapstructure:"direct_interval"`

	// HasNewInterval is how often an open room checks for new messages.
	HasNewInterval time.Duration `yaml:"has_new_interval" mapstructure:"has_new_interval"`

	// FetchTimeoutRatio sizes each fetch timeout relative to its interval.
	FetchTimeoutRatio float64 `yaml:"fetch_timeout_ratio" mapstructure:"fetch_timeout_ratio"`
}

// MessagesConfig contains message channel settings.
type MessagesConfig struct {
	// DedupeTolerance bounds the timestamp gap between a provisional copy
	// and the server message that confirms it.
	DedupeTolerance time.Duration `yaml:"dedupe_tolerance" mapstructure:"dedupe_tolerance"`

	// MarkReadTimeout bounds one mark-all-read request.
	MarkReadTimeout time.Duration `yaml:"mark_read_timeout" mapstructure:"mark_read_timeout"`
}

// CacheConfig contains snapshot cache settings.
type CacheConfig struct {
	// Enabled turns on warm start from the last snapshots.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Path is the SQLite file (default: DataDir/chatsync.db).
	Path string `yaml:"path" mapstructure:"path"`

	// DataDir is where chatsync stores its data.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// BusyTimeoutMs is how long to wait for a locked database.
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// RefreshInterval is how often the screen re-reads the store.
	RefreshInterval time.Duration `yaml:"refresh_interval" mapstructure:"refresh_interval"`

	// ShowTimestamps shows message timestamps.
	ShowTimestamps bool `yaml:"show_timestamps" mapstructure:"show_timestamps"`

	// Sidebar is the initial sidebar mode (collapsed, expanded, locked).
	Sidebar string `yaml:"sidebar" mapstructure:"sidebar"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Addr enables the /metrics endpoint when set, e.g. ":9464".
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		API: APIConfig{
			Timeout:    15 * time.Second,
			RefundPath: "/api/refunds/user/{userId}",
		},
		Session: SessionConfig{
			Role: "member",
		},
		Polling: PollingConfig{
			GroupInterval:     3 * time.Second,
			DirectInterval:    3 * time.Second,
			HasNewInterval:    1 * time.Second,
			FetchTimeoutRatio: 0.75,
		},
		Messages: MessagesConfig{
			DedupeTolerance: 10 * time.Second,
			MarkReadTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:       true,
			DataDir:       filepath.Join(homeDir, ".local", "share", "chatsync"),
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		TUI: TUIConfig{
			RefreshInterval: 250 * time.Millisecond,
			ShowTimestamps:  true,
			Sidebar:         "expanded",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}

	intervals := []struct {
		key string
		val time.Duration
	}{
		{"polling.group_interval", c.Polling.GroupInterval},
		{"polling.direct_interval", c.Polling.DirectInterval},
		{"polling.has_new_interval", c.Polling.HasNewInterval},
	}
	for _, iv := range intervals {
		if iv.val < 100*time.Millisecond {
			return fmt.Errorf("%s must be at least 100ms", iv.key)
		}
	}
	if c.Polling.FetchTimeoutRatio <= 0 || c.Polling.FetchTimeoutRatio >= 1 {
		return fmt.Errorf("polling.fetch_timeout_ratio must be between 0 and 1 (exclusive)")
	}

	if c.Messages.DedupeTolerance <= 0 {
		return fmt.Errorf("messages.dedupe_tolerance must be positive")
	}
	if c.Messages.MarkReadTimeout <= 0 {
		return fmt.Errorf("messages.mark_read_timeout must be positive")
	}

	switch c.Session.Role {
	case "", "admin", "manager", "member":
	default:
		return fmt.Errorf("session.role must be one of admin, manager, member")
	}

	switch c.TUI.Sidebar {
	case "", "collapsed", "expanded", "locked":
	default:
		return fmt.Errorf("tui.sidebar must be one of collapsed, expanded, locked")
	}

	if c.Cache.BusyTimeoutMs < 0 {
		return fmt.Errorf("cache.busy_timeout_ms must not be negative")
	}

	return nil
}

// FetchTimeout returns the fetch timeout for a poll interval.
func (c *Config) FetchTimeout(interval time.Duration) time.Duration {
	return time.Duration(float64(interval) * c.Polling.FetchTimeoutRatio)
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Cache.DataDir,
	}
	if c.Cache.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Cache.Path))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// CachePath returns the full cache database path.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.Cache.DataDir, "chatsync.db")
}

// ErrNoToken is returned by ResolveToken when neither a token nor a token
// file is configured.
var ErrNoToken = errors.New("no session token configured")

// ResolveToken returns the bearer token, reading TokenFile if needed.
func (c *Config) ResolveToken() (string, error) {
	if token := strings.TrimSpace(c.Session.Token); token != "" {
		return token, nil
	}
	if c.Session.TokenFile == "" {
		return "", ErrNoToken
	}
	data, err := os.ReadFile(c.Session.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", c.Session.TokenFile)
	}
	return token, nil
}
