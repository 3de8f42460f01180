package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CHATSYNC_API_BASE_URL.
const EnvPrefix = "CHATSYNC"

// Loader resolves a Config from, in increasing precedence: built-in
// defaults, the yaml config file, CHATSYNC_* environment variables and
// values Set by the caller (command-line flags).
type Loader struct {
	v    *viper.Viper
	file string
}

func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// SetConfigFile pins the config file. Unlike the search path, a pinned file
// must exist.
func (l *Loader) SetConfigFile(path string) {
	l.file = path
}

// Set overrides a key, e.g. "session.user_id".
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// ConfigFileUsed returns the file read by Load, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) Load() (*Config, error) {
	v := l.v
	for key, value := range defaultSettings(DefaultConfig()) {
		v.SetDefault(key, value)
		// Bound explicitly so Unmarshal sees env values for nested keys.
		if err := v.BindEnv(key, envName(key)); err != nil {
			return nil, err
		}
	}

	if err := l.readFile(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Cache.DataDir = expandHome(cfg.Cache.DataDir)
	cfg.Cache.Path = expandHome(cfg.Cache.Path)
	cfg.Logging.File = expandHome(cfg.Logging.File)
	cfg.Session.TokenFile = expandHome(cfg.Session.TokenFile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration with path as the config file.
func LoadFromFile(path string) (*Config, error) {
	l := NewLoader()
	l.SetConfigFile(path)
	return l.Load()
}

func (l *Loader) readFile() error {
	v := l.v
	if l.file != "" {
		v.SetConfigFile(l.file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", l.file, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range searchDirs() {
		v.AddConfigPath(dir)
	}
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func searchDirs() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "chatsync"))
	}
	if home, _ := os.UserHomeDir(); home != "" {
		dirs = append(dirs, filepath.Join(home, ".config", "chatsync"))
	}
	return append(dirs, ".")
}

// envName maps "session.user_id" to CHATSYNC_SESSION_USER_ID.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// defaultSettings flattens cfg into viper keys. Every key listed here can be
// set from the config file or the environment.
func defaultSettings(cfg *Config) map[string]any {
	return map[string]any{
		"api.base_url":    cfg.API.BaseURL,
		"api.timeout":     cfg.API.Timeout,
		"api.refund_path": cfg.API.RefundPath,

		"session.user_id":    cfg.Session.UserID,
		"session.full_name":  cfg.Session.FullName,
		"session.role":       cfg.Session.Role,
		"session.manager_id": cfg.Session.ManagerID,
		"session.token":      cfg.Session.Token,
		"session.token_file": cfg.Session.TokenFile,

		"polling.group_interval":      cfg.Polling.GroupInterval,
		"polling.direct_interval":     cfg.Polling.DirectInterval,
		"polling.has_new_interval":    cfg.Polling.HasNewInterval,
		"polling.fetch_timeout_ratio": cfg.Polling.FetchTimeoutRatio,

		"messages.dedupe_tolerance":  cfg.Messages.DedupeTolerance,
		"messages.mark_read_timeout": cfg.Messages.MarkReadTimeout,

		"cache.enabled":         cfg.Cache.Enabled,
		"cache.path":            cfg.Cache.Path,
		"cache.data_dir":        cfg.Cache.DataDir,
		"cache.busy_timeout_ms": cfg.Cache.BusyTimeoutMs,

		"logging.level":         cfg.Logging.Level,
		"logging.format":        cfg.Logging.Format,
		"logging.file":          cfg.Logging.File,
		"logging.enable_caller": cfg.Logging.EnableCaller,

		"tui.refresh_interval": cfg.TUI.RefreshInterval,
		"tui.show_timestamps":  cfg.TUI.ShowTimestamps,
		"tui.sidebar":          cfg.TUI.Sidebar,

		"metrics.addr": cfg.Metrics.Addr,
	}
}
