package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 3*time.Second, cfg.Polling.GroupInterval)
	require.Equal(t, 3*time.Second, cfg.Polling.DirectInterval)
	require.Equal(t, time.Second, cfg.Polling.HasNewInterval)
	require.Equal(t, 10*time.Second, cfg.Messages.DedupeTolerance)
	require.Equal(t, 2250*time.Millisecond, cfg.FetchTimeout(cfg.Polling.GroupInterval))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "interval too small", mutate: func(c *Config) { c.Polling.HasNewInterval = 10 * time.Millisecond }, wantErr: true},
		{name: "ratio of one", mutate: func(c *Config) { c.Polling.FetchTimeoutRatio = 1 }, wantErr: true},
		{name: "zero ratio", mutate: func(c *Config) { c.Polling.FetchTimeoutRatio = 0 }, wantErr: true},
		{name: "unknown role", mutate: func(c *Config) { c.Session.Role = "owner" }, wantErr: true},
		{name: "admin role", mutate: func(c *Config) { c.Session.Role = "admin" }},
		{name: "unknown sidebar", mutate: func(c *Config) { c.TUI.Sidebar = "floating" }, wantErr: true},
		{name: "no dedupe window", mutate: func(c *Config) { c.Messages.DedupeTolerance = 0 }, wantErr: true},
		{name: "negative busy timeout", mutate: func(c *Config) { c.Cache.BusyTimeoutMs = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://portal.example.com
session:
  user_id: u1
  role: admin
polling:
  group_interval: 5s
  has_new_interval: 500ms
cache:
  path: ~/chatsync-test.db
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "https://portal.example.com", cfg.API.BaseURL)
	require.Equal(t, "u1", cfg.Session.UserID)
	require.Equal(t, "admin", cfg.Session.Role)
	require.Equal(t, 5*time.Second, cfg.Polling.GroupInterval)
	require.Equal(t, 500*time.Millisecond, cfg.Polling.HasNewInterval)
	// Unset keys keep their defaults.
	require.Equal(t, 3*time.Second, cfg.Polling.DirectInterval)

	home, _ := os.UserHomeDir()
	require.Equal(t, filepath.Join(home, "chatsync-test.db"), cfg.CachePath())
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: https://file.example.com\n"), 0644))

	t.Setenv("CHATSYNC_API_BASE_URL", "https://env.example.com")
	t.Setenv("CHATSYNC_SESSION_USER_ID", "env-user")
	t.Setenv("CHATSYNC_LOGGING_LEVEL", "debug")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "https://env.example.com", cfg.API.BaseURL)
	require.Equal(t, "env-user", cfg.Session.UserID)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoaderSetOverridesEnv(t *testing.T) {
	t.Setenv("CHATSYNC_API_BASE_URL", "https://env.example.com")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	loader := NewLoader()
	loader.Set("api.base_url", "https://flag.example.com")
	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, "https://flag.example.com", cfg.API.BaseURL)
}

func TestResolveToken(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.ResolveToken()
	require.ErrorIs(t, err, ErrNoToken)

	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("  from-file\n"), 0600))
	cfg.Session.TokenFile = path
	token, err := cfg.ResolveToken()
	require.NoError(t, err)
	require.Equal(t, "from-file", token)

	cfg.Session.Token = "inline"
	token, err = cfg.ResolveToken()
	require.NoError(t, err)
	require.Equal(t, "inline", token)

	require.NoError(t, os.WriteFile(path, []byte("\n"), 0600))
	cfg.Session.Token = ""
	_, err = cfg.ResolveToken()
	require.Error(t, err)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Cache.DataDir = filepath.Join(dir, "data")
	cfg.Cache.Path = filepath.Join(dir, "cache", "x.db")

	require.NoError(t, cfg.EnsureDirectories())
	require.DirExists(t, cfg.Cache.DataDir)
	require.DirExists(t, filepath.Join(dir, "cache"))
}

func TestEnvName(t *testing.T) {
	require.Equal(t, "CHATSYNC_SESSION_USER_ID", envName("session.user_id"))
	require.Equal(t, "CHATSYNC_POLLING_HAS_NEW_INTERVAL", envName("polling.has_new_interval"))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, home, expandHome("~"))
	require.Equal(t, filepath.Join(home, "a", "b"), expandHome("~/a/b"))
	require.Equal(t, "/abs/path", expandHome("/abs/path"))
	require.Equal(t, "~other/x", expandHome("~other/x"))
	require.Equal(t, "", expandHome(""))
}

func TestDefaultSettingsCoverEveryKeyInFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tui:\n  sidebar: collapsed\nmetrics:\n  addr: 127.0.0.1:9100\n"), 0644))
	t.Setenv("CHATSYNC_CACHE_ENABLED", "false")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "collapsed", cfg.TUI.Sidebar)
	require.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
	require.False(t, cfg.Cache.Enabled)
}
