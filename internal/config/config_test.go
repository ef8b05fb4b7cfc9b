package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 18790, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 500, cfg.Autosave.DebounceMs)
	assert.Equal(t, 2000, cfg.Autosave.RetryDelayMs)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "pretty", cfg.Logging.Style)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	// Should return defaults
	assert.Equal(t, 18790, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 9999
  bind: lan
  allowedOrigins:
    - "https://chat.example.com"
storage:
  driver: sqlite
  path: /tmp/sessions.db
autosave:
  debounceMs: 250
  retryDelayMs: 1000
titleGen:
  provider: http
  endpoint: https://titles.example.com/generate
logging:
  level: debug
  style: json
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "lan", cfg.Server.Bind)
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "/tmp/sessions.db", cfg.Storage.Path)
	assert.Equal(t, 250, cfg.Autosave.DebounceMs)
	assert.Equal(t, 1000, cfg.Autosave.RetryDelayMs)
	assert.Equal(t, "http", cfg.TitleGen.Provider)
	assert.Equal(t, "https://titles.example.com/generate", cfg.TitleGen.Endpoint)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Style)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config:")
}

func TestLoadPartialYAMLKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 18790, cfg.Server.Port)
	assert.Equal(t, 500, cfg.Autosave.DebounceMs)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CHATVAULT_TEST_KEY", "sk-secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
titleGen:
  provider: openai
  apiKey: ${CHATVAULT_TEST_KEY}
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", cfg.TitleGen.APIKey)
}

func TestExpandEnvVarsUnsetLeftAlone(t *testing.T) {
	assert.Equal(t, "${CHATVAULT_DEFINITELY_UNSET}", expandEnvVars("${CHATVAULT_DEFINITELY_UNSET}"))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHATVAULT_PORT", "7777")
	t.Setenv("CHATVAULT_LOG_LEVEL", "DEBUG")

	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "bad bind",
			mutate:  func(c *Config) { c.Server.Bind = "tailnet" },
			wantErr: "server.bind",
		},
		{
			name:    "custom bind without host",
			mutate:  func(c *Config) { c.Server.Bind = "custom" },
			wantErr: "server.customBindHost",
		},
		{
			name:    "bad storage driver",
			mutate:  func(c *Config) { c.Storage.Driver = "postgres" },
			wantErr: "storage.driver",
		},
		{
			name:    "negative debounce",
			mutate:  func(c *Config) { c.Autosave.DebounceMs = -1 },
			wantErr: "autosave.debounceMs",
		},
		{
			name:    "bad title provider",
			mutate:  func(c *Config) { c.TitleGen.Provider = "anthropic" },
			wantErr: "titleGen.provider",
		},
		{
			name:    "http provider without endpoint",
			mutate:  func(c *Config) { c.TitleGen.Provider = "http" },
			wantErr: "titleGen.endpoint",
		},
		{
			name:    "openai provider without key",
			mutate:  func(c *Config) { c.TitleGen.Provider = "openai" },
			wantErr: "titleGen.apiKey",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "bad log style",
			mutate:  func(c *Config) { c.Logging.Style = "compact" },
			wantErr: "logging.style",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			issues := Validate(&cfg)
			if tt.wantErr == "" {
				assert.Empty(t, issues)
				return
			}
			require.NotEmpty(t, issues)
			found := false
			for _, issue := range issues {
				if issue.Path == tt.wantErr {
					found = true
				}
			}
			assert.True(t, found, "expected issue at %s, got %v", tt.wantErr, issues)
		})
	}
}

func TestResolvePaths(t *testing.T) {
	t.Setenv("CHATVAULT_HOME", "/tmp/cvtest")

	paths, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cvtest", paths.Base)
	assert.Equal(t, filepath.Join("/tmp/cvtest", "config.yaml"), paths.Config)
	assert.Equal(t, filepath.Join("/tmp/cvtest", "data"), paths.Data)
}

func TestDatabasePath(t *testing.T) {
	p := Paths{Data: "/tmp/cvtest/data"}
	assert.Equal(t, "/custom/path.db", p.DatabasePath(StorageConfig{Path: "/custom/path.db"}))
	assert.Equal(t, filepath.Join("/tmp/cvtest/data", "chatvault.db"), p.DatabasePath(StorageConfig{}))
}
