package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "btp-research.db", cfg.Store.SQLitePath)
	assert.Equal(t, "https://raw.githubusercontent.com/SAP-samples/btp-service-metadata/main/v0", cfg.Catalog.BaseURL)
	assert.Equal(t, "inventory.json", cfg.Catalog.InventoryPath)
	assert.Equal(t, time.Hour, cfg.Catalog.CacheTTL)
	assert.Equal(t, 30, cfg.Catalog.TimeoutSecs)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
	assert.Equal(t, 60, cfg.Perplexity.TimeoutSecs)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Relevance.Model)
	assert.Equal(t, 5, cfg.Relevance.BatchSize)
	assert.Equal(t, 200*time.Millisecond, cfg.Relevance.BatchDelay)
	assert.Equal(t, 5, cfg.Guest.Limit)
	assert.Equal(t, "btp_guest_usage", cfg.Guest.Key)
	assert.Equal(t, "file", cfg.Prefs.Backend)
	assert.Contains(t, cfg.Prefs.Path, filepath.Join(".btp-research", "state.json"))
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/btp
log:
  level: debug
  format: console
relevance:
  batch_size: 3
  batch_delay: 1s
server:
  port: 9090
  api_tokens: [alpha, beta]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/btp", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 3, cfg.Relevance.BatchSize)
	assert.Equal(t, time.Second, cfg.Relevance.BatchDelay)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.Server.APITokens)
	// Defaults still apply for unset values
	assert.Equal(t, 5, cfg.Guest.Limit)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("BTP_STORE_DRIVER", "postgres")
	t.Setenv("BTP_LOG_LEVEL", "warn")
	t.Setenv("BTP_ANTHROPIC_KEY", "sk-ant")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sk-ant", cfg.Anthropic.Key)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "btp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("guest:\n  limit: 9\nserver:\n  api_tokens: [tok-a]\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Guest.Limit)
	assert.Equal(t, []string{"tok-a"}, cfg.Server.APITokens)
	assert.Equal(t, "sqlite", cfg.Store.Driver, "defaults still apply")

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "an explicit file must exist")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "test.db"
	cfg.Prefs.Backend = "memory"
	cfg.Relevance.BatchSize = 5
	cfg.Relevance.BatchDelay = 200 * time.Millisecond
	cfg.Guest.Limit = 5
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(*Config)
		wantErr []string
	}{
		{name: "catalog needs no keys", mode: "catalog"},
		{
			name:   "serve with keys",
			mode:   "serve",
			mutate: func(c *Config) { c.Anthropic.Key = "a"; c.Perplexity.Key = "p" },
		},
		{
			name:    "serve missing keys",
			mode:    "serve",
			wantErr: []string{"anthropic.key is required", "perplexity.key is required"},
		},
		{
			name:    "classify missing anthropic",
			mode:    "classify",
			wantErr: []string{"anthropic.key is required"},
		},
		{
			name:    "analyze missing perplexity",
			mode:    "analyze",
			wantErr: []string{"perplexity.key is required"},
		},
		{
			name:    "postgres without url",
			mode:    "catalog",
			mutate:  func(c *Config) { c.Store.Driver = "postgres" },
			wantErr: []string{"store.database_url is required"},
		},
		{
			name:    "unknown driver",
			mode:    "catalog",
			mutate:  func(c *Config) { c.Store.Driver = "mysql" },
			wantErr: []string{`unknown store.driver "mysql"`},
		},
		{
			name:    "redis without addr",
			mode:    "prefs",
			mutate:  func(c *Config) { c.Prefs.Backend = "redis" },
			wantErr: []string{"redis.addr is required"},
		},
		{
			name:    "batch size bounds",
			mode:    "classify",
			mutate:  func(c *Config) { c.Anthropic.Key = "a"; c.Relevance.BatchSize = 0 },
			wantErr: []string{"relevance.batch_size must be between 1 and 50"},
		},
		{
			name:    "invalid port",
			mode:    "serve",
			mutate:  func(c *Config) { c.Anthropic.Key = "a"; c.Perplexity.Key = "p"; c.Server.Port = 0 },
			wantErr: []string{"server.port must be > 0"},
		},
		{
			name:    "negative guest limit",
			mode:    "guest",
			mutate:  func(c *Config) { c.Guest.Limit = -1 },
			wantErr: []string{"guest.limit must be >= 0"},
		},
		{
			name:    "unknown mode",
			mode:    "enrichment",
			wantErr: []string{"unknown mode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate(tt.mode)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}
