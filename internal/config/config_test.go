package config

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "injectived", cfg.Chain.Binary)
	assert.Equal(t, "injective-888", cfg.Chain.ChainID)
	assert.Equal(t, "2000000", cfg.Chain.Gas)
	assert.Equal(t, 10, cfg.Contract.ListLimit)
	assert.True(t, filepath.IsAbs(cfg.Chain.WorkDir))
	assert.False(t, cfg.Database.Enabled())
}

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, "injectived", cfg.Chain.Binary)
}

func TestLoadConfigJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"server": {"port": 9090},
		"chain": {"binary": "/usr/local/bin/injectived", "command_timeout": "45s", "max_concurrent": 4},
		"cache": {"ttl": "30s", "refresh_spec": "@every 1m"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/usr/local/bin/injectived", cfg.Chain.Binary)
	assert.Equal(t, 45*time.Second, cfg.Chain.CommandTimeout.Std())
	assert.Equal(t, 4, cfg.Chain.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL.Std())
	assert.Equal(t, "@every 1m", cfg.Cache.RefreshSpec)
	// untouched sections keep their defaults
	assert.Equal(t, "injective-888", cfg.Chain.ChainID)
}

func TestLoadConfigYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "chain:\n  chain_id: injective-1\n  allow_stderr: true\ncontract:\n  list_limit: 25\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "injective-1", cfg.Chain.ChainID)
	assert.True(t, cfg.Chain.AllowStderr)
	assert.Equal(t, 25, cfg.Contract.ListLimit)
}

func TestLoadConfigInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("KEYRING_PASSPHRASE", "s3cret")
	t.Setenv("CONTRACT_ADDRESS", "inj1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq")
	t.Setenv("CHAIN_COMMAND_TIMEOUT", "10s")
	t.Setenv("DATABASE_HOST", "db")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Chain.KeyringPassphrase)
	assert.Equal(t, "inj1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq", cfg.Contract.Address)
	assert.Equal(t, 10*time.Second, cfg.Chain.CommandTimeout.Std())
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, "postgres://db:5432/zk_carbon?sslmode=disable", cfg.Database.GetDatabaseURL())
	assert.Equal(t, 30*time.Minute, cfg.Database.MaxLifetime.Std())
}

func TestGetDatabaseURLEscapesCredentials(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.internal",
		Port:     6432,
		User:     "app@zk",
		Password: "p@ss/w:rd?",
		DBName:   "zk_carbon",
		SSLMode:  "require",
	}

	parsed, err := url.Parse(db.GetDatabaseURL())
	require.NoError(t, err)

	assert.Equal(t, "db.internal:6432", parsed.Host)
	assert.Equal(t, "/zk_carbon", parsed.Path)
	assert.Equal(t, "require", parsed.Query().Get("sslmode"))
	assert.Equal(t, "app@zk", parsed.User.Username())
	password, ok := parsed.User.Password()
	assert.True(t, ok)
	assert.Equal(t, "p@ss/w:rd?", password)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Chain.Binary = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Chain.MaxConcurrent = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:5000", cfg.Server.GetServerAddr())
}

func TestNewLogger(t *testing.T) {
	cfg := LoggingConfig{Level: "debug", Format: "json"}
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	cfg = LoggingConfig{Level: "warn", Format: "console"}
	logger, err = cfg.NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(0))

	cfg = LoggingConfig{Level: "loud"}
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}
