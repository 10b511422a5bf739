package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INFRAKT_HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "latest", cfg.ReleaseImageTag)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Empty(t, cfg.UpdateSecret)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("INFRAKT_HOME", t.TempDir())
	t.Setenv("INFRAKT_PORT", "9999")
	t.Setenv("INFRAKT_LOG_LEVEL", "debug")
	t.Setenv("INFRAKT_UPDATE_SECRET", "hook-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "hook-secret", cfg.UpdateSecret)
}

func TestAllowedOriginsCommaJoined(t *testing.T) {
	t.Setenv("INFRAKT_HOME", t.TempDir())
	t.Setenv("INFRAKT_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
}

func TestConfigFileBelowEnvironment(t *testing.T) {
	home := t.TempDir()
	t.Setenv("INFRAKT_HOME", home)
	t.Setenv("INFRAKT_LOG_LEVEL", "error")

	data := "port: 7070\nlog_level: warn\nacme_email: ops@example.com\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(data), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "ops@example.com", cfg.ACMEEmail)
	assert.Equal(t, "error", cfg.LogLevel, "environment wins over the file")
}

func TestMalformedConfigFileIsFatal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("INFRAKT_HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("{not yaml"), 0o600))

	_, err := Load()
	assert.Error(t, err)
}

func TestStatePaths(t *testing.T) {
	cfg := &Config{Home: "/var/lib/infrakt"}

	assert.Equal(t, "/var/lib/infrakt/infrakt.db", cfg.DatabasePath())
	assert.Equal(t, "/var/lib/infrakt/api_key.txt", cfg.APIKeyPath())
	assert.Equal(t, "/var/lib/infrakt/master.key", cfg.MasterKeyPath())
	assert.Equal(t, "/var/lib/infrakt/deploy_keys.json", cfg.DeployKeysPath())
	assert.Equal(t, "/var/lib/infrakt/envs", cfg.EnvsDir())
	assert.Equal(t, "/var/lib/infrakt/keys", cfg.KeysDir())
	assert.Equal(t, "/var/lib/infrakt/backups", cfg.BackupsDir())
}
