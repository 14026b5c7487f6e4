package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresCredentials(t *testing.T) {
	t.Setenv("DP_EMAIL", "")
	t.Setenv("DP_PASSWORD", "")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DP_EMAIL")
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DP_EMAIL", "user@example.com")
	t.Setenv("DP_PASSWORD", "secret")
	t.Setenv("PROXY_URL", "")
	t.Setenv("TG_TOKEN", "")
	t.Setenv("TG_CHAT_ID", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", cfg.Email)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, "https://dash.domain.digitalplat.org", cfg.Portal.BaseURL)
	assert.Equal(t, "/auth/login", cfg.Portal.LoginPath)
	assert.Equal(t, "http", cfg.Portal.Driver)
	assert.Equal(t, 3, cfg.Portal.MaxAttempts)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 120*time.Second, cfg.PortalTimeout())
	assert.Equal(t, 30*time.Second, cfg.RetryPause())
	assert.Equal(t, 3*time.Second, cfg.ActionPause())
}

func TestLoadConfigFromFileAndEnv(t *testing.T) {
	t.Setenv("DP_EMAIL", "user@example.com")
	t.Setenv("DP_PASSWORD", "secret")
	t.Setenv("PROXY_URL", "socks5://127.0.0.1:1080")
	t.Setenv("TG_TOKEN", "bot-token")
	t.Setenv("TG_CHAT_ID", "12345")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "9090"
  mode: release
portal:
  base_url: https://portal.test
  driver: browser
  timeout: 30s
  max_attempts: 1
schedule:
  check_interval: "0 4 * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "https://portal.test", cfg.Portal.BaseURL)
	assert.Equal(t, "browser", cfg.Portal.Driver)
	assert.Equal(t, 1, cfg.Portal.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.PortalTimeout())
	assert.Equal(t, "0 4 * * *", cfg.Schedule.CheckInterval)

	// Environment wins for secrets and proxy settings.
	assert.Equal(t, "socks5://127.0.0.1:1080", cfg.ProxyURL)
	assert.Equal(t, "bot-token", cfg.Notifications.Telegram.BotToken)
	assert.Equal(t, "12345", cfg.Notifications.Telegram.ChatID)

	// Unset sections still get defaults.
	assert.Equal(t, "/auth/login", cfg.Portal.LoginPath)
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	t.Setenv("DP_EMAIL", "user@example.com")
	t.Setenv("DP_PASSWORD", "secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a mapping"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &Config{}
	cfg.Portal.Timeout = "bogus"
	cfg.Portal.RetryPause = "bogus"
	cfg.Portal.ActionPause = "bogus"

	assert.Equal(t, 120*time.Second, cfg.PortalTimeout())
	assert.Equal(t, 30*time.Second, cfg.RetryPause())
	assert.Equal(t, 3*time.Second, cfg.ActionPause())
}
