package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Portal        PortalConfig        `yaml:"portal"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Notifications NotificationsConfig `yaml:"notifications"`

	// Credentials and proxy come from the environment, never from the
	// YAML file (they are injected as secrets in CI).
	Email    string `yaml:"-"`
	Password string `yaml:"-"`
	ProxyURL string `yaml:"-"`
}

// ServerConfig represents status API configuration (daemon mode)
type ServerConfig struct {
	Port  string `yaml:"port"`
	Mode  string `yaml:"mode"`  // debug/release
	Token string `yaml:"token"` // optional bearer token for the trigger endpoint
}

// DatabaseConfig represents run-history database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PortalConfig represents registrar portal configuration
type PortalConfig struct {
	BaseURL     string `yaml:"base_url"`
	LoginPath   string `yaml:"login_path"`
	DomainsPath string `yaml:"domains_path"`
	PanelPath   string `yaml:"panel_path"` // landing path that confirms a login
	Driver      string `yaml:"driver"`     // http/browser
	Timeout     string `yaml:"timeout"`
	MaxAttempts int    `yaml:"max_attempts"` // whole-run attempts
	RetryPause  string `yaml:"retry_pause"`  // pause between whole-run attempts
	ActionPause string `yaml:"action_pause"` // pause after each renewal action
}

// ScheduleConfig represents daemon-mode scheduling configuration
type ScheduleConfig struct {
	CheckInterval string `yaml:"check_interval"` // Cron expression
}

// NotificationsConfig represents notification configuration
type NotificationsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Webhook  WebhookConfig  `yaml:"webhook"`
}

// TelegramConfig represents Telegram notification configuration.
// BotToken and ChatID are filled from TG_TOKEN / TG_CHAT_ID when set.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	APIURL   string `yaml:"api_url"` // override for tests; default Telegram API
}

// WebhookConfig represents webhook notification configuration
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// Defaults match the portal the original deployment targets.
const (
	defaultBaseURL     = "https://dash.domain.digitalplat.org"
	defaultLoginPath   = "/auth/login"
	defaultDomainsPath = "/panel/main?page=%2Fpanel%2Fdomains"
	defaultPanelPath   = "/panel/main"
)

// LoadConfig loads configuration from a YAML file and the environment.
// The file is optional; credentials always come from the environment.
func LoadConfig(path string) (*Config, error) {
	// .env is a local-development convenience, ignored when absent.
	_ = godotenv.Load()

	config := &Config{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyDefaults(config)
	applyEnv(config)

	if config.Email == "" || config.Password == "" {
		return nil, fmt.Errorf("DP_EMAIL and DP_PASSWORD must be set")
	}

	return config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/renewer.db"
	}
	if cfg.Portal.BaseURL == "" {
		cfg.Portal.BaseURL = defaultBaseURL
	}
	if cfg.Portal.LoginPath == "" {
		cfg.Portal.LoginPath = defaultLoginPath
	}
	if cfg.Portal.DomainsPath == "" {
		cfg.Portal.DomainsPath = defaultDomainsPath
	}
	if cfg.Portal.PanelPath == "" {
		cfg.Portal.PanelPath = defaultPanelPath
	}
	if cfg.Portal.Driver == "" {
		cfg.Portal.Driver = "http"
	}
	if cfg.Portal.Timeout == "" {
		cfg.Portal.Timeout = "120s"
	}
	if cfg.Portal.MaxAttempts == 0 {
		cfg.Portal.MaxAttempts = 3
	}
	if cfg.Portal.RetryPause == "" {
		cfg.Portal.RetryPause = "30s"
	}
	if cfg.Portal.ActionPause == "" {
		cfg.Portal.ActionPause = "3s"
	}
	if cfg.Schedule.CheckInterval == "" {
		cfg.Schedule.CheckInterval = "0 3 * * *"
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DP_EMAIL"); v != "" {
		cfg.Email = v
	}
	if v := os.Getenv("DP_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("PROXY_URL"); v != "" {
		cfg.ProxyURL = v
	}
	if v := os.Getenv("TG_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv("TG_CHAT_ID"); v != "" {
		cfg.Notifications.Telegram.ChatID = v
	}
}

// PortalTimeout returns the parsed portal timeout with a safe fallback.
func (c *Config) PortalTimeout() time.Duration {
	d, err := time.ParseDuration(c.Portal.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// RetryPause returns the parsed pause between whole-run attempts.
func (c *Config) RetryPause() time.Duration {
	d, err := time.ParseDuration(c.Portal.RetryPause)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ActionPause returns the parsed pause after each renewal action.
func (c *Config) ActionPause() time.Duration {
	d, err := time.ParseDuration(c.Portal.ActionPause)
	if err != nil {
		return 3 * time.Second
	}
	return d
}
