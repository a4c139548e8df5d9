package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

const (
	envSourceAccountSID = "CHATMIGRATE_SOURCE_ACCOUNT_SID"
	envSourceAuthToken  = "CHATMIGRATE_SOURCE_AUTH_TOKEN"
	envSourceServiceSID = "CHATMIGRATE_SOURCE_SERVICE_SID"
	envTargetAppID      = "CHATMIGRATE_TARGET_APP_ID"
	envTargetAPIToken   = "CHATMIGRATE_TARGET_API_TOKEN"
	envSlackWebhook     = "CHATMIGRATE_SLACK_WEBHOOK"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Source    SourceConfig    `toml:"source"`
	Target    TargetConfig    `toml:"target"`
	Migration MigrationConfig `toml:"migration"`
	Database  DatabaseConfig  `toml:"database"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
}

// SourceConfig contains credentials and transport settings for the source chat service.
type SourceConfig struct {
	AccountSID     string  `toml:"account_sid"`
	AuthToken      string  `toml:"auth_token"`
	ChatServiceSID string  `toml:"chat_service_sid"`
	BaseURL        string  `toml:"base_url"`
	PageSize       int     `toml:"page_size"`
	RateLimit      float64 `toml:"rate_limit"`
}

// TargetConfig contains credentials and transport settings for the target chat platform.
type TargetConfig struct {
	ApplicationID string  `toml:"application_id"`
	APIToken      string  `toml:"api_token"`
	BaseURL       string  `toml:"base_url"` // derived from ApplicationID when blank
	RateLimit     float64 `toml:"rate_limit"`
}

// MigrationConfig contains the defaults applied to migration commands.
type MigrationConfig struct {
	PageSize    int    `toml:"page_size"`
	MaxPageSize int    `toml:"max_page_size"`
	Limit       int    `toml:"limit"`
	Concurrency int    `toml:"concurrency"`
	LogDir      string `toml:"log_dir"`
	LogToFile   bool   `toml:"log_to_file"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// NotifyConfig contains run notification settings.
type NotifyConfig struct {
	SlackWebhookURL string `toml:"slack_webhook_url"`
	SlackChannel    string `toml:"slack_channel"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveConfig encodes the config as TOML and writes it to path, replacing any existing file.
func SaveConfig(config *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides credentials with non-empty values returned by lookup (usually [os.Getenv]).
func (c *Config) ApplyEnv(lookup func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(lookup(key)); v != "" {
			*dst = v
		}
	}

	set(&c.Source.AccountSID, envSourceAccountSID)
	set(&c.Source.AuthToken, envSourceAuthToken)
	set(&c.Source.ChatServiceSID, envSourceServiceSID)
	set(&c.Target.ApplicationID, envTargetAppID)
	set(&c.Target.APIToken, envTargetAPIToken)
	set(&c.Notify.SlackWebhookURL, envSlackWebhook)
}

// Validate reports missing credentials for either platform.
func (c *Config) Validate() error {
	var missing []string
	if c.Source.AccountSID == "" || c.Source.AuthToken == "" {
		missing = append(missing, "source.account_sid/source.auth_token")
	}
	if c.Source.ChatServiceSID == "" {
		missing = append(missing, "source.chat_service_sid")
	}
	if c.Target.ApplicationID == "" && c.Target.BaseURL == "" {
		missing = append(missing, "target.application_id")
	}
	if c.Target.APIToken == "" {
		missing = append(missing, "target.api_token")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}

	if c.Migration.MaxPageSize > 0 && c.Migration.PageSize > c.Migration.MaxPageSize {
		return fmt.Errorf("%w: migration.page_size %d exceeds max_page_size %d",
			ErrInvalidConfig, c.Migration.PageSize, c.Migration.MaxPageSize)
	}
	return nil
}
