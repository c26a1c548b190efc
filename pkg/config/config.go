// Package config loads foldersmith configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/foldersmith/foldersmith/pkg/errclass"
	"github.com/foldersmith/foldersmith/pkg/fsutil"
	"github.com/foldersmith/foldersmith/pkg/logging"
	"github.com/foldersmith/foldersmith/pkg/model"
	"github.com/foldersmith/foldersmith/pkg/webhook"
)

// EnvPrefix is prepended to every environment override, e.g.
// FOLDERSMITH_QUIP_ACCESS_TOKEN for quip.access_token.
const EnvPrefix = "FOLDERSMITH"

// FileName is the config file looked up in the working directory.
const FileName = "foldersmith.yaml"

// Config represents the foldersmith configuration.
type Config struct {
	// Backends lists the enabled stores in the order their results are
	// reported.
	Backends []string       `yaml:"backends" mapstructure:"backends"`
	Drive    DriveConfig    `yaml:"drive" mapstructure:"drive"`
	Quip     QuipConfig     `yaml:"quip" mapstructure:"quip"`
	Local    LocalConfig    `yaml:"local" mapstructure:"local"`
	Slack    SlackConfig    `yaml:"slack" mapstructure:"slack"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
	Audit    AuditConfig    `yaml:"audit" mapstructure:"audit"`
	Webhook  webhook.Config `yaml:"webhook" mapstructure:"webhook"`
}

// DriveConfig configures the Google Drive store.
type DriveConfig struct {
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	// Endpoint overrides the Drive API base URL.
	Endpoint     string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	SharedDrives bool   `yaml:"shared_drives" mapstructure:"shared_drives"`
}

// QuipConfig configures the Quip store.
type QuipConfig struct {
	AccessToken string        `yaml:"access_token" mapstructure:"access_token"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	WebURL      string        `yaml:"web_url" mapstructure:"web_url"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LocalConfig configures the local filesystem store.
type LocalConfig struct {
	Root string `yaml:"root" mapstructure:"root"`
}

// SlackConfig configures the Slack events endpoint.
type SlackConfig struct {
	BotToken      string `yaml:"bot_token" mapstructure:"bot_token"`
	SigningSecret string `yaml:"signing_secret" mapstructure:"signing_secret"`
	// CloneTimeout bounds one chat-triggered clone across all backends.
	// Zero means no limit.
	CloneTimeout time.Duration `yaml:"clone_timeout" mapstructure:"clone_timeout"`
}

// ServerConfig configures the HTTP listener used by serve.
type ServerConfig struct {
	Host        string `yaml:"host" mapstructure:"host"`
	Port        int    `yaml:"port" mapstructure:"port"`
	EventsPath  string `yaml:"events_path" mapstructure:"events_path"`
	MetricsPath string `yaml:"metrics_path" mapstructure:"metrics_path"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"` // json, text
	File       string `yaml:"file,omitempty" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// AuditConfig configures the clone audit log. An empty path disables it.
type AuditConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Backends: []string{string(model.BackendGoogleDrive), string(model.BackendQuip)},
		Quip: QuipConfig{
			BaseURL: "https://platform.quip.com/1/",
			WebURL:  "https://quip.com/",
			Timeout: 30 * time.Second,
		},
		Drive:  DriveConfig{SharedDrives: true},
		Slack:  SlackConfig{CloneTimeout: 10 * time.Minute},
		Server: ServerConfig{Port: 3000, EventsPath: "/slack/events", MetricsPath: "/metrics"},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Webhook: *webhook.DefaultConfig(),
	}
}

// setDefaults registers every key with viper so AutomaticEnv can override
// keys that never appear in the file.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("backends", d.Backends)
	v.SetDefault("drive.credentials_file", "")
	v.SetDefault("drive.endpoint", "")
	v.SetDefault("drive.shared_drives", d.Drive.SharedDrives)
	v.SetDefault("quip.access_token", "")
	v.SetDefault("quip.base_url", d.Quip.BaseURL)
	v.SetDefault("quip.web_url", d.Quip.WebURL)
	v.SetDefault("quip.timeout", d.Quip.Timeout)
	v.SetDefault("local.root", "")
	v.SetDefault("slack.bot_token", "")
	v.SetDefault("slack.signing_secret", "")
	v.SetDefault("slack.clone_timeout", d.Slack.CloneTimeout)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.events_path", d.Server.EventsPath)
	v.SetDefault("server.metrics_path", d.Server.MetricsPath)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("audit.path", "")
	v.SetDefault("webhook.enabled", d.Webhook.Enabled)
	v.SetDefault("webhook.max_retries", d.Webhook.MaxRetries)
	v.SetDefault("webhook.retry_delay", d.Webhook.RetryDelay)
	v.SetDefault("webhook.async_queue_size", d.Webhook.AsyncQueueSize)
	v.SetDefault("webhook.hooks", []webhook.HookConfig{})
}

// bindLegacyEnv keeps the unprefixed variable names existing deployments
// use working alongside the FOLDERSMITH_ forms.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("slack.bot_token", EnvPrefix+"_SLACK_BOT_TOKEN", "SLACK_BOT_TOKEN")
	_ = v.BindEnv("slack.signing_secret", EnvPrefix+"_SLACK_SIGNING_SECRET", "SLACK_SIGNING_SECRET")
	_ = v.BindEnv("quip.access_token", EnvPrefix+"_QUIP_ACCESS_TOKEN", "QUIP_ACCESS_TOKEN")
	_ = v.BindEnv("drive.credentials_file", EnvPrefix+"_DRIVE_CREDENTIALS_FILE", "GOOGLE_SERVICE_ACCOUNT_KEY_PATH")
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "foldersmith", "config.yaml")
	}
	return FileName
}

// locate returns the config file to read when none was given explicitly:
// ./foldersmith.yaml first, then the per-user file. Empty means none exists.
func locate() string {
	for _, p := range []string{FileName, DefaultPath()} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads configuration from path, or from the default locations when
// path is empty, and applies environment overrides. A missing default file
// is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	if path == "" {
		path = locate()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes configuration to path as YAML. The file holds credentials and
// is created owner-readable only.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := fsutil.AtomicWrite(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// BackendTypes returns the configured backends in report order.
func (c *Config) BackendTypes() []model.BackendType {
	out := make([]model.BackendType, 0, len(c.Backends))
	for _, b := range c.Backends {
		out = append(out, model.BackendType(strings.TrimSpace(b)))
	}
	return out
}

// Validate checks the settings every command relies on.
func (c *Config) Validate() error {
	var problems []string

	if len(c.Backends) == 0 {
		problems = append(problems, "at least one backend must be enabled")
	}
	seen := make(map[model.BackendType]bool)
	for _, b := range c.BackendTypes() {
		if seen[b] {
			problems = append(problems, fmt.Sprintf("backend %q listed twice", b))
		}
		seen[b] = true

		switch b {
		case model.BackendGoogleDrive:
			if c.Drive.CredentialsFile == "" {
				problems = append(problems, "drive.credentials_file is required for google-drive")
			}
		case model.BackendQuip:
			if c.Quip.AccessToken == "" {
				problems = append(problems, "quip.access_token is required for quip")
			}
			if c.Quip.BaseURL == "" {
				problems = append(problems, "quip.base_url must not be empty")
			}
		case model.BackendLocal:
			if c.Local.Root == "" {
				problems = append(problems, "local.root is required for local")
			}
		default:
			problems = append(problems, fmt.Sprintf("unknown backend %q", b))
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, err.Error())
	}
	if !slices.Contains([]string{"json", "text"}, c.Logging.Format) {
		problems = append(problems, fmt.Sprintf("logging.format must be json or text, got %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errclass.ErrConfigInvalid.WithMessage(strings.Join(problems, "; "))
	}
	return nil
}

// ValidateServer checks the additional settings serve needs.
func (c *Config) ValidateServer() error {
	var problems []error
	if c.Slack.SigningSecret == "" {
		problems = append(problems, errors.New("slack.signing_secret is required"))
	}
	if c.Slack.BotToken == "" {
		problems = append(problems, errors.New("slack.bot_token is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if err := errors.Join(problems...); err != nil {
		return errclass.ErrConfigInvalid.WithMessage(strings.ReplaceAll(err.Error(), "\n", "; "))
	}
	return nil
}

// Redacted returns a copy safe to print, with credentials masked.
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	out.Quip.AccessToken = mask(c.Quip.AccessToken)
	out.Slack.BotToken = mask(c.Slack.BotToken)
	out.Slack.SigningSecret = mask(c.Slack.SigningSecret)
	out.Webhook.Hooks = make([]webhook.HookConfig, len(c.Webhook.Hooks))
	for i, h := range c.Webhook.Hooks {
		h.Secret = mask(h.Secret)
		out.Webhook.Hooks[i] = h
	}
	return &out
}
