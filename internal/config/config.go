// Package config provides YAML-based configuration loading for Dripyard.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides. Keys follow the
// YAML nesting, e.g. DRIPYARD_DATABASE_DSN or DRIPYARD_SESSIONS_MAX_CONCURRENT.
const EnvPrefix = "DRIPYARD"

// Config is the top-level Dripyard configuration, loaded from dripyard.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Log      LogConfig      `yaml:"log"`
	Sessions SessionsConfig `yaml:"sessions"`
	Proxies  ProxiesConfig  `yaml:"proxies"`
	Captcha  CaptchaConfig  `yaml:"captcha"`
	Payout   PayoutConfig   `yaml:"payout"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" split_words:"true"` // "sqlite" or "mysql"
	DSN    string `yaml:"dsn" split_words:"true"`
	Host   string `yaml:"host" split_words:"true"`
	Port   int    `yaml:"port" split_words:"true"`
	Name   string `yaml:"name" split_words:"true"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Port        int      `yaml:"port" split_words:"true"`
	CORSOrigins []string `yaml:"cors_origins" split_words:"true"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level  string `yaml:"level" split_words:"true"`
	Format string `yaml:"format" split_words:"true"` // auto, console, json
}

// SessionsConfig bounds the orchestrator.
type SessionsConfig struct {
	MaxConcurrent   int           `yaml:"max_concurrent" split_words:"true"`
	AttemptTimeout  Duration      `yaml:"attempt_timeout" split_words:"true"`
	NoPayoutWait    Duration      `yaml:"no_payout_wait" split_words:"true"`
	ClaimRetry      RetryConfig   `yaml:"claim_retry" split_words:"true"`
	CheckoutBackoff BackoffConfig `yaml:"checkout_backoff" split_words:"true"`
}

// RetryConfig bounds retries of transient claim failures.
type RetryConfig struct {
	MaxAttempts  int      `yaml:"max_attempts" split_words:"true"`
	InitialDelay Duration `yaml:"initial_delay" split_words:"true"`
	MaxDelay     Duration `yaml:"max_delay" split_words:"true"`
}

// BackoffConfig bounds the wait between proxy checkout attempts.
type BackoffConfig struct {
	Initial Duration `yaml:"initial" split_words:"true"`
	Max     Duration `yaml:"max" split_words:"true"`
}

// ProxiesConfig configures the proxy pool and its feeds.
type ProxiesConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" split_words:"true"`
	RefreshCron      string        `yaml:"refresh_cron" split_words:"true"`
	RecheckCron      string        `yaml:"recheck_cron" split_words:"true"`
	ProbeTarget      string        `yaml:"probe_target" split_words:"true"`
	ProbeTimeout     Duration      `yaml:"probe_timeout" split_words:"true"`
	ProbeConcurrency int           `yaml:"probe_concurrency" split_words:"true"`
	Static           []string      `yaml:"static" split_words:"true"`
	Sources          []ProxySource `yaml:"sources" ignored:"true"`
}

// ProxySource is one external proxy list feed.
type ProxySource struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	Format string `yaml:"format"` // "text" or "html_table"
	Scheme string `yaml:"scheme"` // "http" or "socks5"
	Limit  int    `yaml:"limit"`
}

// CaptchaConfig points at the external solving service.
type CaptchaConfig struct {
	Endpoint string   `yaml:"endpoint" split_words:"true"`
	APIKey   string   `yaml:"api_key" split_words:"true"`
	Timeout  Duration `yaml:"timeout" split_words:"true"`
}

// PayoutConfig points at the external payout service. An empty WebhookURL
// leaves withdrawals pending for an operator.
type PayoutConfig struct {
	WebhookURL string   `yaml:"webhook_url" split_words:"true"`
	Timeout    Duration `yaml:"timeout" split_words:"true"`
}

// NotifyConfig holds chat notification targets.
type NotifyConfig struct {
	Slack   ChatConfig `yaml:"slack"`
	Discord ChatConfig `yaml:"discord"`
}

// ChatConfig is a bot token plus the channel to post to.
type ChatConfig struct {
	BotToken  string `yaml:"bot_token" split_words:"true"`
	ChannelID string `yaml:"channel_id" split_words:"true"`
}

// Duration wraps time.Duration so YAML and env values like "90s" decode.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.Decode(s)
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(s string) error {
	if s == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Load reads a YAML config file from path, applies environment overrides and
// returns a validated Config. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = "dripyard.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "dripyard"
		}
	}
	if c.API.Port == 0 {
		c.API.Port = 8001
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "auto"
	}

	s := &c.Sessions
	if s.MaxConcurrent == 0 {
		s.MaxConcurrent = 10
	}
	if s.AttemptTimeout.Duration == 0 {
		s.AttemptTimeout.Duration = 90 * time.Second
	}
	if s.ClaimRetry.MaxAttempts == 0 {
		s.ClaimRetry.MaxAttempts = 3
	}
	if s.ClaimRetry.InitialDelay.Duration == 0 {
		s.ClaimRetry.InitialDelay.Duration = 2 * time.Second
	}
	if s.ClaimRetry.MaxDelay.Duration == 0 {
		s.ClaimRetry.MaxDelay.Duration = time.Minute
	}
	if s.CheckoutBackoff.Initial.Duration == 0 {
		s.CheckoutBackoff.Initial.Duration = time.Second
	}
	if s.CheckoutBackoff.Max.Duration == 0 {
		s.CheckoutBackoff.Max.Duration = 30 * time.Second
	}

	p := &c.Proxies
	if p.FailureThreshold == 0 {
		p.FailureThreshold = 3
	}
	if p.RefreshCron == "" {
		p.RefreshCron = "*/30 * * * *"
	}
	if p.RecheckCron == "" {
		p.RecheckCron = "*/5 * * * *"
	}
	if p.ProbeTarget == "" {
		p.ProbeTarget = "www.google.com:443"
	}
	if p.ProbeTimeout.Duration == 0 {
		p.ProbeTimeout.Duration = 10 * time.Second
	}
	if p.ProbeConcurrency == 0 {
		p.ProbeConcurrency = 20
	}
	for i := range p.Sources {
		if p.Sources[i].Format == "" {
			p.Sources[i].Format = "text"
		}
		if p.Sources[i].Scheme == "" {
			p.Sources[i].Scheme = "http"
		}
		if p.Sources[i].Limit == 0 {
			p.Sources[i].Limit = 1000
		}
		if p.Sources[i].Name == "" {
			p.Sources[i].Name = p.Sources[i].URL
		}
	}

	if c.Captcha.Timeout.Duration == 0 {
		c.Captcha.Timeout.Duration = 2 * time.Minute
	}
	if c.Payout.Timeout.Duration == 0 {
		c.Payout.Timeout.Duration = 30 * time.Second
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d is out of range", c.API.Port))
	}
	switch c.Log.Format {
	case "auto", "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not supported", c.Log.Format))
	}
	if c.Sessions.MaxConcurrent < 0 {
		errs = append(errs, "sessions.max_concurrent must not be negative")
	}
	if c.Sessions.ClaimRetry.MaxAttempts < 0 {
		errs = append(errs, "sessions.claim_retry.max_attempts must not be negative")
	}
	if c.Proxies.FailureThreshold < 0 {
		errs = append(errs, "proxies.failure_threshold must not be negative")
	}
	for i, src := range c.Proxies.Sources {
		if src.URL == "" {
			errs = append(errs, fmt.Sprintf("proxies.sources[%d].url is required", i))
		} else if _, err := url.ParseRequestURI(src.URL); err != nil {
			errs = append(errs, fmt.Sprintf("proxies.sources[%d].url is invalid", i))
		}
		switch src.Format {
		case "text", "html_table":
		default:
			errs = append(errs, fmt.Sprintf("proxies.sources[%d].format %q is not supported", i, src.Format))
		}
		switch src.Scheme {
		case "http", "https", "socks5":
		default:
			errs = append(errs, fmt.Sprintf("proxies.sources[%d].scheme %q is not supported", i, src.Scheme))
		}
	}
	if (c.Notify.Slack.BotToken == "") != (c.Notify.Slack.ChannelID == "") {
		errs = append(errs, "notify.slack requires both bot_token and channel_id")
	}
	if (c.Notify.Discord.BotToken == "") != (c.Notify.Discord.ChannelID == "") {
		errs = append(errs, "notify.discord requires both bot_token and channel_id")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
