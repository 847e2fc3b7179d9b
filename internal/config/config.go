package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the service list is read from when --config is not given.
const DefaultPath = "config/services.yml"

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// ServiceType selects the probe used for a service.
type ServiceType string

const (
	TypeHTTP   ServiceType = "http"
	TypeTCP    ServiceType = "tcp"
	TypePing   ServiceType = "ping"
	TypeDocker ServiceType = "docker"
)

// ParseServiceType normalizes s. Known types match case-insensitively
// ("Http" and "http" are the same); anything else is returned verbatim and
// treated as unsupported by the checker.
func ParseServiceType(s string) ServiceType {
	switch t := ServiceType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeHTTP, TypeTCP, TypePing, TypeDocker:
		return t
	}
	return ServiceType(s)
}

// Service describes a single monitored service.
type Service struct {
	Name    string
	Type    ServiceType
	Host    string
	Enabled bool
	Timeout Duration
	Headers map[string]string
}

// PipelineConfig tunes the check-and-report pipeline.
type PipelineConfig struct {
	ChannelCapacity int      `yaml:"channel_capacity"`
	MaxConcurrency  int      `yaml:"max_concurrency"`
	Deadline        Duration `yaml:"deadline"`
}

// TelegramConfig addresses a Telegram chat. Token and ChatID are normally
// resolved from the environment variables named by TokenEnv and ChatIDEnv.
type TelegramConfig struct {
	APIURL    string `yaml:"api_url"`
	Token     string `yaml:"token"`
	ChatID    string `yaml:"chat_id"`
	TokenEnv  string `yaml:"token_env"`
	ChatIDEnv string `yaml:"chat_id_env"`
}

// WebhookConfig holds generic webhook settings.
type WebhookConfig struct {
	URL string `yaml:"url"`
}

// SlackConfig holds Slack incoming-webhook settings.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// NotifyConfig selects and configures the single notification sink.
type NotifyConfig struct {
	Sink          string         `yaml:"sink"`
	IncludeHost   bool           `yaml:"include_host"`
	RatePerSecond float64        `yaml:"rate_per_second"`
	Burst         int            `yaml:"burst"`
	Telegram      TelegramConfig `yaml:"telegram"`
	Webhook       WebhookConfig  `yaml:"webhook"`
	Slack         SlackConfig    `yaml:"slack"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MetricsConfig controls where run metrics are exported.
type MetricsConfig struct {
	Textfile    string `yaml:"textfile"`
	Pushgateway string `yaml:"pushgateway"`
	Job         string `yaml:"job"`
}

// JournalConfig holds delivery journal settings. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Config is the root application configuration.
type Config struct {
	Services []Service
	Pipeline PipelineConfig
	Notify   NotifyConfig
	Log      LogConfig
	Metrics  MetricsConfig
	Journal  JournalConfig
}

// Enabled returns the enabled services in configuration order.
func (c *Config) Enabled() []Service {
	out := make([]Service, 0, len(c.Services))
	for _, svc := range c.Services {
		if svc.Enabled {
			out = append(out, svc)
		}
	}
	return out
}

var validSinks = map[string]bool{
	"telegram": true,
	"webhook":  true,
	"slack":    true,
	"stdout":   true,
}

// ErrMissingSecret is returned by ResolveTelegram when the token or chat id
// cannot be found in the config or the environment.
var ErrMissingSecret = errors.New("missing telegram secret")

// Load reads, parses, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates raw YAML config data.
func Parse(data []byte) (*Config, error) {
	// Unmarshal into a raw intermediate to detect YAML parse errors vs duration errors.
	type rawService struct {
		Name        string            `yaml:"name"`
		ServiceType string            `yaml:"service_type"`
		Type        string            `yaml:"type"`
		Host        string            `yaml:"host"`
		Enabled     *bool             `yaml:"enabled"`
		Timeout     string            `yaml:"timeout"`
		Headers     map[string]string `yaml:"headers"`
	}
	type rawPipeline struct {
		ChannelCapacity int    `yaml:"channel_capacity"`
		MaxConcurrency  int    `yaml:"max_concurrency"`
		Deadline        string `yaml:"deadline"`
	}
	type rawConfig struct {
		Services []rawService  `yaml:"services"`
		Pipeline rawPipeline   `yaml:"pipeline"`
		Notify   NotifyConfig  `yaml:"notify"`
		Log      LogConfig     `yaml:"log"`
		Metrics  MetricsConfig `yaml:"metrics"`
		Journal  JournalConfig `yaml:"journal"`
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply defaults.
	if raw.Pipeline.ChannelCapacity == 0 {
		raw.Pipeline.ChannelCapacity = 32
	}
	if raw.Notify.Sink == "" {
		raw.Notify.Sink = "telegram"
	}
	if raw.Notify.Burst == 0 {
		raw.Notify.Burst = 1
	}
	if raw.Notify.Telegram.APIURL == "" {
		raw.Notify.Telegram.APIURL = "https://api.telegram.org"
	}
	if raw.Notify.Telegram.TokenEnv == "" {
		raw.Notify.Telegram.TokenEnv = "TELOXIDE_TOKEN"
	}
	if raw.Notify.Telegram.ChatIDEnv == "" {
		raw.Notify.Telegram.ChatIDEnv = "CHAT_ID"
	}
	if raw.Log.Level == "" {
		raw.Log.Level = "info"
	}
	if raw.Log.Format == "" {
		raw.Log.Format = "text"
	}
	if raw.Metrics.Job == "" {
		raw.Metrics.Job = "pingbot"
	}

	if raw.Pipeline.ChannelCapacity < 0 {
		return nil, fmt.Errorf("pipeline: channel_capacity must be positive, got %d", raw.Pipeline.ChannelCapacity)
	}
	if raw.Pipeline.MaxConcurrency < 0 {
		return nil, fmt.Errorf("pipeline: max_concurrency must not be negative, got %d", raw.Pipeline.MaxConcurrency)
	}
	if raw.Notify.RatePerSecond < 0 {
		return nil, fmt.Errorf("notify: rate_per_second must not be negative")
	}
	raw.Notify.Sink = strings.ToLower(raw.Notify.Sink)
	if !validSinks[raw.Notify.Sink] {
		return nil, fmt.Errorf("notify: invalid sink %q (must be telegram, webhook, slack, or stdout)", raw.Notify.Sink)
	}

	cfg := &Config{
		Pipeline: PipelineConfig{
			ChannelCapacity: raw.Pipeline.ChannelCapacity,
			MaxConcurrency:  raw.Pipeline.MaxConcurrency,
		},
		Notify:  raw.Notify,
		Log:     raw.Log,
		Metrics: raw.Metrics,
		Journal: raw.Journal,
	}
	if raw.Pipeline.Deadline != "" {
		d, err := time.ParseDuration(raw.Pipeline.Deadline)
		if err != nil {
			return nil, fmt.Errorf("pipeline: invalid deadline %q: %w", raw.Pipeline.Deadline, err)
		}
		cfg.Pipeline.Deadline = Duration{d}
	}

	for i, rs := range raw.Services {
		if rs.Name == "" {
			return nil, fmt.Errorf("service[%d]: name is required", i)
		}
		if rs.Host == "" {
			return nil, fmt.Errorf("service %q: host is required", rs.Name)
		}
		typ := rs.ServiceType
		if typ == "" {
			typ = rs.Type
		}
		if typ == "" {
			return nil, fmt.Errorf("service %q: service_type is required", rs.Name)
		}

		svc := Service{
			Name:    rs.Name,
			Type:    ParseServiceType(typ),
			Host:    rs.Host,
			Enabled: true,
			Headers: rs.Headers,
		}
		if rs.Enabled != nil {
			svc.Enabled = *rs.Enabled
		}

		// Parse timeout with default.
		if rs.Timeout == "" {
			svc.Timeout = Duration{5 * time.Second}
		} else {
			d, err := time.ParseDuration(rs.Timeout)
			if err != nil {
				return nil, fmt.Errorf("service %q: invalid timeout %q: %w", rs.Name, rs.Timeout, err)
			}
			if d <= 0 {
				return nil, fmt.Errorf("service %q: timeout must be positive", rs.Name)
			}
			svc.Timeout = Duration{d}
		}

		cfg.Services = append(cfg.Services, svc)
	}

	return cfg, nil
}

// ResolveTelegram fills Token and ChatID from the environment when they are
// not set inline. lookup is usually os.LookupEnv.
func ResolveTelegram(tc TelegramConfig, lookup func(string) (string, bool)) (TelegramConfig, error) {
	if tc.Token == "" {
		if v, ok := lookup(tc.TokenEnv); ok {
			tc.Token = strings.TrimSpace(v)
		}
	}
	if tc.ChatID == "" {
		if v, ok := lookup(tc.ChatIDEnv); ok {
			tc.ChatID = strings.TrimSpace(v)
		}
	}
	if tc.Token == "" {
		return tc, fmt.Errorf("%w: %s is not set", ErrMissingSecret, tc.TokenEnv)
	}
	if tc.ChatID == "" {
		return tc, fmt.Errorf("%w: %s is not set", ErrMissingSecret, tc.ChatIDEnv)
	}
	return tc, nil
}
