package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is everything kanshi reads at startup and on reload.
type Config struct {
	Listen           string        `yaml:"listen"`
	StatePath        string        `yaml:"statePath"`
	AnomalyPath      string        `yaml:"anomalyPath"`
	AutosaveInterval time.Duration `yaml:"autosaveInterval"`

	Logging   LoggingConfig   `yaml:"logging"`
	Intervals IntervalsConfig `yaml:"intervals"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Anomaly   AnomalyConfig   `yaml:"anomaly"`
	Resources ResourcesConfig `yaml:"resources"`
	Targets   TargetsConfig   `yaml:"targets"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IntervalsConfig sets the timer of each check category. Each value is a Go
// duration ("30s") or a cron expression ("@daily", "0 3 * * *").
type IntervalsConfig struct {
	Services  string `yaml:"services"`
	HTTP      string `yaml:"http"`
	Resources string `yaml:"resources"`
	TLS       string `yaml:"tls"`
}

// AlertingConfig controls the state engine and the dispatcher.
type AlertingConfig struct {
	Cooldown          time.Duration  `yaml:"cooldown"`
	FlappingThreshold int            `yaml:"flappingThreshold"`
	FlappingWindow    time.Duration  `yaml:"flappingWindow"`
	RecoveryNotify    *bool          `yaml:"recoveryNotify"`
	RatePerSecond     float64        `yaml:"ratePerSecond"`
	Telegram          TelegramConfig `yaml:"telegram"`
	Webhook           string         `yaml:"webhook"`
	Command           []string       `yaml:"command"`
}

// RecoveryEnabled reports whether recovery alerts go out. Defaults to true
// when the field is absent.
func (a AlertingConfig) RecoveryEnabled() bool {
	return a.RecoveryNotify == nil || *a.RecoveryNotify
}

// TelegramConfig configures the Telegram transport and command listener.
type TelegramConfig struct {
	Token    string `yaml:"token"`
	ChatID   string `yaml:"chatID"`
	Commands bool   `yaml:"commands"`
}

// AnomalyConfig controls latency anomaly detection.
type AnomalyConfig struct {
	Enabled    *bool   `yaml:"enabled"`
	Multiplier float64 `yaml:"multiplier"`
	SampleSize int     `yaml:"sampleSize"`
	MinSamples int     `yaml:"minSamples"`
}

// DetectionEnabled defaults to true when the field is absent.
func (a AnomalyConfig) DetectionEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// ResourcesConfig sets host resource thresholds. Zero values fall back to
// the checker defaults.
type ResourcesConfig struct {
	Enabled         *bool   `yaml:"enabled"`
	CPUThreshold    float64 `yaml:"cpuThreshold"`
	MemoryThreshold float64 `yaml:"memoryThreshold"`
	DiskThreshold   float64 `yaml:"diskThreshold"`
	LoadThreshold   float64 `yaml:"loadThreshold"`
	DiskPath        string  `yaml:"diskPath"`
}

// MonitoringEnabled defaults to true when the field is absent.
func (r ResourcesConfig) MonitoringEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// TargetsConfig lists everything to watch, grouped by checker type.
// The omitempty tags keep generated configs free of unused sections.
type TargetsConfig struct {
	Containers []ContainerTarget `yaml:"containers,omitempty"`
	Processes  []ProcessTarget   `yaml:"processes,omitempty"`
	Services   []ServiceTarget   `yaml:"services,omitempty"`
	HTTP       []HTTPTarget      `yaml:"http,omitempty"`
	TLS        []TLSTarget       `yaml:"tls,omitempty"`
}

type ContainerTarget struct {
	Name      string `yaml:"name,omitempty"`
	Container string `yaml:"container"`
}

type ProcessTarget struct {
	Name    string `yaml:"name,omitempty"`
	Process string `yaml:"process"`
}

type ServiceTarget struct {
	Name string `yaml:"name,omitempty"`
	Unit string `yaml:"unit"`
}

type HTTPTarget struct {
	Name         string        `yaml:"name,omitempty"`
	URL          string        `yaml:"url"`
	ExpectStatus []int         `yaml:"expectStatus,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

type TLSTarget struct {
	Name     string `yaml:"name,omitempty"`
	Host     string `yaml:"host"`
	WarnDays int    `yaml:"warnDays,omitempty"`
}

// DefaultCertWarnDays is how close to expiry a certificate may get before a
// warning alert, when the target does not say otherwise.
const DefaultCertWarnDays = 14

// Load reads the config file at path, applies KANSHI_* environment
// overrides, normalizes target entries, and validates the result.
// An empty path falls back to $KANSHI_CONFIG; if that is empty too, the
// defaults alone are used.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("KANSHI_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Listen:           ":9321",
		StatePath:        "kanshi-state.json",
		AnomalyPath:      "kanshi-anomaly.json",
		AutosaveInterval: time.Minute,
		Logging:          LoggingConfig{Level: "info", Format: "console"},
		Intervals: IntervalsConfig{
			Services:  "30s",
			HTTP:      "1m",
			Resources: "1m",
			TLS:       "12h",
		},
		Alerting: AlertingConfig{
			Cooldown:          30 * time.Minute,
			FlappingThreshold: 3,
			FlappingWindow:    10 * time.Minute,
			RatePerSecond:     30,
		},
		Anomaly: AnomalyConfig{
			Multiplier: 3.0,
			SampleSize: 20,
			MinSamples: 5,
		},
		Resources: ResourcesConfig{
			DiskPath: "/",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KANSHI_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("KANSHI_STATE_PATH"); v != "" {
		cfg.StatePath = v
	}
	if v := os.Getenv("KANSHI_ANOMALY_PATH"); v != "" {
		cfg.AnomalyPath = v
	}
	if v := os.Getenv("KANSHI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("KANSHI_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("KANSHI_TELEGRAM_TOKEN"); v != "" {
		cfg.Alerting.Telegram.Token = v
	}
	if v := os.Getenv("KANSHI_TELEGRAM_CHAT_ID"); v != "" {
		cfg.Alerting.Telegram.ChatID = v
	}
	if v := os.Getenv("KANSHI_WEBHOOK"); v != "" {
		cfg.Alerting.Webhook = v
	}
	if v := os.Getenv("KANSHI_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Alerting.Cooldown = d
		}
	}
	if v := os.Getenv("KANSHI_SEND_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Alerting.RatePerSecond = rate
		}
	}
}

// normalize fills derived target fields: missing display names and per-target
// defaults.
func (c *Config) normalize() {
	for i := range c.Targets.Containers {
		if c.Targets.Containers[i].Name == "" {
			c.Targets.Containers[i].Name = c.Targets.Containers[i].Container
		}
	}
	for i := range c.Targets.Processes {
		if c.Targets.Processes[i].Name == "" {
			c.Targets.Processes[i].Name = c.Targets.Processes[i].Process
		}
	}
	for i := range c.Targets.Services {
		if c.Targets.Services[i].Name == "" {
			c.Targets.Services[i].Name = c.Targets.Services[i].Unit
		}
	}
	for i := range c.Targets.HTTP {
		if c.Targets.HTTP[i].Name == "" {
			if u, err := url.Parse(c.Targets.HTTP[i].URL); err == nil && u.Host != "" {
				c.Targets.HTTP[i].Name = u.Host
			} else {
				c.Targets.HTTP[i].Name = c.Targets.HTTP[i].URL
			}
		}
	}
	for i := range c.Targets.TLS {
		if c.Targets.TLS[i].Name == "" {
			c.Targets.TLS[i].Name = c.Targets.TLS[i].Host
		}
		if c.Targets.TLS[i].WarnDays <= 0 {
			c.Targets.TLS[i].WarnDays = DefaultCertWarnDays
		}
	}
}

// Validate rejects configurations the monitor cannot run with.
func (c *Config) Validate() error {
	if c.Alerting.FlappingThreshold < 1 {
		return fmt.Errorf("alerting.flappingThreshold must be at least 1, got %d", c.Alerting.FlappingThreshold)
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown must not be negative, got %s", c.Alerting.Cooldown)
	}
	if c.Anomaly.Multiplier <= 0 {
		return fmt.Errorf("anomaly.multiplier must be positive, got %v", c.Anomaly.Multiplier)
	}
	if c.Anomaly.SampleSize <= 0 {
		return fmt.Errorf("anomaly.sampleSize must be positive, got %d", c.Anomaly.SampleSize)
	}

	seen := map[string]string{}
	claim := func(name, kind string) error {
		if name == "" {
			return fmt.Errorf("%s target with empty name", kind)
		}
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("duplicate target name %q (%s and %s)", name, prev, kind)
		}
		seen[name] = kind
		return nil
	}

	for _, t := range c.Targets.Containers {
		if err := claim(t.Name, "container"); err != nil {
			return err
		}
	}
	for _, t := range c.Targets.Processes {
		if err := claim(t.Name, "process"); err != nil {
			return err
		}
	}
	for _, t := range c.Targets.Services {
		if err := claim(t.Name, "service"); err != nil {
			return err
		}
	}
	for _, t := range c.Targets.HTTP {
		if err := claim(t.Name, "http"); err != nil {
			return err
		}
	}
	for _, t := range c.Targets.TLS {
		if err := claim(t.Name, "tls"); err != nil {
			return err
		}
	}

	return nil
}
