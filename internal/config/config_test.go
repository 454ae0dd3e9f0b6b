package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kanshi-dev/kanshi/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "kanshi.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %s", err)
	}
	return path
}

func TestLoad_defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("failed to load: %s", err)
	}

	if cfg.Listen != ":9321" {
		t.Errorf("expected listen :9321 but got %q", cfg.Listen)
	}
	if cfg.Alerting.Cooldown != 30*time.Minute {
		t.Errorf("expected cooldown 30m but got %s", cfg.Alerting.Cooldown)
	}
	if cfg.Alerting.FlappingThreshold != 3 || cfg.Alerting.FlappingWindow != 10*time.Minute {
		t.Errorf("expected flapping 3 in 10m but got %d in %s", cfg.Alerting.FlappingThreshold, cfg.Alerting.FlappingWindow)
	}
	if !cfg.Alerting.RecoveryEnabled() {
		t.Errorf("expected recovery notifications enabled by default")
	}
	if cfg.Alerting.RatePerSecond != 30 {
		t.Errorf("expected send rate 30 but got %v", cfg.Alerting.RatePerSecond)
	}
	if !cfg.Anomaly.DetectionEnabled() {
		t.Errorf("expected anomaly detection enabled by default")
	}
	if cfg.Anomaly.Multiplier != 3.0 || cfg.Anomaly.SampleSize != 20 || cfg.Anomaly.MinSamples != 5 {
		t.Errorf("unexpected anomaly defaults: %+v", cfg.Anomaly)
	}
	if cfg.Intervals.TLS != "12h" {
		t.Errorf("expected tls interval 12h but got %q", cfg.Intervals.TLS)
	}
	if cfg.AutosaveInterval != time.Minute {
		t.Errorf("expected autosave interval 1m but got %s", cfg.AutosaveInterval)
	}
}

func TestLoad_file(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"listen: 127.0.0.1:8000",
		"statePath: /tmp/state.json",
		"intervals:",
		"  http: 15s",
		"  tls: \"@daily\"",
		"alerting:",
		"  cooldown: 5m",
		"  recoveryNotify: false",
		"  telegram:",
		"    token: TOKEN",
		"    chatID: \"42\"",
		"anomaly:",
		"  enabled: false",
		"  multiplier: 2.5",
		"targets:",
		"  http:",
		"    - url: https://example.com/healthz",
		"    - name: api",
		"      url: https://api.example.com",
		"      expectStatus: [200, 204]",
		"  services:",
		"    - unit: nginx.service",
		"  tls:",
		"    - host: example.com",
	}, "\n"))

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("failed to load: %s", err)
	}

	if cfg.Listen != "127.0.0.1:8000" {
		t.Errorf("expected overridden listen but got %q", cfg.Listen)
	}
	if cfg.Intervals.HTTP != "15s" {
		t.Errorf("expected http interval 15s but got %q", cfg.Intervals.HTTP)
	}
	if cfg.Intervals.Services != "30s" {
		t.Errorf("expected services interval to keep its default but got %q", cfg.Intervals.Services)
	}
	if cfg.Intervals.TLS != "@daily" {
		t.Errorf("expected tls cron spec but got %q", cfg.Intervals.TLS)
	}
	if cfg.Alerting.Cooldown != 5*time.Minute {
		t.Errorf("expected cooldown 5m but got %s", cfg.Alerting.Cooldown)
	}
	if cfg.Alerting.RecoveryEnabled() {
		t.Errorf("expected recovery notifications disabled")
	}
	if cfg.Anomaly.DetectionEnabled() {
		t.Errorf("expected anomaly detection disabled")
	}
	if cfg.Anomaly.Multiplier != 2.5 {
		t.Errorf("expected multiplier 2.5 but got %v", cfg.Anomaly.Multiplier)
	}

	names := []string{
		cfg.Targets.HTTP[0].Name,
		cfg.Targets.HTTP[1].Name,
		cfg.Targets.Services[0].Name,
		cfg.Targets.TLS[0].Name,
	}
	want := []string{"example.com", "api", "nginx.service", "example.com"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("unexpected derived target names:\n%s", diff)
	}

	if diff := cmp.Diff([]int{200, 204}, cfg.Targets.HTTP[1].ExpectStatus); diff != "" {
		t.Errorf("unexpected expectStatus:\n%s", diff)
	}
	if cfg.Targets.TLS[0].WarnDays != config.DefaultCertWarnDays {
		t.Errorf("expected default warnDays %d but got %d", config.DefaultCertWarnDays, cfg.Targets.TLS[0].WarnDays)
	}
}

func TestLoad_envOverridesFile(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"listen: 127.0.0.1:8000",
		"alerting:",
		"  cooldown: 5m",
		"  telegram:",
		"    token: from-file",
	}, "\n"))

	t.Setenv("KANSHI_LISTEN", ":7000")
	t.Setenv("KANSHI_TELEGRAM_TOKEN", "from-env")
	t.Setenv("KANSHI_COOLDOWN", "90s")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("failed to load: %s", err)
	}

	if cfg.Listen != ":7000" {
		t.Errorf("expected env listen to win but got %q", cfg.Listen)
	}
	if cfg.Alerting.Telegram.Token != "from-env" {
		t.Errorf("expected env token to win but got %q", cfg.Alerting.Telegram.Token)
	}
	if cfg.Alerting.Cooldown != 90*time.Second {
		t.Errorf("expected env cooldown to win but got %s", cfg.Alerting.Cooldown)
	}
}

func TestLoad_envConfigPath(t *testing.T) {
	path := writeConfig(t, "listen: 127.0.0.1:8000\n")
	t.Setenv("KANSHI_CONFIG", path)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("failed to load: %s", err)
	}
	if cfg.Listen != "127.0.0.1:8000" {
		t.Errorf("expected config from $KANSHI_CONFIG but got listen %q", cfg.Listen)
	}
}

func TestLoad_errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		contain string
	}{
		{"invalid-yaml", "listen: [unclosed", "parse config"},
		{"bad-threshold", "alerting:\n  flappingThreshold: 0\n", "flappingThreshold"},
		{"bad-multiplier", "anomaly:\n  multiplier: -1\n", "multiplier"},
		{"duplicate-names", "targets:\n  http:\n    - name: web\n      url: https://a.example.com\n  services:\n    - name: web\n      unit: web.service\n", "duplicate target name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("expected an error but got nil")
			}
			if !strings.Contains(err.Error(), tt.contain) {
				t.Errorf("expected error to mention %q but got: %s", tt.contain, err)
			}
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "no-such.yaml"))
	if err == nil {
		t.Fatalf("expected an error but got nil")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected a not-found error but got: %s", err)
	}
}

func TestLoad_noPath(t *testing.T) {
	t.Setenv("KANSHI_CONFIG", "")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("failed to load: %s", err)
	}
	if cfg.Listen != ":9321" {
		t.Errorf("expected defaults without a config file but got listen %q", cfg.Listen)
	}
}
