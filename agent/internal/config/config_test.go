package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
log_level: debug
monitor:
  interval: 10s
  phase_timeout: 5s
  autostart: false
  schedule:
    cron: "@hourly"
    save: true
probes:
  mode: simulated
  seed: 42
  resolvers:
    - label: Quad9
      address: "9.9.9.9:53"
  max_hops: 5
  socks5_proxy: "127.0.0.1:1080"
history:
  path: /tmp/history.json
  max_entries: 200
server:
  http_port: 9090
  grpc_port: 0
`
	cfg := loadFromString(t, yaml)

	if cfg.Monitor.Interval != 10*time.Second {
		t.Errorf("interval: got %v", cfg.Monitor.Interval)
	}
	if cfg.Monitor.PhaseTimeout != 5*time.Second {
		t.Errorf("phase_timeout: got %v", cfg.Monitor.PhaseTimeout)
	}
	if cfg.Monitor.Autostart {
		t.Error("autostart: got true, want false")
	}
	if cfg.Monitor.Schedule.Cron != "@hourly" || !cfg.Monitor.Schedule.Save {
		t.Errorf("schedule: got %+v", cfg.Monitor.Schedule)
	}
	if cfg.Probes.Mode != "simulated" || cfg.Probes.Seed != 42 {
		t.Errorf("probes: got mode=%q seed=%d", cfg.Probes.Mode, cfg.Probes.Seed)
	}
	if len(cfg.Probes.Resolvers) != 1 || cfg.Probes.Resolvers[0].Label != "Quad9" {
		t.Fatalf("resolvers: got %+v", cfg.Probes.Resolvers)
	}
	if cfg.History.MaxEntries != 200 {
		t.Errorf("max_entries: got %d", cfg.History.MaxEntries)
	}
	if cfg.Server.HTTPPort != 9090 || cfg.Server.GRPCPort != 0 {
		t.Errorf("server: got %+v", cfg.Server)
	}
	if got := cfg.SlogLevel(); got != slog.LevelDebug {
		t.Errorf("SlogLevel: got %v, want debug", got)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "probes:\n  mode: real\n")

	if cfg.Monitor.Interval != DefaultInterval {
		t.Errorf("default interval: got %v, want %v", cfg.Monitor.Interval, DefaultInterval)
	}
	if cfg.Monitor.PhaseTimeout != DefaultPhaseTimeout {
		t.Errorf("default phase_timeout: got %v, want %v", cfg.Monitor.PhaseTimeout, DefaultPhaseTimeout)
	}
	if cfg.Monitor.Schedule.Timeout != DefaultScheduleTimeout {
		t.Errorf("default schedule timeout: got %v", cfg.Monitor.Schedule.Timeout)
	}
	if !cfg.Monitor.Autostart || !cfg.Monitor.InitialAssessment {
		t.Error("autostart and initial_assessment should default to true")
	}
	if cfg.History.Path != DefaultHistoryPath {
		t.Errorf("default history path: got %q", cfg.History.Path)
	}
	if cfg.Server.GRPCPort != DefaultGRPCPort {
		t.Errorf("default grpc_port: got %d, want %d", cfg.Server.GRPCPort, DefaultGRPCPort)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("default http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
	if got := cfg.SlogLevel(); got != slog.LevelInfo {
		t.Errorf("SlogLevel: got %v, want info", got)
	}
}

func TestDefault_MatchesEmptyFile(t *testing.T) {
	cfg := loadFromString(t, "")
	def := Default()
	if cfg.Monitor != def.Monitor || cfg.History != def.History {
		t.Errorf("empty file: got %+v, want %+v", cfg, def)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown log level", "log_level: loud\n"},
		{"zero interval", "monitor:\n  interval: 0s\n"},
		{"negative phase timeout", "monitor:\n  phase_timeout: -1s\n"},
		{"bad cron", "monitor:\n  schedule:\n    cron: \"every tuesday\"\n"},
		{"unknown probe mode", "probes:\n  mode: psychic\n"},
		{"resolver without address", "probes:\n  resolvers:\n    - label: X\n"},
		{"resolver without port", "probes:\n  resolvers:\n    - label: X\n      address: 1.1.1.1\n"},
		{"negative max entries", "history:\n  max_entries: -1\n"},
		{"http port out of range", "server:\n  http_port: 70000\n"},
		{"negative rate limit", "server:\n  rate_limit: -1\n"},
		{"rate limit without burst", "server:\n  rate_limit: 5\n  rate_burst: 0\n"},
		{"rule without condition", "alerts:\n  rules:\n    - name: slow\n"},
		{"rule with misspelled field", "alerts:\n  rules:\n    - name: slow\n      condition: \"latncy_ms > 200\"\n"},
		{"rule with bad status", "alerts:\n  rules:\n    - name: down\n      condition: \"status == broken\"\n"},
		{"unknown webhook type", "alerts:\n  webhooks:\n    - type: pager\n"},
		{"malformed yaml", "monitor: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestProbesConfig_Options(t *testing.T) {
	cfg := loadFromString(t, `
probes:
  latency_targets: ["10.0.0.1:443"]
  download_bytes: 1024
  dns_query_name: example.org.
  probe_timeout: 750ms
  socks5_proxy: "127.0.0.1:1080"
`)
	opts := cfg.Probes.Options()
	if len(opts.LatencyTargets) != 1 || opts.LatencyTargets[0] != "10.0.0.1:443" {
		t.Errorf("LatencyTargets: got %v", opts.LatencyTargets)
	}
	if opts.DownloadBytes != 1024 {
		t.Errorf("DownloadBytes: got %d", opts.DownloadBytes)
	}
	if opts.DNSQueryName != "example.org." {
		t.Errorf("DNSQueryName: got %q", opts.DNSQueryName)
	}
	if opts.ProbeTimeout != 750*time.Millisecond {
		t.Errorf("ProbeTimeout: got %v", opts.ProbeTimeout)
	}
	if opts.SOCKS5Proxy != "127.0.0.1:1080" {
		t.Errorf("SOCKS5Proxy: got %q", opts.SOCKS5Proxy)
	}
	if opts.UploadURL != "" {
		t.Errorf("UploadURL: got %q, want empty so probe defaults apply", opts.UploadURL)
	}
}

func TestLoad_AlertRules(t *testing.T) {
	cfg := loadFromString(t, `
alerts:
  rules:
    - name: high-latency
      condition: "latency_ms > 200"
      severity: warning
      cooldown: 5m
  webhooks:
    - type: slack
      url_env: LINKSCOPE_SLACK
`)
	if len(cfg.Alerts.Rules) != 1 {
		t.Fatalf("rules: got %d, want 1", len(cfg.Alerts.Rules))
	}
	r := cfg.Alerts.Rules[0]
	if r.Condition != "latency_ms > 200" || r.Cooldown != 5*time.Minute {
		t.Errorf("rule: got %+v", r)
	}
	if len(cfg.Alerts.Webhooks) != 1 || cfg.Alerts.Webhooks[0].URLEnv != "LINKSCOPE_SLACK" {
		t.Errorf("webhooks: got %+v", cfg.Alerts.Webhooks)
	}
}

func TestWebhookConfig_URL(t *testing.T) {
	t.Setenv("TEST_WEBHOOK_URL", "https://hooks.example.com/abc")
	w := WebhookConfig{Type: "slack", URLEnv: "TEST_WEBHOOK_URL"}
	if got := w.URL(); got != "https://hooks.example.com/abc" {
		t.Errorf("URL(): got %q", got)
	}
	if got := (WebhookConfig{Type: "http"}).URL(); got != "" {
		t.Errorf("URL() with no URLEnv: got %q, want empty", got)
	}
}

// --- Watch ---

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("monitor:\n  interval: 10s\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A truncating write can be observed half-done as an empty file, which
	// is valid on its own. Only forward the config the test wrote.
	got := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) {
			if c.Monitor.Interval != 45*time.Second {
				return
			}
			select {
			case got <- c:
			default:
			}
		})
	}()

	// The watcher registers asynchronously; keep rewriting until it sees one.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-got:
			if cfg.Monitor.Interval != 45*time.Second {
				t.Errorf("reloaded interval: got %v, want 45s", cfg.Monitor.Interval)
			}
			if cfg.Monitor.PhaseTimeout != DefaultPhaseTimeout {
				t.Errorf("reloaded config lost defaults: phase_timeout %v", cfg.Monitor.PhaseTimeout)
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch returned %v", err)
			}
			return
		case <-tick.C:
			_ = os.WriteFile(path, []byte("monitor:\n  interval: 45s\n"), 0o600)
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}

func TestWatch_InvalidReloadKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = os.WriteFile(path, []byte("log_level: loud\n"), 0o600)
	}()
	err := Watch(ctx, path, func(c *Config) {
		if c.LogLevel != DefaultLogLevel {
			t.Errorf("onChange received an invalid config: log_level %q", c.LogLevel)
		}
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"), func(*Config) {})
	if err == nil {
		t.Fatal("expected error watching a missing file")
	}
}

// --- helpers ---

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
