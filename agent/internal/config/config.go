package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/linkscope/linkscope/agent/internal/probe"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultLogLevel        = "info"
	DefaultInterval        = 30 * time.Second
	DefaultPhaseTimeout    = 20 * time.Second
	DefaultScheduleTimeout = 2 * time.Minute
	DefaultHistoryPath     = "linkscope-history.json"
	DefaultGRPCPort        = 50051
	DefaultHTTPPort        = 8080
	DefaultProbeMode       = "real"
	DefaultRateLimit       = 10
	DefaultRateBurst       = 20
)

// Config is the top-level configuration. Fields map 1:1 to config.example.yaml.
type Config struct {
	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	Monitor MonitorConfig `yaml:"monitor"`
	Probes  ProbesConfig  `yaml:"probes"`
	History HistoryConfig `yaml:"history"`
	Server  ServerConfig  `yaml:"server"`
	Alerts  AlertsConfig  `yaml:"alerts"`
}

// MonitorConfig controls the background cycle and scheduled tests.
type MonitorConfig struct {
	// Interval is the background cycle period.
	Interval time.Duration `yaml:"interval"`

	// PhaseTimeout bounds each probe call the monitor makes.
	PhaseTimeout time.Duration `yaml:"phase_timeout"`

	// Autostart starts the background cycle at boot.
	Autostart bool `yaml:"autostart"`

	// InitialAssessment runs one quick assessment at boot.
	InitialAssessment bool `yaml:"initial_assessment"`

	Schedule ScheduleConfig `yaml:"schedule"`
}

// ScheduleConfig runs full tests on a cron schedule.
type ScheduleConfig struct {
	// Cron is a five-field cron spec or descriptor ("@hourly"). Empty disables.
	Cron string `yaml:"cron"`

	// Save appends every scheduled result to the history.
	Save bool `yaml:"save"`

	// Timeout bounds one scheduled test.
	Timeout time.Duration `yaml:"timeout"`
}

// ProbesConfig selects and tunes the probe set.
type ProbesConfig struct {
	// Mode is one of: real | simulated.
	Mode string `yaml:"mode"`

	// Seed feeds the simulated probe set.
	Seed uint64 `yaml:"seed"`

	ConnectivityURL string           `yaml:"connectivity_url"`
	LatencyTargets  []string         `yaml:"latency_targets"`
	DownloadURL     string           `yaml:"download_url"`
	UploadURL       string           `yaml:"upload_url"`
	DownloadBytes   int64            `yaml:"download_bytes"`
	UploadBytes     int64            `yaml:"upload_bytes"`
	Resolvers       []probe.Resolver `yaml:"resolvers"`
	DNSQueryName    string           `yaml:"dns_query_name"`
	RouteTarget     string           `yaml:"route_target"`
	MaxHops         int              `yaml:"max_hops"`
	LatencySamples  int              `yaml:"latency_samples"`
	LossAttempts    int              `yaml:"loss_attempts"`

	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	GlobalTimeout    time.Duration `yaml:"global_timeout"`
	BandwidthTimeout time.Duration `yaml:"bandwidth_timeout"`

	// SOCKS5Proxy routes the HTTP probes through host:port when set.
	SOCKS5Proxy string `yaml:"socks5_proxy"`
}

// Options converts the probe settings for probe.NewReal. Unset fields are
// left zero and take the probe package defaults.
func (p ProbesConfig) Options() probe.Options {
	return probe.Options{
		ConnectivityURL:  p.ConnectivityURL,
		LatencyTargets:   p.LatencyTargets,
		DownloadURL:      p.DownloadURL,
		UploadURL:        p.UploadURL,
		DownloadBytes:    p.DownloadBytes,
		UploadBytes:      p.UploadBytes,
		Resolvers:        p.Resolvers,
		DNSQueryName:     p.DNSQueryName,
		RouteTarget:      p.RouteTarget,
		MaxHops:          p.MaxHops,
		LatencySamples:   p.LatencySamples,
		LossAttempts:     p.LossAttempts,
		ProbeTimeout:     p.ProbeTimeout,
		GlobalTimeout:    p.GlobalTimeout,
		BandwidthTimeout: p.BandwidthTimeout,
		SOCKS5Proxy:      p.SOCKS5Proxy,
	}
}

// HistoryConfig configures saved-result persistence.
type HistoryConfig struct {
	// Path is the JSON file holding saved results. Empty keeps history in
	// memory only.
	Path string `yaml:"path"`

	// MaxEntries caps the file at the newest N entries. 0 is unlimited.
	MaxEntries int `yaml:"max_entries"`
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, WebSocket stream and /metrics listen on.
	HTTPPort int `yaml:"http_port"`

	// GRPCPort is the port the gRPC health service listens on. 0 disables it.
	GRPCPort int `yaml:"grpc_port"`

	// AllowedOrigins lists the Origin values accepted on the WebSocket
	// stream. Empty accepts any.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// RateLimit caps API requests per second per client IP. 0 disables it.
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the token-bucket burst size paired with RateLimit.
	RateBurst int `yaml:"rate_burst"`
}

// AlertsConfig holds all alerting rules and webhook targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines a threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier.
	Name string `yaml:"name"`

	// Condition is an expression like "latency_ms > 200" or "status == offline".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// SlogLevel returns the parsed log level. Load has already validated it.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config { return defaults() }

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Monitor: MonitorConfig{
			Interval:          DefaultInterval,
			PhaseTimeout:      DefaultPhaseTimeout,
			Autostart:         true,
			InitialAssessment: true,
			Schedule:          ScheduleConfig{Timeout: DefaultScheduleTimeout},
		},
		Probes: ProbesConfig{Mode: DefaultProbeMode},
		History: HistoryConfig{
			Path: DefaultHistoryPath,
		},
		Server: ServerConfig{
			HTTPPort:  DefaultHTTPPort,
			GRPCPort:  DefaultGRPCPort,
			RateLimit: DefaultRateLimit,
			RateBurst: DefaultRateBurst,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("log_level: unknown level %q", cfg.LogLevel)
	}
	if cfg.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	if cfg.Monitor.PhaseTimeout <= 0 {
		return fmt.Errorf("monitor.phase_timeout must be positive")
	}
	if spec := cfg.Monitor.Schedule.Cron; spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("monitor.schedule.cron %q: %w", spec, err)
		}
	}
	switch cfg.Probes.Mode {
	case "real", "simulated":
	default:
		return fmt.Errorf("probes.mode: unknown mode %q", cfg.Probes.Mode)
	}
	for i, r := range cfg.Probes.Resolvers {
		if r.Label == "" || r.Address == "" {
			return fmt.Errorf("probes.resolvers[%d]: label and address are required", i)
		}
		if !strings.Contains(r.Address, ":") {
			return fmt.Errorf("probes.resolvers[%d] %q: address must be host:port", i, r.Label)
		}
	}
	if cfg.History.MaxEntries < 0 {
		return fmt.Errorf("history.max_entries must not be negative")
	}
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d out of range", cfg.Server.HTTPPort)
	}
	if cfg.Server.GRPCPort < 0 || cfg.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d out of range", cfg.Server.GRPCPort)
	}
	if cfg.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst < 1 {
		return fmt.Errorf("server.rate_burst must be at least 1 when rate_limit is set")
	}
	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("alerts.rules[%d] %q: condition is required", i, r.Name)
		}
		if _, err := ParseCondition(r.Condition); err != nil {
			return fmt.Errorf("alerts.rules[%d] %q: %w", i, r.Name, err)
		}
	}
	for i, w := range cfg.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	return nil
}
