package probe

import (
	"context"
	"errors"
	"time"

	"github.com/linkscope/linkscope/pkg/types"
)

var (
	// ErrTimeout is returned when a probe got no answer before its deadline.
	ErrTimeout = errors.New("probe: timeout")
	// ErrNoSamples is returned when every attempt of a sampled probe failed.
	ErrNoSamples = errors.New("probe: no successful samples")
)

// Set is the collection of measurements the monitor runs. Implementations
// must be safe for concurrent use.
type Set interface {
	CheckConnection(ctx context.Context) (Connection, error)
	MeasureLatency(ctx context.Context) (Latency, error)
	MeasureBandwidth(ctx context.Context) (Bandwidth, error)
	EstimatePacketLoss(ctx context.Context) (float64, error)
	TestDNS(ctx context.Context) ([]types.DNSProbeResult, error)
	AnalyzeRoute(ctx context.Context) ([]types.RouteHop, error)
	// Release drops transport resources kept between measurements, such as
	// idle connections. Probes in flight are not disturbed.
	Release() error
	// Close is Release plus aborting probes in flight. The set stays
	// usable; the next probe opens what it needs again.
	Close() error
}

// Connection is the result of a reachability check.
type Connection struct {
	IsOnline       bool
	ConnectionType string
	Meta           *types.ConnectionMeta
}

// Latency is the result of a round-trip sampling run.
type Latency struct {
	AvgMs    float64
	JitterMs float64
	Samples  []float64
	Server   string
}

// Bandwidth is the result of a transfer test.
type Bandwidth struct {
	DownloadMbps float64
	UploadMbps   float64
	Server       string
}

// Resolver is a named DNS server. Address is host:port.
type Resolver struct {
	Label   string `yaml:"label"`
	Address string `yaml:"address"`
}

// Options configures a Real probe set. Zero fields take the defaults from
// DefaultOptions.
type Options struct {
	ConnectivityURL string
	LatencyTargets  []string
	DownloadURL     string
	UploadURL       string
	DownloadBytes   int64
	UploadBytes     int64
	Resolvers       []Resolver
	DNSQueryName    string
	RouteTarget     string
	MaxHops         int
	LatencySamples  int
	LossAttempts    int

	ProbeTimeout     time.Duration
	GlobalTimeout    time.Duration
	BandwidthTimeout time.Duration

	// SOCKS5Proxy, when set, routes the HTTP probes through host:port.
	SOCKS5Proxy string
}

// DefaultOptions returns the reference probe configuration.
func DefaultOptions() Options {
	return Options{
		ConnectivityURL: "https://www.cloudflare.com/cdn-cgi/trace",
		LatencyTargets:  []string{"1.1.1.1:443", "8.8.8.8:443", "9.9.9.9:443"},
		DownloadURL:     "https://speed.cloudflare.com/__down",
		UploadURL:       "https://speed.cloudflare.com/__up",
		DownloadBytes:   10 << 20,
		UploadBytes:     2 << 20,
		Resolvers: []Resolver{
			{Label: "Cloudflare", Address: "1.1.1.1:53"},
			{Label: "Google", Address: "8.8.8.8:53"},
			{Label: "OpenDNS", Address: "208.67.222.222:53"},
		},
		DNSQueryName:     "example.com.",
		RouteTarget:      "1.1.1.1",
		MaxHops:          3,
		LatencySamples:   3,
		LossAttempts:     10,
		ProbeTimeout:     2 * time.Second,
		GlobalTimeout:    5 * time.Second,
		BandwidthTimeout: 15 * time.Second,
	}
}

// withDefaults fills zero fields of o from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ConnectivityURL == "" {
		o.ConnectivityURL = d.ConnectivityURL
	}
	if len(o.LatencyTargets) == 0 {
		o.LatencyTargets = d.LatencyTargets
	}
	if o.DownloadURL == "" {
		o.DownloadURL = d.DownloadURL
	}
	if o.UploadURL == "" {
		o.UploadURL = d.UploadURL
	}
	if o.DownloadBytes <= 0 {
		o.DownloadBytes = d.DownloadBytes
	}
	if o.UploadBytes <= 0 {
		o.UploadBytes = d.UploadBytes
	}
	if len(o.Resolvers) == 0 {
		o.Resolvers = d.Resolvers
	}
	if o.DNSQueryName == "" {
		o.DNSQueryName = d.DNSQueryName
	}
	if o.RouteTarget == "" {
		o.RouteTarget = d.RouteTarget
	}
	if o.MaxHops <= 0 {
		o.MaxHops = d.MaxHops
	}
	if o.LatencySamples <= 0 {
		o.LatencySamples = d.LatencySamples
	}
	if o.LossAttempts <= 0 {
		o.LossAttempts = d.LossAttempts
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = d.ProbeTimeout
	}
	if o.GlobalTimeout <= 0 {
		o.GlobalTimeout = d.GlobalTimeout
	}
	if o.BandwidthTimeout <= 0 {
		o.BandwidthTimeout = d.BandwidthTimeout
	}
	return o
}

// durationMs converts d to fractional milliseconds.
func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
