package types

import "time"

// Status is the coarse health rating of the connection.
type Status string

// Health ratings, best to worst. StatusUnknown is the session-start value.
const (
	StatusUnknown   Status = "unknown"
	StatusExcellent Status = "excellent"
	StatusGood      Status = "good"
	StatusFair      Status = "fair"
	StatusPoor      Status = "poor"
	StatusOffline   Status = "offline"
)

// Rank orders statuses so callers can compare bands. Higher is healthier;
// StatusUnknown ranks below StatusOffline.
func (s Status) Rank() int {
	switch s {
	case StatusExcellent:
		return 5
	case StatusGood:
		return 4
	case StatusFair:
		return 3
	case StatusPoor:
		return 2
	case StatusOffline:
		return 1
	default:
		return 0
	}
}

// ProbeStatus is the outcome of a single DNS or route-hop probe.
type ProbeStatus string

const (
	ProbeSuccess ProbeStatus = "success"
	ProbeTimeout ProbeStatus = "timeout"
	ProbeError   ProbeStatus = "error"
)

// DNSProbeResult is the outcome of querying one named resolver.
type DNSProbeResult struct {
	ServerLabel    string      `json:"server_label"`
	Address        string      `json:"address,omitempty"`
	ResponseTimeMs float64     `json:"response_time_ms"`
	Status         ProbeStatus `json:"status"`
}

// RouteHop is one hop of a route analysis. HopIndex is 1-based.
type RouteHop struct {
	HopIndex  int         `json:"hop_index"`
	HostLabel string      `json:"host_label"`
	Address   string      `json:"address"`
	LatencyMs float64     `json:"latency_ms"`
	Status    ProbeStatus `json:"status"`
}

// StabilityPoint is one background-cycle sample of connection quality.
type StabilityPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	LatencyMs     float64   `json:"latency_ms"`
	PacketLossPct float64   `json:"packet_loss_pct"`
	Status        Status    `json:"status"`
}

// ConnectionMeta describes the local attachment to the network.
type ConnectionMeta struct {
	Interface      string `json:"interface"`
	LocalAddress   string `json:"local_address"`
	ConnectionType string `json:"connection_type"`
}

// Diagnostics is the nested diagnostics sub-object of a NetworkSnapshot.
type Diagnostics struct {
	DNS        []DNSProbeResult `json:"dns"`
	Route      []RouteHop       `json:"route"`
	Stability  []StabilityPoint `json:"stability"`
	Connection *ConnectionMeta  `json:"connection,omitempty"`
}

// NetworkSnapshot is the current best-known state of the connection.
// Exactly one exists per monitoring session; it is only ever replaced through
// the store's reducer.
type NetworkSnapshot struct {
	Status         Status         `json:"status"`
	ConnectionType string         `json:"connection_type"`
	DownloadMbps   float64        `json:"download_mbps"`
	UploadMbps     float64        `json:"upload_mbps"`
	LatencyMs      float64        `json:"latency_ms"`
	PacketLossPct  float64        `json:"packet_loss_pct"`
	IsLocalIssue   bool           `json:"is_local_issue"`
	IsISPIssue     bool           `json:"is_isp_issue"`
	LastUpdated    *time.Time     `json:"last_updated"`
	IsOnline       bool           `json:"is_online"`
	Diagnostics    Diagnostics    `json:"diagnostics"`
	History        []HistoryEntry `json:"history"`
	IsLoading      bool           `json:"is_loading"`
	Error          *string        `json:"error"`
}

// NewSnapshot returns the session-start snapshot: zero metrics, unknown status.
func NewSnapshot() NetworkSnapshot {
	return NetworkSnapshot{
		Status: StatusUnknown,
		Diagnostics: Diagnostics{
			DNS:       []DNSProbeResult{},
			Route:     []RouteHop{},
			Stability: []StabilityPoint{},
		},
		History: []HistoryEntry{},
	}
}

// ClassificationResult is the local-vs-ISP verdict. ConfidencePct is 0–100.
type ClassificationResult struct {
	IsLocalIssue  bool    `json:"is_local_issue"`
	IsISPIssue    bool    `json:"is_isp_issue"`
	ConfidencePct float64 `json:"confidence_pct"`
}

// TestResult is the completed record returned by a successful full test.
type TestResult struct {
	DownloadMbps   float64              `json:"download_mbps"`
	UploadMbps     float64              `json:"upload_mbps"`
	LatencyMs      float64              `json:"latency_ms"`
	JitterMs       float64              `json:"jitter_ms"`
	PacketLossPct  float64              `json:"packet_loss_pct"`
	Server         string               `json:"server"`
	Status         Status               `json:"status"`
	Classification ClassificationResult `json:"classification"`
	Timestamp      time.Time            `json:"timestamp"`
}

// Ptr returns a pointer to v. It keeps patch literals short.
func Ptr[T any](v T) *T { return &v }
