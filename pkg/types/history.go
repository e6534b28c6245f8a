package types

import "time"

// HistoryEntry is an immutable record derived from a snapshot at save time.
// Timestamp is assigned by the store and doubles as the entry's key.
type HistoryEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	DownloadMbps  float64   `json:"download_mbps"`
	UploadMbps    float64   `json:"upload_mbps"`
	LatencyMs     float64   `json:"latency_ms"`
	PacketLossPct float64   `json:"packet_loss_pct"`
	Status        Status    `json:"status"`
	IsLocalIssue  bool      `json:"is_local_issue"`
	IsISPIssue    bool      `json:"is_isp_issue"`
}

// EntryFrom builds an unstamped HistoryEntry from the snapshot's metrics.
func EntryFrom(s NetworkSnapshot) HistoryEntry {
	return HistoryEntry{
		DownloadMbps:  s.DownloadMbps,
		UploadMbps:    s.UploadMbps,
		LatencyMs:     s.LatencyMs,
		PacketLossPct: s.PacketLossPct,
		Status:        s.Status,
		IsLocalIssue:  s.IsLocalIssue,
		IsISPIssue:    s.IsISPIssue,
	}
}
