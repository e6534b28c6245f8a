package api

import (
	"time"

	"github.com/linkscope/linkscope/agent/internal/compute"
	"github.com/linkscope/linkscope/agent/internal/history"
	"github.com/linkscope/linkscope/pkg/types"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

// ScoreResponse is the body of GET /api/v1/score.
type ScoreResponse struct {
	Download   int          `json:"download_points"`
	Upload     int          `json:"upload_points"`
	Latency    int          `json:"latency_points"`
	PacketLoss int          `json:"packet_loss_points"`
	Total      int          `json:"total"`
	Status     types.Status `json:"status"`
	// QuickStatus is the latency/loss-only rating the background cycle uses.
	QuickStatus types.Status `json:"quick_status"`
	UptimePct   float64      `json:"uptime_pct"`
	Samples     int          `json:"stability_samples"`
}

// MonitoringResponse is the body of the /api/v1/monitoring endpoints.
type MonitoringResponse struct {
	Running  bool   `json:"running"`
	Interval string `json:"interval"`
	// NextScheduledTest is omitted when no cron schedule is configured.
	NextScheduledTest *time.Time `json:"next_scheduled_test,omitempty"`
}

// intervalRequest is the body of PUT /api/v1/monitoring.
type intervalRequest struct {
	Interval string `json:"interval" binding:"required"`
}

// HistoryResponse is the body of GET /api/v1/history.
type HistoryResponse struct {
	Timeframe history.Timeframe    `json:"timeframe"`
	Entries   []types.HistoryEntry `json:"entries"`
}

// TroubleshootingResponse is the body of GET /api/v1/troubleshooting.
type TroubleshootingResponse struct {
	Status types.Status   `json:"status"`
	Steps  []compute.Hint `json:"steps"`
}

func toScoreResponse(snap types.NetworkSnapshot) ScoreResponse {
	sc := compute.Points(snap.DownloadMbps, snap.UploadMbps, snap.LatencyMs, snap.PacketLossPct)
	return ScoreResponse{
		Download:    sc.Download,
		Upload:      sc.Upload,
		Latency:     sc.Latency,
		PacketLoss:  sc.PacketLoss,
		Total:       sc.Total,
		Status:      sc.Status,
		QuickStatus: compute.QuickStatus(snap.LatencyMs, snap.PacketLossPct),
		UptimePct:   compute.Uptime(snap.Diagnostics.Stability),
		Samples:     len(snap.Diagnostics.Stability),
	}
}
