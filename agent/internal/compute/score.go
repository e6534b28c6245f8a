package compute

import "github.com/linkscope/linkscope/pkg/types"

// bandMax is the most points a single metric band can contribute.
const bandMax = 25

// Thresholds that map a total score to a status. Each is the inclusive lower
// bound of its band.
const (
	ThresholdExcellent = 90
	ThresholdGood      = 70
	ThresholdFair      = 50
	ThresholdPoor      = 30
)

// Score is the per-band breakdown behind ComputeStatus.
type Score struct {
	Download   int
	Upload     int
	Latency    int
	PacketLoss int

	// Total is the sum of the four bands, 0–100.
	Total  int
	Status types.Status
}

// Points scores the four metrics independently and sums them.
//
// Bands (each capped at 25):
//
//	download Mbps  ≥100 25  ≥50 20  ≥25 15  ≥10 10  ≥5 5
//	upload Mbps    ≥50 25   ≥25 20  ≥10 15  ≥5 10   ≥1 5
//	latency ms     ≤20 25   ≤50 20  ≤100 15 ≤200 10 ≤500 5
//	packet loss %  0 25     ≤1 20   ≤5 15   ≤10 10  ≤20 5
func Points(downloadMbps, uploadMbps, latencyMs, packetLossPct float64) Score {
	s := Score{
		Download:   downloadPoints(downloadMbps),
		Upload:     uploadPoints(uploadMbps),
		Latency:    latencyPoints(latencyMs),
		PacketLoss: packetLossPoints(packetLossPct),
	}
	s.Total = s.Download + s.Upload + s.Latency + s.PacketLoss
	s.Status = statusFromScore(s.Total)
	return s
}

// ComputeStatus is the authoritative post-test rating.
func ComputeStatus(downloadMbps, uploadMbps, latencyMs, packetLossPct float64) types.Status {
	return Points(downloadMbps, uploadMbps, latencyMs, packetLossPct).Status
}

// QuickStatus is the heuristic used by the initial assessment. It looks at
// latency and packet loss only:
//
//	latency > 100 or loss > 5  → Poor
//	latency > 50 or loss > 2   → Fair
//	latency < 20 and loss < 1  → Excellent
//	otherwise                  → Good
func QuickStatus(latencyMs, packetLossPct float64) types.Status {
	switch {
	case latencyMs > 100 || packetLossPct > 5:
		return types.StatusPoor
	case latencyMs > 50 || packetLossPct > 2:
		return types.StatusFair
	case latencyMs < 20 && packetLossPct < 1:
		return types.StatusExcellent
	default:
		return types.StatusGood
	}
}

func downloadPoints(mbps float64) int {
	switch {
	case mbps >= 100:
		return bandMax
	case mbps >= 50:
		return 20
	case mbps >= 25:
		return 15
	case mbps >= 10:
		return 10
	case mbps >= 5:
		return 5
	default:
		return 0
	}
}

func uploadPoints(mbps float64) int {
	switch {
	case mbps >= 50:
		return bandMax
	case mbps >= 25:
		return 20
	case mbps >= 10:
		return 15
	case mbps >= 5:
		return 10
	case mbps >= 1:
		return 5
	default:
		return 0
	}
}

func latencyPoints(ms float64) int {
	switch {
	case ms <= 20:
		return bandMax
	case ms <= 50:
		return 20
	case ms <= 100:
		return 15
	case ms <= 200:
		return 10
	case ms <= 500:
		return 5
	default:
		return 0
	}
}

func packetLossPoints(pct float64) int {
	switch {
	case pct <= 0:
		return bandMax
	case pct <= 1:
		return 20
	case pct <= 5:
		return 15
	case pct <= 10:
		return 10
	case pct <= 20:
		return 5
	default:
		return 0
	}
}

// statusFromScore maps a 0–100 total to a named status.
func statusFromScore(score int) types.Status {
	switch {
	case score >= ThresholdExcellent:
		return types.StatusExcellent
	case score >= ThresholdGood:
		return types.StatusGood
	case score >= ThresholdFair:
		return types.StatusFair
	case score >= ThresholdPoor:
		return types.StatusPoor
	default:
		return types.StatusOffline
	}
}
