package compute

import (
	"fmt"

	"github.com/linkscope/linkscope/pkg/types"
)

// Hint levels, most severe last.
const (
	LevelOK       = "ok"
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Hint is one troubleshooting step derived from a snapshot.
type Hint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level  string `json:"level"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	// Action is the one thing the user should try next.
	Action string   `json:"action"`
	Value  *float64 `json:"value,omitempty"`
}

// Troubleshoot derives ordered troubleshooting steps from a snapshot.
// A snapshot with nothing wrong yields a single "no_issues" hint.
func Troubleshoot(s types.NetworkSnapshot) []Hint {
	var hints []Hint

	if !s.IsOnline {
		hints = append(hints, Hint{
			Key:    "check_internet",
			Level:  LevelCritical,
			Title:  "Check internet connection",
			Detail: "No reachability check has succeeded. The device may not be connected to any network.",
			Action: "Check your Wi-Fi or ethernet connection",
		})
	}

	if s.LatencyMs > HighLatencyMs {
		v := s.LatencyMs
		hints = append(hints, Hint{
			Key:   "high_latency",
			Level: LevelWarning,
			Title: fmt.Sprintf("%.0f ms latency", s.LatencyMs),
			Detail: fmt.Sprintf(
				"Round trips are taking %.0f ms, above the %.0f ms comfort limit. "+
					"Calls, games and interactive sessions will feel sluggish.",
				s.LatencyMs, HighLatencyMs,
			),
			Action: "Try a closer server or contact your ISP",
			Value:  &v,
		})
	}

	if s.DownloadMbps < SlowDownloadMbps {
		v := s.DownloadMbps
		hints = append(hints, Hint{
			Key:   "slow_download",
			Level: LevelWarning,
			Title: fmt.Sprintf("%.1f Mbps download", s.DownloadMbps),
			Detail: fmt.Sprintf(
				"Download throughput is below the recommended %.0f Mbps.",
				SlowDownloadMbps,
			),
			Action: "Check for background downloads or contact your ISP",
			Value:  &v,
		})
	}

	if s.PacketLossPct > HighPacketLossPct {
		v := s.PacketLossPct
		hints = append(hints, Hint{
			Key:    "packet_loss",
			Level:  LevelWarning,
			Title:  fmt.Sprintf("%.1f%% packet loss", s.PacketLossPct),
			Detail: "Enough packets are being lost that connections will stall and retransmit.",
			Action: "Move closer to the router or try a wired connection",
			Value:  &v,
		})
	}

	if s.IsLocalIssue {
		hints = append(hints, Hint{
			Key:    "local_issue",
			Level:  LevelCritical,
			Title:  "Local network issue",
			Detail: "The symptoms point at your own network or devices rather than the provider.",
			Action: "Restart your router and check device connections",
		})
	}

	if s.IsISPIssue {
		hints = append(hints, Hint{
			Key:    "isp_issue",
			Level:  LevelCritical,
			Title:  "ISP issue detected",
			Detail: "DNS failures or low throughput point upstream of your router.",
			Action: "Contact your ISP for assistance",
		})
	}

	if len(hints) == 0 {
		hints = append(hints, Hint{
			Key:    "no_issues",
			Level:  LevelOK,
			Title:  "No issues detected",
			Detail: "Your network appears to be functioning normally.",
			Action: "Continue using your connection as normal",
		})
	}
	return hints
}
