package alerts

import (
	"github.com/linkscope/linkscope/agent/internal/config"
	"github.com/linkscope/linkscope/pkg/types"
)

// evalCondition evaluates a rule condition string against a snapshot.
// See config.ParseCondition for the grammar, for example "latency_ms > 200",
// "status == offline" or "is_online == false".
//
// Returns (fires bool, triggering value float64). The value of status is its
// Rank and booleans report 0 or 1. A condition that does not parse never
// fires.
func evalCondition(cond string, snap *types.NetworkSnapshot) (bool, float64) {
	c, err := config.ParseCondition(cond)
	if err != nil {
		return false, 0
	}

	switch c.Kind {
	case config.FieldStatus:
		v := float64(snap.Status.Rank())
		if c.Op == "==" {
			return snap.Status == c.Status, v
		}
		return snap.Status != c.Status, v

	case config.FieldBool:
		b := boolField(c.Field, snap)
		var v float64
		if b {
			v = 1
		}
		if c.Op == "==" {
			return b == c.Bool, v
		}
		return b != c.Bool, v

	default:
		v := numericField(c.Field, snap)
		return compareFloat(v, c.Op, c.Number), v
	}
}

func boolField(field string, snap *types.NetworkSnapshot) bool {
	switch field {
	case "is_online":
		return snap.IsOnline
	case "is_local_issue":
		return snap.IsLocalIssue
	default:
		return snap.IsISPIssue
	}
}

// numericField maps a numeric field name to its value in the snapshot.
func numericField(field string, snap *types.NetworkSnapshot) float64 {
	switch field {
	case "latency_ms":
		return snap.LatencyMs
	case "download_mbps":
		return snap.DownloadMbps
	case "upload_mbps":
		return snap.UploadMbps
	case "packet_loss_pct":
		return snap.PacketLossPct
	default:
		n := 0
		for _, r := range snap.Diagnostics.DNS {
			if r.Status != types.ProbeSuccess {
				n++
			}
		}
		return float64(n)
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
