package compute

import "github.com/linkscope/linkscope/pkg/types"

// StabilityWindow is the number of background samples kept in a snapshot.
const StabilityWindow = 20

// AppendStability returns a new slice with p appended, trimmed to the newest
// StabilityWindow points. The input slice is never modified.
func AppendStability(points []types.StabilityPoint, p types.StabilityPoint) []types.StabilityPoint {
	start := 0
	if len(points)+1 > StabilityWindow {
		start = len(points) + 1 - StabilityWindow
	}
	out := make([]types.StabilityPoint, 0, len(points)-start+1)
	out = append(out, points[start:]...)
	return append(out, p)
}

// Uptime is the percentage of points whose status was not Offline.
// Returns 0 for an empty window.
func Uptime(points []types.StabilityPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	up := 0
	for _, p := range points {
		if p.Status != types.StatusOffline {
			up++
		}
	}
	return float64(up) / float64(len(points)) * 100
}
