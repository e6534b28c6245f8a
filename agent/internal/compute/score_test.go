package compute

import (
	"testing"

	"github.com/linkscope/linkscope/pkg/types"
)

// --- Points() / ComputeStatus() table-driven tests ---

func TestComputeStatus_Bands(t *testing.T) {
	tests := []struct {
		name                    string
		down, up, latency, loss float64
		wantTotal               int
		wantStatus              types.Status
	}{
		{"perfect connection", 100, 50, 20, 0, 100, types.StatusExcellent},
		{"exactly 90 is excellent", 100, 50, 50, 1, 90, types.StatusExcellent},
		{"85 is good", 100, 50, 50, 5, 85, types.StatusGood},
		{"exactly 70 is good", 50, 25, 100, 5, 70, types.StatusGood},
		{"exactly 50 is fair", 10, 10, 100, 10, 50, types.StatusFair},
		{"exactly 30 is poor", 10, 1, 200, 20, 30, types.StatusPoor},
		{"25 is offline", 5, 1, 200, 20, 25, types.StatusOffline},
		{"nothing works", 0, 0, 1000, 100, 0, types.StatusOffline},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := Points(tc.down, tc.up, tc.latency, tc.loss)
			if s.Total != tc.wantTotal {
				t.Errorf("total: got %d, want %d (%+v)", s.Total, tc.wantTotal, s)
			}
			if s.Status != tc.wantStatus {
				t.Errorf("status: got %q, want %q", s.Status, tc.wantStatus)
			}
			if got := ComputeStatus(tc.down, tc.up, tc.latency, tc.loss); got != s.Status {
				t.Errorf("ComputeStatus disagrees with Points: %q vs %q", got, s.Status)
			}
		})
	}
}

func TestPoints_BandCaps(t *testing.T) {
	s := Points(10_000, 10_000, 0, 0)
	for name, v := range map[string]int{
		"download": s.Download, "upload": s.Upload, "latency": s.Latency, "loss": s.PacketLoss,
	} {
		if v != bandMax {
			t.Errorf("%s band: got %d, want %d", name, v, bandMax)
		}
	}
}

// Improving any single metric while holding the others fixed must never
// lower the status band.
func TestComputeStatus_Monotonic(t *testing.T) {
	speeds := []float64{0, 0.5, 1, 3, 5, 7, 10, 20, 25, 40, 50, 75, 100, 500}
	latencies := []float64{1000, 600, 500, 300, 200, 150, 100, 60, 50, 30, 20, 5}
	losses := []float64{100, 30, 20, 15, 10, 7, 5, 2, 1, 0.5, 0}

	rank := func(d, u, l, p float64) int { return ComputeStatus(d, u, l, p).Rank() }

	for _, u := range speeds {
		for _, l := range latencies {
			for _, p := range losses {
				prev := -1
				for _, d := range speeds {
					r := rank(d, u, l, p)
					if r < prev {
						t.Fatalf("download %v lowered rank (u=%v l=%v p=%v)", d, u, l, p)
					}
					prev = r
				}
			}
		}
	}
	for _, d := range speeds {
		for _, u := range speeds {
			for _, p := range losses {
				prev := -1
				for _, l := range latencies {
					r := rank(d, u, l, p)
					if r < prev {
						t.Fatalf("latency %v lowered rank (d=%v u=%v p=%v)", l, d, u, p)
					}
					prev = r
				}
			}
		}
	}
	for _, d := range speeds {
		for _, l := range latencies {
			for _, p := range losses {
				prev := -1
				for _, u := range speeds {
					r := rank(d, u, l, p)
					if r < prev {
						t.Fatalf("upload %v lowered rank (d=%v l=%v p=%v)", u, d, l, p)
					}
					prev = r
				}
			}
		}
	}
	for _, d := range speeds {
		for _, u := range speeds {
			for _, l := range latencies {
				prev := -1
				for _, p := range losses {
					r := rank(d, u, l, p)
					if r < prev {
						t.Fatalf("loss %v lowered rank (d=%v u=%v l=%v)", p, d, u, l)
					}
					prev = r
				}
			}
		}
	}
}

// --- QuickStatus() ---

func TestQuickStatus(t *testing.T) {
	tests := []struct {
		latency, loss float64
		want          types.Status
	}{
		{15, 0, types.StatusExcellent},
		{19, 1, types.StatusGood}, // loss must be strictly below 1
		{30, 0, types.StatusGood},
		{50, 2, types.StatusGood},
		{60, 0, types.StatusFair},
		{10, 3, types.StatusFair},
		{120, 0, types.StatusPoor},
		{10, 6, types.StatusPoor},
	}
	for _, tc := range tests {
		if got := QuickStatus(tc.latency, tc.loss); got != tc.want {
			t.Errorf("QuickStatus(%v, %v): got %q, want %q", tc.latency, tc.loss, got, tc.want)
		}
	}
}
