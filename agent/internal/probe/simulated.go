package probe

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/linkscope/linkscope/pkg/types"
)

// Simulated returns plausible measurements without touching the network.
// Two sets built with the same seed produce the same sequence of results.
type Simulated struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a Simulated set seeded with seed.
func NewSimulated(seed uint64) *Simulated {
	return &Simulated{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// between returns a value in [lo, hi).
func (s *Simulated) between(lo, hi float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rng.Float64()*(hi-lo)
}

func (s *Simulated) CheckConnection(ctx context.Context) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return Connection{}, err
	}
	return Connection{
		IsOnline:       true,
		ConnectionType: "wifi",
		Meta: &types.ConnectionMeta{
			Interface:      "sim0",
			LocalAddress:   "192.168.1.23",
			ConnectionType: "wifi",
		},
	}, nil
}

func (s *Simulated) MeasureLatency(ctx context.Context) (Latency, error) {
	if err := ctx.Err(); err != nil {
		return Latency{}, err
	}
	samples := make([]float64, 3)
	for i := range samples {
		samples[i] = s.between(10, 60)
	}
	return Latency{
		AvgMs:    mean(samples),
		JitterMs: jitter(samples),
		Samples:  samples,
		Server:   "local-test",
	}, nil
}

func (s *Simulated) MeasureBandwidth(ctx context.Context) (Bandwidth, error) {
	if err := ctx.Err(); err != nil {
		return Bandwidth{}, err
	}
	return Bandwidth{
		DownloadMbps: s.between(50, 100),
		UploadMbps:   s.between(10, 50),
		Server:       "local-test",
	}, nil
}

func (s *Simulated) EstimatePacketLoss(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return round1(s.between(0, 2)), nil
}

var simulatedResolvers = []string{"Cloudflare", "Google", "OpenDNS"}

func (s *Simulated) TestDNS(ctx context.Context) ([]types.DNSProbeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]types.DNSProbeResult, len(simulatedResolvers))
	for i, label := range simulatedResolvers {
		out[i] = types.DNSProbeResult{
			ServerLabel:    label,
			ResponseTimeMs: s.between(10, 80),
			Status:         types.ProbeSuccess,
		}
	}
	return out, nil
}

var simulatedHops = []struct {
	label   string
	address string
	base    float64
}{
	{"local-network", "192.168.1.1", 5},
	{"isp-gateway", "10.0.0.1", 25},
	{"internet-backbone", "N/A", 45},
}

func (s *Simulated) AnalyzeRoute(ctx context.Context) ([]types.RouteHop, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]types.RouteHop, len(simulatedHops))
	for i, h := range simulatedHops {
		out[i] = types.RouteHop{
			HopIndex:  i + 1,
			HostLabel: h.label,
			Address:   h.address,
			LatencyMs: h.base + s.between(0, 20),
			Status:    types.ProbeSuccess,
		}
	}
	return out, nil
}

func (s *Simulated) Release() error { return nil }
func (s *Simulated) Close() error   { return nil }
