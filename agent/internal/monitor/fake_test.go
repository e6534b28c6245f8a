package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/linkscope/linkscope/agent/internal/probe"
	"github.com/linkscope/linkscope/agent/internal/store"
	"github.com/linkscope/linkscope/pkg/types"
)

// fakeSet is a scriptable probe.Set.
type fakeSet struct {
	mu sync.Mutex

	conn     probe.Connection
	connErr  error
	latency  probe.Latency
	latErr   error
	bw       probe.Bandwidth
	bwErr    error
	loss     float64
	lossErr  error
	dns      []types.DNSProbeResult
	dnsErr   error
	route    []types.RouteHop
	routeErr error

	panicOn   string
	onLatency func()

	closes       int
	releases     int
	latencyCalls int
}

func healthySet() *fakeSet {
	return &fakeSet{
		conn:    probe.Connection{IsOnline: true, ConnectionType: "ethernet", Meta: &types.ConnectionMeta{Interface: "eth0", ConnectionType: "ethernet"}},
		latency: probe.Latency{AvgMs: 15, JitterMs: 1.5},
		bw:      probe.Bandwidth{DownloadMbps: 120, UploadMbps: 60, Server: "fake"},
		loss:    0,
		dns: []types.DNSProbeResult{
			{ServerLabel: "Cloudflare", ResponseTimeMs: 12, Status: types.ProbeSuccess},
			{ServerLabel: "Google", ResponseTimeMs: 18, Status: types.ProbeSuccess},
			{ServerLabel: "OpenDNS", ResponseTimeMs: 25, Status: types.ProbeSuccess},
		},
		route: []types.RouteHop{{HopIndex: 1, HostLabel: "local-gateway", Address: "192.168.1.1", LatencyMs: 2, Status: types.ProbeSuccess}},
	}
}

func (f *fakeSet) maybePanic(name string) {
	if f.panicOn == name {
		panic("fake probe exploded: " + name)
	}
}

func (f *fakeSet) CheckConnection(ctx context.Context) (probe.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maybePanic("connection")
	return f.conn, f.connErr
}

func (f *fakeSet) MeasureLatency(ctx context.Context) (probe.Latency, error) {
	f.mu.Lock()
	f.latencyCalls++
	hook := f.onLatency
	lat, err := f.latency, f.latErr
	explode := f.panicOn == "latency"
	f.mu.Unlock()
	if explode {
		panic("fake probe exploded: latency")
	}
	if hook != nil {
		hook()
	}
	return lat, err
}

func (f *fakeSet) MeasureBandwidth(ctx context.Context) (probe.Bandwidth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maybePanic("bandwidth")
	return f.bw, f.bwErr
}

func (f *fakeSet) EstimatePacketLoss(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loss, f.lossErr
}

func (f *fakeSet) TestDNS(ctx context.Context) ([]types.DNSProbeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dns, f.dnsErr
}

func (f *fakeSet) AnalyzeRoute(ctx context.Context) ([]types.RouteHop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.route, f.routeErr
}

func (f *fakeSet) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeSet) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return nil
}

func (f *fakeSet) set(fn func(f *fakeSet)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeSet) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeSet) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

func (f *fakeSet) latencyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latencyCalls
}

// --- ticker spy ---

type spyTicker struct {
	c chan time.Time

	mu      sync.Mutex
	period  time.Duration
	stopped bool
}

func (s *spyTicker) C() <-chan time.Time { return s.c }

func (s *spyTicker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *spyTicker) Reset(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.period = d
}

func (s *spyTicker) tick() { s.c <- time.Now() }

func (s *spyTicker) state() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period, s.stopped
}

type tickerSpy struct {
	mu   sync.Mutex
	made []*spyTicker
}

func (ts *tickerSpy) New(d time.Duration) Ticker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := &spyTicker{c: make(chan time.Time), period: d}
	ts.made = append(ts.made, t)
	return t
}

func (ts *tickerSpy) count() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.made)
}

func (ts *tickerSpy) last() *spyTicker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.made[len(ts.made)-1]
}

// --- helpers ---

var testNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func newTestMonitor(t *testing.T, probes probe.Set, spy *tickerSpy) (*Monitor, *store.Store) {
	t.Helper()
	st := store.New()
	opts := Options{
		PhaseTimeout: time.Second,
		Now:          func() time.Time { return testNow },
	}
	if spy != nil {
		opts.NewTicker = spy.New
	}
	return New(st, probes, nil, opts), st
}

// waitFor reads snapshots from ch until pred holds or two seconds pass.
func waitFor(t *testing.T, ch <-chan types.NetworkSnapshot, pred func(types.NetworkSnapshot) bool) types.NetworkSnapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if pred(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
			return types.NetworkSnapshot{}
		}
	}
}
