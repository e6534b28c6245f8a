package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linkscope/linkscope/agent/internal/compute"
	"github.com/linkscope/linkscope/agent/internal/history"
	"github.com/linkscope/linkscope/agent/internal/probe"
	"github.com/linkscope/linkscope/agent/internal/store"
	"github.com/linkscope/linkscope/pkg/types"
)

const (
	// DefaultInterval is the background cycle period.
	DefaultInterval = 30 * time.Second
	// DefaultPhaseTimeout bounds any single probe call made by the monitor,
	// on top of the probe's own timeouts.
	DefaultPhaseTimeout = 20 * time.Second
	// DefaultMaxHistory caps the snapshot's session history.
	DefaultMaxHistory = 100
)

// Messages surfaced through the snapshot's error field.
const (
	MsgNoConnection = "No internet connection available"
	MsgTestFailed   = "Speed test failed"
	MsgDiagFailed   = "Diagnostics failed"
	MsgDNSFailed    = "DNS test failed"
	MsgRouteFailed  = "Route analysis failed"
	MsgAssessFailed = "Failed to initialize network status"
)

var (
	// ErrNoConnection is returned when the connectivity check fails.
	ErrNoConnection = errors.New("monitor: no internet connection available")
	// ErrNothingToSave is returned by SaveCurrent before any measurement.
	ErrNothingToSave = errors.New("monitor: snapshot has no measurements yet")
)

// Progress is one step of a full test.
type Progress struct {
	Percent int    `json:"percent"`
	Label   string `json:"label"`
}

// Options tunes a Monitor. Zero fields take defaults.
type Options struct {
	Interval     time.Duration
	PhaseTimeout time.Duration
	// MaxHistory is how many saved results the snapshot keeps.
	MaxHistory int
	NewTicker  TickerFunc
	Now        func() time.Time
}

// Monitor orchestrates probes for one monitoring session.
type Monitor struct {
	store   *store.Store
	probes  probe.Set
	history history.Repository // nil disables persistence
	opts    Options

	obsMu     sync.RWMutex
	observers []func(Progress)

	mu       sync.Mutex
	interval time.Duration
	ticker   Ticker
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a Monitor. hist may be nil.
func New(st *store.Store, probes probe.Set, hist history.Repository, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.PhaseTimeout <= 0 {
		opts.PhaseTimeout = DefaultPhaseTimeout
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	if opts.NewTicker == nil {
		opts.NewTicker = newStdTicker
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		store:    st,
		probes:   probes,
		history:  hist,
		opts:     opts,
		interval: opts.Interval,
	}
}

// OnProgress registers fn to receive full-test progress. fn runs on the
// test's goroutine and must not block.
func (m *Monitor) OnProgress(fn func(Progress)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, fn)
}

func (m *Monitor) progress(pct int, label string) {
	p := Progress{Percent: pct, Label: label}
	slog.Debug("monitor: progress", "percent", pct, "label", label)
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, fn := range m.observers {
		fn(p)
	}
}

// release clears the loading flag when a foreground operation ends. A panic
// is converted into msg on the snapshot and an error for the caller. It must
// be deferred directly.
func (m *Monitor) release(op, msg string, err *error) {
	if r := recover(); r != nil {
		slog.Error("monitor: operation panicked", "op", op, "panic", r)
		m.store.Dispatch(store.ErrorMessage(msg), store.SetLoading{Loading: false})
		*err = fmt.Errorf("monitor: %s: %v", op, r)
		return
	}
	m.store.Dispatch(store.SetLoading{Loading: false})
}

// within calls fn with a context bounded by d.
func within[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

// abandoned reports a cancelled or expired caller ctx as an error for op.
// Probe results gathered under such a ctx say nothing about the network and
// must not reach the snapshot.
func abandoned(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		slog.Info("monitor: operation abandoned", "op", op, "err", err)
		return fmt.Errorf("monitor: %s: %w", op, err)
	}
	return nil
}

func keepingPrevious(probeName string, err error) {
	slog.Warn("monitor: probe failed, keeping previous value", "probe", probeName, "err", err)
}

// RunFullTest runs the one-shot test sequence. On success the snapshot holds
// the new measurements, the authoritative status and the full
// classification. When the connectivity check fails it sets the error
// message and returns ErrNoConnection with no result. If ctx ends first it
// returns ctx's error and leaves the measurements untouched.
func (m *Monitor) RunFullTest(ctx context.Context) (res *types.TestResult, err error) {
	if err := abandoned(ctx, "full test"); err != nil {
		return nil, err
	}
	m.store.Dispatch(store.SetLoading{Loading: true}, store.ClearError{})
	defer m.release("full test", MsgTestFailed, &err)

	prev := m.store.Snapshot()

	m.progress(10, "Checking connection...")
	conn, cerr := within(ctx, m.opts.PhaseTimeout, m.probes.CheckConnection)
	if err := abandoned(ctx, "full test"); err != nil {
		return nil, err
	}
	if cerr != nil || !conn.IsOnline {
		if cerr != nil {
			slog.Warn("monitor: connectivity check failed", "err", cerr)
		}
		m.store.Dispatch(store.SetOnlineStatus{Online: false}, store.ErrorMessage(MsgNoConnection))
		return nil, ErrNoConnection
	}
	m.store.Dispatch(
		store.SetConnectionInfo{IsOnline: types.Ptr(true), ConnectionType: &conn.ConnectionType},
		store.SetDiagnostics{Connection: conn.Meta},
	)

	m.progress(20, "Measuring latency...")
	latency, jitter := prev.LatencyMs, 0.0
	if l, err := within(ctx, m.opts.PhaseTimeout, m.probes.MeasureLatency); err != nil {
		keepingPrevious("latency", err)
	} else {
		latency, jitter = l.AvgMs, l.JitterMs
	}

	if err := abandoned(ctx, "full test"); err != nil {
		return nil, err
	}

	m.progress(40, "Estimating bandwidth...")
	down, up, server := prev.DownloadMbps, prev.UploadMbps, ""
	if bw, err := within(ctx, m.opts.PhaseTimeout, m.probes.MeasureBandwidth); err != nil {
		keepingPrevious("bandwidth", err)
	} else {
		down, up, server = bw.DownloadMbps, bw.UploadMbps, bw.Server
	}

	if err := abandoned(ctx, "full test"); err != nil {
		return nil, err
	}

	m.progress(60, "Measuring packet loss...")
	loss := prev.PacketLossPct
	if l, err := within(ctx, m.opts.PhaseTimeout, m.probes.EstimatePacketLoss); err != nil {
		keepingPrevious("packet_loss", err)
	} else {
		loss = l
	}

	if err := abandoned(ctx, "full test"); err != nil {
		return nil, err
	}

	m.progress(80, "Analyzing results...")
	dns := prev.Diagnostics.DNS
	if d, err := within(ctx, m.opts.PhaseTimeout, m.probes.TestDNS); err != nil {
		keepingPrevious("dns", err)
	} else {
		dns = d
	}
	if err := abandoned(ctx, "full test"); err != nil {
		return nil, err
	}
	cls := compute.ClassifyIssue(down, up, latency, loss, dns)
	status := compute.ComputeStatus(down, up, latency, loss)
	now := m.opts.Now()

	m.store.Dispatch(
		store.SetConnectionInfo{
			Status:        &status,
			DownloadMbps:  &down,
			UploadMbps:    &up,
			LatencyMs:     &latency,
			PacketLossPct: &loss,
			IsLocalIssue:  &cls.IsLocalIssue,
			IsISPIssue:    &cls.IsISPIssue,
			LastUpdated:   &now,
		},
		store.SetDiagnostics{DNS: dns},
	)
	m.progress(100, "Test completed")

	slog.Info("monitor: full test complete",
		"status", status,
		"download_mbps", down,
		"upload_mbps", up,
		"latency_ms", latency,
		"packet_loss_pct", loss,
		"local_issue", cls.IsLocalIssue,
		"isp_issue", cls.IsISPIssue,
	)
	return &types.TestResult{
		DownloadMbps:   down,
		UploadMbps:     up,
		LatencyMs:      latency,
		JitterMs:       jitter,
		PacketLossPct:  loss,
		Server:         server,
		Status:         status,
		Classification: cls,
		Timestamp:      now,
	}, nil
}

// RunDiagnostics runs the DNS and route probes concurrently, reclassifies
// with the snapshot's current metrics and the new DNS results, and returns
// the updated diagnostics.
func (m *Monitor) RunDiagnostics(ctx context.Context) (diag types.Diagnostics, err error) {
	if err := abandoned(ctx, "diagnostics"); err != nil {
		return types.Diagnostics{}, err
	}
	m.store.Dispatch(store.SetLoading{Loading: true})
	defer m.release("diagnostics", MsgDiagFailed, &err)

	prev := m.store.Snapshot()
	var (
		dns   []types.DNSProbeResult
		route []types.RouteHop
		g     errgroup.Group
	)
	g.Go(func() error {
		d, err := within(ctx, m.opts.PhaseTimeout, m.probes.TestDNS)
		if err != nil {
			keepingPrevious("dns", err)
			return err
		}
		dns = d
		return nil
	})
	g.Go(func() error {
		r, err := within(ctx, m.opts.PhaseTimeout, m.probes.AnalyzeRoute)
		if err != nil {
			keepingPrevious("route", err)
			return err
		}
		route = r
		return nil
	})
	g.Wait() //nolint:errcheck // each failure is logged and falls back
	if err := abandoned(ctx, "diagnostics"); err != nil {
		return types.Diagnostics{}, err
	}

	if dns == nil {
		dns = prev.Diagnostics.DNS
	}
	if route == nil {
		route = prev.Diagnostics.Route
	}
	cls := compute.ClassifyIssue(prev.DownloadMbps, prev.UploadMbps, prev.LatencyMs, prev.PacketLossPct, dns)
	now := m.opts.Now()
	next := m.store.Dispatch(
		store.SetDiagnostics{DNS: dns, Route: route},
		store.SetConnectionInfo{IsLocalIssue: &cls.IsLocalIssue, IsISPIssue: &cls.IsISPIssue, LastUpdated: &now},
	)
	return next.Diagnostics, nil
}

// RunDNSTest runs only the DNS probe.
func (m *Monitor) RunDNSTest(ctx context.Context) (res []types.DNSProbeResult, err error) {
	m.store.Dispatch(store.SetLoading{Loading: true})
	defer m.release("dns test", MsgDNSFailed, &err)

	res, err = within(ctx, m.opts.PhaseTimeout, m.probes.TestDNS)
	if cerr := abandoned(ctx, "dns test"); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		m.store.Dispatch(store.ErrorMessage(MsgDNSFailed))
		return nil, fmt.Errorf("monitor: dns test: %w", err)
	}
	m.store.Dispatch(store.SetDiagnostics{DNS: res})
	return res, nil
}

// RunRouteAnalysis runs only the route probe.
func (m *Monitor) RunRouteAnalysis(ctx context.Context) (res []types.RouteHop, err error) {
	m.store.Dispatch(store.SetLoading{Loading: true})
	defer m.release("route analysis", MsgRouteFailed, &err)

	res, err = within(ctx, m.opts.PhaseTimeout, m.probes.AnalyzeRoute)
	if cerr := abandoned(ctx, "route analysis"); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		m.store.Dispatch(store.ErrorMessage(MsgRouteFailed))
		return nil, fmt.Errorf("monitor: route analysis: %w", err)
	}
	m.store.Dispatch(store.SetDiagnostics{Route: res})
	return res, nil
}

// InitialAssessment measures connectivity, latency, packet loss and
// bandwidth once and rates the result with the quick heuristic. It does not
// classify.
func (m *Monitor) InitialAssessment(ctx context.Context) (err error) {
	if err := abandoned(ctx, "initial assessment"); err != nil {
		return err
	}
	m.store.Dispatch(store.SetLoading{Loading: true})
	defer m.release("initial assessment", MsgAssessFailed, &err)

	prev := m.store.Snapshot()
	now := m.opts.Now()

	conn, cerr := within(ctx, m.opts.PhaseTimeout, m.probes.CheckConnection)
	if err := abandoned(ctx, "initial assessment"); err != nil {
		return err
	}
	if cerr != nil || !conn.IsOnline {
		if cerr != nil {
			slog.Warn("monitor: connectivity check failed", "err", cerr)
		}
		offline := types.StatusOffline
		m.store.Dispatch(store.SetConnectionInfo{
			IsOnline:    types.Ptr(false),
			Status:      &offline,
			LastUpdated: &now,
		})
		return ErrNoConnection
	}

	latency := prev.LatencyMs
	if l, err := within(ctx, m.opts.PhaseTimeout, m.probes.MeasureLatency); err != nil {
		keepingPrevious("latency", err)
	} else {
		latency = l.AvgMs
	}
	loss := prev.PacketLossPct
	if l, err := within(ctx, m.opts.PhaseTimeout, m.probes.EstimatePacketLoss); err != nil {
		keepingPrevious("packet_loss", err)
	} else {
		loss = l
	}
	down, up := prev.DownloadMbps, prev.UploadMbps
	if bw, err := within(ctx, m.opts.PhaseTimeout, m.probes.MeasureBandwidth); err != nil {
		keepingPrevious("bandwidth", err)
	} else {
		down, up = bw.DownloadMbps, bw.UploadMbps
	}
	if err := abandoned(ctx, "initial assessment"); err != nil {
		return err
	}

	status := compute.QuickStatus(latency, loss)
	m.store.Dispatch(
		store.SetConnectionInfo{
			Status:         &status,
			ConnectionType: &conn.ConnectionType,
			DownloadMbps:   &down,
			UploadMbps:     &up,
			LatencyMs:      &latency,
			PacketLossPct:  &loss,
			LastUpdated:    &now,
			IsOnline:       types.Ptr(true),
		},
		store.SetDiagnostics{Connection: conn.Meta},
	)
	slog.Info("monitor: initial assessment complete", "status", status, "latency_ms", latency, "packet_loss_pct", loss)
	return nil
}

// SaveCurrent appends the snapshot's current metrics to the history and
// persists them. It is the only path that creates history entries.
func (m *Monitor) SaveCurrent() (types.HistoryEntry, error) {
	snap := m.store.Snapshot()
	if snap.LastUpdated == nil {
		return types.HistoryEntry{}, ErrNothingToSave
	}
	entry := types.EntryFrom(snap)
	entry.Timestamp = m.opts.Now()
	m.store.Dispatch(store.AddHistoryEntry{Entry: entry, At: entry.Timestamp, Keep: m.opts.MaxHistory})

	if m.history != nil {
		if err := m.history.Append(entry); err != nil {
			return entry, fmt.Errorf("monitor: saving history: %w", err)
		}
	}
	return entry, nil
}
