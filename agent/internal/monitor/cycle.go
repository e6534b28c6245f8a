package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/linkscope/linkscope/agent/internal/compute"
	"github.com/linkscope/linkscope/agent/internal/store"
	"github.com/linkscope/linkscope/pkg/types"
)

// StartMonitoring starts the background cycle: one pass now, then one per
// interval. It reports false, and does nothing, if a cycle is already
// running.
func (m *Monitor) StartMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		slog.Debug("monitor: background cycle already running")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := m.opts.NewTicker(m.interval)
	done := make(chan struct{})
	m.cancel, m.ticker, m.done = cancel, t, done

	go m.loop(ctx, t, done)
	slog.Info("monitor: background cycle started", "interval", m.interval)
	return true
}

// StopMonitoring stops the background cycle, waits for an in-flight pass to
// return and releases the probes' idle resources. Foreground probes running
// at the same time are left alone. It is safe to call at any time, any
// number of times.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	cancel, t, done := m.cancel, m.ticker, m.done
	m.cancel, m.ticker, m.done = nil, nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		t.Stop()
	}
	if err := m.probes.Release(); err != nil {
		slog.Warn("monitor: releasing probes", "err", err)
	}
	if done != nil {
		<-done
		slog.Info("monitor: background cycle stopped")
	}
}

// Running reports whether the background cycle is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Interval returns the background cycle period.
func (m *Monitor) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// SetInterval changes the background cycle period. A running cycle picks it
// up from the next tick.
func (m *Monitor) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if d == m.interval {
		return
	}
	m.interval = d
	if m.ticker != nil {
		m.ticker.Reset(d)
	}
	slog.Info("monitor: interval changed", "interval", d)
}

func (m *Monitor) loop(ctx context.Context, t Ticker, done chan struct{}) {
	defer close(done)

	m.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			m.sample(ctx)
		}
	}
}

// sample is one background pass: connectivity, latency and packet loss,
// rated with QuickStatus and classified with ClassifyQuick against the
// snapshot's last known throughput and DNS results. Failures are logged and
// never reach the snapshot's error field.
func (m *Monitor) sample(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("monitor: background pass panicked", "panic", r)
		}
	}()

	prev := m.store.Snapshot()
	now := m.opts.Now()

	conn, err := within(ctx, m.opts.PhaseTimeout, m.probes.CheckConnection)
	if ctx.Err() != nil {
		return
	}
	if err != nil || !conn.IsOnline {
		if err != nil {
			slog.Warn("monitor: background connectivity check failed", "err", err)
		}
		offline := types.StatusOffline
		point := types.StabilityPoint{Timestamp: now, PacketLossPct: 100, Status: offline}
		m.store.Dispatch(
			store.SetConnectionInfo{IsOnline: types.Ptr(false), Status: &offline, LastUpdated: &now},
			store.SetDiagnostics{Stability: compute.AppendStability(prev.Diagnostics.Stability, point)},
		)
		return
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
	if ctx.Err() != nil {
		return
	}

	status := compute.QuickStatus(latency, loss)
	cls := compute.ClassifyQuick(prev.DownloadMbps, prev.UploadMbps, latency, loss, prev.Diagnostics.DNS)
	point := types.StabilityPoint{Timestamp: now, LatencyMs: latency, PacketLossPct: loss, Status: status}

	m.store.Dispatch(
		store.SetConnectionInfo{
			Status:         &status,
			ConnectionType: &conn.ConnectionType,
			LatencyMs:      &latency,
			PacketLossPct:  &loss,
			IsLocalIssue:   &cls.IsLocalIssue,
			IsISPIssue:     &cls.IsISPIssue,
			LastUpdated:    &now,
			IsOnline:       types.Ptr(true),
		},
		store.SetDiagnostics{
			Connection: conn.Meta,
			Stability:  compute.AppendStability(prev.Diagnostics.Stability, point),
		},
	)
	slog.Debug("monitor: background pass", "status", status, "latency_ms", latency, "packet_loss_pct", loss)
}
