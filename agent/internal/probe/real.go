package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

// Real measures the host's actual network connection.
type Real struct {
	opts   Options
	client *http.Client
	dialer *net.Dialer

	mu     sync.Mutex
	routes map[*routeConn]struct{} // ICMP sockets of in-flight route probes
}

// NewReal builds a Real probe set. It fails only when the SOCKS5 proxy
// address cannot be used.
func NewReal(opts Options) (*Real, error) {
	opts = opts.withDefaults()
	dialer := &net.Dialer{
		Timeout:   opts.ProbeTimeout,
		KeepAlive: 15 * time.Second,
	}

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
	if opts.SOCKS5Proxy != "" {
		d, err := proxy.SOCKS5("tcp", opts.SOCKS5Proxy, nil, dialer)
		if err != nil {
			return nil, fmt.Errorf("probe: socks5 proxy %q: %w", opts.SOCKS5Proxy, err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("probe: socks5 dialer for %q does not support contexts", opts.SOCKS5Proxy)
		}
		transport.DialContext = cd.DialContext
		slog.Info("probe: using socks5 proxy for http probes", "addr", opts.SOCKS5Proxy)
	}

	return &Real{
		opts:   opts,
		client: &http.Client{Transport: transport},
		dialer: dialer,
		routes: make(map[*routeConn]struct{}),
	}, nil
}

// Release drops idle HTTP connections. Route probes keep their sockets.
func (r *Real) Release() error {
	r.client.CloseIdleConnections()
	return nil
}

// Close drops idle HTTP connections and closes the sockets of any route
// probe still running, which makes it return promptly.
func (r *Real) Close() error {
	r.client.CloseIdleConnections()

	r.mu.Lock()
	defer r.mu.Unlock()
	for rc := range r.routes {
		rc.close()
		delete(r.routes, rc)
	}
	return nil
}

// CheckConnection reports reachability with a HEAD request and describes the
// local interface. A failed request is reported as offline, not as an error.
func (r *Real) CheckConnection(ctx context.Context) (Connection, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.GlobalTimeout)
	defer cancel()

	conn := Connection{ConnectionType: "unknown"}
	if meta, err := localInterface(); err != nil {
		slog.Debug("probe: interface lookup failed", "err", err)
	} else {
		conn.Meta = meta
		conn.ConnectionType = meta.ConnectionType
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.opts.ConnectivityURL, nil)
	if err != nil {
		return conn, fmt.Errorf("probe: building connectivity request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		slog.Debug("probe: connectivity check failed", "url", r.opts.ConnectivityURL, "err", err)
		return conn, nil
	}
	resp.Body.Close()
	conn.IsOnline = resp.StatusCode < 500
	return conn, nil
}

// MeasureLatency times TCP handshakes, rotating through the latency targets.
// Jitter is the mean absolute difference between consecutive samples.
func (r *Real) MeasureLatency(ctx context.Context) (Latency, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.GlobalTimeout)
	defer cancel()

	var out Latency
	for i := 0; i < r.opts.LatencySamples; i++ {
		target := r.opts.LatencyTargets[i%len(r.opts.LatencyTargets)]
		rtt, err := r.handshake(ctx, target)
		if err != nil {
			slog.Debug("probe: latency sample failed", "target", target, "err", err)
			continue
		}
		if out.Server == "" {
			out.Server = target
		}
		out.Samples = append(out.Samples, durationMs(rtt))
	}
	if len(out.Samples) == 0 {
		if ctx.Err() != nil {
			return out, ErrTimeout
		}
		return out, ErrNoSamples
	}
	out.AvgMs = mean(out.Samples)
	out.JitterMs = jitter(out.Samples)
	return out, nil
}

// EstimatePacketLoss makes LossAttempts connection attempts across the
// latency targets and reports the failed share, rounded to one decimal.
func (r *Real) EstimatePacketLoss(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.GlobalTimeout)
	defer cancel()

	n := r.opts.LossAttempts
	results := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.handshake(ctx, r.opts.LatencyTargets[i%len(r.opts.LatencyTargets)])
			results[i] = err == nil
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, ok := range results {
		if !ok {
			failed++
		}
	}
	return round1(float64(failed) / float64(n) * 100), nil
}

// handshake dials target and returns how long the connect took.
func (r *Real) handshake(ctx context.Context, target string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	defer cancel()

	start := time.Now()
	c, err := r.dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return 0, err
	}
	rtt := time.Since(start)
	c.Close()
	return rtt, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func jitter(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(xs); i++ {
		sum += math.Abs(xs[i] - xs[i-1])
	}
	return sum / float64(len(xs)-1)
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
