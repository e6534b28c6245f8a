package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linkscope/linkscope/pkg/types"
)

// tcpListener accepts and immediately closes connections until the test ends.
func tcpListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	return ln.Addr().String()
}

// closedAddr returns a loopback address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func newTestReal(t *testing.T, opts Options) *Real {
	t.Helper()
	if opts.ProbeTimeout == 0 {
		opts.ProbeTimeout = 300 * time.Millisecond
	}
	if opts.GlobalTimeout == 0 {
		opts.GlobalTimeout = 2 * time.Second
	}
	r, err := NewReal(opts)
	if err != nil {
		t.Fatalf("NewReal: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

// --- connectivity ---

func TestCheckConnection_Online(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method: got %s, want HEAD", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newTestReal(t, Options{ConnectivityURL: srv.URL})
	conn, err := r.CheckConnection(context.Background())
	if err != nil {
		t.Fatalf("CheckConnection: %v", err)
	}
	if !conn.IsOnline {
		t.Error("expected online")
	}
	if conn.ConnectionType == "" {
		t.Error("ConnectionType should never be empty")
	}
}

func TestCheckConnection_Unreachable(t *testing.T) {
	r := newTestReal(t, Options{ConnectivityURL: "http://" + closedAddr(t)})
	conn, err := r.CheckConnection(context.Background())
	if err != nil {
		t.Fatalf("unreachable should not be an error, got %v", err)
	}
	if conn.IsOnline {
		t.Error("expected offline")
	}
}

// --- latency / packet loss ---

func TestMeasureLatency(t *testing.T) {
	addr := tcpListener(t)
	r := newTestReal(t, Options{LatencyTargets: []string{addr}, LatencySamples: 4})

	lat, err := r.MeasureLatency(context.Background())
	if err != nil {
		t.Fatalf("MeasureLatency: %v", err)
	}
	if len(lat.Samples) != 4 {
		t.Errorf("samples: got %d, want 4", len(lat.Samples))
	}
	if lat.Server != addr {
		t.Errorf("Server: got %q, want %q", lat.Server, addr)
	}
	if lat.AvgMs < 0 || lat.JitterMs < 0 {
		t.Errorf("negative timings: %+v", lat)
	}
}

func TestMeasureLatency_AllFail(t *testing.T) {
	r := newTestReal(t, Options{LatencyTargets: []string{closedAddr(t)}})
	_, err := r.MeasureLatency(context.Background())
	if !errors.Is(err, ErrNoSamples) {
		t.Errorf("err: got %v, want ErrNoSamples", err)
	}
}

func TestEstimatePacketLoss_HalfUnreachable(t *testing.T) {
	r := newTestReal(t, Options{
		LatencyTargets: []string{tcpListener(t), closedAddr(t)},
		LossAttempts:   10,
	})
	loss, err := r.EstimatePacketLoss(context.Background())
	if err != nil {
		t.Fatalf("EstimatePacketLoss: %v", err)
	}
	if loss != 50 {
		t.Errorf("loss: got %v, want 50", loss)
	}
}

func TestJitterAndRounding(t *testing.T) {
	if got := jitter([]float64{10, 14, 12}); got != 3 {
		t.Errorf("jitter: got %v, want 3", got)
	}
	if got := jitter([]float64{10}); got != 0 {
		t.Errorf("single-sample jitter: got %v", got)
	}
	if got := round1(33.333); got != 33.3 {
		t.Errorf("round1: got %v", got)
	}
}

// --- bandwidth ---

func TestMeasureBandwidth(t *testing.T) {
	var uploaded atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/__down", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.URL.Query().Get("bytes"))
		w.Write(make([]byte, n))
	})
	mux.HandleFunc("/__up", func(w http.ResponseWriter, r *http.Request) {
		n, _ := io.Copy(io.Discard, r.Body)
		uploaded.Store(n)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := newTestReal(t, Options{
		DownloadURL:   srv.URL + "/__down",
		UploadURL:     srv.URL + "/__up",
		DownloadBytes: 256 << 10,
		UploadBytes:   64 << 10,
	})
	bw, err := r.MeasureBandwidth(context.Background())
	if err != nil {
		t.Fatalf("MeasureBandwidth: %v", err)
	}
	if bw.DownloadMbps <= 0 || bw.UploadMbps <= 0 {
		t.Errorf("expected positive throughput, got %+v", bw)
	}
	if got := uploaded.Load(); got != 64<<10 {
		t.Errorf("server received %d bytes, want %d", got, 64<<10)
	}
	if bw.Server != srv.Listener.Addr().String() {
		t.Errorf("Server: got %q", bw.Server)
	}
}

func TestMeasureBandwidth_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := newTestReal(t, Options{DownloadURL: srv.URL, UploadURL: srv.URL})
	if _, err := r.MeasureBandwidth(context.Background()); err == nil {
		t.Error("expected error on 503")
	}
}

// --- DNS ---

func TestDNSStatus(t *testing.T) {
	tests := []struct {
		err  error
		want types.ProbeStatus
	}{
		{nil, types.ProbeSuccess},
		{context.DeadlineExceeded, types.ProbeTimeout},
		{os.ErrDeadlineExceeded, types.ProbeTimeout},
		{errors.New("connection refused"), types.ProbeError},
	}
	for _, tc := range tests {
		if got := dnsStatus(tc.err); got != tc.want {
			t.Errorf("dnsStatus(%v): got %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestNewReal_SOCKS5(t *testing.T) {
	r, err := NewReal(Options{SOCKS5Proxy: "127.0.0.1:1080"})
	if err != nil {
		t.Fatalf("NewReal: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	r := newTestReal(t, Options{})
	if err := r.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestRelease_KeepsRouteSockets(t *testing.T) {
	r := newTestReal(t, Options{})
	rc, _, err := r.openICMP()
	if err != nil {
		t.Skipf("icmp sockets unavailable: %v", err)
	}
	defer r.releaseICMP(rc)

	if err := r.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := rc.pc.SetDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("route socket closed by Release: %v", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rc.pc.SetDeadline(time.Now().Add(time.Second)); err == nil {
		t.Error("route socket still open after Close")
	}
}

func TestWithDefaults(t *testing.T) {
	o := Options{MaxHops: 7}.withDefaults()
	if o.MaxHops != 7 {
		t.Errorf("MaxHops overwritten: %d", o.MaxHops)
	}
	if len(o.Resolvers) != 3 || o.LossAttempts != 10 || o.GlobalTimeout != 5*time.Second {
		t.Errorf("defaults not applied: %+v", o)
	}
}
