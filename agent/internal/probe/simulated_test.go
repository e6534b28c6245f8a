package probe

import (
	"context"
	"reflect"
	"testing"
)

func TestSimulated_Deterministic(t *testing.T) {
	a, b := NewSimulated(42), NewSimulated(42)
	ctx := context.Background()

	la, _ := a.MeasureLatency(ctx)
	lb, _ := b.MeasureLatency(ctx)
	if !reflect.DeepEqual(la, lb) {
		t.Errorf("latency differs for same seed: %+v vs %+v", la, lb)
	}
	ba, _ := a.MeasureBandwidth(ctx)
	bb, _ := b.MeasureBandwidth(ctx)
	if ba != bb {
		t.Errorf("bandwidth differs for same seed: %+v vs %+v", ba, bb)
	}
}

func TestSimulated_Ranges(t *testing.T) {
	s := NewSimulated(7)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		bw, err := s.MeasureBandwidth(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if bw.DownloadMbps < 50 || bw.DownloadMbps >= 100 || bw.UploadMbps < 10 || bw.UploadMbps >= 50 {
			t.Fatalf("bandwidth out of range: %+v", bw)
		}
		loss, _ := s.EstimatePacketLoss(ctx)
		if loss < 0 || loss > 2 {
			t.Fatalf("loss out of range: %v", loss)
		}
	}

	dns, _ := s.TestDNS(ctx)
	if len(dns) != 3 {
		t.Errorf("dns results: got %d, want 3", len(dns))
	}
	hops, _ := s.AnalyzeRoute(ctx)
	for i, h := range hops {
		if h.HopIndex != i+1 {
			t.Errorf("hop %d index: got %d", i, h.HopIndex)
		}
	}
}

func TestSimulated_HonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSimulated(1).CheckConnection(ctx); err == nil {
		t.Error("expected error from cancelled context")
	}
}

var _ Set = (*Real)(nil)
var _ Set = (*Simulated)(nil)
