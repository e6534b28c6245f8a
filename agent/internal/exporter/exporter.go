package exporter

import (
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/linkscope/linkscope/agent/internal/compute"
	"github.com/linkscope/linkscope/agent/internal/store"
	"github.com/linkscope/linkscope/pkg/types"
)

const namespace = "linkscope"

// statuses are the values of the linkscope_status enum family.
var statuses = []types.Status{
	types.StatusExcellent,
	types.StatusGood,
	types.StatusFair,
	types.StatusPoor,
	types.StatusOffline,
	types.StatusUnknown,
}

// Handler serves the current snapshot of st in the format the scraper asks
// for (text or OpenMetrics).
func Handler(st *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := expfmt.Negotiate(r.Header)
		w.Header().Set("Content-Type", string(format))

		enc := expfmt.NewEncoder(w, format)
		for _, mf := range Families(st.Snapshot()) {
			if err := enc.Encode(mf); err != nil {
				slog.Error("exporter: encode family", "family", mf.GetName(), "err", err)
				return
			}
		}
		if c, ok := enc.(expfmt.Closer); ok {
			if err := c.Close(); err != nil {
				slog.Error("exporter: close encoder", "err", err)
			}
		}
	})
}

// Families converts snap into metric families sorted by name.
func Families(snap types.NetworkSnapshot) []*dto.MetricFamily {
	score := compute.Points(snap.DownloadMbps, snap.UploadMbps, snap.LatencyMs, snap.PacketLossPct)

	fams := []*dto.MetricFamily{
		gauge("up", "1 when the last connectivity check reached the internet.", boolValue(snap.IsOnline)),
		gauge("download_mbps", "Last measured download throughput in Mbit/s.", snap.DownloadMbps),
		gauge("upload_mbps", "Last measured upload throughput in Mbit/s.", snap.UploadMbps),
		gauge("latency_ms", "Last measured round-trip latency in milliseconds.", snap.LatencyMs),
		gauge("packet_loss_percent", "Last estimated packet loss, 0-100.", snap.PacketLossPct),
		gauge("score", "Banded quality score of the current metrics, 0-100.", float64(score.Total)),
		gauge("local_issue", "1 when the problem is classified as local.", boolValue(snap.IsLocalIssue)),
		gauge("isp_issue", "1 when the problem is classified as upstream.", boolValue(snap.IsISPIssue)),
		gauge("test_running", "1 while a foreground operation is in progress.", boolValue(snap.IsLoading)),
		gauge("error", "1 while the snapshot carries an error message.", boolValue(snap.Error != nil)),
		gauge("history_entries", "Results saved during this session.", float64(len(snap.History))),
		gauge("stability_uptime_percent", "Share of recent background samples that were online.",
			compute.Uptime(snap.Diagnostics.Stability)),
		statusFamily(snap.Status),
		dnsFamily(snap.Diagnostics.DNS),
		routeFamily(snap.Diagnostics.Route),
	}
	if snap.LastUpdated != nil {
		ts := float64(snap.LastUpdated.UnixMilli()) / 1000
		fams = append(fams, gauge("last_updated_timestamp_seconds", "Unix time of the last measurement.", ts))
	}
	if meta := snap.Diagnostics.Connection; meta != nil {
		fams = append(fams, infoFamily(meta))
	}

	fams = slices.DeleteFunc(fams, func(mf *dto.MetricFamily) bool { return len(mf.Metric) == 0 })
	slices.SortFunc(fams, func(a, b *dto.MetricFamily) int { return strings.Compare(a.GetName(), b.GetName()) })
	return fams
}

func statusFamily(current types.Status) *dto.MetricFamily {
	mf := family("status", "Current health rating; the active rating is 1.")
	for _, s := range statuses {
		mf.Metric = append(mf.Metric, sample(boolValue(s == current), "status", string(s)))
	}
	return mf
}

func dnsFamily(results []types.DNSProbeResult) *dto.MetricFamily {
	mf := family("dns_response_ms", "Response time of each configured resolver.")
	for _, r := range results {
		mf.Metric = append(mf.Metric, sample(r.ResponseTimeMs, "server", r.ServerLabel, "status", string(r.Status)))
	}
	return mf
}

func routeFamily(hops []types.RouteHop) *dto.MetricFamily {
	mf := family("route_hop_latency_ms", "Latency to each hop of the last route analysis.")
	for _, h := range hops {
		mf.Metric = append(mf.Metric, sample(h.LatencyMs,
			"hop", strconv.Itoa(h.HopIndex),
			"host", h.HostLabel,
			"status", string(h.Status),
		))
	}
	return mf
}

func infoFamily(meta *types.ConnectionMeta) *dto.MetricFamily {
	mf := family("connection_info", "Local network attachment.")
	mf.Metric = append(mf.Metric, sample(1,
		"interface", meta.Interface,
		"type", meta.ConnectionType,
	))
	return mf
}

// --- builders ---------------------------------------------------------------

func family(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(namespace + "_" + name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	mf := family(name, help)
	mf.Metric = []*dto.Metric{sample(v)}
	return mf
}

// sample builds one gauge sample; labels are name/value pairs.
func sample(v float64, labels ...string) *dto.Metric {
	m := &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(v)}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(labels[i]),
			Value: proto.String(labels[i+1]),
		})
	}
	return m
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
