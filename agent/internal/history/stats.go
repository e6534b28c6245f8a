package history

import (
	"fmt"
	"slices"
	"time"

	"github.com/linkscope/linkscope/pkg/types"
)

// Timeframe limits which entries Summarize looks at.
type Timeframe string

const (
	TimeframeAll   Timeframe = "all"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
)

// ParseTimeframe accepts "", "all", "week" and "month".
func ParseTimeframe(s string) (Timeframe, error) {
	switch Timeframe(s) {
	case "", TimeframeAll:
		return TimeframeAll, nil
	case TimeframeWeek, TimeframeMonth:
		return Timeframe(s), nil
	default:
		return "", fmt.Errorf("history: unknown timeframe %q", s)
	}
}

// Since returns the oldest timestamp included by tf, or the zero time for
// TimeframeAll.
func (tf Timeframe) Since(now time.Time) time.Time {
	switch tf {
	case TimeframeWeek:
		return now.Add(-7 * 24 * time.Hour)
	case TimeframeMonth:
		return now.Add(-30 * 24 * time.Hour)
	default:
		return time.Time{}
	}
}

// Filter returns the entries stamped at or after tf.Since(now).
func Filter(entries []types.HistoryEntry, tf Timeframe, now time.Time) []types.HistoryEntry {
	since := tf.Since(now)
	out := make([]types.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

// Trend is the direction of a metric between the older and newer halves of
// a window.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// Stats summarises a window of history.
type Stats struct {
	Timeframe       Timeframe `json:"timeframe"`
	Count           int       `json:"count"`
	AvgDownloadMbps float64   `json:"avg_download_mbps"`
	AvgUploadMbps   float64   `json:"avg_upload_mbps"`
	AvgLatencyMs    float64   `json:"avg_latency_ms"`
	LocalIssues     int       `json:"local_issues"`
	ISPIssues       int       `json:"isp_issues"`
	DownloadTrend   Trend     `json:"download_trend"`
	UploadTrend     Trend     `json:"upload_trend"`

	// EntriesWithIssues counts entries with a local or ISP issue, once each.
	EntriesWithIssues int `json:"entries_with_issues"`
}

// Summarize computes Stats over the entries inside tf.
func Summarize(entries []types.HistoryEntry, tf Timeframe, now time.Time) Stats {
	window := Filter(entries, tf, now)
	st := Stats{
		Timeframe:     tf,
		Count:         len(window),
		DownloadTrend: TrendStable,
		UploadTrend:   TrendStable,
	}
	if len(window) == 0 {
		return st
	}

	download := func(e types.HistoryEntry) float64 { return e.DownloadMbps }
	upload := func(e types.HistoryEntry) float64 { return e.UploadMbps }

	st.AvgDownloadMbps = average(window, download)
	st.AvgUploadMbps = average(window, upload)
	st.AvgLatencyMs = average(window, func(e types.HistoryEntry) float64 { return e.LatencyMs })
	for _, e := range window {
		if e.IsLocalIssue {
			st.LocalIssues++
		}
		if e.IsISPIssue {
			st.ISPIssues++
		}
		if e.IsLocalIssue || e.IsISPIssue {
			st.EntriesWithIssues++
		}
	}
	st.DownloadTrend = trend(window, download)
	st.UploadTrend = trend(window, upload)
	return st
}

func average(entries []types.HistoryEntry, field func(types.HistoryEntry) float64) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += field(e)
	}
	return sum / float64(len(entries))
}

// trend compares the newer half of the window (rounded up) with the older
// half. A move of more than 10% either way is a trend.
func trend(entries []types.HistoryEntry, field func(types.HistoryEntry) float64) Trend {
	if len(entries) < 2 {
		return TrendStable
	}
	newest := slices.Clone(entries)
	slices.SortStableFunc(newest, func(a, b types.HistoryEntry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	half := (len(newest) + 1) / 2
	recent := average(newest[:half], field)
	older := average(newest[half:], field)

	switch {
	case recent > older*1.1:
		return TrendImproving
	case recent < older*0.9:
		return TrendDeclining
	default:
		return TrendStable
	}
}
