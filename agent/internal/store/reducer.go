package store

import (
	"slices"

	"github.com/linkscope/linkscope/pkg/types"
)

// Reduce applies ev to s and returns the resulting snapshot. The returned
// value shares no slices or pointers with s, so neither can be changed
// through the other. Events Reduce does not know return s unchanged.
func Reduce(s types.NetworkSnapshot, ev Event) types.NetworkSnapshot {
	switch e := ev.(type) {
	case SetStatus:
		out := clone(s)
		out.Status = e.Status
		return out

	case SetConnectionInfo:
		out := clone(s)
		mergeConnection(&out, e)
		return out

	case SetDiagnostics:
		out := clone(s)
		if e.DNS != nil {
			out.Diagnostics.DNS = slices.Clone(e.DNS)
		}
		if e.Route != nil {
			out.Diagnostics.Route = slices.Clone(e.Route)
		}
		if e.Stability != nil {
			out.Diagnostics.Stability = slices.Clone(e.Stability)
		}
		if e.Connection != nil {
			c := *e.Connection
			out.Diagnostics.Connection = &c
		}
		return out

	case AddHistoryEntry:
		out := clone(s)
		entry := e.Entry
		entry.Timestamp = e.At
		out.History = append(out.History, entry)
		if n := len(out.History); e.Keep > 0 && n > e.Keep {
			out.History = slices.Delete(out.History, 0, n-e.Keep)
		}
		return out

	case SetLoading:
		out := clone(s)
		out.IsLoading = e.Loading
		return out

	case SetError:
		out := clone(s)
		out.Error = copyPtr(e.Message)
		return out

	case SetOnlineStatus:
		out := clone(s)
		out.IsOnline = e.Online
		return out

	case ClearError:
		out := clone(s)
		out.Error = nil
		return out

	default:
		return s
	}
}

func mergeConnection(s *types.NetworkSnapshot, p SetConnectionInfo) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.ConnectionType != nil {
		s.ConnectionType = *p.ConnectionType
	}
	if p.DownloadMbps != nil {
		s.DownloadMbps = *p.DownloadMbps
	}
	if p.UploadMbps != nil {
		s.UploadMbps = *p.UploadMbps
	}
	if p.LatencyMs != nil {
		s.LatencyMs = *p.LatencyMs
	}
	if p.PacketLossPct != nil {
		s.PacketLossPct = *p.PacketLossPct
	}
	if p.IsLocalIssue != nil {
		s.IsLocalIssue = *p.IsLocalIssue
	}
	if p.IsISPIssue != nil {
		s.IsISPIssue = *p.IsISPIssue
	}
	if p.LastUpdated != nil {
		s.LastUpdated = copyPtr(p.LastUpdated)
	}
	if p.IsOnline != nil {
		s.IsOnline = *p.IsOnline
	}
}

// clone deep-copies every reference-typed field of s.
func clone(s types.NetworkSnapshot) types.NetworkSnapshot {
	out := s
	out.Diagnostics.DNS = slices.Clone(s.Diagnostics.DNS)
	out.Diagnostics.Route = slices.Clone(s.Diagnostics.Route)
	out.Diagnostics.Stability = slices.Clone(s.Diagnostics.Stability)
	out.Diagnostics.Connection = copyPtr(s.Diagnostics.Connection)
	out.History = slices.Clone(s.History)
	out.LastUpdated = copyPtr(s.LastUpdated)
	out.Error = copyPtr(s.Error)
	return out
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
