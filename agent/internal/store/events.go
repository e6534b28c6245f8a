package store

import (
	"time"

	"github.com/linkscope/linkscope/pkg/types"
)

// Event is one snapshot transition. Kind names the event for logging.
type Event interface {
	Kind() string
}

// SetStatus replaces the health rating.
type SetStatus struct {
	Status types.Status
}

// SetConnectionInfo merges the non-nil fields into the snapshot.
type SetConnectionInfo struct {
	Status         *types.Status
	ConnectionType *string
	DownloadMbps   *float64
	UploadMbps     *float64
	LatencyMs      *float64
	PacketLossPct  *float64
	IsLocalIssue   *bool
	IsISPIssue     *bool
	LastUpdated    *time.Time
	IsOnline       *bool
}

// SetDiagnostics merges into the diagnostics sub-object. A nil slice leaves
// the field as it was; a non-nil empty slice clears it.
type SetDiagnostics struct {
	DNS        []types.DNSProbeResult
	Route      []types.RouteHop
	Stability  []types.StabilityPoint
	Connection *types.ConnectionMeta
}

// AddHistoryEntry appends Entry to the history with its timestamp set to At.
// Store.Dispatch fills At from its clock when it is zero. When Keep > 0 the
// oldest entries are dropped so at most Keep remain.
type AddHistoryEntry struct {
	Entry types.HistoryEntry
	At    time.Time
	Keep  int
}

// SetLoading sets the in-flight flag.
type SetLoading struct {
	Loading bool
}

// SetError replaces the current error. A nil Message clears it.
type SetError struct {
	Message *string
}

// SetOnlineStatus sets reachability.
type SetOnlineStatus struct {
	Online bool
}

// ClearError removes the current error, if any.
type ClearError struct{}

func (SetStatus) Kind() string         { return "set_status" }
func (SetConnectionInfo) Kind() string { return "set_connection_info" }
func (SetDiagnostics) Kind() string    { return "set_diagnostics" }
func (AddHistoryEntry) Kind() string   { return "add_history_entry" }
func (SetLoading) Kind() string        { return "set_loading" }
func (SetError) Kind() string          { return "set_error" }
func (SetOnlineStatus) Kind() string   { return "set_online_status" }
func (ClearError) Kind() string        { return "clear_error" }

// ErrorMessage is a shorthand for SetError with a non-empty message.
func ErrorMessage(msg string) SetError {
	return SetError{Message: &msg}
}
