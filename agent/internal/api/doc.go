// Package api exposes the monitor over a JSON REST API under /api/v1 (gin).
//
// Read endpoints return the current snapshot, score breakdown, history and
// troubleshooting steps. Command endpoints run a full test, the initial
// assessment or diagnostics, control the background cycle, and edit the
// saved history. Failures of a command surface as {"error": "..."} with the
// same message the snapshot carries.
package api
