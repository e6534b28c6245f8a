// Package types defines the shared in-memory model of network health: the
// single NetworkSnapshot owned by the snapshot store, its diagnostics, the
// immutable HistoryEntry records saved by the user, and the result records
// produced by the full test and the issue classifier.
//
// JSON tags follow the snake_case convention used by the REST API and the
// WebSocket stream.
package types
