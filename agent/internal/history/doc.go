// Package history persists saved test results and summarises them.
//
// A Repository is an ordered, append-only list of types.HistoryEntry keyed
// by timestamp. FileStore keeps it as a JSON array on disk; MemoryStore is
// for tests and for running without a history path.
package history
