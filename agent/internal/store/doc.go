// Package store holds the single NetworkSnapshot of a monitoring session.
//
// All changes go through Reduce, a pure transition over a closed set of
// events. Store wraps Reduce with a mutex, a clock for history timestamps and
// a latest-wins fan-out to subscribers (the WebSocket hub, the metrics
// exporter, the gRPC health reporter).
package store
