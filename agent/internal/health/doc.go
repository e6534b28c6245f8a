// Package health publishes connectivity over the standard gRPC health
// checking protocol (grpc.health.v1.Health).
//
// The service "linkscope.Network" reports SERVING while the last
// connectivity check reached the internet, NOT_SERVING while offline and
// UNKNOWN before the first measurement. The empty service name reports the
// agent process itself and is SERVING until shutdown.
package health
