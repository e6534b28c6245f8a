// Package probe defines the measurement contract the monitor drives and two
// implementations of it.
//
// Real talks to the network: an HTTP HEAD for reachability, TCP connects for
// latency and packet loss, HTTP transfers for bandwidth, raw DNS queries
// against each configured resolver and ICMP echoes with rising TTL for the
// route. Simulated returns plausible values from a seeded random source and
// never touches the network.
//
// Every probe honours its context. DNS and route probes encode per-target
// failures as a timeout or error status on the result rather than failing
// the call.
package probe
