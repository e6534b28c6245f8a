package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/linkscope/linkscope/pkg/types"
)

// protocolICMP is the IANA protocol number for ICMPv4.
const protocolICMP = 1

// routeConn is one route probe's ICMP socket, closable from Real.Close.
type routeConn struct {
	once sync.Once
	pc   *icmp.PacketConn
}

func (rc *routeConn) close() { rc.once.Do(func() { rc.pc.Close() }) }

// AnalyzeRoute sends ICMP echoes to RouteTarget with TTL 1..MaxHops and
// records who answers each. Hops that stay silent past ProbeTimeout, or that
// are still pending when GlobalTimeout expires, are reported as timeouts.
//
// It tries an unprivileged datagram socket first and falls back to a raw
// socket; if neither can be opened the call fails.
func (r *Real) AnalyzeRoute(ctx context.Context) ([]types.RouteHop, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.GlobalTimeout)
	defer cancel()

	dst, err := net.ResolveIPAddr("ip4", r.opts.RouteTarget)
	if err != nil {
		return nil, fmt.Errorf("probe: route target %q: %w", r.opts.RouteTarget, err)
	}
	rc, privileged, err := r.openICMP()
	if err != nil {
		return nil, err
	}
	defer r.releaseICMP(rc)

	var target net.Addr = dst
	if !privileged {
		target = &net.UDPAddr{IP: dst.IP}
	}

	hops := make([]types.RouteHop, 0, r.opts.MaxHops)
	reached := false
	for ttl := 1; ttl <= r.opts.MaxHops && !reached; ttl++ {
		hop := types.RouteHop{HopIndex: ttl, HostLabel: "*", Address: "*", Status: types.ProbeTimeout}
		if ctx.Err() != nil {
			hops = append(hops, hop)
			continue
		}
		peer, rtt, done, err := r.echo(ctx, rc.pc, target, ttl)
		switch {
		case err == nil:
			hop.Address = peer
			hop.HostLabel = hopLabel(ttl, done, r.opts.RouteTarget, peer)
			hop.LatencyMs = durationMs(rtt)
			hop.Status = types.ProbeSuccess
			reached = done
		case isTimeout(err):
		default:
			hop.Status = types.ProbeError
		}
		hops = append(hops, hop)
	}
	return hops, nil
}

func (r *Real) openICMP() (*routeConn, bool, error) {
	pc, err := icmp.ListenPacket("udp4", "0.0.0.0")
	privileged := false
	if err != nil {
		var rawErr error
		pc, rawErr = icmp.ListenPacket("ip4:icmp", "0.0.0.0")
		if rawErr != nil {
			return nil, false, fmt.Errorf("probe: opening icmp socket: %w", errors.Join(err, rawErr))
		}
		privileged = true
	}
	rc := &routeConn{pc: pc}
	r.mu.Lock()
	r.routes[rc] = struct{}{}
	r.mu.Unlock()
	return rc, privileged, nil
}

func (r *Real) releaseICMP(rc *routeConn) {
	r.mu.Lock()
	delete(r.routes, rc)
	r.mu.Unlock()
	rc.close()
}

// echo sends one echo request with the given TTL and waits for the matching
// time-exceeded or echo-reply. done reports that the target itself answered.
func (r *Real) echo(ctx context.Context, pc *icmp.PacketConn, dst net.Addr, ttl int) (peer string, rtt time.Duration, done bool, err error) {
	if err := pc.IPv4PacketConn().SetTTL(ttl); err != nil {
		return "", 0, false, err
	}
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{ID: os.Getpid() & 0xffff, Seq: ttl, Data: []byte("linkscope")},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return "", 0, false, err
	}

	deadline := time.Now().Add(r.opts.ProbeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := pc.SetReadDeadline(deadline); err != nil {
		return "", 0, false, err
	}

	start := time.Now()
	if _, err := pc.WriteTo(wb, dst); err != nil {
		return "", 0, false, err
	}

	rb := make([]byte, 1500)
	for {
		n, from, err := pc.ReadFrom(rb)
		if err != nil {
			return "", 0, false, err
		}
		rm, err := icmp.ParseMessage(protocolICMP, rb[:n])
		if err != nil {
			continue
		}
		switch rm.Type {
		case ipv4.ICMPTypeTimeExceeded:
			return addrIP(from), time.Since(start), false, nil
		case ipv4.ICMPTypeEchoReply:
			return addrIP(from), time.Since(start), true, nil
		}
	}
}

func hopLabel(ttl int, reachedTarget bool, target, peer string) string {
	switch {
	case reachedTarget:
		return target
	case ttl == 1:
		return "local-gateway"
	default:
		return peer
	}
}

func addrIP(a net.Addr) string {
	switch v := a.(type) {
	case *net.UDPAddr:
		return v.IP.String()
	case *net.IPAddr:
		return v.IP.String()
	default:
		return a.String()
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout())
}
