package probe

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/net/dns/dnsmessage"
	"golang.org/x/sync/errgroup"

	"github.com/linkscope/linkscope/pkg/types"
)

// TestDNS queries every configured resolver concurrently for an A record of
// DNSQueryName. Each query has its own ProbeTimeout, so one silent resolver
// cannot hold up the others. Results keep the resolver order.
func (r *Real) TestDNS(ctx context.Context) ([]types.DNSProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.GlobalTimeout)
	defer cancel()

	qname := r.opts.DNSQueryName
	if !strings.HasSuffix(qname, ".") {
		qname += "."
	}
	name, err := dnsmessage.NewName(qname)
	if err != nil {
		return nil, fmt.Errorf("probe: dns query name %q: %w", r.opts.DNSQueryName, err)
	}

	results := make([]types.DNSProbeResult, len(r.opts.Resolvers))
	var g errgroup.Group
	for i, res := range r.opts.Resolvers {
		g.Go(func() error {
			results[i] = r.queryResolver(ctx, res, name)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never fail; status is on each result
	return results, nil
}

func (r *Real) queryResolver(ctx context.Context, res Resolver, name dnsmessage.Name) types.DNSProbeResult {
	out := types.DNSProbeResult{ServerLabel: res.Label, Address: res.Address}

	ctx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	defer cancel()

	start := time.Now()
	err := exchange(ctx, r.dialer, res.Address, name)
	out.ResponseTimeMs = durationMs(time.Since(start))
	out.Status = dnsStatus(err)
	return out
}

// exchange sends one A query over UDP and validates the reply header.
func exchange(ctx context.Context, d *net.Dialer, addr string, name dnsmessage.Name) error {
	id := uint16(rand.UintN(1 << 16))
	b := dnsmessage.NewBuilder(nil, dnsmessage.Header{ID: id, RecursionDesired: true})
	b.EnableCompression()
	if err := b.StartQuestions(); err != nil {
		return err
	}
	if err := b.Question(dnsmessage.Question{
		Name:  name,
		Type:  dnsmessage.TypeA,
		Class: dnsmessage.ClassINET,
	}); err != nil {
		return err
	}
	query, err := b.Finish()
	if err != nil {
		return err
	}

	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl) //nolint:errcheck
	}
	if _, err := conn.Write(query); err != nil {
		return err
	}

	buf := make([]byte, 1232)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return err
		}
		var p dnsmessage.Parser
		h, err := p.Start(buf[:n])
		if err != nil || h.ID != id || !h.Response {
			continue // stray datagram; keep waiting until the deadline
		}
		if h.RCode != dnsmessage.RCodeSuccess {
			return fmt.Errorf("probe: resolver answered %s", h.RCode)
		}
		return nil
	}
}

// dnsStatus maps an exchange error to a probe status.
func dnsStatus(err error) types.ProbeStatus {
	var ne net.Error
	switch {
	case err == nil:
		return types.ProbeSuccess
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return types.ProbeTimeout
	case errors.As(err, &ne) && ne.Timeout():
		return types.ProbeTimeout
	default:
		return types.ProbeError
	}
}
