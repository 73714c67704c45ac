package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// DNSProbe verifies that the local DNS forwarder resolves a development
// hostname to the designated address.
type DNSProbe struct {
	Label  string
	Server string // forwarder address, host:port
	Query  string // fully qualified name to resolve
	Want   net.IP // expected answer; nil accepts any answer
}

// NewDNSProbe creates a resolution probe against the given forwarder.
func NewDNSProbe(label, server, query string, want net.IP) *DNSProbe {
	return &DNSProbe{Label: label, Server: server, Query: query, Want: want}
}

func (d *DNSProbe) Name() string { return d.Label }

func (d *DNSProbe) Check(ctx context.Context) Result {
	start := time.Now()

	answers, err := d.resolve(ctx, dns.TypeA)
	if err != nil {
		return Result{
			Status:   StatusError,
			Message:  fmt.Sprintf("resolve %s: %v", d.Query, err),
			Duration: time.Since(start),
		}
	}
	if len(answers) == 0 {
		// Fall back to AAAA before declaring the name unresolvable.
		answers, err = d.resolve(ctx, dns.TypeAAAA)
		if err != nil {
			return Result{
				Status:   StatusError,
				Message:  fmt.Sprintf("resolve %s: %v", d.Query, err),
				Duration: time.Since(start),
			}
		}
	}
	if len(answers) == 0 {
		return Result{
			Status:   StatusError,
			Message:  fmt.Sprintf("%s has no A/AAAA records", d.Query),
			Duration: time.Since(start),
		}
	}

	if d.Want != nil {
		for _, ip := range answers {
			if ip.Equal(d.Want) {
				return Result{
					Status:   StatusOK,
					Message:  fmt.Sprintf("%s resolves to %s", d.Query, ip),
					Duration: time.Since(start),
				}
			}
		}
		return Result{
			Status:   StatusError,
			Message:  fmt.Sprintf("%s resolves to %v, want %s", d.Query, answers, d.Want),
			Duration: time.Since(start),
		}
	}

	return Result{
		Status:   StatusOK,
		Message:  fmt.Sprintf("%s resolves to %s", d.Query, answers[0]),
		Duration: time.Since(start),
	}
}

func (d *DNSProbe) resolve(ctx context.Context, qtype uint16) ([]net.IP, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(d.Query), qtype)
	msg.RecursionDesired = true

	client := new(dns.Client)
	reply, _, err := client.ExchangeContext(ctx, msg, d.Server)
	if err != nil {
		return nil, err
	}
	if reply.Rcode != dns.RcodeSuccess && reply.Rcode != dns.RcodeNameError {
		return nil, fmt.Errorf("rcode %s", dns.RcodeToString[reply.Rcode])
	}

	var ips []net.IP
	for _, rr := range reply.Answer {
		switch record := rr.(type) {
		case *dns.A:
			ips = append(ips, record.A)
		case *dns.AAAA:
			ips = append(ips, record.AAAA)
		}
	}
	return ips, nil
}
