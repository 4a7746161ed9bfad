package prober

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/miekg/dns"
)

func (s *System) nameservers() ([]string, error) {
	if len(s.resolvers) > 0 {
		return s.resolvers, nil
	}
	cfg, err := dns.ClientConfigFromFile(s.resolvConf)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.resolvConf, err)
	}
	servers := make([]string, 0, len(cfg.Servers))
	for _, server := range cfg.Servers {
		servers = append(servers, net.JoinHostPort(server, cfg.Port))
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("no nameservers in %s", s.resolvConf)
	}
	return servers, nil
}

// Resolve queries the configured nameservers in order for A records. The
// first server that answers or returns NXDOMAIN decides the result;
// unreachable and failing servers are skipped.
func (s *System) Resolve(ctx context.Context, domain string) ([]string, error) {
	servers, err := s.nameservers()
	if err != nil {
		return nil, err
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeA)
	msg.RecursionDesired = true

	client := &dns.Client{Timeout: s.timeouts.DNS}

	var errs []error
	for _, server := range servers {
		resp, _, err := client.ExchangeContext(ctx, msg, server)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", server, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		switch resp.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return nil, fmt.Errorf("%s: %s", domain, dns.RcodeToString[resp.Rcode])
		default:
			// SERVFAIL, REFUSED and the like are the server's problem.
			errs = append(errs, fmt.Errorf("%s: %s", server, dns.RcodeToString[resp.Rcode]))
			continue
		}

		var addrs []string
		seen := map[string]bool{}
		for _, rr := range resp.Answer {
			if a, ok := rr.(*dns.A); ok && !seen[a.A.String()] {
				seen[a.A.String()] = true
				addrs = append(addrs, a.A.String())
			}
		}
		if len(addrs) == 0 {
			return nil, fmt.Errorf("%s: no A records", domain)
		}
		return addrs, nil
	}
	return nil, fmt.Errorf("resolving %s: %w", domain, errors.Join(errs...))
}
