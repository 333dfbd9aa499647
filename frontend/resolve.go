package frontend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const resolvConf = "/etc/resolv.conf"

var (
	ErrResolution  = errors.New("no addresses found")
	ErrNameService = errors.New("name service failure")
)

// Addresses is the result of resolving one domain.
type Addresses struct {
	V4 []netip.Addr
	V6 []netip.Addr
}

// All returns the IPv4 addresses followed by the IPv6 ones.
func (a Addresses) All() []netip.Addr {
	return append(append([]netip.Addr(nil), a.V4...), a.V6...)
}

type Resolver interface {
	Resolve(ctx context.Context, domain string) (Addresses, error)
}

// DNSResolver queries nameservers directly for A and AAAA records. Servers are tried
// in order and the next one is used only when a server fails to answer.
type DNSResolver struct {
	logger  *zap.SugaredLogger
	client  *dns.Client
	servers []string
}

func NewDNSResolver(logger *zap.SugaredLogger, cfg ResolverConfig) (*DNSResolver, error) {
	servers := make([]string, 0, len(cfg.Servers))

	for _, s := range cfg.Servers {
		servers = append(servers, withPort(s, "53"))
	}

	if len(servers) == 0 {
		cc, err := dns.ClientConfigFromFile(resolvConf)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %w", ErrNameService, resolvConf, err)
		}

		for _, s := range cc.Servers {
			servers = append(servers, withPort(s, cc.Port))
		}
	}

	if len(servers) == 0 {
		return nil, fmt.Errorf("%w: no nameservers configured", ErrNameService)
	}

	return &DNSResolver{
		logger:  logger,
		client:  &dns.Client{Timeout: cfg.Timeout.Duration},
		servers: servers,
	}, nil
}

func withPort(server, port string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}

	return net.JoinHostPort(strings.Trim(server, "[]"), port)
}

// Resolve looks up both families of domain. One family failing or being empty is not
// an error while the other yields addresses.
func (r *DNSResolver) Resolve(ctx context.Context, domain string) (Addresses, error) {
	var addrs Addresses

	v4, err4 := r.query(ctx, domain, dns.TypeA)
	v6, err6 := r.query(ctx, domain, dns.TypeAAAA)

	addrs.V4, addrs.V6 = v4, v6

	if len(v4)+len(v6) > 0 {
		for _, err := range []error{err4, err6} {
			if err != nil {
				r.logger.Warnw("partial resolution", "domain", domain, "err", err)
			}
		}

		return addrs, nil
	}

	if err := multierr.Combine(err4, err6); err != nil {
		return addrs, err
	}

	return addrs, fmt.Errorf("%w: %s has no A or AAAA records", ErrResolution, domain)
}

func (r *DNSResolver) query(ctx context.Context, domain string, qtype uint16) ([]netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), qtype)

	var lastErr error

	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", server, err)

			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
			return answers(dns.Fqdn(domain), qtype, resp.Answer), nil
		case dns.RcodeNameError:
			return nil, nil
		default:
			lastErr = fmt.Errorf("%s: %s", server, dns.RcodeToString[resp.Rcode])
		}
	}

	return nil, fmt.Errorf("%w: %s %s: %w", ErrNameService, dns.TypeToString[qtype], domain, lastErr)
}

// answers collects the records of qtype owned by name or by a name it is a CNAME
// of, in answer order. IPv4-mapped AAAA records are skipped.
func answers(name string, qtype uint16, rrs []dns.RR) []netip.Addr {
	owners := map[string]bool{strings.ToLower(name): true}

	// each pass can extend the chain by at least one link
	for range rrs {
		grew := false

		for _, rr := range rrs {
			cname, ok := rr.(*dns.CNAME)
			if !ok || !owners[strings.ToLower(cname.Hdr.Name)] || owners[strings.ToLower(cname.Target)] {
				continue
			}

			owners[strings.ToLower(cname.Target)] = true
			grew = true
		}

		if !grew {
			break
		}
	}

	var out []netip.Addr

	for _, rr := range rrs {
		if !owners[strings.ToLower(rr.Header().Name)] {
			continue
		}

		var ip net.IP

		switch v := rr.(type) {
		case *dns.A:
			ip = v.A.To4()
		case *dns.AAAA:
			ip = v.AAAA.To16()
		default:
			continue
		}

		if rr.Header().Rrtype != qtype {
			continue
		}

		a, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}

		// a v4-mapped AAAA would land in the IPv4 table
		if qtype == dns.TypeAAAA && a.Is4In6() {
			continue
		}

		out = append(out, a)
	}

	return out
}
