// Package recon implements the six passive posture collectors and the network
// clients they share.
package recon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
)

var (
	// ErrNXDomain reports an authoritative answer that the name does not exist.
	ErrNXDomain = errors.New("no such domain")
	// ErrInvalidHostname reports input that cannot be a DNS name.
	ErrInvalidHostname = errors.New("invalid hostname")
)

const defaultDNSTimeout = 5 * time.Second

var fallbackServers = []string{"1.1.1.1:53", "8.8.8.8:53"}

// DNSClient is the subset of *dns.Client used by Resolver.
type DNSClient interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, address string) (*dns.Msg, time.Duration, error)
}

// Resolver issues recursive queries against a fixed list of servers. Unlike the
// system resolver it tells NXDOMAIN apart from an empty answer.
type Resolver struct {
	Client    DNSClient
	TCPClient DNSClient // used when a UDP answer is truncated
	Servers   []string
	Timeout   time.Duration
}

// NewResolver builds a Resolver over servers, or over the system's configured
// servers when none are given.
func NewResolver(servers []string, timeout time.Duration) *Resolver {
	if len(servers) == 0 {
		servers = SystemServers()
	}
	if timeout <= 0 {
		timeout = defaultDNSTimeout
	}
	withPorts := make([]string, 0, len(servers))
	for _, s := range servers {
		if s = serverAddr(s); s != "" {
			withPorts = append(withPorts, s)
		}
	}
	return &Resolver{
		Client:    &dns.Client{Net: "udp", Timeout: timeout},
		TCPClient: &dns.Client{Net: "tcp", Timeout: timeout},
		Servers:   withPorts,
		Timeout:   timeout,
	}
}

// serverAddr adds port 53 to a nameserver given without one ("1.1.1.1",
// "2606:4700::1111", "[::1]").
func serverAddr(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if _, _, err := net.SplitHostPort(s); err == nil {
		return s
	}
	return net.JoinHostPort(strings.Trim(s, "[]"), "53")
}

// SystemServers returns the nameservers from /etc/resolv.conf, or public
// fallbacks when it cannot be read.
func SystemServers() []string {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return fallbackServers
	}
	servers := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, net.JoinHostPort(s, cfg.Port))
	}
	return servers
}

// query sends one question, trying each server until one answers. An empty
// answer section is not an error.
func (r *Resolver) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true
	m.SetEdns0(4096, false)

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultDNSTimeout
	}

	var lastErr error
	for _, server := range r.Servers {
		qctx, cancel := context.WithTimeout(ctx, timeout)
		resp, _, err := r.Client.ExchangeContext(qctx, m, server)
		if err == nil && resp != nil && resp.Truncated && r.TCPClient != nil {
			resp, _, err = r.TCPClient.ExchangeContext(qctx, m, server)
		}
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("network: %s %s via %s: %w", dns.TypeToString[qtype], name, server, err)
			continue
		}
		switch resp.Rcode {
		case dns.RcodeSuccess:
			return resp.Answer, nil
		case dns.RcodeNameError:
			return nil, fmt.Errorf("%s: %w", name, ErrNXDomain)
		default:
			lastErr = fmt.Errorf("network: %s %s via %s: %s", dns.TypeToString[qtype], name, server, dns.RcodeToString[resp.Rcode])
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("network: no DNS servers configured")
	}
	return nil, lastErr
}

// LookupNS returns the lowercase nameserver hostnames for name, sorted.
func (r *Resolver) LookupNS(ctx context.Context, name string) ([]string, error) {
	answers, err := r.query(ctx, name, dns.TypeNS)
	if err != nil {
		return nil, err
	}
	var hosts []string
	for _, rr := range answers {
		if ns, ok := rr.(*dns.NS); ok {
			hosts = append(hosts, canonicalName(ns.Ns))
		}
	}
	sort.Strings(hosts)
	return deduplicateStrings(hosts), nil
}

// LookupA returns the IPv4 addresses for name in answer order.
func (r *Resolver) LookupA(ctx context.Context, name string) ([]string, error) {
	answers, err := r.query(ctx, name, dns.TypeA)
	if err != nil {
		return nil, err
	}
	var ips []string
	for _, rr := range answers {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A.String())
		}
	}
	return deduplicateStrings(ips), nil
}

// LookupAAAA returns the IPv6 addresses for name in answer order.
func (r *Resolver) LookupAAAA(ctx context.Context, name string) ([]string, error) {
	answers, err := r.query(ctx, name, dns.TypeAAAA)
	if err != nil {
		return nil, err
	}
	var ips []string
	for _, rr := range answers {
		if a, ok := rr.(*dns.AAAA); ok {
			ips = append(ips, a.AAAA.String())
		}
	}
	return deduplicateStrings(ips), nil
}

// LookupMX returns mail exchanger hostnames ordered by preference.
func (r *Resolver) LookupMX(ctx context.Context, name string) ([]string, error) {
	answers, err := r.query(ctx, name, dns.TypeMX)
	if err != nil {
		return nil, err
	}
	var mxs []*dns.MX
	for _, rr := range answers {
		if mx, ok := rr.(*dns.MX); ok {
			mxs = append(mxs, mx)
		}
	}
	sort.SliceStable(mxs, func(i, j int) bool {
		return mxs[i].Preference < mxs[j].Preference
	})
	hosts := make([]string, 0, len(mxs))
	for _, mx := range mxs {
		if host := canonicalName(mx.Mx); host != "" {
			hosts = append(hosts, host)
		}
	}
	return deduplicateStrings(hosts), nil
}

// LookupTXT returns each TXT record with its character-strings concatenated.
func (r *Resolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	answers, err := r.query(ctx, name, dns.TypeTXT)
	if err != nil {
		return nil, err
	}
	var records []string
	for _, rr := range answers {
		if txt, ok := rr.(*dns.TXT); ok {
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	return records, nil
}

// LookupPTR returns the reverse-DNS hostnames for ip.
func (r *Resolver) LookupPTR(ctx context.Context, ip string) ([]string, error) {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return nil, fmt.Errorf("parse: reverse address for %q: %w", ip, err)
	}
	answers, err := r.query(ctx, arpa, dns.TypePTR)
	if err != nil {
		return nil, err
	}
	var hosts []string
	for _, rr := range answers {
		if ptr, ok := rr.(*dns.PTR); ok {
			hosts = append(hosts, canonicalName(ptr.Ptr))
		}
	}
	return hosts, nil
}

func canonicalName(s string) string {
	return strings.TrimSuffix(strings.ToLower(s), ".")
}

func deduplicateStrings(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	var out []string
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
