package stealth

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// DNSConfig selects the resolvers the tunnel should trust. Resolvers are
// verified at startup so a hijacked or filtered resolver is caught before
// the first circuit activation depends on it.
type DNSConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Resolvers []string      `yaml:"resolvers"`
	ProbeName string        `yaml:"probe_name"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ApplyDefaults sets resolver verification defaults.
func (c *DNSConfig) ApplyDefaults() {
	if len(c.Resolvers) == 0 {
		c.Resolvers = []string{"1.1.1.1:53", "9.9.9.9:53"}
	}
	if c.ProbeName == "" {
		c.ProbeName = "www.google.com."
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
}

// ResolverResult is the outcome of verifying one resolver.
type ResolverResult struct {
	Server  string
	Latency time.Duration
	Err     error
}

// CheckResolvers queries each configured resolver for an A record and
// reports per-resolver latency. A resolver that answers with an empty or
// refused response is reported as failed.
func CheckResolvers(ctx context.Context, cfg DNSConfig) []ResolverResult {
	client := &dns.Client{
		Net:     "udp",
		Timeout: cfg.Timeout,
	}

	results := make([]ResolverResult, 0, len(cfg.Resolvers))
	for _, server := range cfg.Resolvers {
		results = append(results, checkOne(ctx, client, server, cfg.ProbeName))
	}
	return results
}

func checkOne(ctx context.Context, client *dns.Client, server, name string) ResolverResult {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	m.RecursionDesired = true

	resp, rtt, err := client.ExchangeContext(ctx, m, server)
	if err != nil {
		return ResolverResult{Server: server, Err: err}
	}
	if resp.Rcode != dns.RcodeSuccess {
		return ResolverResult{
			Server: server,
			Err:    fmt.Errorf("resolver returned %s", dns.RcodeToString[resp.Rcode]),
		}
	}
	if len(resp.Answer) == 0 {
		return ResolverResult{Server: server, Err: fmt.Errorf("empty answer for %s", name)}
	}
	return ResolverResult{Server: server, Latency: rtt}
}
