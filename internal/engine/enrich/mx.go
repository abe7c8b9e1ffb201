package enrich

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// DefaultResolvers are queried in order until one answers.
var DefaultResolvers = []string{"8.8.8.8:53", "1.1.1.1:53"}

// MXChecker reports whether a mail domain accepts mail.
type MXChecker interface {
	HasMX(ctx context.Context, domain string) bool
}

// DNSChecker asks public resolvers for MX records and caches the answer per
// domain for the lifetime of the checker.
type DNSChecker struct {
	Servers []string
	Timeout time.Duration

	cache sync.Map // domain -> bool
}

func NewDNSChecker(servers ...string) *DNSChecker {
	if len(servers) == 0 {
		servers = DefaultResolvers
	}
	return &DNSChecker{Servers: servers, Timeout: 3 * time.Second}
}

func (c *DNSChecker) HasMX(ctx context.Context, domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	if v, ok := c.cache.Load(domain); ok {
		return v.(bool)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	msg.RecursionDesired = true

	client := &dns.Client{Timeout: c.Timeout}
	for _, server := range c.Servers {
		resp, _, err := client.ExchangeContext(ctx, msg, server)
		if err != nil || resp == nil {
			continue
		}
		found := resp.Rcode == dns.RcodeSuccess && len(resp.Answer) > 0
		c.cache.Store(domain, found)
		return found
	}
	// no resolver answered, so the next lookup asks again
	return false
}
