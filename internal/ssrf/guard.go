// Package ssrf classifies outbound provider endpoints as allowed or blocked
// before every network attempt. Resolution happens per call, not at config
// load, so a hostname whose DNS answer changes between calls (rebinding)
// cannot redirect traffic into the internal network.
package ssrf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ErrBlocked is the sentinel wrapped by every Guard rejection. Callers use
// errors.Is to distinguish a policy block from a transient fault.
var ErrBlocked = errors.New("endpoint blocked by ssrf policy")

// Resolver looks up the IP addresses for a host. *net.Resolver satisfies it;
// tests substitute a fixed map.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard validates endpoint URLs against the outbound policy.
type Guard struct {
	resolver      Resolver
	lookupTimeout time.Duration
}

// Option configures a Guard.
type Option func(*Guard)

// WithResolver overrides the DNS resolver (used in tests).
func WithResolver(r Resolver) Option {
	return func(g *Guard) { g.resolver = r }
}

// WithLookupTimeout bounds each DNS lookup. The default is 5 seconds.
func WithLookupTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.lookupTimeout = d
		}
	}
}

// New creates a Guard using the system resolver.
func New(opts ...Option) *Guard {
	g := &Guard{
		resolver:      net.DefaultResolver,
		lookupTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// blockedHosts are literal hostnames that must never be contacted regardless
// of what they resolve to. Cloud metadata services sit behind several of them.
var blockedHosts = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
	"metadata.goog":            true,
	"169.254.169.254":          true, // AWS/GCP/Azure IMDS
	"168.63.129.16":            true, // Azure wire server
	"fd00:ec2::254":            true, // AWS IMDS IPv6
}

// Allow reports whether endpoint may be contacted. A nil return means the
// scheme is https, the hostname is not a known-internal name, and every
// resolved address is publicly routable. Any rejection wraps ErrBlocked.
func (g *Guard) Allow(ctx context.Context, endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: unparseable endpoint", ErrBlocked)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q is not https", ErrBlocked, u.Scheme)
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrBlocked)
	}
	if blockedHosts[host] {
		return fmt.Errorf("%w: denied host %s", ErrBlocked, HostHash(host))
	}
	if strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("%w: internal suffix %s", ErrBlocked, HostHash(host))
	}

	// Literal IPs skip DNS entirely.
	if ip := net.ParseIP(host); ip != nil {
		if reason := classify(ip); reason != "" {
			return fmt.Errorf("%w: %s address %s", ErrBlocked, reason, HostHash(host))
		}
		return nil
	}

	lctx, cancel := context.WithTimeout(ctx, g.lookupTimeout)
	defer cancel()
	addrs, err := g.resolver.LookupIPAddr(lctx, host)
	if err != nil {
		return fmt.Errorf("%w: resolution failed for %s", ErrBlocked, HostHash(host))
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: no addresses for %s", ErrBlocked, HostHash(host))
	}
	// Every answer must be public; a single internal A record taints the host.
	for _, a := range addrs {
		if reason := classify(a.IP); reason != "" {
			return fmt.Errorf("%w: %s address %s", ErrBlocked, reason, HostHash(host))
		}
	}
	return nil
}

// classify returns a non-empty reason when ip falls in a forbidden range.
func classify(ip net.IP) string {
	switch {
	case ip.IsLoopback():
		return "loopback"
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return "link-local"
	case ip.IsPrivate(): // 10/8, 172.16/12, 192.168/16, fc00::/7
		return "private"
	case ip.IsUnspecified():
		return "unspecified"
	}
	return ""
}

// HostHash returns a short SHA-256 prefix of host, safe to log in place of
// the raw name or address.
func HostHash(host string) string {
	sum := sha256.Sum256([]byte(host))
	return hex.EncodeToString(sum[:])[:12]
}
