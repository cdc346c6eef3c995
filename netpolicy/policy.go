package netpolicy

import (
	"fmt"
	"net/netip"
	"strings"
)

// Config lists CIDRs ("10.0.0.0/8") or bare addresses, and email domains.
// A domain entry also matches its subdomains.
type Config struct {
	AllowCIDRs   []string `mapstructure:"allow_cidrs"`
	DenyCIDRs    []string `mapstructure:"deny_cidrs"`
	AllowDomains []string `mapstructure:"allow_domains"`
	DenyDomains  []string `mapstructure:"deny_domains"`
}

// Policy is immutable after New and safe for concurrent use.
type Policy struct {
	allowIPs     []netip.Prefix
	denyIPs      []netip.Prefix
	allowDomains []string
	denyDomains  []string
}

func New(cfg Config) (*Policy, error) {
	allow, err := parsePrefixes(cfg.AllowCIDRs)
	if err != nil {
		return nil, err
	}
	deny, err := parsePrefixes(cfg.DenyCIDRs)
	if err != nil {
		return nil, err
	}
	return &Policy{
		allowIPs:     allow,
		denyIPs:      deny,
		allowDomains: normalizeDomains(cfg.AllowDomains),
		denyDomains:  normalizeDomains(cfg.DenyDomains),
	}, nil
}

// IPAllowed reports whether ip may proceed. An unknown or unparseable ip is
// admitted only when no allow list is configured.
func (p *Policy) IPAllowed(ip string) bool {
	if p == nil {
		return true
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return len(p.allowIPs) == 0
	}
	addr = addr.Unmap()

	if containsAddr(p.denyIPs, addr) {
		return false
	}
	if len(p.allowIPs) == 0 {
		return true
	}
	return containsAddr(p.allowIPs, addr)
}

// EmailDomainAllowed checks the part after the last "@". An address without
// a domain is rejected.
func (p *Policy) EmailDomainAllowed(email string) bool {
	if p == nil {
		return true
	}

	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(strings.TrimSuffix(email[at+1:], "."))

	if matchesDomain(p.denyDomains, domain) {
		return false
	}
	if len(p.allowDomains) == 0 {
		return true
	}
	return matchesDomain(p.allowDomains, domain)
}

func parsePrefixes(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				return nil, fmt.Errorf("netpolicy: invalid address %q: %w", entry, err)
			}
			addr = addr.Unmap()
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return nil, fmt.Errorf("netpolicy: invalid cidr %q: %w", entry, err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

func containsAddr(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func normalizeDomains(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, raw := range entries {
		d := strings.ToLower(strings.Trim(strings.TrimSpace(raw), "."))
		d = strings.TrimPrefix(d, "@")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

func matchesDomain(list []string, domain string) bool {
	for _, d := range list {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}
