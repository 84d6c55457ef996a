package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// CIDRSet matches peer addresses against a list of networks.
type CIDRSet struct {
	nets []*net.IPNet
}

// ParseCIDRs builds a CIDRSet. Bare IP addresses are accepted as single-host networks.
func ParseCIDRs(cidrs []string) (*CIDRSet, error) {
	set := &CIDRSet{}
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		if !strings.Contains(cidr, "/") {
			ip := net.ParseIP(cidr)
			if ip == nil {
				return nil, fmt.Errorf("invalid address %q", cidr)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			cidr = fmt.Sprintf("%s/%d", cidr, bits)
		}
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
		}
		set.nets = append(set.nets, ipNet)
	}
	return set, nil
}

// mustParseCIDRsLenient parses each entry independently, logging and skipping invalid ones.
func mustParseCIDRsLenient(cidrs []string, logger *slog.Logger) *CIDRSet {
	set := &CIDRSet{}
	for _, cidr := range cidrs {
		one, err := ParseCIDRs([]string{cidr})
		if err != nil {
			logger.Warn("invalid allowlist CIDR, skipping",
				slog.String("cidr", cidr),
				slog.String("error", err.Error()),
			)
			continue
		}
		set.nets = append(set.nets, one.nets...)
	}
	return set
}

// Empty reports whether the set has no networks.
func (s *CIDRSet) Empty() bool {
	return s == nil || len(s.nets) == 0
}

// Contains reports whether ip is inside any network of the set.
func (s *CIDRSet) Contains(ip net.IP) bool {
	if s == nil || ip == nil {
		return false
	}
	for _, n := range s.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ContainsRemote reports whether the direct peer of r is inside the set.
// Forwarding headers are ignored; only the socket address counts.
func (s *CIDRSet) ContainsRemote(r *http.Request) bool {
	return s.Contains(net.ParseIP(remoteHost(r)))
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
