package util

import "net"

// HostClass is the network class of a provider endpoint host.
type HostClass int

const (
	// HostPublic is a DNS name or publicly routable address.
	HostPublic HostClass = iota
	// HostLoopback is localhost, 127.0.0.0/8 or ::1.
	HostLoopback
	// HostPrivate is an RFC 1918 or fc00::/7 address.
	HostPrivate
	// HostLinkLocal covers 169.254.0.0/16 and fe80::/10, including cloud
	// metadata services.
	HostLinkLocal
	// HostUnspecified is 0.0.0.0, :: or an empty host.
	HostUnspecified
)

func (c HostClass) String() string {
	switch c {
	case HostPublic:
		return "public"
	case HostLoopback:
		return "loopback"
	case HostPrivate:
		return "private"
	case HostLinkLocal:
		return "link_local"
	case HostUnspecified:
		return "unspecified"
	default:
		return "unknown"
	}
}

// ClassifyHost classifies a hostname as returned by url.URL.Hostname().
// Names other than "localhost" are not resolved and count as public.
func ClassifyHost(hostname string) HostClass {
	if hostname == "" {
		return HostUnspecified
	}
	if hostname == "localhost" {
		return HostLoopback
	}
	if len(hostname) > 2 && hostname[0] == '[' && hostname[len(hostname)-1] == ']' {
		hostname = hostname[1 : len(hostname)-1]
	}
	ip := net.ParseIP(hostname)
	if ip == nil {
		return HostPublic
	}
	return ClassifyIP(ip)
}

// ClassifyIP classifies a parsed address. A nil IP is unspecified.
func ClassifyIP(ip net.IP) HostClass {
	switch {
	case ip == nil, ip.IsUnspecified():
		return HostUnspecified
	case ip.IsLoopback():
		return HostLoopback
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return HostLinkLocal
	case ip.IsPrivate():
		return HostPrivate
	default:
		return HostPublic
	}
}
