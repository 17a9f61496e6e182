package behavior

import (
	"net"
	"net/netip"
	"strings"
)

const (
	// LocalConnection buckets loopback and private-range addresses together
	LocalConnection = "local connection"
	UnknownLocation = "unknown"
)

// LocationKey derives the location bucket for a login. A resolved place name
// wins; otherwise the source address is used, with loopback, private and
// link-local ranges collapsed into LocalConnection.
func LocationKey(label, sourceAddress string) string {
	if label = strings.TrimSpace(label); label != "" {
		return label
	}

	addr := strings.TrimSpace(sourceAddress)
	if addr == "" {
		return UnknownLocation
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return addr
	}
	ip = ip.Unmap()

	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return LocalConnection
	}
	return ip.WithZone("").String()
}
