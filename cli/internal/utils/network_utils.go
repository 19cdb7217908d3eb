package utils

import (
	"net"
	"strings"
)

// Interface names used by VPNs and tunnels; direct peer traffic through
// them tends to fail or hairpin through a relay anyway.
var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp"}

// cgnat is 100.64.0.0/10, used by carrier-grade NAT, Cloudflare WARP and
// Tailscale.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0).To4(), Mask: net.CIDRMask(10, 32)}

// LinkInfo is the part of a network interface the relay heuristic needs.
type LinkInfo struct {
	Name  string
	Flags net.Flags
	IPs   []net.IP
}

// ShouldForceRelay reports whether this host looks like it sits behind a VPN
// or CGNAT, in which case peer sessions should go straight to TURN.
func ShouldForceRelay() bool {
	links, err := localLinks()
	if err != nil {
		return false
	}
	return NeedsRelay(links)
}

// NeedsRelay applies the VPN/CGNAT heuristic to a set of links.
func NeedsRelay(links []LinkInfo) bool {
	for _, l := range links {
		if l.Flags&net.FlagUp == 0 || l.Flags&net.FlagLoopback != 0 {
			continue
		}

		name := strings.ToLower(l.Name)
		for _, t := range tunnelNames {
			if strings.Contains(name, t) {
				return true
			}
		}

		for _, ip := range l.IPs {
			if cgnat.Contains(ip) {
				return true
			}
		}
	}
	return false
}

func localLinks() ([]LinkInfo, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	links := make([]LinkInfo, 0, len(ifaces))
	for _, iface := range ifaces {
		l := LinkInfo{Name: iface.Name, Flags: iface.Flags}
		addrs, err := iface.Addrs()
		if err == nil {
			for _, addr := range addrs {
				switch v := addr.(type) {
				case *net.IPNet:
					l.IPs = append(l.IPs, v.IP)
				case *net.IPAddr:
					l.IPs = append(l.IPs, v.IP)
				}
			}
		}
		links = append(links, l)
	}
	return links, nil
}
