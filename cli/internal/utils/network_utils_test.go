package utils

import (
	"net"
	"testing"
)

func TestNeedsRelay(t *testing.T) {
	up := net.FlagUp
	tests := []struct {
		name  string
		links []LinkInfo
		want  bool
	}{
		{"plain lan", []LinkInfo{{Name: "eth0", Flags: up, IPs: []net.IP{net.ParseIP("192.168.1.20")}}}, false},
		{"wireguard", []LinkInfo{{Name: "wg0", Flags: up}}, true},
		{"openvpn", []LinkInfo{{Name: "tun0", Flags: up}}, true},
		{"warp", []LinkInfo{{Name: "CloudflareWARP", Flags: up}}, true},
		{"cgnat address", []LinkInfo{{Name: "eth0", Flags: up, IPs: []net.IP{net.ParseIP("100.101.7.9")}}}, true},
		{"just outside cgnat", []LinkInfo{{Name: "eth0", Flags: up, IPs: []net.IP{net.ParseIP("100.128.0.1")}}}, false},
		{"tunnel down", []LinkInfo{{Name: "wg0"}}, false},
		{"loopback ignored", []LinkInfo{{Name: "lo", Flags: up | net.FlagLoopback, IPs: []net.IP{net.ParseIP("100.64.0.1")}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsRelay(tt.links); got != tt.want {
				t.Fatalf("NeedsRelay = %v, want %v", got, tt.want)
			}
		})
	}
}
