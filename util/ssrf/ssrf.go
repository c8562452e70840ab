/*
 * Written in 2019 by Andrew Ayer.
 * Patched 2025, Gander Social PBC.
 *
 * Original: https://www.agwa.name/blog/post/preventing_server_side_request_forgery_in_golang
 *
 * To the extent possible under law, the author(s) have dedicated all
 * copyright and related and neighboring rights to this software to the
 * public domain worldwide. This software is distributed without any
 * warranty.
 *
 * You should have received a copy of the CC0 Public
 * Domain Dedication along with this software. If not, see
 * <https://creativecommons.org/publicdomain/zero/1.0/>.
 */

// Dialing restricted to public addresses, for fetching untrusted URLs.
package ssrf

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// Wrapped by every refusal from [PublicOnlyControl]. Survives the dialer and http.Client wrapping, so callers can use errors.Is.
var ErrBlocked = errors.New("ssrf: destination not allowed")

var reservedIPv4 = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),       // current network
	netip.MustParsePrefix("10.0.0.0/8"),      // private
	netip.MustParsePrefix("100.64.0.0/10"),   // carrier-grade NAT
	netip.MustParsePrefix("127.0.0.0/8"),     // loopback
	netip.MustParsePrefix("169.254.0.0/16"),  // link-local, cloud metadata
	netip.MustParsePrefix("172.16.0.0/12"),   // private
	netip.MustParsePrefix("192.0.0.0/24"),    // IETF protocol assignments
	netip.MustParsePrefix("192.0.2.0/24"),    // documentation
	netip.MustParsePrefix("192.88.99.0/24"),  // 6to4 relay
	netip.MustParsePrefix("192.168.0.0/16"),  // private
	netip.MustParsePrefix("198.18.0.0/15"),   // benchmarking
	netip.MustParsePrefix("198.51.100.0/24"), // documentation
	netip.MustParsePrefix("203.0.113.0/24"),  // documentation
	netip.MustParsePrefix("224.0.0.0/4"),     // multicast
	netip.MustParsePrefix("240.0.0.0/4"),     // reserved, broadcast
}

var globalUnicastIPv6 = netip.MustParsePrefix("2000::/3")

var allowedPorts = map[string]bool{
	"80":  true,
	"443": true,
}

func IsPublicAddr(addr netip.Addr) bool {
	// IPv4-mapped IPv6 is judged as the IPv4 address
	addr = addr.Unmap()
	if addr.Is4() {
		for _, p := range reservedIPv4 {
			if p.Contains(addr) {
				return false
			}
		}
		return true
	}
	return globalUnicastIPv6.Contains(addr)
}

// Implementation of the [net.Dialer] Control hook. Rejects anything but TCP to a public address on port 80 or 443.
func PublicOnlyControl(network string, address string, conn syscall.RawConn) error {
	if network != "tcp4" && network != "tcp6" {
		return fmt.Errorf("%w: network %s", ErrBlocked, network)
	}
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: invalid address %s: %v", ErrBlocked, address, err)
	}
	if !IsPublicAddr(ap.Addr()) {
		return fmt.Errorf("%w: %s is not a public address", ErrBlocked, ap.Addr())
	}
	if !allowedPorts[fmt.Sprint(ap.Port())] {
		return fmt.Errorf("%w: port %d", ErrBlocked, ap.Port())
	}
	return nil
}

func PublicOnlyDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   PublicOnlyControl,
	}
}

// Same defaults as [http.DefaultTransport], dialing through [PublicOnlyDialer].
func PublicOnlyTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           PublicOnlyDialer().DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
