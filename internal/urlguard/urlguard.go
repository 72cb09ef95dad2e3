// Package urlguard validates outbound fetch targets before any network
// request is made, rejecting non-HTTP schemes and private or loopback
// address literals.
package urlguard

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrNotAllowed is returned for any URL that fails validation.
var ErrNotAllowed = fmt.Errorf("url not allowed")

var blockedNets []*net.IPNet

func init() {
	for _, cidr := range []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	} {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		blockedNets = append(blockedNets, n)
	}
}

// Check validates raw as a fetch target. Only http and https schemes
// pass, localhost hostnames are rejected, and IP-literal hosts are
// checked against loopback, private and link-local ranges. Hostnames
// are not resolved; only literal addresses are inspected.
func Check(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %q is not a valid URL", ErrNotAllowed, raw)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q (only http and https are fetchable)", ErrNotAllowed, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host in %q", ErrNotAllowed, raw)
	}
	if host == "localhost" || host == "localhost.localdomain" {
		return fmt.Errorf("%w: host %q is local", ErrNotAllowed, host)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, n := range blockedNets {
			if n.Contains(ip) {
				return fmt.Errorf("%w: address %s is in blocked range %s", ErrNotAllowed, ip, n)
			}
		}
	}
	return nil
}
