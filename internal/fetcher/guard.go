// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package fetcher

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
)

// ErrBlockedTarget is returned when a fetch URL resolves to a private,
// loopback or otherwise non-public address. Source profiles are operator
// controlled, but redirects are not.
var ErrBlockedTarget = errors.New("fetcher: target address is not publicly routable")

// checkTarget validates the URL scheme and resolves the host, rejecting
// anything that does not land on a public unicast address.
func checkTarget(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrBlockedTarget, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrBlockedTarget)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return checkAddr(addr)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			return fmt.Errorf("%w: unparseable address for %s", ErrBlockedTarget, host)
		}
		if err := checkAddr(addr.Unmap()); err != nil {
			return err
		}
	}
	return nil
}

func checkAddr(addr netip.Addr) error {
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsMulticast() || addr.IsUnspecified() {
		return fmt.Errorf("%w: %s", ErrBlockedTarget, addr)
	}
	return nil
}
