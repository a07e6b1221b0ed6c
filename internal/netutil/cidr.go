// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

// Package netutil provides network topology helpers for server detection:
// IPv4 CIDR containment checks and proxy-aware client IP extraction.
package netutil

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/serviciosqbit/qbitstream/internal/logging"
)

// IsIPInCIDR reports whether an IPv4 address falls inside a CIDR range.
//
// The check compares the top prefix-length bits of the address and the range
// base after packing each dot-decimal address big-endian into a uint32.
// Only IPv4 is supported; the fleet's network affinities are all IPv4 ranges.
//
// Malformed input never propagates: a bad address, base, or prefix logs at
// error level and returns false, so a broken CIDR in the server catalog
// degrades to "no match" instead of taking down the detection flow.
func IsIPInCIDR(ip, cidr string) bool {
	ipInt, err := ipv4ToUint32(ip)
	if err != nil {
		logging.Error().Err(err).Str("ip", ip).Str("cidr", cidr).Msg("CIDR check failed")
		return false
	}

	base, bits, ok := strings.Cut(cidr, "/")
	if !ok {
		logging.Error().Str("ip", ip).Str("cidr", cidr).Msg("CIDR check failed: missing prefix length")
		return false
	}

	baseInt, err := ipv4ToUint32(base)
	if err != nil {
		logging.Error().Err(err).Str("ip", ip).Str("cidr", cidr).Msg("CIDR check failed")
		return false
	}

	prefix, err := strconv.Atoi(bits)
	if err != nil || prefix < 0 || prefix > 32 {
		logging.Error().Str("ip", ip).Str("cidr", cidr).Msg("CIDR check failed: invalid prefix length")
		return false
	}

	var mask uint32
	if prefix > 0 {
		mask = ^uint32(0) << (32 - prefix)
	}

	return ipInt&mask == baseInt&mask
}

// ipv4ToUint32 packs a dot-decimal IPv4 address big-endian into a uint32.
func ipv4ToUint32(s string) (uint32, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return 0, fmt.Errorf("parse address %q: %w", s, err)
	}
	if !addr.Is4() {
		return 0, fmt.Errorf("address %q is not IPv4", s)
	}

	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}
