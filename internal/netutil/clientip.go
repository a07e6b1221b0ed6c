// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

package netutil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the real client address from a request that may have
// traversed reverse proxies or a Cloudflare tunnel.
//
// Header precedence: CF-Connecting-IP, then X-Real-IP, then the first hop of
// X-Forwarded-For, then the raw socket address. The detection engine itself
// never parses headers; handlers call this once and pass a plain IP string.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
