// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

package netutil

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP_HeaderPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name: "cloudflare header wins over everything",
			headers: map[string]string{
				"CF-Connecting-IP": "203.0.113.7",
				"X-Real-IP":        "198.51.100.2",
				"X-Forwarded-For":  "192.0.2.1, 10.0.0.1",
			},
			remote: "10.0.0.1:54321",
			want:   "203.0.113.7",
		},
		{
			name: "x-real-ip wins over forwarded-for",
			headers: map[string]string{
				"X-Real-IP":       "198.51.100.2",
				"X-Forwarded-For": "192.0.2.1, 10.0.0.1",
			},
			remote: "10.0.0.1:54321",
			want:   "198.51.100.2",
		},
		{
			name:    "first hop of forwarded-for",
			headers: map[string]string{"X-Forwarded-For": "192.0.2.1, 10.0.0.1, 10.0.0.2"},
			remote:  "10.0.0.1:54321",
			want:    "192.0.2.1",
		},
		{
			name:    "forwarded-for with spaces",
			headers: map[string]string{"X-Forwarded-For": "  192.0.2.1 , 10.0.0.1"},
			remote:  "10.0.0.1:54321",
			want:    "192.0.2.1",
		},
		{
			name:   "falls back to socket address",
			remote: "172.16.0.99:41000",
			want:   "172.16.0.99",
		},
		{
			name:   "socket address without port",
			remote: "172.16.0.99",
			want:   "172.16.0.99",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/servers/detect", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
