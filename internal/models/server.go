// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

// Package models defines the persisted entities shared across QBitStream
// components: the Jellyfin server catalog and the ad inventory.
package models

import (
	"time"

	"github.com/goccy/go-json"
)

// NetworkScope describes a server's network affinity. A server is either
// unscoped (never selected by network match, only by fallback or default)
// or scoped to one IPv4 CIDR range.
//
// The zero value is unscoped.
type NetworkScope struct {
	cidr string
}

// Unscoped returns a scope with no network affinity.
func Unscoped() NetworkScope {
	return NetworkScope{}
}

// CIDRScope returns a scope bound to the given CIDR range.
// An empty string yields an unscoped value.
func CIDRScope(cidr string) NetworkScope {
	return NetworkScope{cidr: cidr}
}

// CIDR returns the CIDR range and whether the scope is bound to one.
func (s NetworkScope) CIDR() (string, bool) {
	return s.cidr, s.cidr != ""
}

// IsScoped reports whether the scope carries a network affinity.
func (s NetworkScope) IsScoped() bool {
	return s.cidr != ""
}

// MarshalJSON encodes the scope as the CIDR string, or null when unscoped.
func (s NetworkScope) MarshalJSON() ([]byte, error) {
	if s.cidr == "" {
		return []byte("null"), nil
	}
	return json.Marshal(s.cidr)
}

// UnmarshalJSON decodes a CIDR string or null.
func (s *NetworkScope) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		s.cidr = ""
		return nil
	}
	return json.Unmarshal(data, &s.cidr)
}

// Server is one Jellyfin instance in the fleet catalog.
//
// The catalog is provisioned by the seed/admin flows; the detection engine
// and the health-check scheduler only ever update the health snapshot fields
// (IsHealthy, Latency, LastHealthCheck). Those fields are advisory
// last-write-wins data, never a guarantee at read time.
type Server struct {
	// ID is the stable storage key.
	ID string `json:"id"`

	// ServerID is the human-chosen short code, unique per fleet
	// (e.g. "local", "wisp", "isp", "public").
	ServerID string `json:"serverId"`

	// Name is the display label.
	Name string `json:"name"`

	// URL is the base endpoint (scheme+host+port) of the Jellyfin instance.
	URL string `json:"url"`

	// NetworkScope is the server's network affinity. Unscoped servers are
	// only ever selected through the fallback or default paths.
	NetworkScope NetworkScope `json:"networkCidr"`

	// Priority ranks servers, lower = preferred. Used for tie-breaks and
	// fallback ordering.
	Priority int `json:"priority"`

	// IsFallback marks the network-agnostic fallback. If several servers are
	// flagged, the first in priority order wins.
	IsFallback bool `json:"isFallback"`

	// IsActive is the soft-delete flag; inactive servers are excluded from
	// detection and scheduled health checks.
	IsActive bool `json:"isActive"`

	// IsHealthy is the last-known-good flag from the most recent probe.
	IsHealthy bool `json:"isHealthy"`

	// Latency is the last measured round-trip time in milliseconds.
	// Nil until the first probe.
	Latency *int64 `json:"latency"`

	// LastHealthCheck is the timestamp of the last probe write-back.
	// Nil until the first probe.
	LastHealthCheck *time.Time `json:"lastHealthCheck"`
}

// HealthUpdate is a health snapshot write-back for one server.
type HealthUpdate struct {
	IsHealthy bool
	LatencyMs int64
	CheckedAt time.Time
}
