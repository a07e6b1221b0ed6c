// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

// Package detection selects the best Jellyfin server for a client.
//
// Given the client's IP, the engine filters the active fleet by network
// affinity (CIDR containment), races latency probes across the matching
// candidates, and returns a single decision with a reason label. When no
// server matches the client's network it cascades to the designated
// fallback server, then to the highest-priority server, so callers always
// receive a usable decision. The only fatal condition is an empty fleet.
package detection

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/serviciosqbit/qbitstream/internal/logging"
	"github.com/serviciosqbit/qbitstream/internal/metrics"
	"github.com/serviciosqbit/qbitstream/internal/models"
	"github.com/serviciosqbit/qbitstream/internal/netutil"
	"github.com/serviciosqbit/qbitstream/internal/probe"
)

// ErrNoServersConfigured is returned when the active fleet is empty.
// This indicates missing administrative setup and is not retryable.
var ErrNoServersConfigured = errors.New("no active servers configured")

// DefaultLatencyThreshold separates an "optimal" selection from a merely
// "available" one. The label is informational: it never changes which
// server wins.
const DefaultLatencyThreshold = 100 * time.Millisecond

// Reason explains why a server was chosen.
type Reason string

const (
	// ReasonOptimal: network-matched, probed, and under the latency threshold.
	ReasonOptimal Reason = "optimal"

	// ReasonAvailable: network-matched and probed, but slower than the
	// threshold (or every probe failed and the first match was kept).
	ReasonAvailable Reason = "available"

	// ReasonFallback: no network match; the designated fallback was used.
	ReasonFallback Reason = "fallback"

	// ReasonDefaultServer: no network match and no fallback configured; the
	// highest-priority server was used as a last resort.
	ReasonDefaultServer Reason = "default_server"
)

// Result is the outcome of one detection.
type Result struct {
	// Server is the chosen Jellyfin instance.
	Server models.Server `json:"server"`

	// LatencyMs is the measured latency for this decision. Zero when no
	// probing occurred (fallback and default paths).
	LatencyMs int64 `json:"latencyMs"`

	// Reason labels the selection path for observability.
	Reason Reason `json:"reason"`
}

// Registry is the catalog surface the engine depends on.
// Satisfied by *database.ServerStore.
type Registry interface {
	ListActiveServers(ctx context.Context) ([]models.Server, error)
	UpdateHealth(ctx context.Context, id string, update models.HealthUpdate) error
}

// Prober races health probes across candidate URLs.
// Satisfied by *probe.Prober.
type Prober interface {
	ProbeMany(ctx context.Context, urls []string) map[string]probe.Result
}

// Engine orchestrates the matcher, prober, and registry into one decision
// per request. Construct it with explicit collaborators so tests can
// substitute doubles for both the registry and the prober.
type Engine struct {
	registry  Registry
	prober    Prober
	threshold time.Duration
	logger    zerolog.Logger
}

// NewEngine creates a detection engine. A non-positive threshold falls back
// to DefaultLatencyThreshold.
func NewEngine(registry Registry, prober Prober, threshold time.Duration) *Engine {
	if threshold <= 0 {
		threshold = DefaultLatencyThreshold
	}
	return &Engine{
		registry:  registry,
		prober:    prober,
		threshold: threshold,
		logger:    logging.With().Str("component", "detection").Logger(),
	}
}

// DetectBestServer picks the lowest-latency reachable server for the client.
//
// The cascade:
//  1. Empty active fleet: ErrNoServersConfigured.
//  2. No CIDR match: the designated fallback server, else the
//     highest-priority server. Neither path probes; the fallback is a
//     policy choice, not a latency-optimal one.
//  3. CIDR matches: probe all matching servers concurrently and keep the
//     fastest success; ties go to the earlier (higher-priority) candidate.
//     If every probe fails, keep the first match anyway so a transient
//     outage never turns into a client-facing error.
//
// Only the probed branch writes health back to the registry, and that write
// is best-effort: a storage failure is logged, never propagated, because
// the decision is already made from in-memory probe data.
func (e *Engine) DetectBestServer(ctx context.Context, clientIP string) (*Result, error) {
	start := time.Now()

	e.logger.Info().Str("client_ip", clientIP).Msg("Detecting best server")

	servers, err := e.registry.ListActiveServers(ctx)
	if err != nil {
		metrics.RecordDetection("error", time.Since(start))
		return nil, err
	}
	if len(servers) == 0 {
		metrics.RecordDetection("error", time.Since(start))
		return nil, ErrNoServersConfigured
	}

	// Partition by network affinity, preserving priority order. Unscoped
	// servers are never matched; they participate only through fallback.
	var matching []models.Server
	for _, server := range servers {
		cidr, ok := server.NetworkScope.CIDR()
		if !ok {
			continue
		}
		if netutil.IsIPInCIDR(clientIP, cidr) {
			matching = append(matching, server)
		}
	}

	e.logger.Debug().
		Str("client_ip", clientIP).
		Int("matching", len(matching)).
		Msg("Network partition computed")

	if len(matching) == 0 {
		result := e.selectWithoutMatch(servers)
		metrics.RecordDetection(string(result.Reason), time.Since(start))
		return result, nil
	}

	result := e.selectByLatency(ctx, matching)
	metrics.RecordDetection(string(result.Reason), time.Since(start))
	return result, nil
}

// selectWithoutMatch handles the no-network-match branch: the designated
// fallback if one exists, otherwise the highest-priority server.
func (e *Engine) selectWithoutMatch(servers []models.Server) *Result {
	for _, server := range servers {
		if server.IsFallback {
			e.logger.Info().Str("server", server.ServerID).Msg("Using fallback server")
			return &Result{Server: server, LatencyMs: 0, Reason: ReasonFallback}
		}
	}

	e.logger.Info().
		Str("server", servers[0].ServerID).
		Msg("No fallback configured, using default server")
	return &Result{Server: servers[0], LatencyMs: 0, Reason: ReasonDefaultServer}
}

// selectByLatency probes the matching servers and keeps the fastest
// success. Strict less-than comparison makes priority order the tie-break.
func (e *Engine) selectByLatency(ctx context.Context, matching []models.Server) *Result {
	urls := make([]string, len(matching))
	for i, server := range matching {
		urls[i] = server.URL
	}

	results := e.prober.ProbeMany(ctx, urls)
	for url, r := range results {
		metrics.RecordProbe(url, r.LatencyMs, r.Success)
	}

	var best *models.Server
	lowest := int64(0)
	for i := range matching {
		r, ok := results[matching[i].URL]
		if !ok || !r.Success {
			continue
		}
		if best == nil || r.LatencyMs < lowest {
			best = &matching[i]
			lowest = r.LatencyMs
		}
	}

	if best == nil {
		e.logger.Warn().Msg("All probes failed, using highest priority matching server")
		return &Result{Server: matching[0], LatencyMs: 0, Reason: ReasonAvailable}
	}

	healthy := lowest < e.threshold.Milliseconds()
	e.writeHealth(ctx, best.ID, models.HealthUpdate{
		IsHealthy: healthy,
		LatencyMs: lowest,
		CheckedAt: time.Now().UTC(),
	})

	reason := ReasonAvailable
	if healthy {
		reason = ReasonOptimal
	}

	e.logger.Info().
		Str("server", best.ServerID).
		Int64("latency_ms", lowest).
		Str("reason", string(reason)).
		Msg("Selected server")

	return &Result{Server: *best, LatencyMs: lowest, Reason: reason}
}

// HealthCheckAll probes every active server and writes raw reachability
// back into the registry. Unlike the on-demand path, isHealthy here is the
// probe's success flag, not the latency threshold: the scheduler reports
// "reachable", detection reports "fast enough to be optimal".
func (e *Engine) HealthCheckAll(ctx context.Context) (map[string]probe.Result, error) {
	servers, err := e.registry.ListActiveServers(ctx)
	if err != nil {
		return nil, err
	}

	urls := make([]string, len(servers))
	for i, server := range servers {
		urls[i] = server.URL
	}

	results := e.prober.ProbeMany(ctx, urls)

	now := time.Now().UTC()
	for _, server := range servers {
		r, ok := results[server.URL]
		if !ok {
			continue
		}
		metrics.RecordProbe(server.URL, r.LatencyMs, r.Success)
		e.writeHealth(ctx, server.ID, models.HealthUpdate{
			IsHealthy: r.Success,
			LatencyMs: r.LatencyMs,
			CheckedAt: now,
		})
	}

	return results, nil
}

// writeHealth performs a best-effort health write-back.
func (e *Engine) writeHealth(ctx context.Context, id string, update models.HealthUpdate) {
	if err := e.registry.UpdateHealth(ctx, id, update); err != nil {
		e.logger.Error().Err(err).Str("server_id", id).Msg("Health write-back failed")
	}
}
