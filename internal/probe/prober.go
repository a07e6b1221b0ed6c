// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

// Package probe measures reachability and round-trip latency of Jellyfin
// servers via their unauthenticated ping endpoint.
//
// A probe is a reachability check, not a correctness check: any HTTP
// response, including non-2xx, counts as success. Only network-level
// failures (timeout, connection refused, DNS) count as failure. Elapsed
// time is recorded either way.
package probe

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/serviciosqbit/qbitstream/internal/logging"
)

// PingPath is the well-known Jellyfin health endpoint appended to every
// server's base URL. It responds without authentication, which keeps
// unauthenticated probing safe and the latency measurement meaningful.
const PingPath = "/System/Ping"

// DefaultTimeout bounds a single probe when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Result is the outcome of probing one URL.
type Result struct {
	// Success is true when the server produced any HTTP response.
	Success bool `json:"success"`

	// LatencyMs is the elapsed wall-clock time of the attempt, measured
	// on failure as well (time until the error or timeout).
	LatencyMs int64 `json:"latencyMs"`

	// Error holds the failure message, present only when Success is false.
	Error string `json:"error,omitempty"`
}

// Prober issues bounded-timeout health probes against server URLs.
// It is safe for concurrent use.
type Prober struct {
	client  *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates a Prober with the given per-probe timeout.
// A non-positive timeout falls back to DefaultTimeout.
func New(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		client: &http.Client{
			// Transport-level bound: a hung server cannot block a probe
			// past the configured timeout.
			Timeout: timeout,
		},
		timeout: timeout,
		logger:  logging.With().Str("component", "probe").Logger(),
	}
}

// Probe issues a single GET against url's ping endpoint and measures the
// round trip. The attempt is bounded by the prober's timeout and by ctx,
// whichever expires first.
func (p *Prober) Probe(ctx context.Context, url string) Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+PingPath, nil)
	if err != nil {
		return Result{
			Success:   false,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     err.Error(),
		}
	}

	resp, err := p.client.Do(req)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		p.logger.Debug().Err(err).Str("url", url).Msg("Probe failed")
		return Result{
			Success:   false,
			LatencyMs: latency,
			Error:     err.Error(),
		}
	}
	defer resp.Body.Close()

	// Any status code means the server is reachable.
	return Result{
		Success:   true,
		LatencyMs: latency,
	}
}

// ProbeMany probes all URLs concurrently and waits for every probe to
// finish before returning. One URL's failure never cancels or delays the
// others beyond the shared timeout bound.
func (p *Prober) ProbeMany(ctx context.Context, urls []string) map[string]Result {
	results := make([]Result, len(urls))

	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			results[i] = p.Probe(ctx, url)
		}(i, url)
	}
	wg.Wait()

	out := make(map[string]Result, len(urls))
	for i, url := range urls {
		out[url] = results[i]
	}
	return out
}
