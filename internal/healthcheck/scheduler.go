// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

// Package healthcheck runs periodic background health passes over the
// server fleet.
//
// Each pass probes every active server and records reachability in the
// registry, keeping health data fresh between client detections. The loop
// integrates with the supervisor tree via the Start/Stop lifecycle.
package healthcheck

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/serviciosqbit/qbitstream/internal/logging"
	"github.com/serviciosqbit/qbitstream/internal/metrics"
	"github.com/serviciosqbit/qbitstream/internal/probe"
)

// DefaultInterval is the pass interval when none is configured.
const DefaultInterval = 15 * time.Minute

// Checker runs one full health pass over the fleet.
// Satisfied by *detection.Engine.
type Checker interface {
	HealthCheckAll(ctx context.Context) (map[string]probe.Result, error)
}

// Config holds scheduler configuration.
type Config struct {
	// Interval is how often a pass runs (default: 15 minutes).
	Interval time.Duration

	// PassTimeout bounds a single pass (default: 2 minutes).
	PassTimeout time.Duration

	// Enabled controls whether passes actually run.
	Enabled bool
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		PassTimeout: 2 * time.Minute,
		Enabled:     true,
	}
}

// Scheduler drives periodic health passes.
//
// Passes never overlap: a tick that fires while the previous pass is
// still probing is skipped and counted, so a slow fleet cannot pile up
// concurrent passes. A failed pass is logged and the loop continues.
type Scheduler struct {
	checker Checker
	logger  zerolog.Logger
	config  Config

	// Runtime state
	mu      sync.Mutex
	running bool
	inPass  bool
	passWG  sync.WaitGroup
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler creates a health-check scheduler.
func NewScheduler(checker Checker, config Config) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.PassTimeout <= 0 {
		config.PassTimeout = 2 * time.Minute
	}

	return &Scheduler{
		checker: checker,
		logger:  logging.With().Str("component", "healthcheck").Logger(),
		config:  config,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("health-check scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	if !s.config.Enabled {
		s.logger.Info().Msg("Health-check scheduler disabled")
		go func() {
			defer close(s.doneCh)
			<-s.stopCh
		}()
		return nil
	}

	s.logger.Info().
		Dur("interval", s.config.Interval).
		Msg("Starting health-check scheduler")

	go s.run(ctx)
	return nil
}

// Stop stops the scheduler loop and waits for it to complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info().Msg("Stopping health-check scheduler...")
	close(s.stopCh)
	<-s.doneCh
	s.passWG.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("Health-check scheduler stopped")
	return nil
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run immediately on start so fresh deployments have health data
	// before the first interval elapses.
	s.startPass(ctx)

	for {
		select {
		case <-ticker.C:
			s.startPass(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// startPass launches a single health pass unless one is already in
// flight. Passes run off the loop goroutine so a slow fleet can never
// stall the ticker; the overlapping tick is skipped instead.
func (s *Scheduler) startPass(ctx context.Context) {
	s.mu.Lock()
	if s.inPass {
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous health pass still running, skipping tick")
		metrics.HealthCheckSkipped.Inc()
		return
	}
	s.inPass = true
	s.mu.Unlock()

	s.passWG.Add(1)
	go s.runPass(ctx)
}

// runPass executes one health pass. Failures and panics are contained
// here so the scheduler loop keeps ticking.
func (s *Scheduler) runPass(ctx context.Context) {
	defer s.passWG.Done()
	defer func() {
		s.mu.Lock()
		s.inPass = false
		s.mu.Unlock()

		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Health pass panicked")
		}
	}()

	passCtx, cancel := context.WithTimeout(ctx, s.config.PassTimeout)
	defer cancel()

	start := time.Now()
	results, err := s.checker.HealthCheckAll(passCtx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Health pass failed")
		return
	}

	healthy := 0
	for _, r := range results {
		if r.Success {
			healthy++
		}
	}

	metrics.HealthCheckPasses.Inc()
	metrics.HealthyServers.Set(float64(healthy))

	s.logger.Info().
		Int("servers", len(results)).
		Int("healthy", healthy).
		Dur("duration", time.Since(start)).
		Msg("Health pass complete")
}
