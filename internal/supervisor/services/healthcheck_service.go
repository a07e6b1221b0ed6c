// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

package services

import (
	"context"
	"fmt"
)

// HealthScheduler matches the health-check scheduler's Start/Stop
// lifecycle. Satisfied by *healthcheck.Scheduler.
type HealthScheduler interface {
	Start(ctx context.Context) error
	Stop() error
}

// HealthCheckService wraps the health-check scheduler as a supervised
// service, adapting Start/Stop to suture's Serve pattern: Start begins
// the loop, the service blocks on the context, and Stop drains the
// in-flight pass on shutdown.
type HealthCheckService struct {
	scheduler HealthScheduler
	name      string
}

// NewHealthCheckService creates a health-check service wrapper.
func NewHealthCheckService(scheduler HealthScheduler) *HealthCheckService {
	return &HealthCheckService{
		scheduler: scheduler,
		name:      "healthcheck-scheduler",
	}
}

// Serve implements suture.Service.
//
// If Start fails, the error is returned immediately and suture restarts
// the service on its backoff policy.
func (s *HealthCheckService) Serve(ctx context.Context) error {
	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("health-check scheduler start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.scheduler.Stop(); err != nil {
		return fmt.Errorf("health-check scheduler stop failed: %w", err)
	}

	return ctx.Err()
}

// String implements fmt.Stringer for suture's log messages.
func (s *HealthCheckService) String() string {
	return s.name
}
