// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

package healthcheck

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/serviciosqbit/qbitstream/internal/probe"
)

// fakeChecker counts passes and can block or fail on demand.
type fakeChecker struct {
	passes  atomic.Int64
	err     error
	blockCh chan struct{} // when non-nil, passes block until closed
	results map[string]probe.Result
}

func (f *fakeChecker) HealthCheckAll(ctx context.Context) (map[string]probe.Result, error) {
	f.passes.Add(1)
	if f.blockCh != nil {
		select {
		case <-f.blockCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.results != nil {
		return f.results, nil
	}
	return map[string]probe.Result{}, nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestScheduler_RunsImmediatelyOnStart(t *testing.T) {
	checker := &fakeChecker{results: map[string]probe.Result{
		"http://a:8096": {Success: true, LatencyMs: 10},
	}}
	s := NewScheduler(checker, Config{Interval: time.Hour, Enabled: true})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = s.Stop() }()

	// The first pass runs before the first tick.
	waitFor(t, time.Second, func() bool { return checker.passes.Load() == 1 })
}

func TestScheduler_TicksRepeatedly(t *testing.T) {
	checker := &fakeChecker{}
	s := NewScheduler(checker, Config{Interval: 20 * time.Millisecond, Enabled: true})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = s.Stop() }()

	waitFor(t, time.Second, func() bool { return checker.passes.Load() >= 3 })
}

func TestScheduler_DisabledNeverRuns(t *testing.T) {
	checker := &fakeChecker{}
	s := NewScheduler(checker, Config{Interval: 10 * time.Millisecond, Enabled: false})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := checker.passes.Load(); got != 0 {
		t.Errorf("disabled scheduler ran %d passes", got)
	}
}

func TestScheduler_SkipsOverlappingPass(t *testing.T) {
	block := make(chan struct{})
	checker := &fakeChecker{blockCh: block}
	s := NewScheduler(checker, Config{Interval: 15 * time.Millisecond, Enabled: true})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// First pass is stuck; several ticks fire while it runs. Only the
	// stuck pass should have reached the checker.
	time.Sleep(100 * time.Millisecond)
	if got := checker.passes.Load(); got != 1 {
		t.Errorf("expected 1 in-flight pass while blocked, got %d", got)
	}

	close(block)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestScheduler_PassFailureKeepsLoopAlive(t *testing.T) {
	checker := &fakeChecker{err: errors.New("registry offline")}
	s := NewScheduler(checker, Config{Interval: 15 * time.Millisecond, Enabled: true})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = s.Stop() }()

	// Failures keep coming; the loop must not die after the first one.
	waitFor(t, time.Second, func() bool { return checker.passes.Load() >= 3 })
}

func TestScheduler_DoubleStartFails(t *testing.T) {
	s := NewScheduler(&fakeChecker{}, Config{Interval: time.Hour, Enabled: true})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	defer func() { _ = s.Stop() }()

	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error on second Start()")
	}
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := NewScheduler(&fakeChecker{}, Config{Interval: time.Hour, Enabled: true})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestScheduler_ContextCancelStopsLoop(t *testing.T) {
	checker := &fakeChecker{}
	s := NewScheduler(checker, Config{Interval: 10 * time.Millisecond, Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, time.Second, func() bool { return checker.passes.Load() >= 1 })
	cancel()

	time.Sleep(50 * time.Millisecond)
	before := checker.passes.Load()
	time.Sleep(50 * time.Millisecond)
	if after := checker.passes.Load(); after != before {
		t.Errorf("loop kept running after context cancel: %d -> %d", before, after)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}
