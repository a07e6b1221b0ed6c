// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestProbe_AnyStatusIsSuccess(t *testing.T) {
	statuses := []int{200, 204, 401, 404, 500, 503}

	for _, status := range statuses {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != PingPath {
				t.Errorf("expected probe path %s, got %s", PingPath, r.URL.Path)
			}
			w.WriteHeader(status)
		}))

		p := New(time.Second)
		result := p.Probe(context.Background(), srv.URL)
		srv.Close()

		if !result.Success {
			t.Errorf("status %d: expected success, got error %q", status, result.Error)
		}
		if result.Error != "" {
			t.Errorf("status %d: expected empty error, got %q", status, result.Error)
		}
		if result.LatencyMs < 0 {
			t.Errorf("status %d: negative latency %d", status, result.LatencyMs)
		}
	}
}

func TestProbe_ConnectionRefused(t *testing.T) {
	// Reserve a port, then close it so the connection is refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := New(time.Second)
	result := p.Probe(context.Background(), url)

	if result.Success {
		t.Fatal("expected failure for closed server")
	}
	if result.Error == "" {
		t.Error("expected error message on failure")
	}
}

func TestProbe_TimeoutEnforced(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	p := New(100 * time.Millisecond)

	start := time.Now()
	result := p.Probe(context.Background(), srv.URL)
	elapsed := time.Since(start)

	if result.Success {
		t.Fatal("expected timeout failure")
	}
	if elapsed > 2*time.Second {
		t.Errorf("probe was not bounded by timeout, took %v", elapsed)
	}
	// Latency is recorded even on failure.
	if result.LatencyMs <= 0 {
		t.Errorf("expected positive latency on timeout, got %d", result.LatencyMs)
	}
}

func TestProbe_InvalidURL(t *testing.T) {
	p := New(time.Second)
	result := p.Probe(context.Background(), "http://127.0.0.1:0\x7f")

	if result.Success {
		t.Fatal("expected failure for invalid URL")
	}
}

func TestProbeMany_AllComplete(t *testing.T) {
	var hits atomic.Int64
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	p := New(500 * time.Millisecond)
	results := p.ProbeMany(context.Background(), []string{healthy.URL, deadURL})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[healthy.URL].Success {
		t.Errorf("healthy server reported unreachable: %q", results[healthy.URL].Error)
	}
	if results[deadURL].Success {
		t.Error("dead server reported reachable")
	}
	if hits.Load() != 1 {
		t.Errorf("expected exactly one probe against healthy server, got %d", hits.Load())
	}
}

func TestProbeMany_FailureDoesNotCancelOthers(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	p := New(time.Second)
	results := p.ProbeMany(context.Background(), []string{deadURL, slow.URL})

	if !results[slow.URL].Success {
		t.Error("slow server should still have been probed to completion")
	}
}

func TestProbeMany_Empty(t *testing.T) {
	p := New(time.Second)
	results := p.ProbeMany(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected empty result map, got %d entries", len(results))
	}
}

func TestNew_DefaultTimeout(t *testing.T) {
	p := New(0)
	if p.timeout != DefaultTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultTimeout, p.timeout)
	}
}
