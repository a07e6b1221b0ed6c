// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Detection.PingTimeout != 5*time.Second {
		t.Errorf("expected default ping timeout 5s, got %v", cfg.Detection.PingTimeout)
	}
	if cfg.Detection.LatencyThreshold != 100*time.Millisecond {
		t.Errorf("expected default latency threshold 100ms, got %v", cfg.Detection.LatencyThreshold)
	}
	if cfg.Detection.HealthCheckInterval != 15*time.Minute {
		t.Errorf("expected default health-check interval 15m, got %v", cfg.Detection.HealthCheckInterval)
	}
	if !cfg.Detection.HealthCheckEnabled {
		t.Error("expected health checks enabled by default")
	}
	if cfg.Ads.MidrollCount != 2 {
		t.Errorf("expected default midroll count 2, got %d", cfg.Ads.MidrollCount)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DETECTION_PING_TIMEOUT", "2s")
	t.Setenv("DETECTION_HEALTH_CHECK_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090 from env, got %d", cfg.Server.Port)
	}
	if cfg.Detection.PingTimeout != 2*time.Second {
		t.Errorf("expected ping timeout 2s from env, got %v", cfg.Detection.PingTimeout)
	}
	if cfg.Detection.HealthCheckEnabled {
		t.Error("expected health checks disabled from env")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug from env, got %s", cfg.Logging.Level)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 3000\ndatabase:\n  path: /tmp/test.duckdb\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("expected port 3000 from file, got %d", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/test.duckdb" {
		t.Errorf("expected database path from file, got %s", cfg.Database.Path)
	}
	// Untouched fields keep defaults.
	if cfg.Detection.PingTimeout != 5*time.Second {
		t.Errorf("expected default ping timeout, got %v", cfg.Detection.PingTimeout)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 3000\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("SERVER_PORT", "4000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("env should beat file: expected 4000, got %d", cfg.Server.Port)
	}
}

func TestLoad_CORSOriginsFromEnv(t *testing.T) {
	t.Setenv("SECURITY_CORS_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Security.CORSOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.Security.CORSOrigins)
	}
	if cfg.Security.CORSOrigins[0] != "https://app.example.com" {
		t.Errorf("unexpected first origin %q", cfg.Security.CORSOrigins[0])
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, true},
		{"zero ping timeout", func(c *Config) { c.Detection.PingTimeout = 0 }, true},
		{"zero latency threshold", func(c *Config) { c.Detection.LatencyThreshold = 0 }, true},
		{"sub-second health interval", func(c *Config) { c.Detection.HealthCheckInterval = 500 * time.Millisecond }, true},
		{
			"sub-second interval fine when scheduler disabled",
			func(c *Config) {
				c.Detection.HealthCheckEnabled = false
				c.Detection.HealthCheckInterval = 500 * time.Millisecond
			},
			false,
		},
		{"negative midroll count", func(c *Config) { c.Ads.MidrollCount = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SERVER_PORT", "server.port"},
		{"DATABASE_MAX_MEMORY", "database.max_memory"},
		{"DETECTION_HEALTH_CHECK_INTERVAL", "detection.health_check_interval"},
		{"LOG_LEVEL", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
		{"SERVERS_IGNORED", ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
