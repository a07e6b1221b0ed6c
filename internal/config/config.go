// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

// Package config holds all application configuration, loaded with Koanf v2
// in three layers (highest priority wins):
//
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml)
//  3. Environment variables (SERVER_PORT, DETECTION_PING_TIMEOUT, ...)
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration for the QBitStream backend.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Detection DetectionConfig `koanf:"detection"`
	Ads       AdsConfig       `koanf:"ads"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `koanf:"host"`

	// Port is the HTTP listen port.
	Port int `koanf:"port"`

	// Timeout bounds request read/write and graceful shutdown.
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file. ":memory:" is accepted for tests.
	Path string `koanf:"path"`

	// MaxMemory is DuckDB's memory limit (e.g. "512MB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB worker thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`

	// SeedFleet loads the default server catalog into an empty database.
	SeedFleet bool `koanf:"seed_fleet"`
}

// DetectionConfig holds server-detection and health-check settings.
type DetectionConfig struct {
	// PingTimeout bounds each individual probe.
	PingTimeout time.Duration `koanf:"ping_timeout"`

	// LatencyThreshold separates an "optimal" selection from a merely
	// "available" one. Informational only, never affects which server wins.
	LatencyThreshold time.Duration `koanf:"latency_threshold"`

	// HealthCheckInterval is the period of the background health-check pass.
	HealthCheckInterval time.Duration `koanf:"health_check_interval"`

	// HealthCheckEnabled toggles the background scheduler.
	HealthCheckEnabled bool `koanf:"health_check_enabled"`
}

// AdsConfig holds ad-insertion engine settings.
type AdsConfig struct {
	// Enabled toggles the ad endpoints.
	Enabled bool `koanf:"enabled"`

	// MidrollCount is the default number of mid-roll slots per title.
	MidrollCount int `koanf:"midroll_count"`
}

// SecurityConfig holds API hardening settings.
type SecurityConfig struct {
	// CORSOrigins lists allowed origins. Default: ["*"].
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs is the per-IP request budget per window.
	RateLimitReqs int `koanf:"rate_limit_reqs"`

	// RateLimitWindow is the rate-limit window size.
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/qbitstream.duckdb",
			MaxMemory: "512MB",
			Threads:   0,
			SeedFleet: true,
		},
		Detection: DetectionConfig{
			PingTimeout:         5 * time.Second,
			LatencyThreshold:    100 * time.Millisecond,
			HealthCheckInterval: 15 * time.Minute,
			HealthCheckEnabled:  true,
		},
		Ads: AdsConfig{
			Enabled:      true,
			MidrollCount: 2,
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for values that would break startup.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Detection.PingTimeout <= 0 {
		return fmt.Errorf("detection.ping_timeout must be positive, got %v", c.Detection.PingTimeout)
	}
	if c.Detection.LatencyThreshold <= 0 {
		return fmt.Errorf("detection.latency_threshold must be positive, got %v", c.Detection.LatencyThreshold)
	}
	if c.Detection.HealthCheckEnabled && c.Detection.HealthCheckInterval < time.Second {
		return fmt.Errorf("detection.health_check_interval must be at least 1s, got %v", c.Detection.HealthCheckInterval)
	}
	if c.Ads.MidrollCount < 0 {
		return fmt.Errorf("ads.midroll_count must not be negative, got %d", c.Ads.MidrollCount)
	}
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			continue
		}
		if _, err := url.Parse(origin); err != nil {
			return fmt.Errorf("security.cors_origins contains invalid origin %q: %w", origin, err)
		}
	}
	return nil
}
