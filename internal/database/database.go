// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

// Package database provides DuckDB-backed persistence for the server
// catalog and the ad inventory.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/serviciosqbit/qbitstream/internal/config"
	"github.com/serviciosqbit/qbitstream/internal/logging"
)

// DB wraps the DuckDB connection shared by the stores.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New opens the DuckDB database and initializes the schema.
func New(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure the parent directory exists for file-backed databases.
	// Use 0750 permissions (owner: rwx, group: rx, other: none) per gosec G301.
	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	dsn := cfg.Path
	params := url.Values{}
	params.Set("threads", strconv.Itoa(numThreads))
	if cfg.MaxMemory != "" {
		params.Set("max_memory", cfg.MaxMemory)
	}
	if cfg.Path != ":memory:" {
		dsn = cfg.Path + "?" + params.Encode()
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Path, err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}

	if err := db.initSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", numThreads).
		Msg("Database opened")

	return db, nil
}

// Conn exposes the underlying connection for the stores.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the application tables.
func (db *DB) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS servers (
			id VARCHAR PRIMARY KEY,
			server_id VARCHAR NOT NULL UNIQUE,
			name VARCHAR NOT NULL,
			url VARCHAR NOT NULL,
			network_cidr VARCHAR,
			priority INTEGER NOT NULL,
			is_fallback BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_healthy BOOLEAN NOT NULL DEFAULT FALSE,
			latency_ms BIGINT,
			last_health_check TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS ads (
			id VARCHAR PRIMARY KEY,
			title VARCHAR NOT NULL,
			type VARCHAR NOT NULL,
			duration INTEGER NOT NULL,
			url VARCHAR NOT NULL DEFAULT '',
			skip_after INTEGER,
			weight INTEGER NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			start_date TIMESTAMP,
			end_date TIMESTAMP,
			impressions BIGINT NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	return nil
}
