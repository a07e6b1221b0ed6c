// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/serviciosqbit/qbitstream/internal/logging"
	"github.com/serviciosqbit/qbitstream/internal/models"
)

// ErrServerNotFound is returned when a lookup misses.
var ErrServerNotFound = errors.New("server not found")

// ServerStore persists the Jellyfin server catalog.
//
// Health writes are idempotent and last-write-wins: the on-demand detection
// path and the periodic health-check pass both overwrite the snapshot fields
// without coordination, and the more recently completed write is the one
// later reads observe. Health data is advisory, so no locking or CAS is used.
type ServerStore struct {
	db *sql.DB
}

// NewServerStore creates a server store over the shared connection.
func NewServerStore(db *DB) *ServerStore {
	return &ServerStore{db: db.Conn()}
}

const serverColumns = `id, server_id, name, url, network_cidr, priority,
	is_fallback, is_active, is_healthy, latency_ms, last_health_check`

// ListActiveServers returns all active servers ordered by ascending priority.
// Exactly this set participates in detection and scheduled health checks.
func (s *ServerStore) ListActiveServers(ctx context.Context) ([]models.Server, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE is_active ORDER BY priority ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active servers: %w", err)
	}
	defer rows.Close()

	return scanServers(rows)
}

// ListServers returns the whole catalog, active or not, for the admin surface.
func (s *ServerStore) ListServers(ctx context.Context) ([]models.Server, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+serverColumns+` FROM servers ORDER BY priority ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	defer rows.Close()

	return scanServers(rows)
}

// GetServer retrieves a server by primary key.
func (s *ServerStore) GetServer(ctx context.Context, id string) (*models.Server, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE id = ?`, id)

	server, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get server %s: %w", id, err)
	}
	return server, nil
}

// UpdateHealth overwrites a server's health snapshot. The write is
// idempotent; repeating it with different probe outcomes leaves no stale
// fields behind.
func (s *ServerStore) UpdateHealth(ctx context.Context, id string, update models.HealthUpdate) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE servers SET is_healthy = ?, latency_ms = ?, last_health_check = ? WHERE id = ?`,
		update.IsHealthy, update.LatencyMs, update.CheckedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update health for server %s: %w", id, err)
	}
	return nil
}

// UpsertServer inserts or replaces a catalog entry keyed by server_id.
// Health snapshot fields are preserved on update; only the administrative
// fields change.
func (s *ServerStore) UpsertServer(ctx context.Context, server *models.Server) error {
	if server.ID == "" {
		server.ID = uuid.New().String()
	}

	cidr := sql.NullString{}
	if c, ok := server.NetworkScope.CIDR(); ok {
		cidr = sql.NullString{String: c, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (id, server_id, name, url, network_cidr, priority, is_fallback, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (server_id) DO UPDATE SET
			name = excluded.name,
			url = excluded.url,
			network_cidr = excluded.network_cidr,
			priority = excluded.priority,
			is_fallback = excluded.is_fallback,
			is_active = excluded.is_active`,
		server.ID, server.ServerID, server.Name, server.URL, cidr,
		server.Priority, server.IsFallback, server.IsActive)
	if err != nil {
		return fmt.Errorf("failed to upsert server %s: %w", server.ServerID, err)
	}
	return nil
}

// SetActive flips the soft-delete flag for a server.
func (s *ServerStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE servers SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("failed to set active for server %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrServerNotFound
	}
	return nil
}

// SeedDefaultFleet loads the reference deployment's server catalog into an
// empty table: LAN, WISP, ISP peering, public ISP address, and the public
// HTTPS fallback. Existing entries are never overwritten.
func (s *ServerStore) SeedDefaultFleet(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM servers`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count servers: %w", err)
	}
	if count > 0 {
		return nil
	}

	fleet := []models.Server{
		{
			ServerID:     "local",
			Name:         "Red Interna",
			URL:          "http://10.10.0.112:8096",
			NetworkScope: models.CIDRScope("10.10.0.0/24"),
			Priority:     1,
			IsActive:     true,
		},
		{
			ServerID:     "wisp",
			Name:         "Red WISP (Clientes)",
			URL:          "http://172.16.0.4:8096",
			NetworkScope: models.CIDRScope("172.16.0.0/16"),
			Priority:     2,
			IsActive:     true,
		},
		{
			ServerID:     "isp",
			Name:         "Red ISP",
			URL:          "http://179.120.0.15:8096",
			NetworkScope: models.CIDRScope("179.120.0.0/24"),
			Priority:     3,
			IsActive:     true,
		},
		{
			ServerID:     "isp-public",
			Name:         "IP Pública ISP (Puerto 8081)",
			URL:          "http://189.168.20.1:8081",
			NetworkScope: models.CIDRScope("189.168.20.0/24"),
			Priority:     4,
			IsActive:     true,
		},
		{
			ServerID:     "public",
			Name:         "Dominio Público HTTPS",
			URL:          "https://stream.serviciosqbit.net",
			NetworkScope: models.Unscoped(),
			Priority:     5,
			IsFallback:   true,
			IsActive:     true,
		},
	}

	for i := range fleet {
		if err := s.UpsertServer(ctx, &fleet[i]); err != nil {
			return err
		}
		logging.Info().Str("server", fleet[i].ServerID).Msg("Seeded server")
	}

	return nil
}

// scanServers collects all rows into a slice.
func scanServers(rows *sql.Rows) ([]models.Server, error) {
	var servers []models.Server
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan server row: %w", err)
		}
		servers = append(servers, *server)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("server row iteration failed: %w", err)
	}
	return servers, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanServer(row rowScanner) (*models.Server, error) {
	var (
		server    models.Server
		cidr      sql.NullString
		latency   sql.NullInt64
		lastCheck sql.NullTime
	)

	err := row.Scan(
		&server.ID, &server.ServerID, &server.Name, &server.URL, &cidr,
		&server.Priority, &server.IsFallback, &server.IsActive,
		&server.IsHealthy, &latency, &lastCheck,
	)
	if err != nil {
		return nil, err
	}

	if cidr.Valid {
		server.NetworkScope = models.CIDRScope(cidr.String)
	}
	if latency.Valid {
		v := latency.Int64
		server.Latency = &v
	}
	if lastCheck.Valid {
		v := lastCheck.Time.UTC()
		server.LastHealthCheck = &v
	}

	return &server, nil
}
