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

	"github.com/serviciosqbit/qbitstream/internal/models"
)

// ErrAdNotFound is returned when an ad lookup misses.
var ErrAdNotFound = errors.New("ad not found")

// AdStore persists the ad inventory.
type AdStore struct {
	db *sql.DB
}

// NewAdStore creates an ad store over the shared connection.
func NewAdStore(db *DB) *AdStore {
	return &AdStore{db: db.Conn()}
}

const adColumns = `id, title, type, duration, url, skip_after, weight,
	is_active, start_date, end_date, impressions`

// ListEligibleAds returns active ads of the given type whose campaign window
// contains now. Eligibility mirrors models.Ad.EligibleAt.
func (s *AdStore) ListEligibleAds(ctx context.Context, adType models.AdType) ([]models.Ad, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+adColumns+` FROM ads
		WHERE type = ? AND is_active
			AND (start_date IS NULL OR start_date <= CURRENT_TIMESTAMP)
			AND (end_date IS NULL OR end_date >= CURRENT_TIMESTAMP)
		ORDER BY id`, string(adType))
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible ads: %w", err)
	}
	defer rows.Close()

	return scanAds(rows)
}

// GetAd retrieves an ad by primary key.
func (s *AdStore) GetAd(ctx context.Context, id string) (*models.Ad, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+adColumns+` FROM ads WHERE id = ?`, id)

	ad, err := scanAd(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAdNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ad %s: %w", id, err)
	}
	return ad, nil
}

// CreateAd inserts a new ad.
func (s *AdStore) CreateAd(ctx context.Context, ad *models.Ad) error {
	if ad.ID == "" {
		ad.ID = uuid.New().String()
	}
	if ad.Weight <= 0 {
		ad.Weight = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ads (id, title, type, duration, url, skip_after, weight, is_active, start_date, end_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ad.ID, ad.Title, string(ad.Type), ad.Duration, ad.URL,
		ad.SkipAfter, ad.Weight, ad.IsActive, ad.StartDate, ad.EndDate)
	if err != nil {
		return fmt.Errorf("failed to create ad %s: %w", ad.Title, err)
	}
	return nil
}

// IncrementImpressions bumps the served counter after a selection.
func (s *AdStore) IncrementImpressions(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ads SET impressions = impressions + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment impressions for ad %s: %w", id, err)
	}
	return nil
}

func scanAds(rows *sql.Rows) ([]models.Ad, error) {
	var ads []models.Ad
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ad row: %w", err)
		}
		ads = append(ads, *ad)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ad row iteration failed: %w", err)
	}
	return ads, nil
}

func scanAd(row rowScanner) (*models.Ad, error) {
	var (
		ad        models.Ad
		adType    string
		skipAfter sql.NullInt64
		start     sql.NullTime
		end       sql.NullTime
	)

	err := row.Scan(
		&ad.ID, &ad.Title, &adType, &ad.Duration, &ad.URL, &skipAfter,
		&ad.Weight, &ad.IsActive, &start, &end, &ad.Impressions,
	)
	if err != nil {
		return nil, err
	}

	ad.Type = models.AdType(adType)
	if skipAfter.Valid {
		v := int(skipAfter.Int64)
		ad.SkipAfter = &v
	}
	if start.Valid {
		v := start.Time.UTC()
		ad.StartDate = &v
	}
	if end.Valid {
		v := end.Time.UTC()
		ad.EndDate = &v
	}

	return &ad, nil
}
