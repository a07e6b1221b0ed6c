// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

// Package ads selects creatives for ad-supported playback tiers.
//
// Selection is a weighted-random draw over the eligible inventory for a
// slot type, and mid-roll scheduling spaces insertion points evenly
// through titles long enough to carry them.
package ads

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/serviciosqbit/qbitstream/internal/logging"
	"github.com/serviciosqbit/qbitstream/internal/metrics"
	"github.com/serviciosqbit/qbitstream/internal/models"
)

// ErrNoEligibleAds is returned when the inventory has no active ad for
// the requested slot. Callers should treat it as "play without ads".
var ErrNoEligibleAds = errors.New("no eligible ads for slot")

// MinMidrollDuration is the shortest title that gets mid-roll slots.
// Shorter titles play uninterrupted.
const MinMidrollDuration = 600

// Inventory is the storage surface the engine draws from.
// Satisfied by *database.AdStore.
type Inventory interface {
	ListEligibleAds(ctx context.Context, adType models.AdType) ([]models.Ad, error)
	IncrementImpressions(ctx context.Context, id string) error
}

// Engine performs ad selection and mid-roll scheduling.
type Engine struct {
	inventory Inventory
	rng       *rand.Rand
	logger    zerolog.Logger
}

// NewEngine creates an ad engine seeded from the clock.
func NewEngine(inventory Inventory) *Engine {
	return newEngine(inventory, rand.New(rand.NewSource(time.Now().UnixNano()))) //nolint:gosec // math/rand is fine for ad rotation
}

func newEngine(inventory Inventory, rng *rand.Rand) *Engine {
	return &Engine{
		inventory: inventory,
		rng:       rng,
		logger:    logging.With().Str("component", "ads").Logger(),
	}
}

// SelectAd draws one ad for the given slot, biased by weight.
//
// The draw is a single pass: a random point in [0, totalWeight) is
// walked down the inventory until a creative covers it. Ads with a
// non-positive weight still get a minimum weight of one so they are
// never starved entirely. The impression counter update is best-effort;
// a storage failure never blocks playback.
func (e *Engine) SelectAd(ctx context.Context, adType models.AdType) (*models.Ad, error) {
	eligible, err := e.inventory.ListEligibleAds(ctx, adType)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, ErrNoEligibleAds
	}

	total := 0
	for _, ad := range eligible {
		total += weightOf(&ad)
	}

	chosen := &eligible[len(eligible)-1]
	point := e.rng.Intn(total)
	for i := range eligible {
		point -= weightOf(&eligible[i])
		if point < 0 {
			chosen = &eligible[i]
			break
		}
	}

	metrics.AdSelections.WithLabelValues(string(adType)).Inc()
	if err := e.inventory.IncrementImpressions(ctx, chosen.ID); err != nil {
		e.logger.Error().Err(err).Str("ad_id", chosen.ID).Msg("Impression update failed")
	}

	e.logger.Debug().
		Str("ad_id", chosen.ID).
		Str("type", string(adType)).
		Msg("Selected ad")

	return chosen, nil
}

// MidrollPositions returns the insertion offsets, in seconds, for a
// title of the given duration. Titles under MinMidrollDuration get
// none; otherwise count slots are spaced evenly so no break lands at
// the very start or end.
func MidrollPositions(durationSeconds, count int) []int {
	if durationSeconds < MinMidrollDuration || count <= 0 {
		return nil
	}

	positions := make([]int, 0, count)
	interval := durationSeconds / (count + 1)
	for i := 1; i <= count; i++ {
		positions = append(positions, interval*i)
	}
	return positions
}

func weightOf(ad *models.Ad) int {
	if ad.Weight < 1 {
		return 1
	}
	return ad.Weight
}
