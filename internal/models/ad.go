// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

package models

import "time"

// AdType is the playback slot an ad can fill.
type AdType string

const (
	AdTypePreRoll  AdType = "PRE_ROLL"
	AdTypeMidRoll  AdType = "MID_ROLL"
	AdTypePostRoll AdType = "POST_ROLL"
	AdTypeBanner   AdType = "BANNER"
)

// Ad is one creative in the ad inventory used by ad-supported playback tiers.
type Ad struct {
	// ID is the stable storage key.
	ID string `json:"id"`

	// Title is the internal display name.
	Title string `json:"title"`

	// Type is the playback slot this ad fills.
	Type AdType `json:"type"`

	// Duration is the creative length in seconds.
	Duration int `json:"duration"`

	// URL points at the creative asset.
	URL string `json:"url"`

	// SkipAfter is the number of seconds after which the client may offer a
	// skip button. Nil means not skippable.
	SkipAfter *int `json:"skipAfter"`

	// Weight biases the weighted-random draw. Higher weight, more impressions.
	Weight int `json:"weight"`

	// IsActive excludes the ad from selection when false.
	IsActive bool `json:"isActive"`

	// StartDate/EndDate bound the campaign window. Nil means unbounded on
	// that side.
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`

	// Impressions counts selections served.
	Impressions int64 `json:"impressions"`
}

// EligibleAt reports whether the ad may be served at the given instant:
// active and inside its campaign window.
func (a *Ad) EligibleAt(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	if a.StartDate != nil && now.Before(*a.StartDate) {
		return false
	}
	if a.EndDate != nil && now.After(*a.EndDate) {
		return false
	}
	return true
}
