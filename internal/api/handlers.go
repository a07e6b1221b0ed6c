// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

// Package api provides the HTTP surface: server detection, fleet
// inspection, health checks, and ad selection, all behind the standard
// response envelope.
package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/serviciosqbit/qbitstream/internal/ads"
	"github.com/serviciosqbit/qbitstream/internal/database"
	"github.com/serviciosqbit/qbitstream/internal/detection"
	"github.com/serviciosqbit/qbitstream/internal/models"
	"github.com/serviciosqbit/qbitstream/internal/netutil"
	"github.com/serviciosqbit/qbitstream/internal/probe"
)

// Detector is the detection surface the handlers depend on.
// Satisfied by *detection.Engine.
type Detector interface {
	DetectBestServer(ctx context.Context, clientIP string) (*detection.Result, error)
	HealthCheckAll(ctx context.Context) (map[string]probe.Result, error)
}

// ServerCatalog is the registry surface the handlers depend on.
// Satisfied by *database.ServerStore.
type ServerCatalog interface {
	ListActiveServers(ctx context.Context) ([]models.Server, error)
	ListServers(ctx context.Context) ([]models.Server, error)
	UpsertServer(ctx context.Context, server *models.Server) error
	SetActive(ctx context.Context, id string, active bool) error
}

// AdSelector is the ad engine surface the handlers depend on.
// Satisfied by *ads.Engine.
type AdSelector interface {
	SelectAd(ctx context.Context, adType models.AdType) (*models.Ad, error)
}

// Handler holds the API handlers and their collaborators.
type Handler struct {
	detector     Detector
	catalog      ServerCatalog
	selector     AdSelector
	midrollCount int
}

// NewHandler creates the API handler set. midrollCount is the default
// number of mid-roll slots when the client does not pass one.
func NewHandler(detector Detector, catalog ServerCatalog, selector AdSelector, midrollCount int) *Handler {
	if midrollCount <= 0 {
		midrollCount = 2
	}
	return &Handler{
		detector:     detector,
		catalog:      catalog,
		selector:     selector,
		midrollCount: midrollCount,
	}
}

// detectResponse is the wire shape of a detection decision.
type detectResponse struct {
	ServerID  string `json:"serverId"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	LatencyMs int64  `json:"latencyMs"`
	Reason    string `json:"reason"`
}

// DetectServer handles GET /api/v1/servers/detect.
//
// The client IP comes from proxy headers when present (CF-Connecting-IP,
// X-Real-IP, X-Forwarded-For) and falls back to the socket address.
func (h *Handler) DetectServer(w http.ResponseWriter, r *http.Request) {
	clientIP := netutil.ClientIP(r)

	result, err := h.detector.DetectBestServer(r.Context(), clientIP)
	if err != nil {
		if errors.Is(err, detection.ErrNoServersConfigured) {
			respondError(w, http.StatusServiceUnavailable, "NO_SERVERS",
				"no active servers configured", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "DETECTION_FAILED",
			"server detection failed", err)
		return
	}

	respondSuccess(w, http.StatusOK, detectResponse{
		ServerID:  result.Server.ServerID,
		Name:      result.Server.Name,
		URL:       result.Server.URL,
		LatencyMs: result.LatencyMs,
		Reason:    string(result.Reason),
	})
}

// Servers handles GET /api/v1/servers: the active fleet with its last
// recorded health snapshots.
func (h *Handler) Servers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.catalog.ListActiveServers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR",
			"failed to list servers", err)
		return
	}

	respondSuccess(w, http.StatusOK, servers)
}

// serverHealthEntry is one row of the bulk health-check response.
type serverHealthEntry struct {
	URL     string `json:"url"`
	Healthy bool   `json:"healthy"`
	Latency int64  `json:"latency"`
	Error   string `json:"error,omitempty"`
}

// ServersHealth handles GET /api/v1/servers/health: probe the whole
// fleet on demand and report per-server reachability.
func (h *Handler) ServersHealth(w http.ResponseWriter, r *http.Request) {
	results, err := h.detector.HealthCheckAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "HEALTH_CHECK_FAILED",
			"fleet health check failed", err)
		return
	}

	entries := make([]serverHealthEntry, 0, len(results))
	for url, result := range results {
		entries = append(entries, serverHealthEntry{
			URL:     url,
			Healthy: result.Success,
			Latency: result.LatencyMs,
			Error:   result.Error,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].URL < entries[j].URL })

	respondSuccess(w, http.StatusOK, entries)
}

// Health handles GET /api/v1/health: process liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// adResponse is the wire shape of a selected ad plus its mid-roll
// schedule when the client supplies a title duration.
type adResponse struct {
	Ad               *models.Ad `json:"ad"`
	MidrollPositions []int      `json:"midrollPositions,omitempty"`
}

// SelectAd handles GET /api/v1/ads/select?type=PRE_ROLL&duration=5400.
//
// A slot with no eligible inventory is a 204, not an error: the client
// plays without ads.
func (h *Handler) SelectAd(w http.ResponseWriter, r *http.Request) {
	adType := models.AdType(r.URL.Query().Get("type"))
	switch adType {
	case models.AdTypePreRoll, models.AdTypeMidRoll, models.AdTypePostRoll, models.AdTypeBanner:
	default:
		respondError(w, http.StatusBadRequest, "INVALID_AD_TYPE",
			"type must be one of PRE_ROLL, MID_ROLL, POST_ROLL, BANNER", nil)
		return
	}

	ad, err := h.selector.SelectAd(r.Context(), adType)
	if err != nil {
		if errors.Is(err, ads.ErrNoEligibleAds) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		respondError(w, http.StatusInternalServerError, "AD_SELECTION_FAILED",
			"ad selection failed", err)
		return
	}

	resp := adResponse{Ad: ad}
	if adType == models.AdTypeMidRoll {
		duration := getIntParam(r, "duration", 0)
		resp.MidrollPositions = ads.MidrollPositions(duration, getIntParam(r, "count", h.midrollCount))
	}

	respondSuccess(w, http.StatusOK, resp)
}

// upsertServerRequest is the admin payload for creating or updating a
// fleet entry.
type upsertServerRequest struct {
	ServerID    string `json:"serverId" validate:"required,max=64"`
	Name        string `json:"name" validate:"required,max=128"`
	URL         string `json:"url" validate:"required,url"`
	NetworkCIDR string `json:"networkCidr" validate:"omitempty,cidrv4"`
	Priority    int    `json:"priority" validate:"required,min=1,max=100"`
	IsFallback  bool   `json:"isFallback"`
	IsActive    bool   `json:"isActive"`
}

// UpsertServer handles POST /api/v1/admin/servers.
func (h *Handler) UpsertServer(w http.ResponseWriter, r *http.Request) {
	var req upsertServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY",
			"request body is not valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{
			Status:   "error",
			Metadata: models.Metadata{Timestamp: time.Now().UTC()},
			Error:    apiErr,
		})
		return
	}

	scope := models.Unscoped()
	if req.NetworkCIDR != "" {
		scope = models.CIDRScope(req.NetworkCIDR)
	}

	server := models.Server{
		ServerID:     req.ServerID,
		Name:         req.Name,
		URL:          req.URL,
		NetworkScope: scope,
		Priority:     req.Priority,
		IsFallback:   req.IsFallback,
		IsActive:     req.IsActive,
	}
	if err := h.catalog.UpsertServer(r.Context(), &server); err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR",
			"failed to store server", err)
		return
	}

	respondSuccess(w, http.StatusOK, server)
}

// setActiveRequest is the admin payload for toggling a fleet entry.
type setActiveRequest struct {
	IsActive bool `json:"isActive"`
}

// SetServerActive handles PUT /api/v1/admin/servers/{id}/active.
func (h *Handler) SetServerActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY",
			"request body is not valid JSON", err)
		return
	}

	if err := h.catalog.SetActive(r.Context(), id, req.IsActive); err != nil {
		if errors.Is(err, database.ErrServerNotFound) {
			respondError(w, http.StatusNotFound, "SERVER_NOT_FOUND",
				"no server with that id", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR",
			"failed to update server", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"id":       id,
		"isActive": req.IsActive,
	})
}

// AdminServers handles GET /api/v1/admin/servers: the full catalog,
// inactive entries included.
func (h *Handler) AdminServers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.catalog.ListServers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR",
			"failed to list servers", err)
		return
	}

	respondSuccess(w, http.StatusOK, servers)
}
