// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package api

import (
	"context"
	"net/http"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/tagsight/tagsight/internal/aggregate"
	"github.com/tagsight/tagsight/internal/logging"
	"github.com/tagsight/tagsight/internal/models"
	"github.com/tagsight/tagsight/internal/websocket"
)

// maxUniqueScan bounds how many reads the unique-tags view collapses in
// one request.
const maxUniqueScan = 10000

// Store is the persistence surface the handlers read. Satisfied by
// database.DB.
type Store interface {
	Ping(ctx context.Context) error
	GetRecentReads(ctx context.Context, limit int) ([]models.TagRead, error)
	GetReadsSince(ctx context.Context, since time.Time, limit int) ([]models.TagRead, error)
	GetDailyCounts(ctx context.Context, days int, now time.Time) (map[string]models.TrendPoint, error)
	GetHourlyCounts(ctx context.Context, hours int, now time.Time) (map[string]models.TrendPoint, error)
	GetWeeklyCounts(ctx context.Context, weeks int, now time.Time) (map[string]models.WeeklyTrendPoint, error)
	TotalReads(ctx context.Context) (int, error)
}

// BrokerStatus reports the current broker session state. Satisfied by
// broker.Manager.
type BrokerStatus interface {
	Status() models.StatusEvent
}

// SettingsSource surfaces the runtime-tunable values the handlers use.
// Satisfied by cache.Settings.
type SettingsSource interface {
	DedupeWindow(ctx context.Context) time.Duration
}

// Handler implements the REST and WebSocket endpoints.
type Handler struct {
	db       Store
	hub      *websocket.Hub
	broker   BrokerStatus
	settings SettingsSource
	cfg      RouterConfig
	upgrader gorilla.Upgrader
	now      func() time.Time
}

// NewHandler builds the endpoint handler.
func NewHandler(db Store, hub *websocket.Hub, broker BrokerStatus, settings SettingsSource) *Handler {
	return &Handler{
		db:       db,
		hub:      hub,
		broker:   broker,
		settings: settings,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The REST surface carries no credentials; the same-origin
			// check adds nothing here and breaks reverse proxies.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}
}

// Health reports basic process liveness plus the total read count.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	total, err := h.db.TotalReads(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "DATABASE_ERROR", "database unavailable", err)
		return
	}
	respondData(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"total_reads": total,
		"broker":      h.broker.Status().Status,
	}, 0)
}

// HealthLive always reports success while the process can serve HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "alive"}, 0)
}

// HealthReady reports success only when the database answers and the
// broker session is established.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "database not reachable", err)
		return
	}
	status := h.broker.Status()
	if status.Status != models.StatusConnected {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY",
			"broker session is "+string(status.Status), nil)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "ready"}, 0)
}

// Status returns the current broker connection state machine position.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, h.broker.Status(), 0)
}

// RecentReads returns the newest reads, newest first.
func (h *Handler) RecentReads(w http.ResponseWriter, r *http.Request) {
	limit := getIntParam(r, "limit", 100, 1000)

	reads, err := h.db.GetRecentReads(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_FAILED", "failed to fetch reads", err)
		return
	}
	respondData(w, http.StatusOK, readsToWire(reads), len(reads))
}

// UniqueTags collapses the reads inside the dedupe window into one entry
// per distinct EPC.
func (h *Handler) UniqueTags(w http.ResponseWriter, r *http.Request) {
	window := h.settings.DedupeWindow(r.Context())
	since := h.now().UTC().Add(-window)

	reads, err := h.db.GetReadsSince(r.Context(), since, maxUniqueScan)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_FAILED", "failed to fetch reads", err)
		return
	}
	tags := aggregate.UniqueTags(reads)
	respondData(w, http.StatusOK, map[string]interface{}{
		"window_minutes": int(window.Minutes()),
		"tags":           tags,
	}, len(tags))
}

// DailyTrend returns zero-filled per-day read and unique-tag counts.
func (h *Handler) DailyTrend(w http.ResponseWriter, r *http.Request) {
	days := getIntParam(r, "days", h.cfg.DailyDays, 365)
	now := h.now().UTC()

	points, err := h.db.GetDailyCounts(r.Context(), days, now)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_FAILED", "failed to fetch trend", err)
		return
	}
	filled := aggregate.FillDaily(points, days, now)
	respondData(w, http.StatusOK, filled, len(filled))
}

// HourlyTrend returns zero-filled per-hour counts for the trailing window.
func (h *Handler) HourlyTrend(w http.ResponseWriter, r *http.Request) {
	hours := getIntParam(r, "hours", h.cfg.HourlyHours, 168)
	now := h.now().UTC()

	points, err := h.db.GetHourlyCounts(r.Context(), hours, now)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_FAILED", "failed to fetch trend", err)
		return
	}
	filled := aggregate.FillHourly(points, hours, now)
	respondData(w, http.StatusOK, filled, len(filled))
}

// WeeklyTrend returns zero-filled ISO-week unique-tag counts.
func (h *Handler) WeeklyTrend(w http.ResponseWriter, r *http.Request) {
	weeks := getIntParam(r, "weeks", h.cfg.WeeklyWeeks, 104)
	now := h.now().UTC()

	points, err := h.db.GetWeeklyCounts(r.Context(), weeks, now)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_FAILED", "failed to fetch trend", err)
		return
	}
	filled := aggregate.FillWeekly(points, weeks, now)
	respondData(w, http.StatusOK, filled, len(filled))
}

// WebSocket upgrades the connection and attaches it to the fan-out hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()

	logging.Debug().Uint64("client_id", client.ID()).Str("remote", r.RemoteAddr).Msg("Viewer attached")
}

// wireRead is a TagRead with the timestamps rendered in the wire form.
type wireRead struct {
	ID         string   `json:"id"`
	EPC        string   `json:"epc"`
	TID        string   `json:"tid,omitempty"`
	RSSI       *float64 `json:"rssi,omitempty"`
	Antenna    *int     `json:"antenna,omitempty"`
	ReaderID   string   `json:"reader_id"`
	ReaderName string   `json:"reader_name"`
	ReadTime   string   `json:"read_time"`
	IngestedAt string   `json:"ingested_at"`
}

func readsToWire(reads []models.TagRead) []wireRead {
	out := make([]wireRead, 0, len(reads))
	for _, r := range reads {
		out = append(out, wireRead{
			ID:         r.ID,
			EPC:        r.EPC,
			TID:        r.TID,
			RSSI:       r.RSSI,
			Antenna:    r.Antenna,
			ReaderID:   r.ReaderID,
			ReaderName: r.ReaderName,
			ReadTime:   r.ReadTime.UTC().Format(time.RFC3339),
			IngestedAt: r.IngestedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
