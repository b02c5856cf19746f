// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package aggregate

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tagsight/tagsight/internal/logging"
	"github.com/tagsight/tagsight/internal/metrics"
	"github.com/tagsight/tagsight/internal/models"
	"github.com/tagsight/tagsight/internal/websocket"
)

// DefaultRefreshInterval is how often the refresher recomputes dashboard
// stats when the config does not override it.
const DefaultRefreshInterval = 30 * time.Second

// StatsQuerier is the slice of the persistence layer the refresher reads.
type StatsQuerier interface {
	TotalReads(ctx context.Context) (int, error)
	GetDailyCounts(ctx context.Context, days int, now time.Time) (map[string]models.TrendPoint, error)
	CountDistinctEPCsSince(ctx context.Context, since time.Time) (int, error)
}

// StatsBroadcaster pushes a recomputed snapshot to connected viewers.
type StatsBroadcaster interface {
	BroadcastStatsUpdate(update websocket.StatsUpdate)
}

// Refresher periodically recomputes the dashboard counters and fans the
// snapshot out over the hub. It implements suture.Service.
type Refresher struct {
	db       StatsQuerier
	hub      StatsBroadcaster
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewRefresher builds a refresher. A non-positive interval falls back to
// DefaultRefreshInterval.
func NewRefresher(db StatsQuerier, hub StatsBroadcaster, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		db:       db,
		hub:      hub,
		interval: interval,
		log:      logging.With().Str("component", "aggregate").Logger(),
		now:      time.Now,
	}
}

// Serve runs the refresh loop until ctx is cancelled. An immediate refresh
// fires on startup so dashboards are populated before the first tick.
func (r *Refresher) Serve(ctx context.Context) error {
	r.log.Info().Dur("interval", r.interval).Msg("Stats refresher started")

	if err := r.Refresh(ctx); err != nil {
		r.log.Warn().Err(err).Msg("Initial stats refresh failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Stats refresher stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.log.Warn().Err(err).Msg("Stats refresh failed")
			}
		}
	}
}

// Refresh recomputes the snapshot once and broadcasts it. Query failures
// abort the cycle without touching viewers; the previous snapshot stands.
func (r *Refresher) Refresh(ctx context.Context) error {
	start := r.now()
	defer func() {
		metrics.AggregateRefreshDuration.Observe(time.Since(start).Seconds())
	}()

	now := start.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	total, err := r.db.TotalReads(ctx)
	if err != nil {
		return err
	}
	uniqueToday, err := r.db.CountDistinctEPCsSince(ctx, midnight)
	if err != nil {
		return err
	}
	daily, err := r.db.GetDailyCounts(ctx, 2, now)
	if err != nil {
		return err
	}

	today := daily[now.Format("2006-01-02")]
	yesterday := daily[now.AddDate(0, 0, -1).Format("2006-01-02")]

	r.hub.BroadcastStatsUpdate(websocket.StatsUpdate{
		Timestamp:    now.Format(time.RFC3339),
		TotalReads:   total,
		UniqueToday:  uniqueToday,
		ReadsToday:   today.Reads,
		TrendPercent: TrendChange(float64(yesterday.Reads), float64(today.Reads)),
	})
	return nil
}
