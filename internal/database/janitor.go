// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tagsight/tagsight/internal/logging"
	"github.com/tagsight/tagsight/internal/metrics"
)

// RetentionSource surfaces the retention horizon. Satisfied by
// cache.Settings.
type RetentionSource interface {
	RetentionDays(ctx context.Context) int
}

// reaper is the subset of DB the janitor uses; split out so tests can
// substitute a fake.
type reaper interface {
	DeleteReadsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor removes reads older than the retention horizon. It implements
// suture.Service and runs in the data layer of the supervision tree.
type Janitor struct {
	db       reaper
	settings RetentionSource
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewJanitor builds a janitor sweeping once per interval. A non-positive
// interval means daily.
func NewJanitor(db reaper, settings RetentionSource, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Janitor{
		db:       db,
		settings: settings,
		interval: interval,
		log:      logging.With().Str("component", "janitor").Logger(),
		now:      time.Now,
	}
}

// Serve sweeps immediately, then once per interval, until ctx is
// cancelled.
func (j *Janitor) Serve(ctx context.Context) error {
	j.log.Info().Dur("interval", j.interval).Msg("Retention janitor started")

	if err := j.Sweep(ctx); err != nil {
		j.log.Warn().Err(err).Msg("Initial retention sweep failed")
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("Retention janitor stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := j.Sweep(ctx); err != nil {
				j.log.Warn().Err(err).Msg("Retention sweep failed")
			}
		}
	}
}

// Sweep deletes everything older than the current retention horizon.
func (j *Janitor) Sweep(ctx context.Context) error {
	days := j.settings.RetentionDays(ctx)
	cutoff := j.now().UTC().AddDate(0, 0, -days)

	deleted, err := j.db.DeleteReadsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		metrics.RetentionReadsDeleted.Add(float64(deleted))
		j.log.Info().
			Int64("deleted", deleted).
			Int("retention_days", days).
			Time("cutoff", cutoff).
			Msg("Expired reads removed")
	}
	return nil
}
