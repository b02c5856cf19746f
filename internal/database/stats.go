// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tagsight/tagsight/internal/models"
)

// Bucket boundaries are UTC calendar units everywhere: the generation side
// here and the consumption side in the aggregation engine use the same
// keys, so sparse data never shifts across chart buckets.

// GetDailyCounts returns per-day read and distinct-EPC counts for the
// window [now - days + 1, now], keyed "YYYY-MM-DD". Days without reads are
// absent from the map; zero-filling is the aggregation engine's job.
func (db *DB) GetDailyCounts(ctx context.Context, days int, now time.Time) (map[string]models.TrendPoint, error) {
	if db.conn == nil {
		return nil, ErrClosed
	}
	since := now.UTC().Truncate(24 * time.Hour).AddDate(0, 0, -(days - 1))

	rows, err := db.conn.QueryContext(ctx, `
		SELECT strftime(read_time, '%Y-%m-%d') AS bucket,
		       COUNT(*) AS reads,
		       COUNT(DISTINCT epc) AS unique_tags
		FROM tag_reads
		WHERE read_time >= ?
		GROUP BY bucket`, since)
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	points := make(map[string]models.TrendPoint)
	for rows.Next() {
		var p models.TrendPoint
		if err := rows.Scan(&p.BucketKey, &p.Reads, &p.UniqueTags); err != nil {
			return nil, fmt.Errorf("scan daily counts: %w", err)
		}
		points[p.BucketKey] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily counts: %w", err)
	}
	return points, nil
}

// GetHourlyCounts returns per-hour counts for the trailing window, keyed
// "YYYY-MM-DD HH:00".
func (db *DB) GetHourlyCounts(ctx context.Context, hours int, now time.Time) (map[string]models.TrendPoint, error) {
	if db.conn == nil {
		return nil, ErrClosed
	}
	since := now.UTC().Truncate(time.Hour).Add(-time.Duration(hours-1) * time.Hour)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT strftime(read_time, '%Y-%m-%d %H:00') AS bucket,
		       COUNT(*) AS reads,
		       COUNT(DISTINCT epc) AS unique_tags
		FROM tag_reads
		WHERE read_time >= ?
		GROUP BY bucket`, since)
	if err != nil {
		return nil, fmt.Errorf("query hourly counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	points := make(map[string]models.TrendPoint)
	for rows.Next() {
		var p models.TrendPoint
		if err := rows.Scan(&p.BucketKey, &p.Reads, &p.UniqueTags); err != nil {
			return nil, fmt.Errorf("scan hourly counts: %w", err)
		}
		points[p.BucketKey] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hourly counts: %w", err)
	}
	return points, nil
}

// GetWeeklyCounts returns per-ISO-week distinct-EPC counts for the
// trailing window, keyed "YYYY-Www" (e.g. "2026-W11").
func (db *DB) GetWeeklyCounts(ctx context.Context, weeks int, now time.Time) (map[string]models.WeeklyTrendPoint, error) {
	if db.conn == nil {
		return nil, ErrClosed
	}
	since := now.UTC().AddDate(0, 0, -7*(weeks-1))

	rows, err := db.conn.QueryContext(ctx, `
		SELECT CAST(EXTRACT(isoyear FROM read_time) AS INTEGER) AS year,
		       CAST(EXTRACT(week FROM read_time) AS INTEGER) AS week,
		       COUNT(DISTINCT epc) AS unique_tags
		FROM tag_reads
		WHERE read_time >= ?
		GROUP BY year, week`, since)
	if err != nil {
		return nil, fmt.Errorf("query weekly counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	points := make(map[string]models.WeeklyTrendPoint)
	for rows.Next() {
		var p models.WeeklyTrendPoint
		if err := rows.Scan(&p.Year, &p.Week, &p.UniqueTags); err != nil {
			return nil, fmt.Errorf("scan weekly counts: %w", err)
		}
		points[models.WeekKey(p.Year, p.Week)] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weekly counts: %w", err)
	}
	return points, nil
}

// CountDistinctEPCsSince returns the distinct tag population seen since
// the given instant, used by the "tags read today" style counters.
func (db *DB) CountDistinctEPCsSince(ctx context.Context, since time.Time) (int, error) {
	if db.conn == nil {
		return 0, ErrClosed
	}
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT epc) FROM tag_reads WHERE read_time >= ?`, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count distinct epcs: %w", err)
	}
	return count, nil
}
