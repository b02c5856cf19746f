// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

// Package aggregate derives unique-tag and trend views from a read stream
// or persisted history. It never mutates the underlying read log.
package aggregate

import (
	"time"

	"github.com/tagsight/tagsight/internal/models"
)

// UniqueTags collapses a read set into one entry per distinct EPC,
// iterating in arrival order. Count sums every occurrence; the metadata
// fields follow the most recent read by ReadTime. On equal timestamps the
// first-seen metadata wins: a later read never overwrites unless strictly
// newer.
func UniqueTags(reads []models.TagRead) []models.UniqueTag {
	byEPC := make(map[string]int, len(reads))
	out := make([]models.UniqueTag, 0, len(reads))

	for _, read := range reads {
		idx, seen := byEPC[read.EPC]
		if !seen {
			byEPC[read.EPC] = len(out)
			out = append(out, models.UniqueTag{
				EPC:        read.EPC,
				Count:      1,
				LastSeen:   read.ReadTime,
				ReaderName: read.ReaderName,
				RSSI:       read.RSSI,
				Antenna:    read.Antenna,
			})
			continue
		}

		entry := &out[idx]
		entry.Count++
		if read.ReadTime.After(entry.LastSeen) {
			entry.LastSeen = read.ReadTime
			entry.ReaderName = read.ReaderName
			entry.RSSI = read.RSSI
			entry.Antenna = read.Antenna
		}
	}
	return out
}

// TrendChange computes the percent change between two period values.
// A zero previous period reports 100 for any current activity and 0 for
// none, signaling "new activity" without dividing by zero.
func TrendChange(prev, curr float64) float64 {
	if prev > 0 {
		return (curr - prev) / prev * 100
	}
	if curr > 0 {
		return 100
	}
	return 0
}

// FillDaily expands a sparse per-day map into exactly `days` points
// covering [now - days + 1, now], oldest first, zero-filled. Bucket keys
// are UTC calendar days.
func FillDaily(points map[string]models.TrendPoint, days int, now time.Time) []models.TrendPoint {
	out := make([]models.TrendPoint, 0, days)
	start := now.UTC().Truncate(24 * time.Hour).AddDate(0, 0, -(days - 1))

	for i := 0; i < days; i++ {
		key := start.AddDate(0, 0, i).Format("2006-01-02")
		point, ok := points[key]
		if !ok {
			point = models.TrendPoint{BucketKey: key}
		}
		point.BucketKey = key
		out = append(out, point)
	}
	return out
}

// FillHourly expands a sparse per-hour map into exactly `hours` points
// for the trailing window, oldest first, keyed "YYYY-MM-DD HH:00" UTC.
func FillHourly(points map[string]models.TrendPoint, hours int, now time.Time) []models.TrendPoint {
	out := make([]models.TrendPoint, 0, hours)
	start := now.UTC().Truncate(time.Hour).Add(-time.Duration(hours-1) * time.Hour)

	for i := 0; i < hours; i++ {
		key := start.Add(time.Duration(i) * time.Hour).Format("2006-01-02 15:00")
		point, ok := points[key]
		if !ok {
			point = models.TrendPoint{BucketKey: key}
		}
		point.BucketKey = key
		out = append(out, point)
	}
	return out
}

// FillWeekly expands a sparse per-week map into exactly `weeks` points,
// oldest first, using ISO week boundaries.
func FillWeekly(points map[string]models.WeeklyTrendPoint, weeks int, now time.Time) []models.WeeklyTrendPoint {
	out := make([]models.WeeklyTrendPoint, 0, weeks)

	for i := weeks - 1; i >= 0; i-- {
		year, week := now.UTC().AddDate(0, 0, -7*i).ISOWeek()
		point, ok := points[models.WeekKey(year, week)]
		if !ok {
			point = models.WeeklyTrendPoint{Year: year, Week: week}
		}
		out = append(out, point)
	}
	return out
}
