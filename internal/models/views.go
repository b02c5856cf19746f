// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package models

import (
	"fmt"
	"time"
)

// UniqueTag is one entry of the derived unique-tag view: one row per
// distinct EPC in the queried read set. Count sums every occurrence while
// the trailing fields reflect the most recent read by ReadTime.
type UniqueTag struct {
	EPC        string    `json:"epc"`
	Count      int       `json:"count"`
	LastSeen   time.Time `json:"last_seen"`
	ReaderName string    `json:"reader_name"`
	RSSI       *float64  `json:"rssi,omitempty"`
	Antenna    *int      `json:"antenna,omitempty"`
}

// TrendPoint is one calendar bucket of a daily or hourly trend. BucketKey is
// "YYYY-MM-DD" for daily buckets and "YYYY-MM-DD HH:00" for hourly buckets,
// always UTC. Buckets with no data are zero-filled.
type TrendPoint struct {
	BucketKey  string `json:"bucket"`
	Reads      int    `json:"reads"`
	UniqueTags int    `json:"unique_tags"`
}

// WeeklyTrendPoint is one ISO-week bucket of a weekly trend.
type WeeklyTrendPoint struct {
	Week       int `json:"week"`
	Year       int `json:"year"`
	UniqueTags int `json:"unique_tags"`
}

// WeekKey renders an ISO year/week pair as a stable map key, e.g. "2026-W11".
func WeekKey(year, week int) string {
	return fmt.Sprintf("%04d-W%02d", year, week)
}
