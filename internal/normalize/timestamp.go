// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package normalize

import (
	"strconv"
	"strings"
	"time"
)

// StoredTimeFormat is the zone-explicit textual form used for persistence.
// It round-trips with the RFC3339 wire form to the same UTC instant.
const StoredTimeFormat = "2006-01-02 15:04:05"

// maxFutureSkew bounds how far ahead of the server clock a reader-supplied
// timestamp may be before it is discarded. Readers with unset or
// misconfigured clocks otherwise corrupt multi-year trend buckets.
const maxFutureSkew = 24 * time.Hour

// epochMillisThreshold separates epoch-seconds from epoch-milliseconds
// inputs. Any epoch value above it is read as milliseconds; the cutover
// corresponds to November 2286 in seconds, far beyond reader lifetimes.
const epochMillisThreshold = 1e12

// Canonical resolves an arbitrary timestamp representation to a single
// trustworthy UTC instant. A read is never rejected for a bad timestamp:
// parse failures and absent values fall back to now, as do values that
// trip the clock-skew guard.
// The result is truncated to whole seconds so that the stored and wire
// renderings round-trip losslessly.
func Canonical(v interface{}, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Second)

	t, ok := parseTimestamp(v)
	if !ok {
		return now
	}
	t = t.UTC().Truncate(time.Second)

	// Clock-skew guard: far-future instants come from unset reader clocks.
	if t.After(now.Add(maxFutureSkew)) || t.Year() > now.Year()+1 {
		return now
	}
	return t
}

// parseTimestamp accepts epoch numbers (seconds or milliseconds, numeric or
// string), the stored "YYYY-MM-DD HH:MM:SS" form (assumed UTC), and
// ISO-8601 with or without a zone suffix (assumed UTC when absent).
func parseTimestamp(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t, !t.IsZero()
	case float64:
		return fromEpoch(t), true
	case int64:
		return fromEpoch(float64(t)), true
	case string:
		return parseTimestampString(strings.TrimSpace(t))
	default:
		return time.Time{}, false
	}
}

func parseTimestampString(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}

	// Epoch-like: all digits, optionally fractional.
	if f, err := strconv.ParseFloat(s, 64); err == nil && !strings.ContainsAny(s, "-:TZ ") {
		return fromEpoch(f), true
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		StoredTimeFormat,          // assumed UTC, no conversion
		"2006-01-02T15:04:05",     // ISO-8601 without zone: assume UTC
		"2006-01-02T15:04:05.999", // same, fractional seconds
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func fromEpoch(f float64) time.Time {
	if f >= epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// FormatStored renders an instant in the fixed textual form used for
// persistence.
func FormatStored(t time.Time) string {
	return t.UTC().Format(StoredTimeFormat)
}

// ParseStored parses the persistence form back into a UTC instant.
func ParseStored(s string) (time.Time, error) {
	t, err := time.Parse(StoredTimeFormat, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatWire renders an instant in the ISO-8601 UTC form transmitted to
// consumers. FormatStored and FormatWire always round-trip to the same
// instant for the same input.
func FormatWire(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
