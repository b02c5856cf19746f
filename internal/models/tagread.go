// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// UnknownReader is the default reader identity when a payload carries none.
const UnknownReader = "UNKNOWN"

// TagRead is the canonical ingested fact: one tag detection by one reader,
// produced by the normalizer from a single broker message. Immutable once
// persisted; retention cleanup is the only delete path.
type TagRead struct {
	// ID is assigned at persistence time.
	ID string `json:"id,omitempty"`

	// EPC is the primary tag identifier. A read without an EPC is never
	// emitted by the normalizer.
	EPC string `json:"epc"`

	TID     string   `json:"tid,omitempty"`
	RSSI    *float64 `json:"rssi,omitempty"`
	Antenna *int     `json:"antenna,omitempty"`

	ReaderID   string `json:"reader_id"`
	ReaderName string `json:"reader_name"`

	// ReadTime is the canonicalized UTC instant of the detection.
	ReadTime time.Time `json:"read_time"`

	// RawPayload holds the original message body verbatim for forensic
	// replay: structured JSON when the body parsed, a JSON string otherwise.
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`

	// IngestedAt is assigned by the persistence layer.
	IngestedAt time.Time `json:"ingested_at"`
}

// LiveRead is the reduced projection pushed to attached viewers. Viewers
// needing the full record or history query the REST API instead.
type LiveRead struct {
	EPC       string   `json:"epc"`
	RSSI      *float64 `json:"rssi,omitempty"`
	Device    string   `json:"device"`
	Timestamp string   `json:"timestamp"` // RFC3339 UTC
}

// Live returns the fan-out projection of the read.
func (r *TagRead) Live() LiveRead {
	return LiveRead{
		EPC:       r.EPC,
		RSSI:      r.RSSI,
		Device:    r.ReaderName,
		Timestamp: r.ReadTime.UTC().Format(time.RFC3339),
	}
}
