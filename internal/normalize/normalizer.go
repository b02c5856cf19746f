// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package normalize

import (
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tagsight/tagsight/internal/models"
)

// ErrNoEPC is returned when no EPC-equivalent value can be resolved under
// any known convention. Such messages are dropped, never retried: a
// malformed payload cannot become valid by redelivery.
var ErrNoEPC = errors.New("normalize: no epc in payload")

// ErrUnparsable is returned for bodies that are not JSON under any
// tolerated encoding. The raw body is still available for forensic storage.
var ErrUnparsable = errors.New("normalize: unparsable payload")

// shape classifies a message body once, before any field extraction.
type shape int

// Non-JSON bodies never reach shape dispatch; decodeBody rejects them
// with ErrUnparsable first.
const (
	shapeNested shape = iota // convention A: fields under a "payload" sub-object
	shapeFlat                // convention B: flat lower-snake object
	shapeBatch               // array of entries under "tags" or "data"
)

// Normalizer converts raw broker message bodies into canonical tag reads.
// The zero value is not usable; construct with New.
type Normalizer struct {
	now func() time.Time
}

// New returns a Normalizer using the real clock.
func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewWithClock returns a Normalizer with an injected clock. Tests use this
// to pin "now" for the clock-skew guard.
func NewWithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize produces zero or more canonical tag reads from one message
// body. A batch message yields one read per entry, all sharing the same
// raw payload for forensic linkage. Bodies that resolve no EPC yield no
// reads and ErrNoEPC; non-JSON bodies yield ErrUnparsable.
func (n *Normalizer) Normalize(body []byte) ([]models.TagRead, error) {
	obj, raw, ok := decodeBody(body)
	if !ok {
		return nil, ErrUnparsable
	}

	now := n.now().UTC()

	var reads []models.TagRead
	switch detectShape(obj) {
	case shapeBatch:
		for _, entry := range batchEntries(obj) {
			if read, ok := n.extractEntry(entry, raw, now); ok {
				reads = append(reads, read)
			}
		}
	case shapeNested:
		nested, _ := subObject(obj)
		if read, ok := n.extractNested(nested, raw, now); ok {
			reads = append(reads, read)
		}
	case shapeFlat:
		if read, ok := n.extractFlat(obj, raw, now); ok {
			reads = append(reads, read)
		}
	}

	if len(reads) == 0 {
		return nil, ErrNoEPC
	}
	return reads, nil
}

// decodeBody parses the message body into an object, unwrapping one level
// of JSON-encoded-string indirection (some firmwares double-encode). The
// returned raw payload is the parsed JSON verbatim, or a JSON string of
// the original body when it never parsed as an object.
func decodeBody(body []byte) (map[string]interface{}, json.RawMessage, bool) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, nil, false
	}

	var v interface{}
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, nil, false
	}

	switch t := v.(type) {
	case map[string]interface{}:
		return t, json.RawMessage(trimmed), true
	case string:
		// JSON string wrapping a JSON object.
		var inner interface{}
		if err := json.Unmarshal([]byte(t), &inner); err != nil {
			return nil, nil, false
		}
		if m, ok := inner.(map[string]interface{}); ok {
			return m, json.RawMessage(t), true
		}
		return nil, nil, false
	default:
		return nil, nil, false
	}
}

// detectShape resolves the payload shape exactly once per message.
func detectShape(obj map[string]interface{}) shape {
	if len(batchEntries(obj)) > 0 {
		return shapeBatch
	}
	if _, ok := subObject(obj); ok {
		return shapeNested
	}
	return shapeFlat
}

// subObject returns the convention-A sub-object when present.
func subObject(obj map[string]interface{}) (map[string]interface{}, bool) {
	for _, key := range []string{"payload", "Payload"} {
		if m, ok := obj[key].(map[string]interface{}); ok {
			return m, true
		}
	}
	return nil, false
}

// batchEntries returns the entry objects of a batch message, or nil.
func batchEntries(obj map[string]interface{}) []map[string]interface{} {
	for _, key := range []string{"tags", "data"} {
		arr, ok := obj[key].([]interface{})
		if !ok {
			continue
		}
		entries := make([]map[string]interface{}, 0, len(arr))
		for _, el := range arr {
			if m, ok := el.(map[string]interface{}); ok {
				entries = append(entries, m)
			}
		}
		if len(entries) > 0 {
			return entries
		}
	}
	return nil
}

// extractEntry normalizes one batch element, accepting either convention.
func (n *Normalizer) extractEntry(entry map[string]interface{}, raw json.RawMessage, now time.Time) (models.TagRead, bool) {
	if read, ok := n.extractNested(entry, raw, now); ok {
		return read, true
	}
	return n.extractFlat(entry, raw, now)
}

// extractNested applies convention A (upper-case firmware field names).
func (n *Normalizer) extractNested(obj map[string]interface{}, raw json.RawMessage, now time.Time) (models.TagRead, bool) {
	epc := stringField(obj, "EPC", "Epc")
	if epc == "" {
		return models.TagRead{}, false
	}

	read := models.TagRead{
		EPC:        epc,
		TID:        stringField(obj, "TID", "Tid"),
		RSSI:       floatField(obj, "RSSI"),
		Antenna:    intField(obj, "AntId", "Antenna"),
		ReaderID:   models.UnknownReader,
		ReaderName: models.UnknownReader,
		ReadTime:   Canonical(obj["Timestamp"], now),
		RawPayload: raw,
	}
	if device := stringField(obj, "Device"); device != "" {
		read.ReaderID = device
		read.ReaderName = device
	}
	if name := stringField(obj, "DeviceName"); name != "" {
		read.ReaderName = name
	}
	return read, true
}

// extractFlat applies convention B (lower-snake field names).
func (n *Normalizer) extractFlat(obj map[string]interface{}, raw json.RawMessage, now time.Time) (models.TagRead, bool) {
	epc := stringField(obj, "epc")
	if epc == "" {
		return models.TagRead{}, false
	}

	read := models.TagRead{
		EPC:        epc,
		TID:        stringField(obj, "tid"),
		RSSI:       floatField(obj, "rssi"),
		Antenna:    intField(obj, "antenna"),
		ReaderID:   models.UnknownReader,
		ReaderName: models.UnknownReader,
		ReadTime:   Canonical(firstPresent(obj, "read_time", "timestamp"), now),
		RawPayload: raw,
	}
	if id := stringField(obj, "reader_id"); id != "" {
		read.ReaderID = id
		read.ReaderName = id
	}
	if name := stringField(obj, "reader_name"); name != "" {
		read.ReaderName = name
	}
	return read, true
}

func firstPresent(obj map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if v, ok := obj[key]; ok {
			return v
		}
	}
	return nil
}

// stringField returns the first non-empty string value among keys.
func stringField(obj map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// floatField returns the first numeric value among keys. Firmwares emit
// RSSI both as a JSON number and as a quoted decimal string.
func floatField(obj map[string]interface{}, keys ...string) *float64 {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case float64:
			f := v
			return &f
		case string:
			if f, ok := parseFloat(v); ok {
				return &f
			}
		}
	}
	return nil
}

// intField returns the first integral value among keys.
func intField(obj map[string]interface{}, keys ...string) *int {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case float64:
			i := int(v)
			return &i
		case string:
			if f, ok := parseFloat(v); ok {
				i := int(f)
				return &i
			}
		}
	}
	return nil
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return 0, false
	}
	return f, true
}
