// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package normalize

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func testNormalizer() *Normalizer {
	return NewWithClock(func() time.Time { return testNow })
}

func TestNormalize_NestedConvention(t *testing.T) {
	n := testNormalizer()

	body := []byte(`{"payload": {"EPC": "E28011700000020F", "TID": "E2003412", "RSSI": -61.5, "AntId": 2, "Device": "dock-door-3", "Timestamp": "2026-03-15 11:59:00"}}`)
	reads, err := n.Normalize(body)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(reads) != 1 {
		t.Fatalf("Expected 1 read, got %d", len(reads))
	}

	read := reads[0]
	if read.EPC != "E28011700000020F" {
		t.Errorf("Expected EPC E28011700000020F, got %q", read.EPC)
	}
	if read.TID != "E2003412" {
		t.Errorf("Expected TID E2003412, got %q", read.TID)
	}
	if read.RSSI == nil || *read.RSSI != -61.5 {
		t.Errorf("Expected RSSI -61.5, got %v", read.RSSI)
	}
	if read.Antenna == nil || *read.Antenna != 2 {
		t.Errorf("Expected antenna 2, got %v", read.Antenna)
	}
	if read.ReaderID != "dock-door-3" || read.ReaderName != "dock-door-3" {
		t.Errorf("Expected reader dock-door-3, got %q/%q", read.ReaderID, read.ReaderName)
	}
	want := time.Date(2026, 3, 15, 11, 59, 0, 0, time.UTC)
	if !read.ReadTime.Equal(want) {
		t.Errorf("Expected read time %v, got %v", want, read.ReadTime)
	}
}

func TestNormalize_FlatConvention(t *testing.T) {
	n := testNormalizer()

	body := []byte(`{"epc": "303AB1F2", "tid": "E2003412", "rssi": -70, "antenna": 1, "reader_id": "r-17", "reader_name": "Receiving Bay"}`)
	reads, err := n.Normalize(body)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(reads) != 1 {
		t.Fatalf("Expected 1 read, got %d", len(reads))
	}

	read := reads[0]
	if read.EPC != "303AB1F2" {
		t.Errorf("Expected EPC 303AB1F2, got %q", read.EPC)
	}
	if read.ReaderID != "r-17" {
		t.Errorf("Expected reader_id r-17, got %q", read.ReaderID)
	}
	if read.ReaderName != "Receiving Bay" {
		t.Errorf("Expected reader_name Receiving Bay, got %q", read.ReaderName)
	}
	// No timestamp in payload: ingestion-time now is substituted.
	if !read.ReadTime.Equal(testNow) {
		t.Errorf("Expected read time %v, got %v", testNow, read.ReadTime)
	}
}

func TestNormalize_EquivalentConventionsResolveSameEPC(t *testing.T) {
	n := testNormalizer()

	nested := []byte(`{"payload": {"EPC": "E280119999", "RSSI": -55}}`)
	flat := []byte(`{"epc": "E280119999", "rssi": -55}`)

	nestedReads, err := n.Normalize(nested)
	if err != nil {
		t.Fatalf("Nested: unexpected error: %v", err)
	}
	flatReads, err := n.Normalize(flat)
	if err != nil {
		t.Fatalf("Flat: unexpected error: %v", err)
	}

	if nestedReads[0].EPC != flatReads[0].EPC {
		t.Errorf("Conventions disagree on EPC: %q vs %q", nestedReads[0].EPC, flatReads[0].EPC)
	}
	if *nestedReads[0].RSSI != *flatReads[0].RSSI {
		t.Errorf("Conventions disagree on RSSI: %v vs %v", *nestedReads[0].RSSI, *flatReads[0].RSSI)
	}
}

func TestNormalize_Batch(t *testing.T) {
	n := testNormalizer()

	t.Run("tags key yields one read per entry", func(t *testing.T) {
		body := []byte(`{"tags": [{"epc": "AAA1"}, {"epc": "AAA2", "rssi": -80}]}`)
		reads, err := n.Normalize(body)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(reads) != 2 {
			t.Fatalf("Expected 2 reads, got %d", len(reads))
		}
		if reads[0].EPC != "AAA1" || reads[1].EPC != "AAA2" {
			t.Errorf("Unexpected EPCs: %q, %q", reads[0].EPC, reads[1].EPC)
		}
		// Forensic linkage: both reads carry the same raw payload.
		if string(reads[0].RawPayload) != string(reads[1].RawPayload) {
			t.Error("Batch entries should share the message raw payload")
		}
		if string(reads[0].RawPayload) != string(body) {
			t.Errorf("Raw payload should be the original body, got %s", reads[0].RawPayload)
		}
	})

	t.Run("data key with nested entries", func(t *testing.T) {
		body := []byte(`{"data": [{"EPC": "BBB1", "Device": "gate-1"}]}`)
		reads, err := n.Normalize(body)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(reads) != 1 {
			t.Fatalf("Expected 1 read, got %d", len(reads))
		}
		if reads[0].ReaderName != "gate-1" {
			t.Errorf("Expected reader gate-1, got %q", reads[0].ReaderName)
		}
	})

	t.Run("entries without epc are skipped", func(t *testing.T) {
		body := []byte(`{"tags": [{"epc": "CCC1"}, {"rssi": -40}]}`)
		reads, err := n.Normalize(body)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(reads) != 1 {
			t.Fatalf("Expected 1 read, got %d", len(reads))
		}
	})
}

func TestNormalize_JSONEncodedString(t *testing.T) {
	n := testNormalizer()

	// Double-encoded: a JSON string whose content is a JSON object.
	body := []byte(`"{\"epc\": \"DDD1\", \"reader_id\": \"r-9\"}"`)
	reads, err := n.Normalize(body)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if reads[0].EPC != "DDD1" {
		t.Errorf("Expected EPC DDD1, got %q", reads[0].EPC)
	}
}

func TestNormalize_Rejections(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"non-json string", "hello reader", ErrUnparsable},
		{"empty body", "", ErrUnparsable},
		{"bare number", "42", ErrUnparsable},
		{"object without epc either convention", `{"payload": {"RSSI": -50}, "rssi": -50}`, ErrNoEPC},
		{"flat object without epc", `{"tid": "E200", "antenna": 1}`, ErrNoEPC},
		{"empty epc", `{"epc": ""}`, ErrNoEPC},
		{"batch with no usable entries", `{"tags": [{"rssi": -1}, {"tid": "x"}]}`, ErrNoEPC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reads, err := n.Normalize([]byte(tt.body))
			if len(reads) != 0 {
				t.Errorf("Expected zero reads, got %d", len(reads))
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNormalize_Defaults(t *testing.T) {
	n := testNormalizer()

	reads, err := n.Normalize([]byte(`{"epc": "EEE1"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	read := reads[0]
	if read.RSSI != nil {
		t.Errorf("Expected nil RSSI, got %v", *read.RSSI)
	}
	if read.Antenna != nil {
		t.Errorf("Expected nil antenna, got %v", *read.Antenna)
	}
	if read.ReaderID != "UNKNOWN" || read.ReaderName != "UNKNOWN" {
		t.Errorf("Expected UNKNOWN reader defaults, got %q/%q", read.ReaderID, read.ReaderName)
	}
}

func TestNormalize_StringNumericFields(t *testing.T) {
	n := testNormalizer()

	reads, err := n.Normalize([]byte(`{"payload": {"EPC": "FFF1", "RSSI": "-62.5", "AntId": "3"}}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	read := reads[0]
	if read.RSSI == nil || *read.RSSI != -62.5 {
		t.Errorf("Expected RSSI -62.5 from string field, got %v", read.RSSI)
	}
	if read.Antenna == nil || *read.Antenna != 3 {
		t.Errorf("Expected antenna 3 from string field, got %v", read.Antenna)
	}
}
