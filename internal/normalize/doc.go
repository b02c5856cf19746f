// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

// Package normalize turns loosely-typed reader payloads into canonical tag
// reads. It is pure: no I/O, no clocks other than the injected "now".
//
// Two field-naming conventions are tolerated, matching reader firmwares
// observed in the field:
//
//   - Convention A: tag fields nested under a "payload" key, upper-case
//     names (EPC, TID, RSSI, AntId, Device).
//   - Convention B: flat object, lower-snake names (epc, tid, rssi,
//     antenna, reader_id, reader_name).
//
// Batch messages carry an array of entries under "tags" or "data"; each
// entry is normalized independently and shares the message's raw payload.
// This is a deliberate tolerance table, not schema negotiation: do not add
// conventions without extending the table here and in the tests.
package normalize
