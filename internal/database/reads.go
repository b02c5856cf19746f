// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tagsight/tagsight/internal/models"
)

// InsertTagRead durably records one canonical read. The read's ID and
// IngestedAt are assigned here. Broker redeliveries become duplicate rows
// on purpose: deduplication is a read-time concern.
func (db *DB) InsertTagRead(ctx context.Context, read *models.TagRead) error {
	if db.conn == nil {
		return ErrClosed
	}
	if read.EPC == "" {
		return ErrInvalidRead
	}

	read.ID = uuid.New().String()
	read.IngestedAt = time.Now().UTC().Truncate(time.Second)

	var raw interface{}
	if len(read.RawPayload) > 0 {
		raw = string(read.RawPayload)
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO tag_reads
			(id, epc, tid, rssi, antenna, reader_id, reader_name, read_time, raw_payload, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		read.ID,
		read.EPC,
		nullString(read.TID),
		nullFloat(read.RSSI),
		nullInt(read.Antenna),
		read.ReaderID,
		read.ReaderName,
		read.ReadTime.UTC(),
		raw,
		read.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tag read: %w", err)
	}
	return nil
}

// GetRecentReads returns the newest reads by read time, newest first.
func (db *DB) GetRecentReads(ctx context.Context, limit int) ([]models.TagRead, error) {
	if db.conn == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, epc, tid, rssi, antenna, reader_id, reader_name, read_time, raw_payload, ingested_at
		FROM tag_reads
		ORDER BY read_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent reads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanReads(rows)
}

// GetReadsSince returns reads with read_time at or after since, in read
// time order (oldest first) so aggregation sees arrival-like ordering.
func (db *DB) GetReadsSince(ctx context.Context, since time.Time, limit int) ([]models.TagRead, error) {
	if db.conn == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 10000
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, epc, tid, rssi, antenna, reader_id, reader_name, read_time, raw_payload, ingested_at
		FROM tag_reads
		WHERE read_time >= ?
		ORDER BY read_time ASC, ingested_at ASC
		LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query reads since %v: %w", since, err)
	}
	defer func() { _ = rows.Close() }()

	return scanReads(rows)
}

// DeleteReadsBefore removes reads older than the cutoff. Used by the
// retention janitor; the only delete path for persisted reads.
func (db *DB) DeleteReadsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if db.conn == nil {
		return 0, ErrClosed
	}

	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM tag_reads WHERE read_time < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete reads before %v: %w", cutoff, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return deleted, nil
}

// TotalReads returns the total persisted read count.
func (db *DB) TotalReads(ctx context.Context) (int, error) {
	if db.conn == nil {
		return 0, ErrClosed
	}
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM tag_reads`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count reads: %w", err)
	}
	return count, nil
}

func scanReads(rows *sql.Rows) ([]models.TagRead, error) {
	var reads []models.TagRead
	for rows.Next() {
		var (
			read    models.TagRead
			tid     sql.NullString
			rssi    sql.NullFloat64
			antenna sql.NullInt32
			raw     sql.NullString
		)
		if err := rows.Scan(&read.ID, &read.EPC, &tid, &rssi, &antenna,
			&read.ReaderID, &read.ReaderName, &read.ReadTime, &raw, &read.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan tag read: %w", err)
		}
		read.TID = tid.String
		if rssi.Valid {
			v := rssi.Float64
			read.RSSI = &v
		}
		if antenna.Valid {
			v := int(antenna.Int32)
			read.Antenna = &v
		}
		if raw.Valid {
			read.RawPayload = json.RawMessage(raw.String)
		}
		read.ReadTime = read.ReadTime.UTC()
		read.IngestedAt = read.IngestedAt.UTC()
		reads = append(reads, read)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag reads: %w", err)
	}
	return reads, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}
