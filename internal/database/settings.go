// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSettingNotFound is returned when a setting key has never been stored.
var ErrSettingNotFound = errors.New("setting not found")

// GetSetting returns the stored value for key, or ErrSettingNotFound.
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	if db.conn == nil {
		return "", ErrClosed
	}

	var value string
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting stores or replaces a setting value.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	if db.conn == nil {
		return ErrClosed
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}
