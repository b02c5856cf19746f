// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tagsight/tagsight/internal/database"
	"github.com/tagsight/tagsight/internal/logging"
)

// Setting keys stored in the database.
const (
	KeyRetentionDays       = "retention_days"
	KeyDedupeWindowMinutes = "dedupe_window_minutes"
)

// settingsTTL bounds how stale a cached setting can get after an
// out-of-band database edit.
const settingsTTL = time.Minute

// SettingsStore is the slice of the persistence layer the settings
// service needs. Satisfied by database.DB.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Defaults are the values used until an operator stores an override.
type Defaults struct {
	RetentionDays int
	DedupeWindow  time.Duration
}

// Settings surfaces runtime-tunable values to the rest of the process.
// Reads go through a TTL cache; an unset or unreadable key falls back to
// the configured default.
type Settings struct {
	store     SettingsStore
	defaults  Defaults
	retention *Value[int]
	dedupe    *Value[time.Duration]
}

// NewSettings builds the settings service over the given store.
func NewSettings(store SettingsStore, defaults Defaults) *Settings {
	s := &Settings{store: store, defaults: defaults}
	s.retention = NewValue(settingsTTL, func(ctx context.Context) (int, error) {
		return s.loadInt(ctx, KeyRetentionDays, defaults.RetentionDays)
	})
	s.dedupe = NewValue(settingsTTL, func(ctx context.Context) (time.Duration, error) {
		minutes, err := s.loadInt(ctx, KeyDedupeWindowMinutes, int(defaults.DedupeWindow.Minutes()))
		if err != nil {
			return 0, err
		}
		return time.Duration(minutes) * time.Minute, nil
	})
	return s
}

// RetentionDays returns how long raw reads are kept before the janitor
// removes them.
func (s *Settings) RetentionDays(ctx context.Context) int {
	days, err := s.retention.Get(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Falling back to default retention")
		return s.defaults.RetentionDays
	}
	return days
}

// DedupeWindow returns the trailing window used by the unique-tags view.
func (s *Settings) DedupeWindow(ctx context.Context) time.Duration {
	window, err := s.dedupe.Get(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Falling back to default dedupe window")
		return s.defaults.DedupeWindow
	}
	return window
}

// SetRetentionDays stores an override and refreshes the cache.
func (s *Settings) SetRetentionDays(ctx context.Context, days int) error {
	if days < 1 {
		return fmt.Errorf("retention days must be at least 1, got %d", days)
	}
	if err := s.store.SetSetting(ctx, KeyRetentionDays, strconv.Itoa(days)); err != nil {
		return err
	}
	s.retention.Set(days)
	return nil
}

// SetDedupeWindow stores an override and refreshes the cache.
func (s *Settings) SetDedupeWindow(ctx context.Context, window time.Duration) error {
	minutes := int(window.Minutes())
	if minutes < 1 {
		return fmt.Errorf("dedupe window must be at least 1 minute, got %s", window)
	}
	if err := s.store.SetSetting(ctx, KeyDedupeWindowMinutes, strconv.Itoa(minutes)); err != nil {
		return err
	}
	s.dedupe.Set(time.Duration(minutes) * time.Minute)
	return nil
}

// loadInt fetches an integer setting, mapping "never stored" to the
// default rather than an error.
func (s *Settings) loadInt(ctx context.Context, key string, fallback int) (int, error) {
	raw, err := s.store.GetSetting(ctx, key)
	if errors.Is(err, database.ErrSettingNotFound) {
		return fallback, nil
	}
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("setting %q holds non-numeric value %q: %w", key, raw, err)
	}
	return parsed, nil
}
