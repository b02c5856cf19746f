// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tagsight/tagsight/internal/database"
)

type fakeStore struct {
	values map[string]string
	err    error
}

func (f *fakeStore) GetSetting(ctx context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.values[key]
	if !ok {
		return "", database.ErrSettingNotFound
	}
	return v, nil
}

func (f *fakeStore) SetSetting(ctx context.Context, key, value string) error {
	if f.err != nil {
		return f.err
	}
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = value
	return nil
}

var testDefaults = Defaults{RetentionDays: 90, DedupeWindow: 5 * time.Minute}

func TestSettingsDefaults(t *testing.T) {
	s := NewSettings(&fakeStore{}, testDefaults)
	ctx := context.Background()

	if days := s.RetentionDays(ctx); days != 90 {
		t.Errorf("Expected default retention 90, got %d", days)
	}
	if window := s.DedupeWindow(ctx); window != 5*time.Minute {
		t.Errorf("Expected default window 5m, got %s", window)
	}
}

func TestSettingsStoredOverrides(t *testing.T) {
	store := &fakeStore{values: map[string]string{
		KeyRetentionDays:       "30",
		KeyDedupeWindowMinutes: "15",
	}}
	s := NewSettings(store, testDefaults)
	ctx := context.Background()

	if days := s.RetentionDays(ctx); days != 30 {
		t.Errorf("Expected stored retention 30, got %d", days)
	}
	if window := s.DedupeWindow(ctx); window != 15*time.Minute {
		t.Errorf("Expected stored window 15m, got %s", window)
	}
}

func TestSettingsUpdateWritesThrough(t *testing.T) {
	store := &fakeStore{}
	s := NewSettings(store, testDefaults)
	ctx := context.Background()

	if err := s.SetRetentionDays(ctx, 14); err != nil {
		t.Fatalf("SetRetentionDays: %v", err)
	}
	if store.values[KeyRetentionDays] != "14" {
		t.Errorf("Expected stored value 14, got %q", store.values[KeyRetentionDays])
	}
	if days := s.RetentionDays(ctx); days != 14 {
		t.Errorf("Expected cached value 14, got %d", days)
	}

	if err := s.SetDedupeWindow(ctx, 10*time.Minute); err != nil {
		t.Fatalf("SetDedupeWindow: %v", err)
	}
	if window := s.DedupeWindow(ctx); window != 10*time.Minute {
		t.Errorf("Expected cached window 10m, got %s", window)
	}
}

func TestSettingsRejectsInvalidValues(t *testing.T) {
	s := NewSettings(&fakeStore{}, testDefaults)
	ctx := context.Background()

	if err := s.SetRetentionDays(ctx, 0); err == nil {
		t.Error("Expected error for zero retention")
	}
	if err := s.SetDedupeWindow(ctx, 30*time.Second); err == nil {
		t.Error("Expected error for sub-minute window")
	}
}

func TestSettingsStoreFailureFallsBack(t *testing.T) {
	s := NewSettings(&fakeStore{err: errors.New("database closed")}, testDefaults)
	ctx := context.Background()

	if days := s.RetentionDays(ctx); days != 90 {
		t.Errorf("Expected default on store failure, got %d", days)
	}
	if window := s.DedupeWindow(ctx); window != 5*time.Minute {
		t.Errorf("Expected default on store failure, got %s", window)
	}
}
