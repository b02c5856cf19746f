// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

// Package cache holds a small read-through TTL cache for values that are
// cheap to keep around but expensive (or racy) to fetch on every use, such
// as runtime settings stored in the database.
package cache

import (
	"context"
	"sync"
	"time"
)

// Loader fetches the authoritative value on a cache miss.
type Loader[T any] func(ctx context.Context) (T, error)

// Value is a single cached value with expiration. The zero value is not
// usable; construct with NewValue.
type Value[T any] struct {
	mu        sync.RWMutex
	value     T
	expiresAt time.Time
	ttl       time.Duration
	loader    Loader[T]
	now       func() time.Time
}

// NewValue builds a read-through cache refreshing via loader every ttl.
func NewValue[T any](ttl time.Duration, loader Loader[T]) *Value[T] {
	return &Value[T]{
		ttl:    ttl,
		loader: loader,
		now:    time.Now,
	}
}

// Get returns the cached value, refreshing through the loader when the
// entry is stale or was never loaded. A failing loader returns the error
// and leaves any previously cached value intact for the next call.
func (v *Value[T]) Get(ctx context.Context) (T, error) {
	v.mu.RLock()
	if v.now().Before(v.expiresAt) {
		cached := v.value
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if v.now().Before(v.expiresAt) {
		return v.value, nil
	}

	fresh, err := v.loader(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	v.value = fresh
	v.expiresAt = v.now().Add(v.ttl)
	return fresh, nil
}

// Set stores a value directly, as after a write-through update.
func (v *Value[T]) Set(value T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = value
	v.expiresAt = v.now().Add(v.ttl)
}

// Invalidate expires the entry so the next Get hits the loader.
func (v *Value[T]) Invalidate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.expiresAt = time.Time{}
}
