// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides a generic in-process TTL cache used by the
// read-heavy components of the insights service to bound data-store load.
//
// # Description
//
// Cache is a key -> value store where every entry carries its own TTL. An
// entry is visible to readers only while now < createdAt + ttl; an expired
// read is equivalent to a miss and the stale entry is deleted opportunistically
// under the same lock. There is no eviction ordering beyond TTL (no LRU).
//
// # Thread Safety
//
// All methods are safe for concurrent use. The expiry check and the delete of
// a stale entry happen atomically under one lock, so two concurrent readers
// can never both observe a just-expired entry as valid.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Clock abstracts time for TTL decisions so tests can advance time without
// sleeping.
type Clock interface {
	Now() time.Time
}

// systemClock is the production Clock backed by time.Now.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by the system wall clock.
func SystemClock() Clock { return systemClock{} }

// entry is one stored value with its expiry metadata.
type entry[V any] struct {
	value     V
	createdAt time.Time
	ttl       time.Duration
}

// expired reports whether the entry is past its TTL at the given instant.
func (e entry[V]) expired(now time.Time) bool {
	return !now.Before(e.createdAt.Add(e.ttl))
}

// Cache is a generic expiring key -> value store.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	clock   Clock
}

// New creates a Cache using the system clock.
func New[V any]() *Cache[V] {
	return NewWithClock[V](SystemClock())
}

// NewWithClock creates a Cache with an injected clock. Use in tests to
// control expiry deterministically.
func NewWithClock[V any](clock Clock) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		clock:   clock,
	}
}

// Get returns the value for key if present and unexpired. A read of an
// expired entry deletes it and reports a miss; the caller is expected to
// recompute and Set.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(c.clock.Now()) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the given TTL, replacing any prior entry.
// A non-positive TTL is treated as already expired.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		createdAt: c.clock.Now(),
		ttl:       ttl,
	}
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of unexpired entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	n := 0
	for _, e := range c.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Purge removes all expired entries and returns how many were removed.
// Called periodically by the Sweeper; safe to call at any time.
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Purger is anything the Sweeper can clean. Both Cache instantiations used by
// the service satisfy it.
type Purger interface {
	Purge() int
}

// Sweeper periodically purges expired entries from one or more caches so that
// unread keys do not accumulate between lookups.
//
// Start launches a background goroutine; Stop halts it. Start may be called
// again after Stop.
type Sweeper struct {
	interval time.Duration
	targets  []Purger

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewSweeper creates a Sweeper over the given caches. A zero interval
// defaults to five minutes.
func NewSweeper(interval time.Duration, targets ...Purger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{interval: interval, targets: targets}
}

// Start launches the sweep loop. Returns immediately; the loop runs until
// Stop is called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	slog.Info("cache sweeper starting", "interval", s.interval.String())

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				total := 0
				for _, t := range s.targets {
					total += t.Purge()
				}
				if total > 0 {
					slog.Debug("cache sweep removed expired entries", "count", total)
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
}

// Stop halts the sweep loop. Idempotent.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.done)
}
