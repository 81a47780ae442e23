// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ratelimit implements the per-tenant request budget for expensive
// model-backed operations.
//
// # Description
//
// The limiter uses a fixed window, not a sliding one: the first request for a
// tenant (or the first request after the window has elapsed) atomically resets
// the window to {count: 1, resetAt: now + period}; subsequent requests
// increment the count and are allowed only while count <= budget. A rejected
// request is never retried by this package; the caller surfaces the reset
// time to the client.
//
// # Thread Safety
//
// The window-reset check and the counter update happen under one lock, so two
// concurrent callers can never both believe they are the first request of a
// new window. State is process-local; horizontally scaled deployments get
// per-instance budgets.
package ratelimit

import (
	"sync"
	"time"

	"github.com/luminahr/lumina/services/insights/cache"
)

// Config holds limiter tuning. Zero values take the documented defaults.
type Config struct {
	// Budget is the number of allowed requests per window per tenant.
	// Default: 50.
	Budget int

	// Period is the fixed window length. Default: 1 hour.
	Period time.Duration
}

// DefaultConfig returns the production defaults: 50 requests per 1-hour
// window per tenant.
func DefaultConfig() Config {
	return Config{Budget: 50, Period: time.Hour}
}

func (c Config) withDefaults() Config {
	if c.Budget <= 0 {
		c.Budget = 50
	}
	if c.Period <= 0 {
		c.Period = time.Hour
	}
	return c
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// window is the per-tenant fixed-window state.
type window struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window per-tenant rate limiter.
type Limiter struct {
	config Config
	clock  cache.Clock

	mu      sync.Mutex
	windows map[string]*window
}

// New creates a Limiter using the system clock.
func New(config Config) *Limiter {
	return NewWithClock(config, cache.SystemClock())
}

// NewWithClock creates a Limiter with an injected clock for tests.
func NewWithClock(config Config, clock cache.Clock) *Limiter {
	return &Limiter{
		config:  config.withDefaults(),
		clock:   clock,
		windows: make(map[string]*window),
	}
}

// Allow records one request for the tenant and reports whether it fits the
// budget. The returned Decision always carries the remaining budget and the
// window reset time, including on rejection.
func (l *Limiter) Allow(tenantID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	w, ok := l.windows[tenantID]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(l.config.Period)}
		l.windows[tenantID] = w
		return Decision{Allowed: true, Remaining: l.config.Budget - 1, ResetAt: w.resetAt}
	}

	w.count++
	if w.count > l.config.Budget {
		return Decision{Allowed: false, Remaining: 0, ResetAt: w.resetAt}
	}
	return Decision{Allowed: true, Remaining: l.config.Budget - w.count, ResetAt: w.resetAt}
}

// Remaining reports the unused budget for the tenant without consuming any.
// A tenant with no live window has the full budget.
func (l *Limiter) Remaining(tenantID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[tenantID]
	if !ok || !l.clock.Now().Before(w.resetAt) {
		return l.config.Budget
	}
	if w.count >= l.config.Budget {
		return 0
	}
	return l.config.Budget - w.count
}

// ResetAt reports when the tenant's current window ends. For a tenant with no
// live window the zero time is returned.
func (l *Limiter) ResetAt(tenantID string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[tenantID]
	if !ok || !l.clock.Now().Before(w.resetAt) {
		return time.Time{}
	}
	return w.resetAt
}
