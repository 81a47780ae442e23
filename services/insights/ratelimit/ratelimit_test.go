// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// TestLimiter_BudgetEnforced verifies that exactly budget calls succeed in a
// window and the (budget+1)th is rejected with a future reset time.
func TestLimiter_BudgetEnforced(t *testing.T) {
	clk := newFakeClock()
	l := NewWithClock(Config{Budget: 5, Period: time.Hour}, clk)

	for i := 0; i < 5; i++ {
		d := l.Allow("acme")
		require.True(t, d.Allowed, "call %d should be allowed", i+1)
		assert.Equal(t, 4-i, d.Remaining)
	}

	d := l.Allow("acme")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.True(t, d.ResetAt.After(clk.Now()), "reset time must be strictly in the future at rejection")
}

func TestLimiter_WindowResets(t *testing.T) {
	clk := newFakeClock()
	l := NewWithClock(Config{Budget: 2, Period: time.Hour}, clk)

	l.Allow("acme")
	l.Allow("acme")
	assert.False(t, l.Allow("acme").Allowed)

	clk.Advance(time.Hour)
	d := l.Allow("acme")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, clk.Now().Add(time.Hour), d.ResetAt)
}

func TestLimiter_TenantsAreIsolated(t *testing.T) {
	clk := newFakeClock()
	l := NewWithClock(Config{Budget: 1, Period: time.Hour}, clk)

	assert.True(t, l.Allow("acme").Allowed)
	assert.False(t, l.Allow("acme").Allowed)
	assert.True(t, l.Allow("globex").Allowed)
}

func TestLimiter_RemainingAndResetAt(t *testing.T) {
	clk := newFakeClock()
	l := NewWithClock(Config{Budget: 3, Period: time.Hour}, clk)

	assert.Equal(t, 3, l.Remaining("acme"))
	assert.True(t, l.ResetAt("acme").IsZero())

	l.Allow("acme")
	assert.Equal(t, 2, l.Remaining("acme"))
	assert.Equal(t, clk.Now().Add(time.Hour), l.ResetAt("acme"))

	// An expired window reads as a fresh budget.
	clk.Advance(2 * time.Hour)
	assert.Equal(t, 3, l.Remaining("acme"))
	assert.True(t, l.ResetAt("acme").IsZero())
}

// TestLimiter_ConcurrentNewWindow checks the reset race: many goroutines
// arriving at a fresh window must still consume exactly the budget.
func TestLimiter_ConcurrentNewWindow(t *testing.T) {
	clk := newFakeClock()
	l := NewWithClock(Config{Budget: 10, Period: time.Hour}, clk)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("acme").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 50, cfg.Budget)
	assert.Equal(t, time.Hour, cfg.Period)
}
