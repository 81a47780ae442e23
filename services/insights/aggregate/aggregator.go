// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package aggregate fetches and joins the three assessment streams plus the
// roster for a tenant, optionally scoped to a team, through a TTL cache.
//
// # Degradation
//
// A failing upstream is never fatal: the affected stream surfaces as an empty
// slice and aggregation continues. Absence of data is a valid state, not a
// fault — an empty tenant yields an empty Bundle and no error.
package aggregate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/luminahr/lumina/services/insights/cache"
	"github.com/luminahr/lumina/services/insights/datatypes"
)

// DefaultTTL bounds data-store load for the expensive cross-stream join that
// feeds the insight engine.
const DefaultTTL = 5 * time.Minute

// SampleProvider reads one assessment stream for a tenant/team scope.
type SampleProvider interface {
	Samples(ctx context.Context, stream datatypes.Stream, tenantID, teamID string) ([]datatypes.AssessmentSample, error)
}

// RosterProvider reads the workforce roster for a tenant/team scope.
type RosterProvider interface {
	Roster(ctx context.Context, tenantID, teamID string) ([]datatypes.Employee, error)
}

// Bundle is the joined result of one aggregation: all three streams plus the
// roster. Slices are never nil.
type Bundle struct {
	Competency   []datatypes.AssessmentSample `json:"competency"`
	Psychosocial []datatypes.AssessmentSample `json:"psychosocial"`
	Performance  []datatypes.AssessmentSample `json:"performance"`
	Roster       []datatypes.Employee         `json:"roster"`
}

// Stream returns the samples for the named stream.
func (b *Bundle) Stream(s datatypes.Stream) []datatypes.AssessmentSample {
	switch s {
	case datatypes.StreamCompetency:
		return b.Competency
	case datatypes.StreamPsychosocial:
		return b.Psychosocial
	case datatypes.StreamPerformance:
		return b.Performance
	}
	return nil
}

// Aggregator joins the four upstream reads behind a TTL cache.
type Aggregator struct {
	samples SampleProvider
	roster  RosterProvider
	cache   *cache.Cache[*Bundle]
	ttl     time.Duration

	// fetches counts underlying (non-cached) aggregations, exposed for tests
	// and the health endpoint.
	mu      sync.Mutex
	fetches int
}

// New creates an Aggregator with its own cache and the default 5-minute TTL.
func New(samples SampleProvider, roster RosterProvider) *Aggregator {
	return NewWithCache(samples, roster, cache.New[*Bundle](), DefaultTTL)
}

// NewWithCache creates an Aggregator over an injected cache and TTL, so tests
// and the composing service can control expiry.
func NewWithCache(samples SampleProvider, roster RosterProvider, c *cache.Cache[*Bundle], ttl time.Duration) *Aggregator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Aggregator{samples: samples, roster: roster, cache: c, ttl: ttl}
}

// CacheKey is the cache key for a tenant/team scope. An empty teamID scopes
// to the whole tenant.
func CacheKey(tenantID, teamID string) string {
	if teamID == "" {
		teamID = "all"
	}
	return tenantID + "|" + teamID
}

// Fetch returns the joined Bundle for the scope, from cache when fresh.
//
// On a miss the three stream reads and the roster read are issued
// concurrently; no read depends on another, and results are joined once all
// complete. A failed read logs a warning and contributes an empty slice.
// In-flight fetches run to completion even if the caller goes away, and their
// cache writes still apply.
func (a *Aggregator) Fetch(ctx context.Context, tenantID, teamID string) *Bundle {
	key := CacheKey(tenantID, teamID)
	if bundle, ok := a.cache.Get(key); ok {
		return bundle
	}

	a.mu.Lock()
	a.fetches++
	a.mu.Unlock()

	bundle := &Bundle{
		Competency:   []datatypes.AssessmentSample{},
		Psychosocial: []datatypes.AssessmentSample{},
		Performance:  []datatypes.AssessmentSample{},
		Roster:       []datatypes.Employee{},
	}

	var wg sync.WaitGroup
	var bundleMu sync.Mutex

	for _, stream := range datatypes.Streams {
		wg.Add(1)
		go func(stream datatypes.Stream) {
			defer wg.Done()
			samples, err := a.samples.Samples(ctx, stream, tenantID, teamID)
			if err != nil {
				slog.Warn("stream fetch failed, treating as empty",
					"stream", stream,
					"tenant_id", tenantID,
					"error", err)
				return
			}
			bundleMu.Lock()
			defer bundleMu.Unlock()
			switch stream {
			case datatypes.StreamCompetency:
				bundle.Competency = append(bundle.Competency, samples...)
			case datatypes.StreamPsychosocial:
				bundle.Psychosocial = append(bundle.Psychosocial, samples...)
			case datatypes.StreamPerformance:
				bundle.Performance = append(bundle.Performance, samples...)
			}
		}(stream)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		roster, err := a.roster.Roster(ctx, tenantID, teamID)
		if err != nil {
			slog.Warn("roster fetch failed, treating as empty",
				"tenant_id", tenantID,
				"error", err)
			return
		}
		bundleMu.Lock()
		bundle.Roster = append(bundle.Roster, roster...)
		bundleMu.Unlock()
	}()

	wg.Wait()

	a.cache.Set(key, bundle, a.ttl)
	return bundle
}

// Invalidate drops the cached bundle for the scope so the next Fetch re-reads
// upstream. Used by forced dashboard refreshes.
func (a *Aggregator) Invalidate(tenantID, teamID string) {
	a.cache.Delete(CacheKey(tenantID, teamID))
}

// FetchCount reports how many aggregations bypassed the cache.
func (a *Aggregator) FetchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetches
}
