// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package usage records cost and consumption of model-backed operations for
// later reporting. Accounting is best-effort: a failed write is logged and
// never fails the caller's primary operation.
package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/luminahr/lumina/services/insights/cache"
	"github.com/luminahr/lumina/services/insights/datatypes"
)

// Rates holds the per-1000-unit cost rates. Zero values take the documented
// defaults.
type Rates struct {
	// InputPerThousand is the cost per 1000 input units. Default: 0.0025.
	InputPerThousand float64

	// OutputPerThousand is the cost per 1000 output units. Default: 0.010.
	OutputPerThousand float64
}

// DefaultRates returns the production defaults.
func DefaultRates() Rates {
	return Rates{InputPerThousand: 0.0025, OutputPerThousand: 0.010}
}

func (r Rates) withDefaults() Rates {
	if r.InputPerThousand == 0 {
		r.InputPerThousand = 0.0025
	}
	if r.OutputPerThousand == 0 {
		r.OutputPerThousand = 0.010
	}
	return r
}

// RecordStore persists append-only usage records.
type RecordStore interface {
	// Append stores one record. Records are never updated or deleted.
	Append(ctx context.Context, rec datatypes.UsageRecord) error

	// ListSince returns all records for the tenant with Timestamp >= since.
	ListSince(ctx context.Context, tenantID string, since time.Time) ([]datatypes.UsageRecord, error)
}

// Tracker meters model-backed operations per tenant and feature.
type Tracker struct {
	store RecordStore
	rates Rates
	clock cache.Clock
}

// NewTracker creates a Tracker over the given store with the system clock.
func NewTracker(store RecordStore, rates Rates) *Tracker {
	return NewTrackerWithClock(store, rates, cache.SystemClock())
}

// NewTrackerWithClock creates a Tracker with an injected clock for tests.
func NewTrackerWithClock(store RecordStore, rates Rates, clock cache.Clock) *Tracker {
	return &Tracker{store: store, rates: rates.withDefaults(), clock: clock}
}

// Record appends one usage record for a completed operation.
//
// cost = (inputUnits/1000)*inputRate + (outputUnits/1000)*outputRate.
// A store failure is logged and swallowed; usage accounting must never block
// or fail the operation it meters.
func (t *Tracker) Record(ctx context.Context, tenantID, feature string, inputUnits, outputUnits int) datatypes.UsageRecord {
	rec := datatypes.UsageRecord{
		TenantID:    tenantID,
		Feature:     feature,
		InputUnits:  inputUnits,
		OutputUnits: outputUnits,
		Cost:        t.Cost(inputUnits, outputUnits),
		Timestamp:   t.clock.Now(),
	}

	if err := t.store.Append(ctx, rec); err != nil {
		slog.Error("usage record write failed, continuing",
			"tenant_id", tenantID,
			"feature", feature,
			"error", err)
	}
	return rec
}

// Cost computes the cost of a unit consumption without recording it.
func (t *Tracker) Cost(inputUnits, outputUnits int) float64 {
	return float64(inputUnits)/1000*t.rates.InputPerThousand +
		float64(outputUnits)/1000*t.rates.OutputPerThousand
}

// Summarize aggregates the tenant's records over the trailing periodDays.
func (t *Tracker) Summarize(ctx context.Context, tenantID string, periodDays int) (datatypes.UsageSummary, error) {
	if periodDays <= 0 {
		periodDays = 30
	}
	since := t.clock.Now().AddDate(0, 0, -periodDays)

	records, err := t.store.ListSince(ctx, tenantID, since)
	if err != nil {
		return datatypes.UsageSummary{}, err
	}

	summary := datatypes.UsageSummary{
		TenantID:   tenantID,
		PeriodDays: periodDays,
		ByFeature:  make(map[string]datatypes.FeatureUsage),
	}
	for _, rec := range records {
		summary.RequestCount++
		summary.TotalInputUnits += rec.InputUnits
		summary.TotalOutputUnits += rec.OutputUnits
		summary.TotalCost += rec.Cost

		f := summary.ByFeature[rec.Feature]
		f.Requests++
		f.InputUnits += rec.InputUnits
		f.OutputUnits += rec.OutputUnits
		f.Cost += rec.Cost
		summary.ByFeature[rec.Feature] = f
	}
	return summary, nil
}
