// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminahr/lumina/services/insights/datatypes"
)

type fixedClock struct{ now time.Time }

func (f fixedClock) Now() time.Time { return f.now }

// failingStore always fails writes; used to verify best-effort accounting.
type failingStore struct{}

func (failingStore) Append(context.Context, datatypes.UsageRecord) error {
	return errors.New("connection refused")
}

func (failingStore) ListSince(context.Context, string, time.Time) ([]datatypes.UsageRecord, error) {
	return nil, errors.New("connection refused")
}

func TestTracker_CostFormula(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), Rates{InputPerThousand: 0.0025, OutputPerThousand: 0.010})

	// (2000/1000)*0.0025 + (500/1000)*0.010 = 0.005 + 0.005
	assert.InDelta(t, 0.010, tr.Cost(2000, 500), 1e-9)
	assert.Zero(t, tr.Cost(0, 0))
}

func TestTracker_RecordAppends(t *testing.T) {
	store := NewMemoryStore()
	clk := fixedClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	tr := NewTrackerWithClock(store, DefaultRates(), clk)

	rec := tr.Record(context.Background(), "acme", "insights", 1200, 300)
	assert.Equal(t, "acme", rec.TenantID)
	assert.Equal(t, clk.now, rec.Timestamp)

	got, err := store.ListSince(context.Background(), "acme", clk.now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])
}

// TestTracker_RecordSurvivesStoreFailure: a failed persist is logged, never
// propagated, and still returns the computed record.
func TestTracker_RecordSurvivesStoreFailure(t *testing.T) {
	tr := NewTracker(failingStore{}, DefaultRates())

	rec := tr.Record(context.Background(), "acme", "chat", 100, 100)
	assert.Equal(t, "chat", rec.Feature)
	assert.Greater(t, rec.Cost, 0.0)
}

func TestTracker_Summarize(t *testing.T) {
	store := NewMemoryStore()
	clk := fixedClock{now: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)}
	tr := NewTrackerWithClock(store, DefaultRates(), clk)

	ctx := context.Background()
	tr.Record(ctx, "acme", "insights", 1000, 200)
	tr.Record(ctx, "acme", "insights", 500, 100)
	tr.Record(ctx, "acme", "chat", 300, 300)
	tr.Record(ctx, "globex", "chat", 9999, 9999) // other tenant

	summary, err := tr.Summarize(ctx, "acme", 30)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.RequestCount)
	assert.Equal(t, 1800, summary.TotalInputUnits)
	assert.Equal(t, 600, summary.TotalOutputUnits)
	require.Contains(t, summary.ByFeature, "insights")
	require.Contains(t, summary.ByFeature, "chat")
	assert.Equal(t, 2, summary.ByFeature["insights"].Requests)
	assert.Equal(t, 1, summary.ByFeature["chat"].Requests)
	assert.InDelta(t,
		summary.ByFeature["insights"].Cost+summary.ByFeature["chat"].Cost,
		summary.TotalCost, 1e-9)
}

func TestTracker_SummarizeWindowExcludesOldRecords(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	old := datatypes.UsageRecord{TenantID: "acme", Feature: "chat", Timestamp: now.AddDate(0, 0, -40)}
	require.NoError(t, store.Append(context.Background(), old))

	tr := NewTrackerWithClock(store, DefaultRates(), fixedClock{now: now})
	summary, err := tr.Summarize(context.Background(), "acme", 30)
	require.NoError(t, err)
	assert.Zero(t, summary.RequestCount)
}

func TestTracker_SummarizePropagatesStoreError(t *testing.T) {
	tr := NewTracker(failingStore{}, DefaultRates())
	_, err := tr.Summarize(context.Background(), "acme", 7)
	assert.Error(t, err)
}
