// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// TrendDirection classifies the movement of a metric over time.
//
// "up" always means the situation improved: for inverted-polarity metrics
// (where a lower raw value is better, e.g. psychosocial risk) the labels are
// swapped by the trend engine so consumers never have to re-interpret signs.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// TrendResult is the derived direction and magnitude for one metric.
// Never persisted; recomputed on demand.
type TrendResult struct {
	Direction TrendDirection `json:"direction"`
	Magnitude float64        `json:"magnitude"`
}

// ProjectionPoint is one future period in a forecast.
type ProjectionPoint struct {
	PeriodLabel    string  `json:"period_label"`
	PredictedValue float64 `json:"predicted_value"`
	ConfidenceLow  float64 `json:"confidence_low"`
	ConfidenceHigh float64 `json:"confidence_high"`
}

// Forecast is a multi-period projection derived from a trend. Derived per
// request, never stored.
type Forecast struct {
	CurrentValue float64           `json:"current_value"`
	Projections  []ProjectionPoint `json:"projections"`
	TrendSummary TrendResult       `json:"trend_summary"`
}

// StreamSummary condenses one assessment stream for the dashboard.
type StreamSummary struct {
	Stream      Stream      `json:"stream"`
	SampleCount int         `json:"sample_count"`
	Average     float64     `json:"average"`
	Latest      float64     `json:"latest"`
	Trend       TrendResult `json:"trend"`
}

// DashboardSnapshot is the aggregate root for one tenant at one point in
// time: summaries of all three streams, roster counts, and open-item counts.
// Fully derived and cached with a short TTL; invalidated by explicit refresh
// or TTL expiry.
type DashboardSnapshot struct {
	TenantID      string                   `json:"tenant_id"`
	TeamID        string                   `json:"team_id,omitempty"`
	GeneratedAt   time.Time                `json:"generated_at"`
	Streams       map[Stream]StreamSummary `json:"streams"`
	RosterCount   int                      `json:"roster_count"`
	ActiveCount   int                      `json:"active_count"`
	UnreadAlerts  int                      `json:"unread_alerts"`
	HighRiskCount int                      `json:"high_risk_count"`
}
