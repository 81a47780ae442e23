// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// UsageRecord is one append-only accounting entry for a completed
// model-backed operation.
type UsageRecord struct {
	TenantID    string    `json:"tenant_id"`
	Feature     string    `json:"feature"`
	InputUnits  int       `json:"input_units"`
	OutputUnits int       `json:"output_units"`
	Cost        float64   `json:"cost"`
	Timestamp   time.Time `json:"timestamp"`
}

// FeatureUsage is the per-feature slice of a usage summary.
type FeatureUsage struct {
	Requests    int     `json:"requests"`
	InputUnits  int     `json:"input_units"`
	OutputUnits int     `json:"output_units"`
	Cost        float64 `json:"cost"`
}

// UsageSummary aggregates usage records for a tenant over a window.
type UsageSummary struct {
	TenantID         string                  `json:"tenant_id"`
	PeriodDays       int                     `json:"period_days"`
	RequestCount     int                     `json:"request_count"`
	TotalInputUnits  int                     `json:"total_input_units"`
	TotalOutputUnits int                     `json:"total_output_units"`
	TotalCost        float64                 `json:"total_cost"`
	ByFeature        map[string]FeatureUsage `json:"by_feature"`
}
