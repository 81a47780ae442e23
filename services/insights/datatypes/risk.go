// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// RiskFactor is one evaluated condition contributing to a subject's turnover
// risk. ContributionScore is the factor's fixed point value when triggered,
// zero otherwise.
type RiskFactor struct {
	Name              string  `json:"name"`
	Triggered         bool    `json:"triggered"`
	ContributionScore float64 `json:"contribution_score"`
	Reason            string  `json:"reason,omitempty"`
}

// RiskProfile is the computed turnover risk for one subject.
//
// RiskPercentage is additive over triggered factors and capped at 100.
// Computed fresh per request; never cached beyond the dashboard TTL.
type RiskProfile struct {
	SubjectID      string       `json:"subject_id"`
	SubjectName    string       `json:"subject_name,omitempty"`
	RiskPercentage float64      `json:"risk_percentage"`
	Factors        []RiskFactor `json:"factors"`
	Interventions  []string     `json:"interventions"`
	Confidence     float64      `json:"confidence"`
}

// TurnoverReport is the response of a turnover prediction request: scored
// profiles (descending by risk) plus a forecast per assessment stream.
type TurnoverReport struct {
	TenantID       string              `json:"tenant_id"`
	TeamID         string              `json:"team_id,omitempty"`
	GeneratedAt    time.Time           `json:"generated_at"`
	ScoringVersion int                 `json:"scoring_version"`
	Profiles       []RiskProfile       `json:"profiles"`
	Forecasts      map[Stream]Forecast `json:"forecasts"`
}
