// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared data shapes for the insights service:
// assessment samples, roster entries, dashboard snapshots, risk profiles,
// notifications, and usage records. These types cross package boundaries and
// are kept free of behavior beyond small convenience accessors.
package datatypes

import "time"

// Stream identifies one of the three periodic assessment data sources.
type Stream string

const (
	// StreamCompetency is the competency/collaboration index stream (0-5 scale).
	StreamCompetency Stream = "competency"

	// StreamPsychosocial is the psychosocial-risk index stream (1-4 severity
	// scale, higher is worse).
	StreamPsychosocial Stream = "psychosocial"

	// StreamPerformance is the operational-performance index stream (0-5 scale).
	StreamPerformance Stream = "performance"
)

// Streams lists all assessment streams in stable order.
var Streams = []Stream{StreamCompetency, StreamPsychosocial, StreamPerformance}

// AssessmentSample is one recorded data point from one assessment stream.
//
// Samples are immutable once recorded. They are created by the assessment
// submission flow elsewhere in the platform; this service only reads them.
type AssessmentSample struct {
	SubjectID string             `json:"subject_id"`
	TeamID    string             `json:"team_id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Metric returns the named metric value, or (0, false) if absent.
func (s AssessmentSample) Metric(key string) (float64, bool) {
	v, ok := s.Metrics[key]
	return v, ok
}

// Employee is one roster entry for a tenant.
type Employee struct {
	ID      string    `json:"id"`
	TeamID  string    `json:"team_id,omitempty"`
	Name    string    `json:"name"`
	Role    string    `json:"role,omitempty"`
	HiredAt time.Time `json:"hired_at"`
	Active  bool      `json:"active"`
}

// TenureMonths returns the employee's tenure in whole months as of now.
func (e Employee) TenureMonths(now time.Time) int {
	if e.HiredAt.IsZero() || e.HiredAt.After(now) {
		return 0
	}
	months := int(now.Sub(e.HiredAt).Hours() / (24 * 30.44))
	return months
}
