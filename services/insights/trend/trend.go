// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package trend implements the pure trend and forecast engine. It performs no
// I/O: callers hand it ordered samples and a metric definition, and it returns
// direction, magnitude, and clamped multi-period projections.
package trend

import (
	"fmt"
	"math"
	"sort"

	"github.com/luminahr/lumina/services/insights/datatypes"
)

// stableThreshold is the magnitude below which a trend reads as stable.
const stableThreshold = 0.1

// confidenceBand is the relative width of the forecast confidence interval.
const confidenceBand = 0.10

// Metric defines how to reduce a sample to one scalar and how to interpret
// the result.
//
// InvertPolarity marks metrics where a lower raw value is better (e.g. a risk
// severity index). For those, the up/down labels are swapped so that "up"
// always means the situation improved, regardless of raw sign.
type Metric struct {
	// Key selects the value inside AssessmentSample.Metrics. Samples missing
	// the key are skipped.
	Key string

	// DomainMin and DomainMax bound forecast projections (e.g. 0-5 for
	// competency scores, 0-100 for percentages).
	DomainMin float64
	DomainMax float64

	// InvertPolarity swaps the up/down trend labels.
	InvertPolarity bool
}

// MetricFor returns the canonical metric definition for an assessment stream.
// Every stream records its index under the "score" field; the psychosocial
// stream is a 1-4 severity where lower is better, so its polarity is
// inverted.
func MetricFor(stream datatypes.Stream) Metric {
	if stream == datatypes.StreamPsychosocial {
		return Metric{Key: "score", DomainMin: 1, DomainMax: 4, InvertPolarity: true}
	}
	return Metric{Key: "score", DomainMin: 0, DomainMax: 5}
}

// Analyze computes the trend over the given samples.
//
// Samples are sorted ascending by timestamp, split into halves (integer floor
// split), and the magnitude is mean(second half) - mean(first half). Fewer
// than two usable samples yield a stable trend with zero magnitude.
func Analyze(samples []datatypes.AssessmentSample, m Metric) datatypes.TrendResult {
	values := sortedValues(samples, m.Key)
	if len(values) < 2 {
		return datatypes.TrendResult{Direction: datatypes.TrendStable, Magnitude: 0}
	}

	half := len(values) / 2
	magnitude := mean(values[half:]) - mean(values[:half])

	return datatypes.TrendResult{
		Direction: classify(magnitude, m.InvertPolarity),
		Magnitude: magnitude,
	}
}

// Project forecasts the metric for the given number of future periods.
//
// Each period extrapolates linearly from the current value by the trend
// magnitude and clamps to the metric's domain. The confidence interval is a
// +/-10% band around the prediction, also clamped.
func Project(current, magnitude float64, periods int, m Metric) datatypes.Forecast {
	f := datatypes.Forecast{
		CurrentValue: current,
		Projections:  make([]datatypes.ProjectionPoint, 0, periods),
		TrendSummary: datatypes.TrendResult{
			Direction: classify(magnitude, m.InvertPolarity),
			Magnitude: magnitude,
		},
	}

	for i := 1; i <= periods; i++ {
		predicted := clamp(current+magnitude*float64(i), m.DomainMin, m.DomainMax)
		f.Projections = append(f.Projections, datatypes.ProjectionPoint{
			PeriodLabel:    fmt.Sprintf("Month %d", i),
			PredictedValue: predicted,
			ConfidenceLow:  clamp(predicted*(1-confidenceBand), m.DomainMin, m.DomainMax),
			ConfidenceHigh: clamp(predicted*(1+confidenceBand), m.DomainMin, m.DomainMax),
		})
	}
	return f
}

// Average returns the mean of the metric over all samples carrying it, or 0
// when none do.
func Average(samples []datatypes.AssessmentSample, key string) float64 {
	var sum float64
	n := 0
	for _, s := range samples {
		if v, ok := s.Metric(key); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Latest returns the metric value of the chronologically last sample carrying
// it, or (0, false) when none do.
func Latest(samples []datatypes.AssessmentSample, key string) (float64, bool) {
	ordered := sortByTime(samples)
	for i := len(ordered) - 1; i >= 0; i-- {
		if v, ok := ordered[i].Metric(key); ok {
			return v, true
		}
	}
	return 0, false
}

func classify(magnitude float64, invert bool) datatypes.TrendDirection {
	if math.Abs(magnitude) < stableThreshold {
		return datatypes.TrendStable
	}
	improving := magnitude > 0
	if invert {
		improving = !improving
	}
	if improving {
		return datatypes.TrendUp
	}
	return datatypes.TrendDown
}

// sortedValues extracts the metric from each sample in chronological order.
func sortedValues(samples []datatypes.AssessmentSample, key string) []float64 {
	ordered := sortByTime(samples)
	values := make([]float64, 0, len(ordered))
	for _, s := range ordered {
		if v, ok := s.Metric(key); ok {
			values = append(values, v)
		}
	}
	return values
}

func sortByTime(samples []datatypes.AssessmentSample) []datatypes.AssessmentSample {
	ordered := make([]datatypes.AssessmentSample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})
	return ordered
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
