// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package risk

import (
	"fmt"
	"strings"

	"github.com/luminahr/lumina/services/insights/aggregate"
	"github.com/luminahr/lumina/services/insights/datatypes"
	"github.com/luminahr/lumina/services/insights/trend"
)

// highRiskThreshold marks a profile as high risk in summaries.
const highRiskThreshold = 50.0

var streamLabels = map[datatypes.Stream]string{
	datatypes.StreamCompetency:   "Competency",
	datatypes.StreamPsychosocial: "Psychosocial risk",
	datatypes.StreamPerformance:  "Performance",
}

// FallbackNarrative builds the deterministic insight text used whenever the
// model backend is absent or fails. Same bundle and profiles always produce
// byte-identical output.
func FallbackNarrative(bundle *aggregate.Bundle, profiles []datatypes.RiskProfile) string {
	var b strings.Builder
	b.WriteString("Workforce summary (generated without assistant):\n")

	for _, stream := range datatypes.Streams {
		samples := bundle.Stream(stream)
		metric := trend.MetricFor(stream)
		label := streamLabels[stream]
		if len(samples) == 0 {
			fmt.Fprintf(&b, "- %s: no assessment data in the reporting window.\n", label)
			continue
		}
		result := trend.Analyze(samples, metric)
		fmt.Fprintf(&b, "- %s: average %.2f across %d samples, trend %s.\n",
			label, trend.Average(samples, metric.Key), len(samples), describeTrend(result))
	}

	high := highRiskProfiles(profiles)
	switch {
	case len(profiles) == 0:
		b.WriteString("- No roster data available for turnover scoring.\n")
	case len(high) == 0:
		fmt.Fprintf(&b, "- None of the %d scored people are currently high turnover risk.\n", len(profiles))
	default:
		fmt.Fprintf(&b, "- %d of %d scored people are high turnover risk:\n", len(high), len(profiles))
		for _, p := range high {
			fmt.Fprintf(&b, "  - %s (%.0f%%): %s\n", p.SubjectName, p.RiskPercentage, triggeredFactorNames(p))
		}
	}
	return b.String()
}

// FallbackChatResponse is the deterministic assistant reply for degraded
// chat turns.
func FallbackChatResponse(bundle *aggregate.Bundle, profiles []datatypes.RiskProfile) string {
	var b strings.Builder
	b.WriteString("The assistant is currently unavailable, so here is a data summary instead.\n\n")
	b.WriteString(FallbackNarrative(bundle, profiles))
	b.WriteString("\nReview the suggested actions for the highest-risk people.")
	return b.String()
}

// buildContextSummary renders the bundle and scored profiles as a compact
// prompt context for the model backend.
func buildContextSummary(bundle *aggregate.Bundle, profiles []datatypes.RiskProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Roster: %d people.\n", len(bundle.Roster))

	for _, stream := range datatypes.Streams {
		samples := bundle.Stream(stream)
		metric := trend.MetricFor(stream)
		if len(samples) == 0 {
			fmt.Fprintf(&b, "%s: no data.\n", streamLabels[stream])
			continue
		}
		result := trend.Analyze(samples, metric)
		fmt.Fprintf(&b, "%s: avg %.2f over %d samples, trend %s (magnitude %.2f).\n",
			streamLabels[stream], trend.Average(samples, metric.Key), len(samples),
			result.Direction, result.Magnitude)
	}

	high := highRiskProfiles(profiles)
	fmt.Fprintf(&b, "High turnover risk: %d of %d scored.\n", len(high), len(profiles))
	for _, p := range high {
		fmt.Fprintf(&b, "- %s: %.0f%% (%s)\n", p.SubjectName, p.RiskPercentage, triggeredFactorNames(p))
	}
	return b.String()
}

// suggestedActions surfaces interventions from the highest-risk profiles,
// deduplicated in order.
func suggestedActions(profiles []datatypes.RiskProfile) []string {
	seen := make(map[string]bool)
	var actions []string
	for _, p := range highRiskProfiles(profiles) {
		for _, action := range p.Interventions {
			if seen[action] {
				continue
			}
			seen[action] = true
			actions = append(actions, action)
		}
	}
	if len(actions) == 0 {
		actions = []string{"Keep assessment cadence steady to maintain trend visibility."}
	}
	return actions
}

func highRiskProfiles(profiles []datatypes.RiskProfile) []datatypes.RiskProfile {
	var high []datatypes.RiskProfile
	for _, p := range profiles {
		if p.RiskPercentage >= highRiskThreshold {
			high = append(high, p)
		}
	}
	return high
}

func triggeredFactorNames(p datatypes.RiskProfile) string {
	var names []string
	for _, f := range p.Factors {
		if f.Triggered {
			names = append(names, f.Name)
		}
	}
	if len(names) == 0 {
		return "no triggered factors"
	}
	return strings.Join(names, ", ")
}

func describeTrend(r datatypes.TrendResult) string {
	switch r.Direction {
	case datatypes.TrendUp:
		return fmt.Sprintf("improving (%.2f)", r.Magnitude)
	case datatypes.TrendDown:
		return fmt.Sprintf("declining (%.2f)", r.Magnitude)
	default:
		return "stable"
	}
}
