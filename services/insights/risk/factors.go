// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package risk

import (
	"fmt"

	"github.com/luminahr/lumina/services/insights/datatypes"
	"github.com/luminahr/lumina/services/insights/trend"
)

// Factor names. Stable: they key the intervention catalog and appear in API
// responses.
const (
	FactorLowCompetency   = "low_competency"
	FactorPeakPsychRisk   = "peak_psychosocial_risk"
	FactorShortTenure     = "short_tenure"
	FactorAttritionWindow = "attrition_window"
)

// ScoringConfig holds the tuned constants of the turnover model. The point
// values are product-tuned; they are defaults here, overridable per tenant,
// and merged field-by-field over DefaultScoringConfig.
type ScoringConfig struct {
	// Version identifies the scoring model revision in API responses.
	Version int

	// LowCompetencyThreshold triggers FactorLowCompetency when the subject's
	// competency average falls below it. Default: 2.5 on the 0-5 scale.
	LowCompetencyThreshold float64

	// LowCompetencyPoints is that factor's contribution. Default: 30.
	LowCompetencyPoints float64

	// MaxSeverity is the top of the psychosocial severity scale. A latest
	// reading at or above it triggers FactorPeakPsychRisk. Default: 4.
	MaxSeverity float64

	// PeakPsychRiskPoints is that factor's contribution. Default: 35.
	PeakPsychRiskPoints float64

	// ShortTenureMonths triggers FactorShortTenure for tenure strictly under
	// it. Default: 6.
	ShortTenureMonths int

	// ShortTenurePoints is that factor's contribution. Default: 15.
	ShortTenurePoints float64

	// AttritionWindowStart/End bound the tenure window (inclusive, months)
	// where attrition historically spikes. Defaults: 24-36.
	AttritionWindowStart int
	AttritionWindowEnd   int

	// AttritionWindowPoints is that factor's contribution. Default: 20.
	AttritionWindowPoints float64
}

// DefaultScoringConfig returns the production defaults of the scoring model.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Version:                1,
		LowCompetencyThreshold: 2.5,
		LowCompetencyPoints:    30,
		MaxSeverity:            4,
		PeakPsychRiskPoints:    35,
		ShortTenureMonths:      6,
		ShortTenurePoints:      15,
		AttritionWindowStart:   24,
		AttritionWindowEnd:     36,
		AttritionWindowPoints:  20,
	}
}

// withDefaults merges zero-valued fields over the defaults, field by field.
func (c ScoringConfig) withDefaults() ScoringConfig {
	def := DefaultScoringConfig()
	if c.Version == 0 {
		c.Version = def.Version
	}
	if c.LowCompetencyThreshold == 0 {
		c.LowCompetencyThreshold = def.LowCompetencyThreshold
	}
	if c.LowCompetencyPoints == 0 {
		c.LowCompetencyPoints = def.LowCompetencyPoints
	}
	if c.MaxSeverity == 0 {
		c.MaxSeverity = def.MaxSeverity
	}
	if c.PeakPsychRiskPoints == 0 {
		c.PeakPsychRiskPoints = def.PeakPsychRiskPoints
	}
	if c.ShortTenureMonths == 0 {
		c.ShortTenureMonths = def.ShortTenureMonths
	}
	if c.ShortTenurePoints == 0 {
		c.ShortTenurePoints = def.ShortTenurePoints
	}
	if c.AttritionWindowStart == 0 {
		c.AttritionWindowStart = def.AttritionWindowStart
	}
	if c.AttritionWindowEnd == 0 {
		c.AttritionWindowEnd = def.AttritionWindowEnd
	}
	if c.AttritionWindowPoints == 0 {
		c.AttritionWindowPoints = def.AttritionWindowPoints
	}
	return c
}

// interventionCatalog maps a triggered factor to suggested interventions.
// Static lookup: not learned, not randomized.
var interventionCatalog = map[string][]string{
	FactorLowCompetency: {
		"Schedule a skills development plan with the direct manager",
		"Pair with a senior mentor for the next review cycle",
	},
	FactorPeakPsychRisk: {
		"Arrange a confidential wellbeing check-in within the week",
		"Review current workload and deadline pressure",
	},
	FactorShortTenure: {
		"Strengthen onboarding touchpoints for the first six months",
		"Assign an onboarding buddy",
	},
	FactorAttritionWindow: {
		"Discuss growth and promotion path proactively",
		"Review compensation against market benchmarks",
	},
}

// Interventions returns the catalog entries for a factor name. Unknown
// factors return nil.
func Interventions(factor string) []string {
	return interventionCatalog[factor]
}

// subjectInput carries everything factor conditions look at for one subject.
type subjectInput struct {
	employee     datatypes.Employee
	competency   []datatypes.AssessmentSample
	psychosocial []datatypes.AssessmentSample
	tenureMonths int
}

// factorDef is one configured condition with its point value. Definitions are
// evaluated in stable order.
type factorDef struct {
	name      string
	points    float64
	condition func(cfg ScoringConfig, in subjectInput) (bool, string)
}

// defaultFactors returns the configured factor set in evaluation order.
func defaultFactors(cfg ScoringConfig) []factorDef {
	return []factorDef{
		{
			name:   FactorLowCompetency,
			points: cfg.LowCompetencyPoints,
			condition: func(cfg ScoringConfig, in subjectInput) (bool, string) {
				if len(in.competency) == 0 {
					return false, ""
				}
				avg := trend.Average(in.competency, "score")
				if avg >= cfg.LowCompetencyThreshold {
					return false, ""
				}
				return true, fmt.Sprintf("competency average %.1f is below the %.1f threshold",
					avg, cfg.LowCompetencyThreshold)
			},
		},
		{
			name:   FactorPeakPsychRisk,
			points: cfg.PeakPsychRiskPoints,
			condition: func(cfg ScoringConfig, in subjectInput) (bool, string) {
				latest, ok := trend.Latest(in.psychosocial, "score")
				if !ok || latest < cfg.MaxSeverity {
					return false, ""
				}
				return true, fmt.Sprintf("latest psychosocial reading is at maximum severity (%.0f)",
					cfg.MaxSeverity)
			},
		},
		{
			name:   FactorShortTenure,
			points: cfg.ShortTenurePoints,
			condition: func(cfg ScoringConfig, in subjectInput) (bool, string) {
				if in.tenureMonths >= cfg.ShortTenureMonths {
					return false, ""
				}
				return true, fmt.Sprintf("tenure of %d months is under the %d-month onboarding horizon",
					in.tenureMonths, cfg.ShortTenureMonths)
			},
		},
		{
			name:   FactorAttritionWindow,
			points: cfg.AttritionWindowPoints,
			condition: func(cfg ScoringConfig, in subjectInput) (bool, string) {
				if in.tenureMonths < cfg.AttritionWindowStart || in.tenureMonths > cfg.AttritionWindowEnd {
					return false, ""
				}
				return true, fmt.Sprintf("tenure of %d months falls in the %d-%d month attrition window",
					in.tenureMonths, cfg.AttritionWindowStart, cfg.AttritionWindowEnd)
			},
		},
	}
}
