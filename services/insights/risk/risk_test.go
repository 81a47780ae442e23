// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package risk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminahr/lumina/services/insights/aggregate"
	"github.com/luminahr/lumina/services/insights/datatypes"
	"github.com/luminahr/lumina/services/insights/ratelimit"
	"github.com/luminahr/lumina/services/insights/usage"
	"github.com/luminahr/lumina/services/llm"
)

// ====== Test Helpers ======

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// mockLLM is a scripted backend for state machine tests.
type mockLLM struct {
	response string
	err      error
	calls    int
}

func (m *mockLLM) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	m.calls++
	return m.response, m.err
}

func (m *mockLLM) Chat(_ context.Context, _ []datatypes.Message, _ llm.GenerationParams) (string, error) {
	m.calls++
	return m.response, m.err
}

var _ llm.LLMClient = (*mockLLM)(nil)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// hiredMonthsAgo places a hire date so TenureMonths reports exactly m.
func hiredMonthsAgo(m int) time.Time {
	return testNow.Add(-time.Duration(float64(m)*30.44*24)*time.Hour - 48*time.Hour)
}

func sample(subjectID string, ts time.Time, score float64) datatypes.AssessmentSample {
	return datatypes.AssessmentSample{
		SubjectID: subjectID,
		Timestamp: ts,
		Metrics:   map[string]float64{"score": score},
	}
}

func scoredSamples(subjectID string, scores ...float64) []datatypes.AssessmentSample {
	out := make([]datatypes.AssessmentSample, 0, len(scores))
	for i, s := range scores {
		out = append(out, sample(subjectID, testNow.Add(time.Duration(i)*time.Hour), s))
	}
	return out
}

func newTestEngine(cfg ScoringConfig, client llm.LLMClient, budget int) (*Engine, *usage.MemoryStore) {
	clock := newFakeClock(testNow)
	store := usage.NewMemoryStore()
	limiter := ratelimit.NewWithClock(ratelimit.Config{Budget: budget, Period: time.Hour}, clock)
	tracker := usage.NewTrackerWithClock(store, usage.Rates{}, clock)
	return NewEngineWithClock(cfg, limiter, tracker, client, clock), store
}

// healthyBundle has one tenured, well-scoring employee: no factors trigger.
func healthyBundle() *aggregate.Bundle {
	return &aggregate.Bundle{
		Competency:   scoredSamples("emp-1", 4.0, 4.2),
		Psychosocial: scoredSamples("emp-1", 2.0, 1.5),
		Performance:  scoredSamples("emp-1", 3.8),
		Roster: []datatypes.Employee{
			{ID: "emp-1", Name: "Dana", HiredAt: hiredMonthsAgo(12), Active: true},
		},
	}
}

// strugglingBundle has one employee triggering low competency and peak
// psychosocial risk (30 + 35 = 65).
func strugglingBundle() *aggregate.Bundle {
	return &aggregate.Bundle{
		Competency:   scoredSamples("emp-2", 2.0, 1.8),
		Psychosocial: scoredSamples("emp-2", 3.0, 4.0),
		Roster: []datatypes.Employee{
			{ID: "emp-2", Name: "Rey", HiredAt: hiredMonthsAgo(12), Active: true},
		},
	}
}

// ====== Scoring Tests ======

func TestScoreSubjectsZeroTriggeredFactorsIsZeroRisk(t *testing.T) {
	engine, _ := newTestEngine(ScoringConfig{}, nil, 50)

	profiles := engine.ScoreSubjects(healthyBundle(), "")
	require.Len(t, profiles, 1)

	p := profiles[0]
	assert.Equal(t, "emp-1", p.SubjectID)
	assert.Zero(t, p.RiskPercentage)
	assert.InDelta(t, 0.5, p.Confidence, 1e-9)
	assert.Len(t, p.Factors, 4)
	for _, f := range p.Factors {
		assert.False(t, f.Triggered, f.Name)
		assert.Zero(t, f.ContributionScore, f.Name)
	}
	assert.Empty(t, p.Interventions)
}

func TestScoreSubjectsAdditiveScoring(t *testing.T) {
	engine, _ := newTestEngine(ScoringConfig{}, nil, 50)

	profiles := engine.ScoreSubjects(strugglingBundle(), "")
	require.Len(t, profiles, 1)

	p := profiles[0]
	assert.Equal(t, 65.0, p.RiskPercentage)
	assert.InDelta(t, 0.7, p.Confidence, 1e-9)

	triggered := map[string]bool{}
	for _, f := range p.Factors {
		if f.Triggered {
			triggered[f.Name] = true
			assert.NotEmpty(t, f.Reason)
		}
	}
	assert.Equal(t, map[string]bool{FactorLowCompetency: true, FactorPeakPsychRisk: true}, triggered)
	assert.NotEmpty(t, p.Interventions)
}

func TestScoreSubjectsClampsAt100(t *testing.T) {
	cfg := ScoringConfig{LowCompetencyPoints: 70, PeakPsychRiskPoints: 70}
	engine, _ := newTestEngine(cfg, nil, 50)

	profiles := engine.ScoreSubjects(strugglingBundle(), "")
	require.Len(t, profiles, 1)
	assert.Equal(t, 100.0, profiles[0].RiskPercentage)
}

func TestScoreSubjectsConfidenceCappedAtPointNine(t *testing.T) {
	// Five imaginary factors would exceed the cap; with four the ceiling is
	// 0.9 exactly. Exercise the cap arithmetic with a tenure-window subject
	// triggering three factors.
	bundle := &aggregate.Bundle{
		Competency:   scoredSamples("emp-3", 1.0),
		Psychosocial: scoredSamples("emp-3", 4.0),
		Roster: []datatypes.Employee{
			{ID: "emp-3", Name: "Kai", HiredAt: hiredMonthsAgo(30), Active: true},
		},
	}
	engine, _ := newTestEngine(ScoringConfig{}, nil, 50)

	profiles := engine.ScoreSubjects(bundle, "")
	require.Len(t, profiles, 1)
	assert.Equal(t, 85.0, profiles[0].RiskPercentage)
	assert.InDelta(t, 0.8, profiles[0].Confidence, 1e-9)
}

func TestScoreSubjectsSortedDescendingStableTies(t *testing.T) {
	bundle := &aggregate.Bundle{
		Competency: append(scoredSamples("low-a", 1.0), scoredSamples("low-b", 1.2)...),
		Roster: []datatypes.Employee{
			{ID: "healthy", Name: "A", HiredAt: hiredMonthsAgo(12)},
			{ID: "low-a", Name: "B", HiredAt: hiredMonthsAgo(12)},
			{ID: "low-b", Name: "C", HiredAt: hiredMonthsAgo(12)},
		},
	}
	engine, _ := newTestEngine(ScoringConfig{}, nil, 50)

	profiles := engine.ScoreSubjects(bundle, "")
	require.Len(t, profiles, 3)
	// Equal scores keep roster order; the untriggered subject sorts last.
	assert.Equal(t, "low-a", profiles[0].SubjectID)
	assert.Equal(t, "low-b", profiles[1].SubjectID)
	assert.Equal(t, "healthy", profiles[2].SubjectID)
}

func TestScoreSubjectsFiltersBySubjectID(t *testing.T) {
	bundle := healthyBundle()
	bundle.Roster = append(bundle.Roster, datatypes.Employee{
		ID: "emp-9", Name: "Noa", HiredAt: hiredMonthsAgo(3),
	})
	engine, _ := newTestEngine(ScoringConfig{}, nil, 50)

	profiles := engine.ScoreSubjects(bundle, "emp-9")
	require.Len(t, profiles, 1)
	assert.Equal(t, "emp-9", profiles[0].SubjectID)
}

func TestFactorTenureBoundaries(t *testing.T) {
	cfg := DefaultScoringConfig()
	cases := []struct {
		months         int
		shortTenure    bool
		attritionRange bool
	}{
		{5, true, false},
		{6, false, false},
		{23, false, false},
		{24, false, true},
		{36, false, true},
		{37, false, false},
	}
	factors := defaultFactors(cfg)
	for _, tc := range cases {
		in := subjectInput{tenureMonths: tc.months}
		for _, def := range factors {
			hit, _ := def.condition(cfg, in)
			switch def.name {
			case FactorShortTenure:
				assert.Equal(t, tc.shortTenure, hit, "tenure %d", tc.months)
			case FactorAttritionWindow:
				assert.Equal(t, tc.attritionRange, hit, "tenure %d", tc.months)
			}
		}
	}
}

func TestFactorLowCompetencyRequiresData(t *testing.T) {
	cfg := DefaultScoringConfig()
	for _, def := range defaultFactors(cfg) {
		if def.name != FactorLowCompetency {
			continue
		}
		hit, _ := def.condition(cfg, subjectInput{tenureMonths: 12})
		assert.False(t, hit, "no competency data must not trigger the factor")
	}
}

// ====== Insight State Machine Tests ======

func TestGenerateInsightsNoBackendProducesFallback(t *testing.T) {
	engine, _ := newTestEngine(ScoringConfig{}, nil, 50)

	res := engine.GenerateInsights(context.Background(), "tenant-a", strugglingBundle())

	assert.Equal(t, StateFallbackProduced, res.State)
	assert.True(t, res.State.Terminal())
	assert.Equal(t, SourceFallback, res.Source)
	assert.NotEmpty(t, res.Narrative)
	assert.NotEmpty(t, res.Profiles)
}

func TestGenerateInsightsNoBackendDoesNotConsumeBudget(t *testing.T) {
	engine, _ := newTestEngine(ScoringConfig{}, nil, 3)

	for i := 0; i < 10; i++ {
		res := engine.GenerateInsights(context.Background(), "tenant-a", healthyBundle())
		assert.Equal(t, StateFallbackProduced, res.State)
		assert.Nil(t, res.RateLimit)
	}
	assert.Equal(t, 3, engine.limiter.Remaining("tenant-a"))
}

func TestGenerateInsightsSuccess(t *testing.T) {
	backend := &mockLLM{response: "Competency is trending down for two people."}
	engine, store := newTestEngine(ScoringConfig{}, backend, 50)

	res := engine.GenerateInsights(context.Background(), "tenant-a", strugglingBundle())

	assert.Equal(t, StateSuccess, res.State)
	assert.Equal(t, SourceModel, res.Source)
	assert.Equal(t, backend.response, res.Narrative)
	assert.Equal(t, 1, backend.calls)

	records, err := store.ListSince(context.Background(), "tenant-a", testNow.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "insights", records[0].Feature)
	assert.Positive(t, records[0].OutputUnits)
}

func TestGenerateInsightsBackendErrorFallsBack(t *testing.T) {
	backend := &mockLLM{err: errors.New("connection refused")}
	engine, store := newTestEngine(ScoringConfig{}, backend, 50)

	res := engine.GenerateInsights(context.Background(), "tenant-a", strugglingBundle())

	assert.Equal(t, StateFallbackProduced, res.State)
	assert.Equal(t, SourceFallback, res.Source)
	assert.NotEmpty(t, res.Narrative)

	// Failed calls are not metered.
	records, err := store.ListSince(context.Background(), "tenant-a", testNow.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGenerateInsightsRateLimited(t *testing.T) {
	backend := &mockLLM{response: "ok"}
	engine, _ := newTestEngine(ScoringConfig{}, backend, 2)

	for i := 0; i < 2; i++ {
		res := engine.GenerateInsights(context.Background(), "tenant-a", healthyBundle())
		assert.Equal(t, StateSuccess, res.State)
	}

	res := engine.GenerateInsights(context.Background(), "tenant-a", healthyBundle())
	assert.Equal(t, StateRateLimited, res.State)
	require.NotNil(t, res.RateLimit)
	assert.Zero(t, res.RateLimit.Remaining)
	assert.Contains(t, res.Narrative, res.RateLimit.ResetAt.UTC().Format(time.RFC3339))
	assert.Equal(t, 2, backend.calls)
	// Scored profiles are still returned when the budget is gone.
	assert.NotEmpty(t, res.Profiles)
}

func TestFallbackNarrativeIsDeterministic(t *testing.T) {
	engine, _ := newTestEngine(ScoringConfig{}, nil, 50)

	first := engine.GenerateInsights(context.Background(), "tenant-a", strugglingBundle())
	second := engine.GenerateInsights(context.Background(), "tenant-a", strugglingBundle())
	assert.Equal(t, first.Narrative, second.Narrative)
	assert.Contains(t, first.Narrative, "Rey")
}

// ====== Chat Tests ======

func TestChatNoBackendNeverErrors(t *testing.T) {
	engine, _ := newTestEngine(ScoringConfig{}, nil, 50)

	result, state := engine.Chat(context.Background(), "tenant-a", "who is at risk?", "", strugglingBundle())

	assert.Equal(t, StateFallbackProduced, state)
	assert.NotEmpty(t, result.ConversationID)
	assert.NotEmpty(t, result.Response)
	assert.NotEmpty(t, result.SuggestedActions)
}

func TestChatRejectsOversizedMessage(t *testing.T) {
	backend := &mockLLM{response: "should not be reached"}
	engine, _ := newTestEngine(ScoringConfig{}, backend, 50)

	huge := strings.Repeat("x", datatypes.MaxMessageContentBytes+1)
	result, state := engine.Chat(context.Background(), "tenant-a", huge, "", healthyBundle())

	assert.Equal(t, StateFallbackProduced, state)
	assert.Contains(t, result.Response, "could not be processed")
	assert.Zero(t, backend.calls)
}

func TestChatContinuesConversation(t *testing.T) {
	backend := &mockLLM{response: "Two people need attention."}
	engine, _ := newTestEngine(ScoringConfig{}, backend, 50)

	first, state := engine.Chat(context.Background(), "tenant-a", "status?", "", healthyBundle())
	require.Equal(t, StateSuccess, state)

	second, _ := engine.Chat(context.Background(), "tenant-a", "and now?", first.ConversationID, healthyBundle())
	assert.Equal(t, first.ConversationID, second.ConversationID)

	conv := engine.conversations[first.ConversationID]
	require.NotNil(t, conv)
	// Two user turns and two assistant turns.
	assert.Len(t, conv.Messages, 4)
}

func TestChatConversationIsTenantScoped(t *testing.T) {
	engine, _ := newTestEngine(ScoringConfig{}, nil, 50)

	first, _ := engine.Chat(context.Background(), "tenant-a", "hello", "", healthyBundle())
	other, _ := engine.Chat(context.Background(), "tenant-b", "hello", first.ConversationID, healthyBundle())

	assert.NotEqual(t, first.ConversationID, other.ConversationID)
}

func TestChatHistoryIsBounded(t *testing.T) {
	backend := &mockLLM{response: "noted"}
	engine, _ := newTestEngine(ScoringConfig{}, backend, 1000)

	var convID string
	for i := 0; i < 30; i++ {
		result, _ := engine.Chat(context.Background(), "tenant-a", "ping", convID, healthyBundle())
		convID = result.ConversationID
	}
	assert.LessOrEqual(t, len(engine.conversations[convID].Messages), maxConversationTurns)
}

func TestChatRateLimitedReturnsBudgetMessage(t *testing.T) {
	backend := &mockLLM{response: "ok"}
	engine, _ := newTestEngine(ScoringConfig{}, backend, 1)

	_, state := engine.Chat(context.Background(), "tenant-a", "first", "", healthyBundle())
	require.Equal(t, StateSuccess, state)

	result, state := engine.Chat(context.Background(), "tenant-a", "second", "", healthyBundle())
	assert.Equal(t, StateRateLimited, state)
	assert.Contains(t, result.Response, "resets at")
	assert.Equal(t, 1, backend.calls)
}

// ====== Config Tests ======

func TestScoringConfigDefaults(t *testing.T) {
	cfg := ScoringConfig{}.withDefaults()
	assert.Equal(t, DefaultScoringConfig(), cfg)

	custom := ScoringConfig{LowCompetencyThreshold: 3.0}.withDefaults()
	assert.Equal(t, 3.0, custom.LowCompetencyThreshold)
	assert.Equal(t, 35.0, custom.PeakPsychRiskPoints)
}
