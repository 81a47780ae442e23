// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package risk implements rule-based turnover scoring and narrative insight
// generation for the insights service.
//
// # Insight state machine
//
// Narrative generation is modeled as an explicit state machine rather than
// nested error handling, so every terminal state is enumerable and testable:
//
//	NotAttempted ──► RateLimited            (terminal: budget message)
//	             ──► BackendUnavailable ──► FallbackProduced (terminal)
//	             ──► BackendCalled      ──► Success          (terminal)
//	                                    ──► BackendError ──► FallbackProduced (terminal)
//
// The fallback path is deterministic and never skipped just because a backend
// call was attempted: any backend failure lands in FallbackProduced.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luminahr/lumina/services/insights/aggregate"
	"github.com/luminahr/lumina/services/insights/cache"
	"github.com/luminahr/lumina/services/insights/datatypes"
	"github.com/luminahr/lumina/services/insights/ratelimit"
	"github.com/luminahr/lumina/services/insights/usage"
	"github.com/luminahr/lumina/services/llm"
)

// State is one node of the insight state machine.
type State string

const (
	StateNotAttempted       State = "not_attempted"
	StateRateLimited        State = "rate_limited"
	StateBackendUnavailable State = "backend_unavailable"
	StateBackendCalled      State = "backend_called"
	StateBackendError       State = "backend_error"
	StateFallbackProduced   State = "fallback_produced"
	StateSuccess            State = "success"
)

// Terminal reports whether the state ends a request.
func (s State) Terminal() bool {
	switch s {
	case StateRateLimited, StateFallbackProduced, StateSuccess:
		return true
	}
	return false
}

// Source identifies what produced a narrative.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// InsightResult is the outcome of one insight generation request.
type InsightResult struct {
	State     State                       `json:"state"`
	Source    string                      `json:"source"`
	Narrative string                      `json:"narrative"`
	Profiles  []datatypes.RiskProfile     `json:"profiles"`
	RateLimit *ratelimit.Decision         `json:"rate_limit,omitempty"`
	Streams   map[datatypes.Stream]string `json:"-"`
}

// callTimeout bounds the model backend call so the fallback path stays
// reachable under backend unresponsiveness.
const callTimeout = 20 * time.Second

// maxConversationTurns bounds the in-memory chat history per conversation.
const maxConversationTurns = 20

// Engine composes scoring, rate limiting, usage metering, and the optional
// model backend. Client may be nil; every model-dependent path then produces
// the deterministic fallback.
type Engine struct {
	config  ScoringConfig
	limiter *ratelimit.Limiter
	tracker *usage.Tracker
	client  llm.LLMClient
	clock   cache.Clock

	convMu        sync.Mutex
	conversations map[string]*datatypes.Conversation
}

// NewEngine creates an Engine. limiter and tracker are required; client may
// be nil when no backend is configured.
func NewEngine(config ScoringConfig, limiter *ratelimit.Limiter, tracker *usage.Tracker, client llm.LLMClient) *Engine {
	return NewEngineWithClock(config, limiter, tracker, client, cache.SystemClock())
}

// NewEngineWithClock creates an Engine with an injected clock for tests.
func NewEngineWithClock(config ScoringConfig, limiter *ratelimit.Limiter, tracker *usage.Tracker, client llm.LLMClient, clock cache.Clock) *Engine {
	return &Engine{
		config:        config.withDefaults(),
		limiter:       limiter,
		tracker:       tracker,
		client:        client,
		clock:         clock,
		conversations: make(map[string]*datatypes.Conversation),
	}
}

// ConfigVersion reports the active scoring model revision.
func (e *Engine) ConfigVersion() int { return e.config.Version }

// ScoreSubjects computes a RiskProfile for every roster entry in the bundle,
// or only the named subject when subjectID is non-empty.
//
// Scoring is additive and capped: each triggered factor adds its fixed point
// value and the final score is min(100, sum). Results are sorted descending
// by score; ties keep stable roster order.
func (e *Engine) ScoreSubjects(bundle *aggregate.Bundle, subjectID string) []datatypes.RiskProfile {
	now := e.clock.Now()
	factors := defaultFactors(e.config)

	profiles := make([]datatypes.RiskProfile, 0, len(bundle.Roster))
	for _, emp := range bundle.Roster {
		if subjectID != "" && emp.ID != subjectID {
			continue
		}
		in := subjectInput{
			employee:     emp,
			competency:   samplesFor(bundle.Competency, emp.ID),
			psychosocial: samplesFor(bundle.Psychosocial, emp.ID),
			tenureMonths: emp.TenureMonths(now),
		}

		profile := datatypes.RiskProfile{
			SubjectID:   emp.ID,
			SubjectName: emp.Name,
		}
		var sum float64
		triggered := 0
		for _, def := range factors {
			hit, reason := def.condition(e.config, in)
			factor := datatypes.RiskFactor{Name: def.name}
			if hit {
				factor.Triggered = true
				factor.ContributionScore = def.points
				factor.Reason = reason
				sum += def.points
				triggered++
				profile.Interventions = append(profile.Interventions, Interventions(def.name)...)
			}
			profile.Factors = append(profile.Factors, factor)
		}

		profile.RiskPercentage = sum
		if profile.RiskPercentage > 100 {
			profile.RiskPercentage = 100
		}
		profile.Confidence = 0.5 + 0.1*float64(triggered)
		if profile.Confidence > 0.9 {
			profile.Confidence = 0.9
		}
		profiles = append(profiles, profile)
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].RiskPercentage > profiles[j].RiskPercentage
	})
	return profiles
}

// GenerateInsights runs the insight state machine for the tenant over the
// aggregated bundle. It never returns an error: every failure mode has a
// defined degraded output.
func (e *Engine) GenerateInsights(ctx context.Context, tenantID string, bundle *aggregate.Bundle) InsightResult {
	profiles := e.ScoreSubjects(bundle, "")
	res := InsightResult{State: StateNotAttempted, Profiles: profiles}

	if e.client == nil {
		res.State = StateBackendUnavailable
		return e.produceFallback(res, bundle)
	}

	decision := e.limiter.Allow(tenantID)
	if !decision.Allowed {
		res.State = StateRateLimited
		res.RateLimit = &decision
		res.Source = SourceFallback
		res.Narrative = fmt.Sprintf(
			"Insight budget exhausted for this hour. The budget resets at %s.",
			decision.ResetAt.UTC().Format(time.RFC3339))
		return res
	}

	res.State = StateBackendCalled
	prompt := buildContextSummary(bundle, profiles)

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	narrative, err := e.client.Generate(callCtx, prompt, llm.GenerationParams{})
	if err != nil || narrative == "" {
		if err != nil {
			slog.Warn("insight backend call failed, using fallback",
				"tenant_id", tenantID, "error", err)
		} else {
			slog.Warn("insight backend returned empty narrative, using fallback",
				"tenant_id", tenantID)
		}
		res.State = StateBackendError
		return e.produceFallback(res, bundle)
	}

	e.tracker.Record(ctx, tenantID, "insights", estimateUnits(prompt), estimateUnits(narrative))
	res.State = StateSuccess
	res.Source = SourceModel
	res.Narrative = narrative
	return res
}

// produceFallback transitions any non-terminal failure state to
// FallbackProduced with the deterministic narrative.
func (e *Engine) produceFallback(res InsightResult, bundle *aggregate.Bundle) InsightResult {
	res.Narrative = FallbackNarrative(bundle, res.Profiles)
	res.Source = SourceFallback
	res.State = StateFallbackProduced
	return res
}

// Chat answers one conversational turn for the tenant. It shares the insight
// state machine: rate limiting gates the backend call, and any backend
// failure or absence yields the deterministic fallback response. Chat never
// returns an error.
func (e *Engine) Chat(ctx context.Context, tenantID, message, conversationID string, bundle *aggregate.Bundle) (datatypes.ChatResult, State) {
	conv := e.conversation(tenantID, conversationID)

	userMsg := datatypes.Message{Role: "user", Content: message}
	if err := userMsg.Validate(); err != nil {
		return datatypes.ChatResult{
			ConversationID: conv.ID,
			Response:       "That message could not be processed. Please keep questions under 4KB.",
		}, StateFallbackProduced
	}
	e.appendMessage(conv, userMsg)

	profiles := e.ScoreSubjects(bundle, "")
	result := datatypes.ChatResult{
		ConversationID:   conv.ID,
		SuggestedActions: suggestedActions(profiles),
	}

	if e.client == nil {
		result.Response = FallbackChatResponse(bundle, profiles)
		e.appendMessage(conv, datatypes.Message{Role: "assistant", Content: result.Response})
		return result, StateFallbackProduced
	}

	decision := e.limiter.Allow(tenantID)
	if !decision.Allowed {
		result.Response = fmt.Sprintf(
			"The assistant budget for this hour is used up. It resets at %s.",
			decision.ResetAt.UTC().Format(time.RFC3339))
		e.appendMessage(conv, datatypes.Message{Role: "assistant", Content: result.Response})
		return result, StateRateLimited
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	history := e.historyWithContext(conv, bundle, profiles)
	answer, err := e.client.Chat(callCtx, history, llm.GenerationParams{})
	if err != nil || answer == "" {
		if err != nil {
			slog.Warn("chat backend call failed, using fallback",
				"tenant_id", tenantID, "error", err)
		}
		result.Response = FallbackChatResponse(bundle, profiles)
		e.appendMessage(conv, datatypes.Message{Role: "assistant", Content: result.Response})
		return result, StateFallbackProduced
	}

	var inputUnits int
	for _, m := range history {
		inputUnits += estimateUnits(m.Content)
	}
	e.tracker.Record(ctx, tenantID, "chat", inputUnits, estimateUnits(answer))

	result.Response = answer
	e.appendMessage(conv, datatypes.Message{Role: "assistant", Content: result.Response})
	return result, StateSuccess
}

// conversation resolves an existing conversation or mints a new one. A
// conversation belongs to one tenant; an ID from another tenant starts fresh.
func (e *Engine) conversation(tenantID, conversationID string) *datatypes.Conversation {
	e.convMu.Lock()
	defer e.convMu.Unlock()

	if conversationID != "" {
		if conv, ok := e.conversations[conversationID]; ok && conv.TenantID == tenantID {
			return conv
		}
	}
	conv := &datatypes.Conversation{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		CreatedAt: e.clock.Now(),
		UpdatedAt: e.clock.Now(),
	}
	e.conversations[conv.ID] = conv
	return conv
}

func (e *Engine) appendMessage(conv *datatypes.Conversation, msg datatypes.Message) {
	e.convMu.Lock()
	defer e.convMu.Unlock()

	conv.Messages = append(conv.Messages, msg)
	if len(conv.Messages) > maxConversationTurns {
		conv.Messages = conv.Messages[len(conv.Messages)-maxConversationTurns:]
	}
	conv.UpdatedAt = e.clock.Now()
}

// historyWithContext prefixes the conversation with a system message carrying
// the current workforce context.
func (e *Engine) historyWithContext(conv *datatypes.Conversation, bundle *aggregate.Bundle, profiles []datatypes.RiskProfile) []datatypes.Message {
	e.convMu.Lock()
	defer e.convMu.Unlock()

	history := make([]datatypes.Message, 0, len(conv.Messages)+1)
	history = append(history, datatypes.Message{
		Role:    "system",
		Content: "Workforce context:\n" + buildContextSummary(bundle, profiles),
	})
	history = append(history, conv.Messages...)
	return history
}

// samplesFor filters samples down to one subject, preserving order.
func samplesFor(samples []datatypes.AssessmentSample, subjectID string) []datatypes.AssessmentSample {
	var out []datatypes.AssessmentSample
	for _, s := range samples {
		if s.SubjectID == subjectID {
			out = append(out, s)
		}
	}
	return out
}

// estimateUnits approximates token units from text length. Four characters
// per unit matches the accounting granularity of the usage tracker.
func estimateUnits(text string) int {
	units := len(text) / 4
	if units == 0 && len(text) > 0 {
		units = 1
	}
	return units
}
