// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package insights

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/luminahr/lumina/services/insights/aggregate"
	"github.com/luminahr/lumina/services/insights/cache"
	"github.com/luminahr/lumina/services/insights/datatypes"
	"github.com/luminahr/lumina/services/insights/notify"
	"github.com/luminahr/lumina/services/insights/observability"
	"github.com/luminahr/lumina/services/insights/risk"
	"github.com/luminahr/lumina/services/insights/trend"
	"github.com/luminahr/lumina/services/insights/usage"
)

// forecastPeriods is how many future periods a turnover forecast projects.
const forecastPeriods = 3

// highRiskCutoff marks a profile as high risk in snapshot counts and
// refresh alerts.
const highRiskCutoff = 50.0

// EventDashboard is the live event type carrying a refreshed snapshot.
const EventDashboard = "dashboard"

// Engine composes the aggregator, trend engine, risk engine, usage tracker,
// and notification emitter into the tenant-facing operations. All
// collaborators are constructor-injected; there are no ambient singletons.
type Engine struct {
	config     Config
	aggregator *aggregate.Aggregator
	risk       *risk.Engine
	tracker    *usage.Tracker
	emitter    *notify.Emitter
	hub        *notify.Hub
	snapshots  *cache.Cache[datatypes.DashboardSnapshot]
	clock      cache.Clock
	metrics    *observability.EngineMetrics
}

// NewEngine wires the engine. hub and metrics may be nil.
func NewEngine(config Config, aggregator *aggregate.Aggregator, riskEngine *risk.Engine,
	tracker *usage.Tracker, emitter *notify.Emitter, hub *notify.Hub,
	metrics *observability.EngineMetrics) *Engine {
	return NewEngineWithClock(config, aggregator, riskEngine, tracker, emitter, hub,
		metrics, cache.SystemClock())
}

// NewEngineWithClock is NewEngine with an injected clock for tests.
func NewEngineWithClock(config Config, aggregator *aggregate.Aggregator, riskEngine *risk.Engine,
	tracker *usage.Tracker, emitter *notify.Emitter, hub *notify.Hub,
	metrics *observability.EngineMetrics, clock cache.Clock) *Engine {
	return &Engine{
		config:     config,
		aggregator: aggregator,
		risk:       riskEngine,
		tracker:    tracker,
		emitter:    emitter,
		hub:        hub,
		snapshots:  cache.NewWithClock[datatypes.DashboardSnapshot](clock),
		clock:      clock,
		metrics:    metrics,
	}
}

// Snapshots exposes the snapshot cache for background sweeping.
func (e *Engine) Snapshots() *cache.Cache[datatypes.DashboardSnapshot] { return e.snapshots }

// GetMetrics returns the tenant's dashboard snapshot, optionally scoped to a
// team. Within the snapshot TTL, repeated calls return the identical cached
// value; force bypasses and replaces the cached snapshot.
func (e *Engine) GetMetrics(ctx context.Context, tenantID, teamID string, force bool) datatypes.DashboardSnapshot {
	key := aggregate.CacheKey(tenantID, teamID)
	scope := "tenant"
	if teamID != "" {
		scope = "team"
	}

	if !force {
		if snapshot, ok := e.snapshots.Get(key); ok {
			if e.metrics != nil {
				e.metrics.RecordCacheEvent("snapshot", true)
				e.metrics.RecordDashboardBuild(scope, true)
			}
			return snapshot
		}
	} else {
		e.snapshots.Delete(key)
		e.aggregator.Invalidate(tenantID, teamID)
	}
	if e.metrics != nil {
		e.metrics.RecordCacheEvent("snapshot", false)
		e.metrics.RecordDashboardBuild(scope, false)
	}

	start := time.Now()
	snapshot := e.buildSnapshot(ctx, tenantID, teamID)
	if e.metrics != nil {
		e.metrics.DashboardBuildSeconds.Observe(time.Since(start).Seconds())
	}

	e.snapshots.Set(key, snapshot, e.config.SnapshotTTL())
	return snapshot
}

// buildSnapshot assembles a fresh snapshot: the three per-stream summarizers
// run concurrently over the aggregated bundle, then roster and open-item
// counts are attached.
func (e *Engine) buildSnapshot(ctx context.Context, tenantID, teamID string) datatypes.DashboardSnapshot {
	bundle := e.aggregator.Fetch(ctx, tenantID, teamID)

	snapshot := datatypes.DashboardSnapshot{
		TenantID:    tenantID,
		TeamID:      teamID,
		GeneratedAt: e.clock.Now().UTC(),
		Streams:     make(map[datatypes.Stream]datatypes.StreamSummary, len(datatypes.Streams)),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, stream := range datatypes.Streams {
		wg.Add(1)
		go func(stream datatypes.Stream) {
			defer wg.Done()
			summary := summarizeStream(stream, bundle.Stream(stream))
			mu.Lock()
			snapshot.Streams[stream] = summary
			mu.Unlock()
		}(stream)
	}
	wg.Wait()

	snapshot.RosterCount = len(bundle.Roster)
	for _, emp := range bundle.Roster {
		if emp.Active {
			snapshot.ActiveCount++
		}
	}

	for _, profile := range e.risk.ScoreSubjects(bundle, "") {
		if profile.RiskPercentage >= highRiskCutoff {
			snapshot.HighRiskCount++
		}
	}

	unread, err := e.emitter.UnreadCount(ctx, tenantID, "")
	if err != nil {
		// Open-item counts are decoration on the snapshot, not core data.
		slog.Warn("failed to count unread notifications for snapshot",
			"tenant_id", tenantID, "error", err)
	}
	snapshot.UnreadAlerts = unread

	return snapshot
}

func summarizeStream(stream datatypes.Stream, samples []datatypes.AssessmentSample) datatypes.StreamSummary {
	metric := trend.MetricFor(stream)
	summary := datatypes.StreamSummary{
		Stream:      stream,
		SampleCount: len(samples),
		Average:     trend.Average(samples, metric.Key),
		Trend:       trend.Analyze(samples, metric),
	}
	if latest, ok := trend.Latest(samples, metric.Key); ok {
		summary.Latest = latest
	}
	return summary
}

// RefreshAndEmit rebuilds the tenant's snapshot, generates insights, emits a
// notification per high-risk subject, and pushes the fresh snapshot to live
// subscribers.
func (e *Engine) RefreshAndEmit(ctx context.Context, tenantID, teamID string) (datatypes.DashboardSnapshot, risk.InsightResult) {
	snapshot := e.GetMetrics(ctx, tenantID, teamID, true)
	bundle := e.aggregator.Fetch(ctx, tenantID, teamID)

	insight := e.risk.GenerateInsights(ctx, tenantID, bundle)
	e.recordInsightMetrics("insights", insight.State)

	for _, profile := range insight.Profiles {
		if profile.RiskPercentage < highRiskCutoff {
			continue
		}
		severity := datatypes.SeverityWarning
		if profile.RiskPercentage >= 75 {
			severity = datatypes.SeverityCritical
		}
		n, err := e.emitter.Emit(ctx, datatypes.Notification{
			TenantID:  tenantID,
			SubjectID: profile.SubjectID,
			Severity:  severity,
			Category:  "turnover_risk",
			Title:     "Elevated turnover risk: " + profile.SubjectName,
			Message:   riskAlertMessage(profile),
		})
		if err != nil {
			slog.Error("failed to persist risk notification",
				"tenant_id", tenantID, "subject_id", profile.SubjectID, "error", err)
			continue
		}
		if e.metrics != nil {
			e.metrics.RecordNotification(string(n.Severity))
		}
	}

	if e.hub != nil {
		e.hub.Publish(tenantID, notify.Event{Type: EventDashboard, Payload: snapshot})
	}

	// The emitted alerts changed the open-item count; rebuild lazily next
	// read rather than serving a snapshot that undercounts.
	e.snapshots.Delete(aggregate.CacheKey(tenantID, teamID))

	return snapshot, insight
}

// PredictTurnover scores the roster (or one subject) and projects each
// assessment stream forward.
func (e *Engine) PredictTurnover(ctx context.Context, tenantID, teamID, subjectID string) datatypes.TurnoverReport {
	bundle := e.aggregator.Fetch(ctx, tenantID, teamID)

	report := datatypes.TurnoverReport{
		TenantID:       tenantID,
		TeamID:         teamID,
		GeneratedAt:    e.clock.Now().UTC(),
		ScoringVersion: e.risk.ConfigVersion(),
		Profiles:       e.risk.ScoreSubjects(bundle, subjectID),
		Forecasts:      make(map[datatypes.Stream]datatypes.Forecast, len(datatypes.Streams)),
	}

	for _, stream := range datatypes.Streams {
		samples := bundle.Stream(stream)
		metric := trend.MetricFor(stream)
		current, ok := trend.Latest(samples, metric.Key)
		if !ok {
			continue
		}
		result := trend.Analyze(samples, metric)
		report.Forecasts[stream] = trend.Project(current, result.Magnitude, forecastPeriods, metric)
	}
	return report
}

// GetUsageStats aggregates the tenant's usage over the requested period.
func (e *Engine) GetUsageStats(ctx context.Context, tenantID string, periodDays int) (datatypes.UsageSummary, error) {
	return e.tracker.Summarize(ctx, tenantID, periodDays)
}

// Chat answers one conversational turn over the tenant's current data.
func (e *Engine) Chat(ctx context.Context, tenantID, message, conversationID string) datatypes.ChatResult {
	bundle := e.aggregator.Fetch(ctx, tenantID, "")
	result, state := e.risk.Chat(ctx, tenantID, message, conversationID, bundle)
	e.recordInsightMetrics("chat", state)
	return result
}

// Notifications exposes the emitter for the notification handlers.
func (e *Engine) Notifications() *notify.Emitter { return e.emitter }

// Hub exposes the live-subscriber hub for the websocket handler. May be nil.
func (e *Engine) Hub() *notify.Hub { return e.hub }

func (e *Engine) recordInsightMetrics(feature string, state risk.State) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordInsightState(string(state))
	switch state {
	case risk.StateRateLimited:
		e.metrics.RecordRateLimitRejection(feature)
	case risk.StateSuccess:
		e.metrics.RecordBackendCall(feature, true)
	case risk.StateFallbackProduced:
		e.metrics.RecordBackendCall(feature, false)
	}
}

func riskAlertMessage(profile datatypes.RiskProfile) string {
	msg := fmt.Sprintf("Turnover risk scored at %.0f%%", profile.RiskPercentage)
	for _, f := range profile.Factors {
		if f.Triggered {
			msg += "; " + f.Reason
		}
	}
	return msg
}
