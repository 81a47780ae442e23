// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics builds an EngineMetrics against an isolated registry so
// tests never collide with the global default registry.
func newTestMetrics(t *testing.T) *EngineMetrics {
	t.Helper()
	reg := prometheus.NewRegistry()

	m := &EngineMetrics{
		DashboardBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "dashboard_builds_total",
				Help:      "Dashboard snapshot requests by scope and source",
			},
			[]string{"scope", "source"},
		),
		DashboardBuildSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "dashboard_build_seconds",
				Help:      "Latency of fresh dashboard snapshot builds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		CacheEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "cache_events_total",
				Help:      "Cache lookups by layer and outcome",
			},
			[]string{"layer", "event"},
		),
		InsightStatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "insight_states_total",
				Help:      "Terminal insight state machine outcomes",
			},
			[]string{"state"},
		),
		BackendCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "backend_calls_total",
				Help:      "Model backend calls by feature and status",
			},
			[]string{"feature", "status"},
		),
		RateLimitRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "rate_limit_rejections_total",
				Help:      "Requests rejected by the tenant budget",
			},
			[]string{"feature"},
		),
		NotificationsEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "notifications_emitted_total",
				Help:      "Notifications emitted by severity",
			},
			[]string{"severity"},
		),
		LiveSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "live_subscribers",
				Help:      "Currently connected websocket subscribers",
			},
		),
	}

	reg.MustRegister(
		m.DashboardBuildsTotal,
		m.DashboardBuildSeconds,
		m.CacheEventsTotal,
		m.InsightStatesTotal,
		m.BackendCallsTotal,
		m.RateLimitRejectionsTotal,
		m.NotificationsEmittedTotal,
		m.LiveSubscribers,
	)
	return m
}

func TestRecordDashboardBuild(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordDashboardBuild("tenant", true)
	m.RecordDashboardBuild("tenant", true)
	m.RecordDashboardBuild("team", false)

	if got := testutil.ToFloat64(m.DashboardBuildsTotal.WithLabelValues("tenant", "cache")); got != 2 {
		t.Errorf("tenant cache builds = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.DashboardBuildsTotal.WithLabelValues("team", "fresh")); got != 1 {
		t.Errorf("team fresh builds = %v, want 1", got)
	}
}

func TestRecordCacheEvent(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordCacheEvent("snapshot", true)
	m.RecordCacheEvent("snapshot", false)
	m.RecordCacheEvent("aggregate", false)

	if got := testutil.ToFloat64(m.CacheEventsTotal.WithLabelValues("snapshot", "hit")); got != 1 {
		t.Errorf("snapshot hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheEventsTotal.WithLabelValues("aggregate", "miss")); got != 1 {
		t.Errorf("aggregate misses = %v, want 1", got)
	}
}

func TestRecordBackendCall(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordBackendCall("insights", true)
	m.RecordBackendCall("insights", false)
	m.RecordBackendCall("chat", false)

	if got := testutil.ToFloat64(m.BackendCallsTotal.WithLabelValues("insights", "success")); got != 1 {
		t.Errorf("insight successes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BackendCallsTotal.WithLabelValues("chat", "error")); got != 1 {
		t.Errorf("chat errors = %v, want 1", got)
	}
}

func TestRecordInsightStateAndRejections(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordInsightState("fallback_produced")
	m.RecordInsightState("fallback_produced")
	m.RecordRateLimitRejection("chat")

	if got := testutil.ToFloat64(m.InsightStatesTotal.WithLabelValues("fallback_produced")); got != 2 {
		t.Errorf("fallback states = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RateLimitRejectionsTotal.WithLabelValues("chat")); got != 1 {
		t.Errorf("chat rejections = %v, want 1", got)
	}
}

func TestSubscriberGauge(t *testing.T) {
	m := newTestMetrics(t)

	m.SubscriberConnected()
	m.SubscriberConnected()
	m.SubscriberDisconnected()

	if got := testutil.ToFloat64(m.LiveSubscribers); got != 1 {
		t.Errorf("live subscribers = %v, want 1", got)
	}
}

func TestRecordNotification(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordNotification("warning")
	m.RecordNotification("critical")
	m.RecordNotification("warning")

	if got := testutil.ToFloat64(m.NotificationsEmittedTotal.WithLabelValues("warning")); got != 2 {
		t.Errorf("warning notifications = %v, want 2", got)
	}
}
