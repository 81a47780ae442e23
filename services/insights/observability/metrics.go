// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the insights service.
//
// # Description
//
// Metrics cover the paths operators actually watch: dashboard build volume
// and latency, cache effectiveness, model backend health (calls, failures,
// fallbacks), budget rejections, and live notification delivery. Exposed via
// the /metrics endpoint for Prometheus + Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "lumina"
	insightSubsystem = "insights"
)

// EngineMetrics holds all Prometheus metrics for the insights engine.
// Initialize once at startup via InitMetrics().
type EngineMetrics struct {
	// DashboardBuildsTotal counts dashboard snapshot requests.
	// Labels: scope (tenant, team), source (cache, fresh)
	DashboardBuildsTotal *prometheus.CounterVec

	// DashboardBuildSeconds measures fresh snapshot build latency.
	DashboardBuildSeconds prometheus.Histogram

	// CacheEventsTotal counts cache lookups by layer and outcome.
	// Labels: layer (snapshot, aggregate), event (hit, miss)
	CacheEventsTotal *prometheus.CounterVec

	// InsightStatesTotal counts terminal insight state machine outcomes.
	// Labels: state (rate_limited, fallback_produced, success)
	InsightStatesTotal *prometheus.CounterVec

	// BackendCallsTotal counts model backend calls.
	// Labels: feature (insights, chat), status (success, error)
	BackendCallsTotal *prometheus.CounterVec

	// RateLimitRejectionsTotal counts budget rejections.
	// Labels: feature (insights, chat)
	RateLimitRejectionsTotal *prometheus.CounterVec

	// NotificationsEmittedTotal counts emitted notifications.
	// Labels: severity (info, warning, critical)
	NotificationsEmittedTotal *prometheus.CounterVec

	// LiveSubscribers tracks currently connected websocket subscribers.
	LiveSubscribers prometheus.Gauge
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *EngineMetrics

// InitMetrics creates and registers all engine metrics against the default
// Prometheus registry. Call once at startup; a second call panics on
// duplicate registration.
func InitMetrics() *EngineMetrics {
	DefaultMetrics = &EngineMetrics{
		DashboardBuildsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "dashboard_builds_total",
				Help:      "Dashboard snapshot requests by scope and source",
			},
			[]string{"scope", "source"},
		),

		DashboardBuildSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "dashboard_build_seconds",
				Help:      "Latency of fresh dashboard snapshot builds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),

		CacheEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "cache_events_total",
				Help:      "Cache lookups by layer and outcome",
			},
			[]string{"layer", "event"},
		),

		InsightStatesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "insight_states_total",
				Help:      "Terminal insight state machine outcomes",
			},
			[]string{"state"},
		),

		BackendCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "backend_calls_total",
				Help:      "Model backend calls by feature and status",
			},
			[]string{"feature", "status"},
		),

		RateLimitRejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "rate_limit_rejections_total",
				Help:      "Requests rejected by the tenant budget",
			},
			[]string{"feature"},
		),

		NotificationsEmittedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "notifications_emitted_total",
				Help:      "Notifications emitted by severity",
			},
			[]string{"severity"},
		),

		LiveSubscribers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "live_subscribers",
				Help:      "Currently connected websocket subscribers",
			},
		),
	}

	return DefaultMetrics
}

// ====== Helper Methods ======

// RecordDashboardBuild records one dashboard request. scope is "tenant" or
// "team"; fromCache distinguishes a cache hit from a fresh build.
func (m *EngineMetrics) RecordDashboardBuild(scope string, fromCache bool) {
	source := "fresh"
	if fromCache {
		source = "cache"
	}
	m.DashboardBuildsTotal.WithLabelValues(scope, source).Inc()
}

// RecordCacheEvent records one lookup against a cache layer.
func (m *EngineMetrics) RecordCacheEvent(layer string, hit bool) {
	event := "miss"
	if hit {
		event = "hit"
	}
	m.CacheEventsTotal.WithLabelValues(layer, event).Inc()
}

// RecordInsightState records a terminal state machine outcome.
func (m *EngineMetrics) RecordInsightState(state string) {
	m.InsightStatesTotal.WithLabelValues(state).Inc()
}

// RecordBackendCall records one model backend call.
func (m *EngineMetrics) RecordBackendCall(feature string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.BackendCallsTotal.WithLabelValues(feature, status).Inc()
}

// RecordRateLimitRejection records a budget rejection.
func (m *EngineMetrics) RecordRateLimitRejection(feature string) {
	m.RateLimitRejectionsTotal.WithLabelValues(feature).Inc()
}

// RecordNotification records an emitted notification.
func (m *EngineMetrics) RecordNotification(severity string) {
	m.NotificationsEmittedTotal.WithLabelValues(severity).Inc()
}

// SubscriberConnected increments the live subscriber gauge.
func (m *EngineMetrics) SubscriberConnected() { m.LiveSubscribers.Inc() }

// SubscriberDisconnected decrements the live subscriber gauge.
func (m *EngineMetrics) SubscriberDisconnected() { m.LiveSubscribers.Dec() }
