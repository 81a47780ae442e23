// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP handlers of the insights service.
//
// Handlers are thin: tenant scope comes from middleware, request DTOs are
// bound and validated by gin, and all domain work happens in the injected
// Engine. Every handler degrades rather than errors where the engine
// defines a degraded output.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/luminahr/lumina/pkg/validation"
	"github.com/luminahr/lumina/services/insights/datatypes"
	"github.com/luminahr/lumina/services/insights/middleware"
	"github.com/luminahr/lumina/services/insights/notify"
	"github.com/luminahr/lumina/services/insights/risk"
)

var handlerTracer = otel.Tracer("lumina.insights.handlers")

// Engine is the slice of the dashboard engine the handlers need. The
// concrete implementation lives in the insights root package; tests supply
// mocks.
type Engine interface {
	GetMetrics(ctx context.Context, tenantID, teamID string, force bool) datatypes.DashboardSnapshot
	RefreshAndEmit(ctx context.Context, tenantID, teamID string) (datatypes.DashboardSnapshot, risk.InsightResult)
	PredictTurnover(ctx context.Context, tenantID, teamID, subjectID string) datatypes.TurnoverReport
	GetUsageStats(ctx context.Context, tenantID string, periodDays int) (datatypes.UsageSummary, error)
	Chat(ctx context.Context, tenantID, message, conversationID string) datatypes.ChatResult
	Notifications() *notify.Emitter
	Hub() *notify.Hub
}

// teamScope extracts and validates the optional team_id query parameter.
// Returns false after writing a 400 when the identifier is malformed.
func teamScope(c *gin.Context) (string, bool) {
	teamID := c.Query("team_id")
	if teamID == "" {
		return "", true
	}
	if err := validation.ValidateTeamID(teamID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid team identifier"})
		return "", false
	}
	return teamID, true
}

// HandleDashboard serves GET /v1/dashboard. ?refresh=true bypasses the
// snapshot cache.
func HandleDashboard(engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "dashboard.get")
		defer span.End()

		teamID, ok := teamScope(c)
		if !ok {
			return
		}
		force := c.Query("refresh") == "true"

		snapshot := engine.GetMetrics(ctx, middleware.GetTenantID(c), teamID, force)
		c.JSON(http.StatusOK, snapshot)
	}
}

// HandleDashboardRefresh serves POST /v1/dashboard/refresh: rebuild, emit
// alerts, push to live subscribers, and return snapshot plus insight.
func HandleDashboardRefresh(engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "dashboard.refresh")
		defer span.End()

		teamID, ok := teamScope(c)
		if !ok {
			return
		}

		snapshot, insight := engine.RefreshAndEmit(ctx, middleware.GetTenantID(c), teamID)
		c.JSON(http.StatusOK, gin.H{
			"snapshot": snapshot,
			"insight":  insight,
		})
	}
}

// HandleTurnover serves GET /v1/turnover?team_id=&subject_id=.
func HandleTurnover(engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "turnover.predict")
		defer span.End()

		teamID, ok := teamScope(c)
		if !ok {
			return
		}
		subjectID := c.Query("subject_id")
		if subjectID != "" {
			if err := validation.ValidateSubjectID(subjectID); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subject identifier"})
				return
			}
		}

		report := engine.PredictTurnover(ctx, middleware.GetTenantID(c), teamID, subjectID)
		c.JSON(http.StatusOK, report)
	}
}
