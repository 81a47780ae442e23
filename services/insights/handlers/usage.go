// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/luminahr/lumina/services/insights/middleware"
)

// HandleUsage serves GET /v1/usage?days=30.
func HandleUsage(engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "usage.summarize")
		defer span.End()

		days := 30
		if raw := c.Query("days"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > 365 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer between 1 and 365"})
				return
			}
			days = parsed
		}

		tenantID := middleware.GetTenantID(c)
		summary, err := engine.GetUsageStats(ctx, tenantID, days)
		if err != nil {
			slog.Error("failed to summarize usage", "tenant_id", tenantID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "usage summary unavailable"})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
