// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/luminahr/lumina/pkg/validation"
	"github.com/luminahr/lumina/services/insights/datatypes"
	"github.com/luminahr/lumina/services/insights/middleware"
	"github.com/luminahr/lumina/services/insights/notify"
)

// subjectScope reads the optional ?subject_id= query parameter. A malformed
// identifier aborts the request with 400.
func subjectScope(c *gin.Context) (string, bool) {
	subjectID := c.Query("subject_id")
	if subjectID != "" {
		if err := validation.ValidateSubjectID(subjectID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subject identifier"})
			return "", false
		}
	}
	return subjectID, true
}

// HandleListNotifications serves GET /v1/notifications?unread=true&limit=50.
func HandleListNotifications(engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		unreadOnly := c.Query("unread") == "true"

		limit := 100
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > 500 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 1 and 500"})
				return
			}
			limit = parsed
		}

		items, err := engine.Notifications().List(c.Request.Context(), tenantID, unreadOnly, limit)
		if err != nil {
			slog.Error("failed to list notifications", "tenant_id", tenantID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "notifications unavailable"})
			return
		}
		if items == nil {
			items = []datatypes.Notification{}
		}
		c.JSON(http.StatusOK, gin.H{"notifications": items})
	}
}

// HandleMarkNotificationRead serves POST /v1/notifications/:id/read.
func HandleMarkNotificationRead(engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		id := c.Param("id")

		err := engine.Notifications().MarkRead(c.Request.Context(), tenantID, id)
		if errors.Is(err, notify.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		if err != nil {
			slog.Error("failed to mark notification read",
				"tenant_id", tenantID, "notification_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "acknowledgment failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "read"})
	}
}

// HandleMarkAllNotificationsRead serves POST /v1/notifications/read-all.
// An optional ?subject_id= narrows the sweep to one subject's alerts.
func HandleMarkAllNotificationsRead(engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		subjectID, ok := subjectScope(c)
		if !ok {
			return
		}

		changed, err := engine.Notifications().MarkAllRead(c.Request.Context(), tenantID, subjectID)
		if err != nil {
			slog.Error("failed to mark notifications read", "tenant_id", tenantID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "acknowledgment failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"marked_read": changed})
	}
}

// HandleUnreadCount serves GET /v1/notifications/unread-count.
func HandleUnreadCount(engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		subjectID, ok := subjectScope(c)
		if !ok {
			return
		}

		count, err := engine.Notifications().UnreadCount(c.Request.Context(), tenantID, subjectID)
		if err != nil {
			slog.Error("failed to count unread notifications", "tenant_id", tenantID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "count unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"unread": count})
	}
}
