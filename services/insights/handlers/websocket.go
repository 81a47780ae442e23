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

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/luminahr/lumina/services/insights/middleware"
)

var upgrader = websocket.Upgrader{
	// The platform gateway terminates cross-origin policy upstream.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

// HandleEventsWebSocket serves GET /v1/events/ws: upgrades the connection
// and registers it with the tenant's live-subscriber hub. The stream is
// one-directional; the hub owns the connection from registration on.
func HandleEventsWebSocket(engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := engine.Hub()
		if hub == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live events disabled"})
			return
		}

		tenantID := middleware.GetTenantID(c)
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "tenant_id", tenantID, "error", err)
			return
		}

		hub.Register(tenantID, conn)
		slog.Info("live subscriber connected", "tenant_id", tenantID)
	}
}
