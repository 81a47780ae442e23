// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luminahr/lumina/services/insights/middleware"
)

// ChatRequest is the POST /v1/chat body.
type ChatRequest struct {
	Message        string `json:"message" binding:"required,max=4000"`
	ConversationID string `json:"conversation_id" binding:"omitempty,uuid"`
}

// HandleChat serves POST /v1/chat. The engine never errors: degraded
// backends yield the deterministic fallback response, so the only failure
// mode here is a malformed request.
func HandleChat(engine Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "chat.turn")
		defer span.End()

		var req ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat request: " + err.Error()})
			return
		}

		result := engine.Chat(ctx, middleware.GetTenantID(c), req.Message, req.ConversationID)
		c.JSON(http.StatusOK, result)
	}
}
