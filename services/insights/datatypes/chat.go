// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxMessageContentBytes bounds a single chat message. Byte length, not rune
// count, so oversized multi-byte payloads cannot slip past the check.
const MaxMessageContentBytes = 4 * 1024

// chatValidate carries the custom "maxbytes" rule for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxMessageContentBytes
	})
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required,maxbytes"`
}

// Validate checks the role enum and content size bound.
func (m Message) Validate() error {
	if err := chatValidate.Struct(m); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	return nil
}

// Conversation is a bounded in-memory chat history for one tenant.
type Conversation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatResult is the outcome of one chat turn, whether answered by the model
// backend or by the deterministic fallback.
type ChatResult struct {
	ConversationID   string   `json:"conversation_id"`
	Response         string   `json:"response"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
}
