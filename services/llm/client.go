// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the language-model backends used for narrative insight
// generation and chat. The backend is an optional dependency of the insights
// service: when no backend is configured, callers degrade to deterministic
// rule-based output.
package llm

import (
	"context"

	"github.com/luminahr/lumina/services/insights/datatypes"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// SystemPrompt overrides the backend's default system context.
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	// Generate completes a single prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Chat completes a multi-turn conversation.
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)
}
