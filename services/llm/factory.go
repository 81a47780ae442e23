// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotConfigured signals that no model backend is configured. Callers treat
// this as "feature degraded", not "feature broken", and fall back to
// deterministic output.
var ErrNotConfigured = errors.New("llm backend not configured")

// NewClient creates the LLM client for the named backend.
//
// Supported backends: "openai", "ollama". An empty string or "none" returns
// ErrNotConfigured so the service can run without a model backend at all.
func NewClient(backend string) (LLMClient, error) {
	switch backend {
	case "":
		slog.Info("No LLM backend configured, narrative insights will use the rule-based fallback")
		return nil, ErrNotConfigured
	case "none":
		slog.Info("LLM backend explicitly disabled")
		return nil, ErrNotConfigured
	case "openai":
		slog.Info("Using OpenAI LLM backend")
		return NewOpenAIClient()
	case "ollama":
		slog.Info("Using Ollama LLM backend")
		return NewOllamaClient()
	default:
		return nil, fmt.Errorf("unknown llm backend %q", backend)
	}
}
