// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command insights starts the Lumina wellness analytics HTTP server.
//
// Configuration layers defaults, an optional YAML file, and environment
// variables:
//
//   - LUMINA_CONFIG: path to a YAML config file (optional)
//   - LUMINA_ADDR: listen address (default :8097)
//   - LUMINA_INFLUX_URL / _TOKEN / _ORG / _BUCKET: assessment store
//   - LUMINA_ROSTER_BASE_URL: platform roster API
//   - LUMINA_POSTGRES_DSN: durable notification/usage store
//   - LUMINA_LLM_BACKEND: openai, ollama, or none
//   - LUMINA_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//   - LUMINA_LOG_LEVEL / LUMINA_LOG_DIR: logging level and optional file dir
//
// # Usage
//
//	go build -o insights ./cmd/insights
//	./insights
package main

import (
	"log/slog"
	"os"

	"github.com/luminahr/lumina/pkg/logging"
	"github.com/luminahr/lumina/services/insights"
)

func main() {
	cfg, err := insights.LoadConfig()
	if err != nil {
		logging.Default().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		LogDir:  cfg.LogDir,
		Service: "insights",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	svc, err := insights.New(cfg)
	if err != nil {
		slog.Error("failed to initialize insights service", "error", err)
		os.Exit(1)
	}

	if err := svc.Run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
