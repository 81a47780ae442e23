// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package insights provides the organizational wellness analytics service.
//
// # Description
//
// The service ingests three streams of periodic assessment data (competency,
// psychosocial risk, operational performance) plus a workforce roster, and
// serves cached dashboards, trend forecasts, weighted turnover scores,
// narrative insights with a deterministic fallback, and rate-limited,
// cost-tracked access to the optional model backend.
//
// # Usage
//
//	cfg, err := insights.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := insights.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
//
// # Degradation
//
// Every external dependency is optional: without InfluxDB the streams are
// empty, without the roster API scoring covers nobody, without Postgres the
// stores are in-memory, and without a model backend insights come from the
// deterministic fallback. A start with zero configuration serves a working,
// empty dashboard.
package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/luminahr/lumina/services/insights/aggregate"
	"github.com/luminahr/lumina/services/insights/cache"
	"github.com/luminahr/lumina/services/insights/notify"
	"github.com/luminahr/lumina/services/insights/observability"
	"github.com/luminahr/lumina/services/insights/ratelimit"
	"github.com/luminahr/lumina/services/insights/risk"
	"github.com/luminahr/lumina/services/insights/routes"
	"github.com/luminahr/lumina/services/insights/usage"
	"github.com/luminahr/lumina/services/llm"
)

// sweepInterval is how often the background sweeper evicts expired cache
// entries that no reader has touched.
const sweepInterval = time.Minute

// Service is the lifecycle contract of the insights service.
//
// Run() blocks and should be called at most once per instance. Router()
// exposes the configured gin engine for integration tests.
type Service interface {
	Run() error
	Router() *gin.Engine
}

type service struct {
	config        Config
	router        *gin.Engine
	engine        *Engine
	sweeper       *cache.Sweeper
	sweeperCancel context.CancelFunc
	tracerCleanup func(context.Context)

	usageStore  usage.RecordStore
	notifyStore notify.Store
}

// New wires the full service from configuration.
//
// Initialization order: tracer, metrics, upstream providers, durable stores,
// then the engine and router. Optional dependencies that fail to connect
// degrade with a warning instead of failing startup; only an invalid
// configuration or an unreachable configured Postgres is fatal.
func New(cfg Config) (Service, error) {
	cfg = applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &service{config: cfg}

	if cfg.OTLPEndpoint != "" {
		cleanup, err := initTracer(cfg.OTLPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	if observability.DefaultMetrics == nil {
		observability.InitMetrics()
	}
	metrics := observability.DefaultMetrics

	aggregator := s.initAggregator()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.initStores(ctx); err != nil {
		s.cleanup()
		return nil, err
	}

	tracker := usage.NewTracker(s.usageStore, usage.Rates{
		InputPerThousand:  cfg.InputRatePer1K,
		OutputPerThousand: cfg.OutputRatePer1K,
	})
	limiter := ratelimit.New(ratelimit.Config{
		Budget: cfg.RateBudget,
		Period: cfg.RatePeriod(),
	})

	client := initLLMClient(cfg.LLMBackend)

	hub := notify.NewHub()
	hub.OnSubscriberChange(func(delta int) {
		if delta > 0 {
			metrics.SubscriberConnected()
		} else {
			metrics.SubscriberDisconnected()
		}
	})
	emitter := notify.NewEmitter(s.notifyStore, hub)

	riskEngine := risk.NewEngine(risk.ScoringConfig{}, limiter, tracker, client)
	s.engine = NewEngine(cfg, aggregator, riskEngine, tracker, emitter, hub, metrics)

	s.startSweeper()
	s.initRouter()

	return s, nil
}

// Run starts the HTTP server and blocks until it stops.
func (s *service) Run() error {
	defer s.cleanup()

	slog.Info("starting insights server", "addr", s.config.Addr)
	return s.router.Run(s.config.Addr)
}

// Router returns the configured gin engine for integration tests.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Engine exposes the composed engine, primarily for tests.
func (s *service) Engine() *Engine {
	return s.engine
}

func applyConfigDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.LookbackDays == 0 {
		cfg.LookbackDays = def.LookbackDays
	}
	if cfg.SnapshotTTLSeconds == 0 {
		cfg.SnapshotTTLSeconds = def.SnapshotTTLSeconds
	}
	if cfg.AggregateTTLSeconds == 0 {
		cfg.AggregateTTLSeconds = def.AggregateTTLSeconds
	}
	if cfg.RateBudget == 0 {
		cfg.RateBudget = def.RateBudget
	}
	if cfg.RatePeriodMinutes == 0 {
		cfg.RatePeriodMinutes = def.RatePeriodMinutes
	}
	if cfg.InputRatePer1K == 0 {
		cfg.InputRatePer1K = def.InputRatePer1K
	}
	if cfg.OutputRatePer1K == 0 {
		cfg.OutputRatePer1K = def.OutputRatePer1K
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	return cfg
}

// initAggregator selects sample and roster providers from configuration.
// Unconfigured providers serve empty data.
func (s *service) initAggregator() *aggregate.Aggregator {
	var samples aggregate.SampleProvider
	if s.config.InfluxURL != "" {
		samples = aggregate.NewInfluxSampleProvider(
			s.config.InfluxURL, s.config.InfluxToken,
			s.config.InfluxOrg, s.config.InfluxBucket,
			s.config.Lookback())
		slog.Info("assessment streams backed by InfluxDB", "url", s.config.InfluxURL)
	} else {
		samples = &aggregate.StaticProvider{}
		slog.Warn("no Influx URL configured, assessment streams will be empty")
	}

	var roster aggregate.RosterProvider
	if s.config.RosterBaseURL != "" {
		roster = aggregate.NewHTTPRosterProvider(s.config.RosterBaseURL,
			&http.Client{Timeout: 15 * time.Second})
		slog.Info("roster backed by platform API", "base_url", s.config.RosterBaseURL)
	} else {
		roster = &aggregate.StaticProvider{}
		slog.Warn("no roster URL configured, roster will be empty")
	}

	aggCache := cache.New[*aggregate.Bundle]()
	return aggregate.NewWithCache(samples, roster, aggCache, s.config.AggregateTTL())
}

// initStores selects Postgres or in-memory persistence. A configured but
// unreachable Postgres is fatal: silently downgrading durable notification
// storage to memory would violate the durability contract.
func (s *service) initStores(ctx context.Context) error {
	if s.config.PostgresDSN == "" {
		slog.Warn("no Postgres DSN configured, using in-memory stores")
		s.usageStore = usage.NewMemoryStore()
		s.notifyStore = notify.NewMemoryStore()
		return nil
	}

	usageStore, err := usage.NewPostgresStore(ctx, s.config.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connecting usage store: %w", err)
	}
	notifyStore, err := notify.NewPostgresStore(ctx, s.config.PostgresDSN)
	if err != nil {
		usageStore.Close()
		return fmt.Errorf("connecting notification store: %w", err)
	}

	s.usageStore = usageStore
	s.notifyStore = notifyStore
	slog.Info("durable stores backed by Postgres")
	return nil
}

// initLLMClient builds the optional model backend. A missing or failing
// backend is logged once and the service degrades to fallbacks.
func initLLMClient(backend string) llm.LLMClient {
	client, err := llm.NewClient(backend)
	if err != nil {
		if !errors.Is(err, llm.ErrNotConfigured) {
			slog.Warn("model backend unavailable, narrative insights degrade to fallback",
				"backend", backend, "error", err)
		}
		return nil
	}
	slog.Info("model backend configured", "backend", backend)
	return client
}

func (s *service) startSweeper() {
	s.sweeper = cache.NewSweeper(sweepInterval, s.engine.Snapshots())
	ctx, cancel := context.WithCancel(context.Background())
	s.sweeperCancel = cancel
	s.sweeper.Start(ctx)
}

func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("insights-service"))

	routes.SetupRoutes(s.router, s.engine)
}

func (s *service) cleanup() {
	if s.sweeperCancel != nil {
		s.sweeperCancel()
	}
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if closer, ok := s.usageStore.(interface{ Close() error }); ok && closer != nil {
		if err := closer.Close(); err != nil {
			slog.Warn("usage store close error", "error", err)
		}
	}
	if closer, ok := s.notifyStore.(interface{ Close() error }); ok && closer != nil {
		if err := closer.Close(); err != nil {
			slog.Warn("notification store close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// initTracer sets up the OTLP trace exporter. Uses an insecure gRPC
// connection, appropriate for internal collector networks.
func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("insights-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}
	return cleanup, nil
}

var _ Service = (*service)(nil)
