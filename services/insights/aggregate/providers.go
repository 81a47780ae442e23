// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/luminahr/lumina/pkg/validation"
	"github.com/luminahr/lumina/services/insights/datatypes"
)

// metaColumns are Influx record keys that are not assessment metrics.
var metaColumns = map[string]bool{
	"_time": true, "_start": true, "_stop": true, "_measurement": true,
	"result": true, "table": true,
	"tenant": true, "team": true, "subject": true, "stream": true,
}

// InfluxSampleProvider reads assessment samples from InfluxDB.
//
// Samples are written by the assessment submission flow as points in the
// "assessments" measurement, tagged with tenant, team, subject, and stream;
// each metric of the index is one field. Queries pivot fields into columns so
// one record maps to one AssessmentSample.
type InfluxSampleProvider struct {
	queryAPI api.QueryAPI
	bucket   string
	lookback time.Duration
}

// NewInfluxSampleProvider connects to InfluxDB and scopes queries to the
// given org and bucket. Lookback bounds how far back samples are read;
// zero defaults to 180 days.
func NewInfluxSampleProvider(serverURL, token, org, bucket string, lookback time.Duration) *InfluxSampleProvider {
	if lookback <= 0 {
		lookback = 180 * 24 * time.Hour
	}
	client := influxdb2.NewClient(serverURL, token)
	return &InfluxSampleProvider{
		queryAPI: client.QueryAPI(org),
		bucket:   bucket,
		lookback: lookback,
	}
}

// Samples implements SampleProvider.
//
// Tenant and team identifiers are validated before interpolation into the
// Flux query to prevent injection.
func (p *InfluxSampleProvider) Samples(ctx context.Context, stream datatypes.Stream, tenantID, teamID string) ([]datatypes.AssessmentSample, error) {
	if err := validation.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	teamFilter := ""
	if teamID != "" {
		if err := validation.ValidateTeamID(teamID); err != nil {
			return nil, fmt.Errorf("invalid team id: %w", err)
		}
		teamFilter = fmt.Sprintf(`|> filter(fn: (r) => r.team == "%s")`, teamID)
	}

	query := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -%ds)
		  |> filter(fn: (r) => r._measurement == "assessments")
		  |> filter(fn: (r) => r.tenant == "%s")
		  |> filter(fn: (r) => r.stream == "%s")
		  %s
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: false)
	`, p.bucket, int(p.lookback.Seconds()), tenantID, stream, teamFilter)

	result, err := p.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s stream: %w", stream, err)
	}

	var samples []datatypes.AssessmentSample
	for result.Next() {
		rec := result.Record()
		sample := datatypes.AssessmentSample{
			Timestamp: rec.Time(),
			Metrics:   make(map[string]float64),
		}
		for key, val := range rec.Values() {
			switch {
			case key == "subject":
				if s, ok := val.(string); ok {
					sample.SubjectID = s
				}
			case key == "team":
				if s, ok := val.(string); ok {
					sample.TeamID = s
				}
			case metaColumns[key]:
				// skip
			default:
				if f, ok := val.(float64); ok {
					sample.Metrics[key] = f
				}
			}
		}
		samples = append(samples, sample)
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("read %s stream: %w", stream, result.Err())
	}
	return samples, nil
}

var _ SampleProvider = (*InfluxSampleProvider)(nil)

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPRosterProvider reads the workforce roster from the platform core
// service's internal JSON API.
type HTTPRosterProvider struct {
	baseURL string
	client  HTTPClient
}

// NewHTTPRosterProvider creates a roster provider against the given base URL
// (e.g. "http://core-service:8080"). A nil client uses a 10-second default.
func NewHTTPRosterProvider(baseURL string, client HTTPClient) *HTTPRosterProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPRosterProvider{baseURL: baseURL, client: client}
}

// Roster implements RosterProvider.
func (p *HTTPRosterProvider) Roster(ctx context.Context, tenantID, teamID string) ([]datatypes.Employee, error) {
	if err := validation.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}

	endpoint := fmt.Sprintf("%s/internal/v1/tenants/%s/roster", p.baseURL, url.PathEscape(tenantID))
	if teamID != "" {
		endpoint += "?team_id=" + url.QueryEscape(teamID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build roster request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch roster: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Unknown tenant or empty team reads as no roster, not a fault.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch roster: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Employees []datatypes.Employee `json:"employees"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	return payload.Employees, nil
}

var _ RosterProvider = (*HTTPRosterProvider)(nil)

// StaticProvider serves fixed samples and roster from memory. Used in tests
// and local development without Influx or the core service.
type StaticProvider struct {
	SamplesByStream map[datatypes.Stream][]datatypes.AssessmentSample
	Employees       []datatypes.Employee
}

func (s *StaticProvider) Samples(_ context.Context, stream datatypes.Stream, _, teamID string) ([]datatypes.AssessmentSample, error) {
	all := s.SamplesByStream[stream]
	if teamID == "" {
		return all, nil
	}
	var scoped []datatypes.AssessmentSample
	for _, sample := range all {
		if sample.TeamID == teamID {
			scoped = append(scoped, sample)
		}
	}
	return scoped, nil
}

func (s *StaticProvider) Roster(_ context.Context, _, teamID string) ([]datatypes.Employee, error) {
	if teamID == "" {
		return s.Employees, nil
	}
	var scoped []datatypes.Employee
	for _, e := range s.Employees {
		if e.TeamID == teamID {
			scoped = append(scoped, e)
		}
	}
	return scoped, nil
}

var (
	_ SampleProvider = (*StaticProvider)(nil)
	_ RosterProvider = (*StaticProvider)(nil)
)
