// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package usage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/luminahr/lumina/services/insights/datatypes"
)

// MemoryStore is an in-process RecordStore for tests and single-node
// deployments without a database.
type MemoryStore struct {
	mu      sync.Mutex
	records []datatypes.UsageRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, rec datatypes.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryStore) ListSince(_ context.Context, tenantID string, since time.Time) ([]datatypes.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []datatypes.UsageRecord
	for _, rec := range m.records {
		if rec.TenantID == tenantID && !rec.Timestamp.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

var _ RecordStore = (*MemoryStore)(nil)

// PostgresStore persists usage records to Postgres.
//
// Expected schema:
//
//	CREATE TABLE IF NOT EXISTS usage_records (
//	    tenant_id    TEXT             NOT NULL,
//	    feature      TEXT             NOT NULL,
//	    input_units  INTEGER          NOT NULL,
//	    output_units INTEGER          NOT NULL,
//	    cost         DOUBLE PRECISION NOT NULL,
//	    recorded_at  TIMESTAMPTZ      NOT NULL
//	);
//	CREATE INDEX IF NOT EXISTS idx_usage_tenant_time
//	    ON usage_records (tenant_id, recorded_at);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool to the given DSN and verifies it
// with a ping.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open usage store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping usage store: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Append(ctx context.Context, rec datatypes.UsageRecord) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO usage_records (tenant_id, feature, input_units, output_units, cost, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.TenantID, rec.Feature, rec.InputUnits, rec.OutputUnits, rec.Cost, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("append usage record: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListSince(ctx context.Context, tenantID string, since time.Time) ([]datatypes.UsageRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT tenant_id, feature, input_units, output_units, cost, recorded_at
		 FROM usage_records
		 WHERE tenant_id = $1 AND recorded_at >= $2
		 ORDER BY recorded_at`,
		tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("list usage records: %w", err)
	}
	defer rows.Close()

	var out []datatypes.UsageRecord
	for rows.Next() {
		var rec datatypes.UsageRecord
		if err := rows.Scan(&rec.TenantID, &rec.Feature, &rec.InputUnits,
			&rec.OutputUnits, &rec.Cost, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

var _ RecordStore = (*PostgresStore)(nil)
