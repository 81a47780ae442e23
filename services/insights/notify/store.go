// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	_ "github.com/lib/pq"

	"github.com/luminahr/lumina/services/insights/datatypes"
)

// ErrNotFound is returned when a notification ID does not exist for the
// tenant.
var ErrNotFound = fmt.Errorf("notification not found")

// Store is the durable side of notification delivery. Unlike the live hub,
// store writes are not best effort: an insert failure fails the emit.
type Store interface {
	// Insert persists a new notification.
	Insert(ctx context.Context, n datatypes.Notification) error

	// List returns the tenant's notifications, newest first.
	List(ctx context.Context, tenantID string, unreadOnly bool, limit int) ([]datatypes.Notification, error)

	// MarkRead marks one notification read. Marking an already-read
	// notification is a no-op, not an error.
	MarkRead(ctx context.Context, tenantID, id string) error

	// MarkAllRead marks every unread notification read and reports how many
	// changed state. A non-empty subjectID narrows the sweep to that
	// subject's notifications.
	MarkAllRead(ctx context.Context, tenantID, subjectID string) (int, error)

	// UnreadCount reports the tenant's unread notifications, optionally for
	// one subject.
	UnreadCount(ctx context.Context, tenantID, subjectID string) (int, error)
}

// ====== In-Memory Store ======

// MemoryStore keeps notifications in process memory. Used in tests and in
// single-node deployments without Postgres.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string][]datatypes.Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]datatypes.Notification)}
}

func (s *MemoryStore) Insert(_ context.Context, n datatypes.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[n.TenantID] = append(s.items[n.TenantID], n)
	return nil
}

func (s *MemoryStore) List(_ context.Context, tenantID string, unreadOnly bool, limit int) ([]datatypes.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []datatypes.Notification
	for _, n := range s.items[tenantID] {
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.items[tenantID]
	for i := range list {
		if list[i].ID == id {
			list[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) MarkAllRead(_ context.Context, tenantID, subjectID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	list := s.items[tenantID]
	for i := range list {
		if list[i].Read {
			continue
		}
		if subjectID != "" && list[i].SubjectID != subjectID {
			continue
		}
		list[i].Read = true
		changed++
	}
	return changed, nil
}

func (s *MemoryStore) UnreadCount(_ context.Context, tenantID, subjectID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.items[tenantID] {
		if n.Read {
			continue
		}
		if subjectID != "" && n.SubjectID != subjectID {
			continue
		}
		count++
	}
	return count, nil
}

var _ Store = (*MemoryStore)(nil)

// ====== Postgres Store ======

// PostgresStore persists notifications in Postgres.
//
// Expected schema:
//
//	CREATE TABLE notifications (
//	    id         TEXT PRIMARY KEY,
//	    tenant_id  TEXT NOT NULL,
//	    subject_id TEXT NOT NULL DEFAULT '',
//	    severity   TEXT NOT NULL,
//	    category   TEXT NOT NULL,
//	    title      TEXT NOT NULL,
//	    message    TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    read       BOOLEAN NOT NULL DEFAULT FALSE
//	);
//	CREATE INDEX notifications_tenant_unread_idx
//	    ON notifications (tenant_id, read, created_at DESC);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening notifications database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging notifications database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Insert(ctx context.Context, n datatypes.Notification) error {
	const q = `INSERT INTO notifications
		(id, tenant_id, subject_id, severity, category, title, message, created_at, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.db.ExecContext(ctx, q,
		n.ID, n.TenantID, n.SubjectID, string(n.Severity), n.Category,
		n.Title, n.Message, n.CreatedAt, n.Read)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, tenantID string, unreadOnly bool, limit int) ([]datatypes.Notification, error) {
	q := `SELECT id, tenant_id, subject_id, severity, category, title, message, created_at, read
		FROM notifications WHERE tenant_id = $1`
	if unreadOnly {
		q += ` AND read = FALSE`
	}
	q += ` ORDER BY created_at DESC`
	args := []any{tenantID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var out []datatypes.Notification
	for rows.Next() {
		var n datatypes.Notification
		var severity string
		if err := rows.Scan(&n.ID, &n.TenantID, &n.SubjectID, &severity,
			&n.Category, &n.Title, &n.Message, &n.CreatedAt, &n.Read); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.Severity = datatypes.Severity(severity)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkRead(ctx context.Context, tenantID, id string) error {
	const q = `UPDATE notifications SET read = TRUE WHERE tenant_id = $1 AND id = $2`
	res, err := s.db.ExecContext(ctx, q, tenantID, id)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking notification update: %w", err)
	}
	if affected == 0 {
		// Distinguish missing from already read.
		var read bool
		err := s.db.QueryRowContext(ctx,
			`SELECT read FROM notifications WHERE tenant_id = $1 AND id = $2`,
			tenantID, id).Scan(&read)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking notification existence: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, tenantID, subjectID string) (int, error) {
	q := `UPDATE notifications SET read = TRUE WHERE tenant_id = $1 AND read = FALSE`
	args := []any{tenantID}
	if subjectID != "" {
		q += ` AND subject_id = $2`
		args = append(args, subjectID)
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting marked notifications: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) UnreadCount(ctx context.Context, tenantID, subjectID string) (int, error) {
	q := `SELECT COUNT(*) FROM notifications WHERE tenant_id = $1 AND read = FALSE`
	args := []any{tenantID}
	if subjectID != "" {
		q += ` AND subject_id = $2`
		args = append(args, subjectID)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return count, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

var _ Store = (*PostgresStore)(nil)
