// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package notify persists and fans out alert notifications.
//
// # Description
//
// Emitting a notification has two sides with different guarantees: the
// durable write to the store must succeed or the emit fails, while the push
// to live websocket subscribers is best effort and can never fail an emit.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/luminahr/lumina/services/insights/cache"
	"github.com/luminahr/lumina/services/insights/datatypes"
)

// EventNotification is the live event type carrying a new notification.
const EventNotification = "notification"

// Emitter creates notifications and delivers them durably and live.
type Emitter struct {
	store Store
	hub   *Hub
	clock cache.Clock
}

// NewEmitter creates an Emitter. hub may be nil when live delivery is
// disabled.
func NewEmitter(store Store, hub *Hub) *Emitter {
	return NewEmitterWithClock(store, hub, cache.SystemClock())
}

// NewEmitterWithClock creates an Emitter with an injected clock for tests.
func NewEmitterWithClock(store Store, hub *Hub, clock cache.Clock) *Emitter {
	return &Emitter{store: store, hub: hub, clock: clock}
}

// Emit assigns identity to the notification, persists it, and pushes it to
// live subscribers. The returned notification carries the assigned ID and
// timestamp. A store failure fails the emit; a live delivery problem does
// not.
func (e *Emitter) Emit(ctx context.Context, n datatypes.Notification) (datatypes.Notification, error) {
	if n.TenantID == "" {
		return datatypes.Notification{}, fmt.Errorf("notification requires a tenant")
	}
	if n.Severity == "" {
		n.Severity = datatypes.SeverityInfo
	}
	n.ID = uuid.New().String()
	n.CreatedAt = e.clock.Now().UTC()
	n.Read = false

	if err := e.store.Insert(ctx, n); err != nil {
		return datatypes.Notification{}, fmt.Errorf("persisting notification: %w", err)
	}

	if e.hub != nil {
		e.hub.Publish(n.TenantID, Event{Type: EventNotification, Payload: n})
	}

	slog.Info("notification emitted",
		"tenant_id", n.TenantID,
		"severity", n.Severity,
		"category", n.Category)
	return n, nil
}

// List returns the tenant's notifications, newest first.
func (e *Emitter) List(ctx context.Context, tenantID string, unreadOnly bool, limit int) ([]datatypes.Notification, error) {
	return e.store.List(ctx, tenantID, unreadOnly, limit)
}

// MarkRead acknowledges one notification. Acknowledging an already-read
// notification succeeds without effect.
func (e *Emitter) MarkRead(ctx context.Context, tenantID, id string) error {
	return e.store.MarkRead(ctx, tenantID, id)
}

// MarkAllRead acknowledges every unread notification and reports how many
// changed state. Idempotent: a second call reports zero. A non-empty
// subjectID narrows the sweep to one subject.
func (e *Emitter) MarkAllRead(ctx context.Context, tenantID, subjectID string) (int, error) {
	return e.store.MarkAllRead(ctx, tenantID, subjectID)
}

// UnreadCount reports the tenant's unread notifications, optionally for one
// subject.
func (e *Emitter) UnreadCount(ctx context.Context, tenantID, subjectID string) (int, error) {
	return e.store.UnreadCount(ctx, tenantID, subjectID)
}
