// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminahr/lumina/services/insights/datatypes"
)

// failingStore rejects inserts to exercise the durable-write guarantee.
type failingStore struct {
	Store
}

func (f *failingStore) Insert(context.Context, datatypes.Notification) error {
	return errors.New("disk full")
}

func alert(tenantID, title string) datatypes.Notification {
	return datatypes.Notification{
		TenantID: tenantID,
		Severity: datatypes.SeverityWarning,
		Category: "turnover_risk",
		Title:    title,
		Message:  "details",
	}
}

// ====== Emitter Tests ======

func TestEmitAssignsIdentity(t *testing.T) {
	emitter := NewEmitter(NewMemoryStore(), nil)

	n, err := emitter.Emit(context.Background(), alert("tenant-a", "High risk detected"))
	require.NoError(t, err)

	assert.NotEmpty(t, n.ID)
	assert.False(t, n.CreatedAt.IsZero())
	assert.False(t, n.Read)

	listed, err := emitter.List(context.Background(), "tenant-a", false, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, n.ID, listed[0].ID)
}

func TestEmitRequiresTenant(t *testing.T) {
	emitter := NewEmitter(NewMemoryStore(), nil)

	_, err := emitter.Emit(context.Background(), datatypes.Notification{Title: "orphan"})
	assert.Error(t, err)
}

func TestEmitStoreFailurePropagates(t *testing.T) {
	emitter := NewEmitter(&failingStore{}, NewHub())

	_, err := emitter.Emit(context.Background(), alert("tenant-a", "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persisting notification")
}

func TestEmitDefaultsSeverity(t *testing.T) {
	emitter := NewEmitter(NewMemoryStore(), nil)

	n := alert("tenant-a", "x")
	n.Severity = ""
	emitted, err := emitter.Emit(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, datatypes.SeverityInfo, emitted.Severity)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	emitter := NewEmitter(NewMemoryStore(), nil)
	n, err := emitter.Emit(context.Background(), alert("tenant-a", "x"))
	require.NoError(t, err)

	require.NoError(t, emitter.MarkRead(context.Background(), "tenant-a", n.ID))
	require.NoError(t, emitter.MarkRead(context.Background(), "tenant-a", n.ID))

	count, err := emitter.UnreadCount(context.Background(), "tenant-a", "")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMarkReadUnknownID(t *testing.T) {
	emitter := NewEmitter(NewMemoryStore(), nil)

	err := emitter.MarkRead(context.Background(), "tenant-a", "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkAllReadReportsChangedCount(t *testing.T) {
	emitter := NewEmitter(NewMemoryStore(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := emitter.Emit(ctx, alert("tenant-a", "x"))
		require.NoError(t, err)
	}
	_, err := emitter.Emit(ctx, alert("tenant-b", "other tenant"))
	require.NoError(t, err)

	changed, err := emitter.MarkAllRead(ctx, "tenant-a", "")
	require.NoError(t, err)
	assert.Equal(t, 3, changed)

	// Second pass changes nothing.
	changed, err = emitter.MarkAllRead(ctx, "tenant-a", "")
	require.NoError(t, err)
	assert.Zero(t, changed)

	// The other tenant is untouched.
	count, err := emitter.UnreadCount(ctx, "tenant-b", "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMarkAllReadSubjectScoped(t *testing.T) {
	emitter := NewEmitter(NewMemoryStore(), nil)
	ctx := context.Background()

	forSubject := alert("tenant-a", "risk alert")
	forSubject.SubjectID = "emp-1"
	_, err := emitter.Emit(ctx, forSubject)
	require.NoError(t, err)
	_, err = emitter.Emit(ctx, alert("tenant-a", "general alert"))
	require.NoError(t, err)

	changed, err := emitter.MarkAllRead(ctx, "tenant-a", "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	count, err := emitter.UnreadCount(ctx, "tenant-a", "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = emitter.UnreadCount(ctx, "tenant-a", "emp-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestListNewestFirstWithLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		n := alert("tenant-a", "x")
		n.ID = string(rune('a' + i))
		n.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Insert(ctx, n))
	}

	listed, err := store.List(ctx, "tenant-a", false, 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "e", listed[0].ID)
	assert.Equal(t, "d", listed[1].ID)
}

func TestListUnreadOnly(t *testing.T) {
	emitter := NewEmitter(NewMemoryStore(), nil)
	ctx := context.Background()

	first, err := emitter.Emit(ctx, alert("tenant-a", "read me"))
	require.NoError(t, err)
	_, err = emitter.Emit(ctx, alert("tenant-a", "keep me"))
	require.NoError(t, err)
	require.NoError(t, emitter.MarkRead(ctx, "tenant-a", first.ID))

	listed, err := emitter.List(ctx, "tenant-a", true, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "keep me", listed[0].Title)
}

// ====== Hub Tests ======

var testUpgrader = websocket.Upgrader{}

func dialHub(t *testing.T, hub *Hub, tenantID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Register(tenantID, conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, tenantID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.SubscriberCount(tenantID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("tenant %s never reached %d subscribers", tenantID, want)
}

func TestHubDeliversToTenantSubscribers(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "tenant-a")
	waitForSubscribers(t, hub, "tenant-a", 1)

	hub.Publish("tenant-a", Event{Type: EventNotification, Payload: map[string]string{"title": "hi"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, EventNotification, event.Type)
}

func TestHubIsolatesTenants(t *testing.T) {
	hub := NewHub()
	connA := dialHub(t, hub, "tenant-a")
	waitForSubscribers(t, hub, "tenant-a", 1)

	hub.Publish("tenant-b", Event{Type: EventNotification, Payload: "for b"})
	hub.Publish("tenant-a", Event{Type: EventNotification, Payload: "for a"})

	connA.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := connA.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(payload), "for a")
}

func TestHubUnregisterOnDisconnect(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "tenant-a")
	waitForSubscribers(t, hub, "tenant-a", 1)

	conn.Close()
	waitForSubscribers(t, hub, "tenant-a", 0)
}

func TestHubPublishWithoutSubscribersIsNoop(t *testing.T) {
	hub := NewHub()
	hub.Publish("tenant-a", Event{Type: EventNotification, Payload: "nobody listening"})
	assert.Zero(t, hub.SubscriberCount("tenant-a"))
}
