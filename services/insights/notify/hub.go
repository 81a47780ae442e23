// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds one websocket write.
	writeWait = 10 * time.Second

	// pongWait is how long a client may stay silent before being dropped.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = 50 * time.Second

	// clientBuffer is the per-client outbound queue. A client that cannot
	// drain it is dropped rather than allowed to stall the emitter.
	clientBuffer = 16
)

// Event is one message pushed to live subscribers.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Client is one live websocket subscriber, bound to a tenant.
type Client struct {
	tenantID string
	conn     *websocket.Conn
	send     chan []byte
	closed   bool
	mu       sync.Mutex
}

// Hub fans events out to live subscribers, partitioned by tenant. Delivery
// is best effort: a full client queue drops the client, never blocks the
// caller.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	onChange func(delta int)
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*Client]struct{})}
}

// OnSubscriberChange installs a hook called with +1 on register and -1 on
// unregister, for gauge-style metrics. Set before the hub is in use.
func (h *Hub) OnSubscriberChange(fn func(delta int)) {
	h.onChange = fn
}

// Register wires an upgraded connection into the hub and starts its read and
// write pumps. The connection is owned by the hub from this point.
func (h *Hub) Register(tenantID string, conn *websocket.Conn) *Client {
	client := &Client{
		tenantID: tenantID,
		conn:     conn,
		send:     make(chan []byte, clientBuffer),
	}

	h.mu.Lock()
	if h.clients[tenantID] == nil {
		h.clients[tenantID] = make(map[*Client]struct{})
	}
	h.clients[tenantID][client] = struct{}{}
	h.mu.Unlock()

	if h.onChange != nil {
		h.onChange(1)
	}

	go client.writePump(h)
	go client.readPump(h)

	slog.Debug("live subscriber registered", "tenant_id", tenantID)
	return client
}

// Unregister removes the client and closes its connection. Safe to call more
// than once.
func (h *Hub) Unregister(client *Client) {
	removed := false
	h.mu.Lock()
	if set, ok := h.clients[client.tenantID]; ok {
		if _, present := set[client]; present {
			delete(set, client)
			removed = true
		}
		if len(set) == 0 {
			delete(h.clients, client.tenantID)
		}
	}
	h.mu.Unlock()

	if removed && h.onChange != nil {
		h.onChange(-1)
	}
	client.close()
}

// Publish delivers an event to every live subscriber of the tenant. Clients
// whose queues are full are dropped.
func (h *Hub) Publish(tenantID string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to encode live event", "type", event.Type, "error", err)
		return
	}

	h.mu.RLock()
	var slow []*Client
	for client := range h.clients[tenantID] {
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		slog.Warn("dropping slow live subscriber", "tenant_id", tenantID)
		h.Unregister(client)
	}
}

// SubscriberCount reports live subscribers for the tenant.
func (h *Hub) SubscriberCount(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tenantID])
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	c.conn.Close()
}

func (c *Client) writePump(h *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.Unregister(c)
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; the stream is one-directional. It exists
// to notice disconnects and answer pings.
func (c *Client) readPump(h *Hub) {
	defer h.Unregister(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
