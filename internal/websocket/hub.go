// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

// Package websocket maintains the set of connected map clients and fans
// location updates out to them. The hub is the single owner of the client
// set; clients register and unregister through channels so no handler
// goroutine touches the map directly.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geotraceapp/geotrace/internal/logging"
	"github.com/geotraceapp/geotrace/internal/metrics"
	"github.com/geotraceapp/geotrace/internal/models"
)

// Message types pushed to clients.
const (
	MessageTypeLocationUpdate = "location_update"
	MessageTypeSyncCompleted  = "sync_completed"
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
)

// Message is the envelope for every WebSocket frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub with a buffered broadcast channel. A full channel
// drops messages rather than blocking publishers; location updates are
// superseded by the next one anyway.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub until the context is canceled, then closes
// all clients and returns ctx.Err(). Designed for suture supervision.
//
// Lifecycle events take priority over broadcasts so the client set is
// consistent before any message is delivered.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

// String implements fmt.Stringer for supervisor logging.
func (h *Hub) String() string {
	return "websocket-hub"
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("websocket client disconnected")
}

// broadcastToClients delivers a message to every client in id order. A
// client whose send buffer is full is dropped; a stalled reader must not
// hold up live position updates for everyone else.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		logging.Warn().Uint64("client_id", client.id).Msg("dropping slow websocket client")
	}
	if len(toRemove) > 0 {
		metrics.WebSocketClients.Set(float64(len(h.clients)))
	}
}

// shutdown closes every client and logs the reason.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	closed := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	metrics.WebSocketClients.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		AnErr("reason", ctx.Err()).
		Int("clients_closed", closed).
		Msg("websocket hub stopped")
}

// BroadcastLocationUpdate pushes a user's new position to all clients.
func (h *Hub) BroadcastLocationUpdate(rec *models.LocationRecord) {
	h.BroadcastJSON(MessageTypeLocationUpdate, rec)
}

// SyncCompletedData is the payload of a sync_completed message.
type SyncCompletedData struct {
	Timestamp string `json:"timestamp"`
	Processed int    `json:"processed"`
	Synced    int    `json:"synced"`
	Errors    int    `json:"errors"`
}

// BroadcastSyncCompleted notifies clients that a sync cycle finished.
func (h *Hub) BroadcastSyncCompleted(stats models.SyncStats) {
	h.BroadcastJSON(MessageTypeSyncCompleted, SyncCompletedData{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Processed: stats.Processed,
		Synced:    stats.Synced,
		Errors:    stats.Errors,
	})
}

// BroadcastJSON sends a typed message to all connected clients. Never
// blocks; a full broadcast channel drops the message.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	message := Message{Type: messageType, Data: data}
	select {
	case h.broadcast <- message:
	default:
		metrics.BroadcastsDropped.Inc()
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
