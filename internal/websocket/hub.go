// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

// Package websocket implements the live fan-out multiplexer: every
// successfully ingested read is pushed to all currently-attached viewers.
// Delivery is lossy. Viewers that are not attached miss events and query
// the REST API for history; a slow viewer is dropped rather than allowed
// to back-pressure the ingestion path.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tagsight/tagsight/internal/logging"
	"github.com/tagsight/tagsight/internal/metrics"
	"github.com/tagsight/tagsight/internal/models"
)

// Message types pushed to viewers.
const (
	MessageTypeTagRead          = "tag_read"
	MessageTypeStatsUpdate      = "stats_update"
	MessageTypeConnectionStatus = "connection_status"
	MessageTypePing             = "ping"
	MessageTypePong             = "pong"
)

// Message is the envelope for all viewer-bound payloads.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of attached clients and broadcasts messages to
// them. It is the only component that mutates the client set.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Serve runs the hub until the context is canceled, then closes every
// attached client. Client lifecycle events take priority over broadcasts
// so the client set is always consistent before a message goes out.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
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
			h.shutdown()
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

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	metrics.WSClientsConnected.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("viewer attached")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	metrics.WSClientsConnected.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("viewer detached")
}

// broadcastToClients delivers a message to every client in id order. A
// client whose send buffer is full is detached: fan-out never waits for a
// slow viewer.
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
		metrics.BroadcastDropped.Inc()
		logging.Warn().Uint64("client_id", client.id).Msg("viewer too slow, detached")
	}
	if len(toRemove) > 0 {
		metrics.WSClientsConnected.Set(float64(len(h.clients)))
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	count := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
	metrics.WSClientsConnected.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", count).
		Msg("websocket hub stopped")
}

// ClientCount returns the number of attached viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// enqueue offers a message to the broadcast channel without blocking the
// caller; the ingestion path must never wait on fan-out.
func (h *Hub) enqueue(message Message) {
	select {
	case h.broadcast <- message:
	default:
		metrics.BroadcastDropped.Inc()
		logging.Warn().Str("message_type", message.Type).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastTagRead pushes the reduced read projection to all viewers.
func (h *Hub) BroadcastTagRead(read models.LiveRead) {
	h.enqueue(Message{Type: MessageTypeTagRead, Data: read})
}

// BroadcastConnectionStatus pushes a broker status transition to viewers.
func (h *Hub) BroadcastConnectionStatus(status models.StatusEvent) {
	h.enqueue(Message{Type: MessageTypeConnectionStatus, Data: status})
}

// StatsUpdate is the periodic rollup snapshot pushed to viewers.
type StatsUpdate struct {
	Timestamp    string  `json:"timestamp"`
	TotalReads   int     `json:"total_reads"`
	UniqueToday  int     `json:"unique_today"`
	ReadsToday   int     `json:"reads_today"`
	TrendPercent float64 `json:"trend_percent"`
}

// BroadcastStatsUpdate notifies viewers that rollups were refreshed.
func (h *Hub) BroadcastStatsUpdate(update StatsUpdate) {
	if update.Timestamp == "" {
		update.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	h.enqueue(Message{Type: MessageTypeStatsUpdate, Data: update})
}
