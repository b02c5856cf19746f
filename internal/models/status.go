// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package models

// ConnectionStatus is the broker connection state machine value. There is
// exactly one active value per broker connection, owned by the connection
// manager; everything else only reads it.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusError        ConnectionStatus = "error"
)

// StatusEvent is the payload delivered to status observers on every
// transition and returned by status queries.
type StatusEvent struct {
	Status  ConnectionStatus `json:"status"`
	Message string           `json:"message,omitempty"`
	// Attempt is the reconnect attempt counter; reset to zero on a
	// successful handshake and on explicit disconnect.
	Attempt int `json:"attempt"`
}
