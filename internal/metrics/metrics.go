// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

// Package metrics provides Prometheus instrumentation for the ingestion
// pipeline: broker session health, normalization outcomes, persistence
// latency, fan-out pressure and API traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Broker session metrics
	BrokerConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_connection_status",
			Help: "Broker connection state (1 connected, 0.5 connecting/reconnecting, 0 down)",
		},
	)

	BrokerMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_messages_received_total",
			Help: "Total number of messages received from the broker",
		},
	)

	BrokerMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_messages_dropped_total",
			Help: "Messages dropped because the delivery buffer was full",
		},
	)

	BrokerReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_reconnect_attempts_total",
			Help: "Total number of automatic reconnect attempts",
		},
	)

	// Ingestion pipeline metrics
	ReadsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reads_ingested_total",
			Help: "Tag reads durably persisted",
		},
	)

	ReadsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reads_rejected_total",
			Help: "Messages dropped during normalization",
		},
		[]string{"reason"}, // "unparsable", "no_epc"
	)

	PersistenceFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "persistence_failures_total",
			Help: "Tag reads that failed to persist",
		},
	)

	PersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "persist_duration_seconds",
			Help:    "Duration of tag read inserts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Fan-out metrics
	BroadcastDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_dropped_total",
			Help: "Live messages dropped because the hub channel was full",
		},
	)

	WSClientsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients_connected",
			Help: "Currently attached live viewers",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	// Aggregation and retention metrics
	AggregateRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aggregate_refresh_duration_seconds",
			Help:    "Duration of periodic rollup refresh in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetentionReadsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retention_reads_deleted_total",
			Help: "Tag reads removed by the retention janitor",
		},
	)
)
