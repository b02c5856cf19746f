// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

// Package ingest drains the broker delivery channel, normalizes each
// payload and persists the resulting reads. Failures are contained per
// record: a payload that cannot be parsed, or a read that cannot be
// stored, never stalls the reads behind it.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tagsight/tagsight/internal/broker"
	"github.com/tagsight/tagsight/internal/logging"
	"github.com/tagsight/tagsight/internal/metrics"
	"github.com/tagsight/tagsight/internal/models"
	"github.com/tagsight/tagsight/internal/normalize"
)

// logPayloadLimit caps how much of a rejected payload lands in the log.
const logPayloadLimit = 256

// MessageSource yields raw broker messages. Satisfied by broker.Manager.
type MessageSource interface {
	Messages() <-chan broker.Message
}

// Persister stores normalized reads. Satisfied by database.DB.
type Persister interface {
	InsertTagRead(ctx context.Context, read *models.TagRead) error
}

// LiveBroadcaster fans a persisted read out to connected viewers.
// Satisfied by websocket.Hub.
type LiveBroadcaster interface {
	BroadcastTagRead(read models.LiveRead)
}

// Config tunes the persistence circuit breaker.
type Config struct {
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`
}

func (c *Config) applyDefaults() {
	if c.BreakerFailureThreshold == 0 {
		c.BreakerFailureThreshold = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
}

// Service is the pipeline between the broker and the database. It
// implements suture.Service.
type Service struct {
	source     MessageSource
	db         Persister
	hub        LiveBroadcaster
	normalizer *normalize.Normalizer
	breaker    *gobreaker.CircuitBreaker[interface{}]
	log        zerolog.Logger
}

// New builds an ingestion service wired to the given source, store and hub.
func New(cfg Config, source MessageSource, db Persister, hub LiveBroadcaster) *Service {
	cfg.applyDefaults()

	log := logging.With().Str("component", "ingest").Logger()
	breaker := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:    "persistence",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Persistence circuit breaker state changed")
		},
	})

	return &Service{
		source:     source,
		db:         db,
		hub:        hub,
		normalizer: normalize.New(),
		breaker:    breaker,
		log:        log,
	}
}

// Serve drains the delivery channel until ctx is cancelled.
func (s *Service) Serve(ctx context.Context) error {
	s.log.Info().Msg("Ingestion service started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Ingestion service stopping")
			return ctx.Err()
		case msg, ok := <-s.source.Messages():
			if !ok {
				s.log.Info().Msg("Delivery channel closed")
				return nil
			}
			s.handleMessage(ctx, msg)
		}
	}
}

// handleMessage normalizes one broker message and persists every read it
// yields. Normalization rejects the whole message; persistence failures
// skip only the affected read.
func (s *Service) handleMessage(ctx context.Context, msg broker.Message) {
	reads, err := s.normalizer.Normalize(msg.Payload)
	if err != nil {
		reason := "unparsable"
		if errors.Is(err, normalize.ErrNoEPC) {
			reason = "no_epc"
		}
		metrics.ReadsRejected.WithLabelValues(reason).Inc()
		s.log.Warn().
			Err(err).
			Str("topic", msg.Topic).
			Str("payload", truncatePayload(msg.Payload)).
			Msg("Rejected broker message")
		return
	}

	for i := range reads {
		read := &reads[i]
		if err := s.persist(ctx, read); err != nil {
			metrics.PersistenceFailures.Inc()
			s.log.Error().
				Err(err).
				Str("epc", read.EPC).
				Str("topic", msg.Topic).
				Msg("Failed to persist tag read")
			continue
		}
		metrics.ReadsIngested.Inc()
		s.hub.BroadcastTagRead(read.Live())
	}
}

func (s *Service) persist(ctx context.Context, read *models.TagRead) error {
	start := time.Now()
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.db.InsertTagRead(ctx, read)
	})
	if err == nil {
		metrics.PersistDuration.Observe(time.Since(start).Seconds())
	}
	return err
}

func truncatePayload(payload []byte) string {
	if len(payload) > logPayloadLimit {
		return string(payload[:logPayloadLimit]) + "..."
	}
	return string(payload)
}
