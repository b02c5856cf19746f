// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

// Package broker maintains the MQTT subscription session to the reader
// event broker. Exactly one logical session exists per running process;
// the Manager owns its connection-status state machine and recovers from
// transient transport failures with bounded backoff. Paho's built-in
// auto-reconnect stays disabled so that every transition is observable
// and the retry budget is enforced here.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/tagsight/tagsight/internal/logging"
	"github.com/tagsight/tagsight/internal/metrics"
	"github.com/tagsight/tagsight/internal/models"
)

// ErrNotConnected is returned by Subscribe when no session is established.
var ErrNotConnected = errors.New("broker: not connected")

// ErrAlreadyConnected is returned by Connect when a session already exists.
var ErrAlreadyConnected = errors.New("broker: already connected")

// Config holds connection parameters. All values are consumed opaquely
// from the configuration layer.
type Config struct {
	// URL selects the transport variant by scheme: tcp://, ws:// or wss://.
	URL      string
	ClientID string
	Username string
	Password string

	// Topics to subscribe after each successful handshake. The reader
	// ingress pattern is typically "rfid/readers/+/tags".
	Topics []string

	// QoS for subscriptions. The configuration layer defaults this to 1
	// (at-least-once, the delivery contract assumed by ingestion); 0 is a
	// valid at-most-once setting and is passed through as given.
	QoS byte

	ConnectTimeout time.Duration

	// MaxReconnectAttempts bounds automatic recovery after session loss.
	// Once exceeded the manager tears the session down and reports the
	// error status; a new explicit Connect is required.
	MaxReconnectAttempts int

	// ReconnectInitialDelay doubles per attempt up to ReconnectMaxDelay.
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration

	// MessageBuffer is the capacity of the inbound delivery channel.
	MessageBuffer int
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.ReconnectInitialDelay == 0 {
		c.ReconnectInitialDelay = time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = time.Minute
	}
	if c.MessageBuffer == 0 {
		c.MessageBuffer = 1024
	}
}

// Message is one inbound publish from the broker.
type Message struct {
	Topic   string
	Payload []byte
}

// Observer receives status transitions. Callbacks run on the transition
// path and must not block.
type Observer func(models.StatusEvent)

// clientFactory builds the underlying MQTT client. Tests substitute a fake.
type clientFactory func(*mqtt.ClientOptions) mqtt.Client

// Manager owns the broker session lifecycle: connect, subscribe, bounded
// reconnect, explicit disconnect. It is the single writer of the connection
// status; observers and status readers never mutate it.
type Manager struct {
	cfg Config
	log zerolog.Logger

	mu           sync.Mutex
	client       mqtt.Client
	status       models.StatusEvent
	observers    map[int]Observer
	nextObserver int
	// reconnectCancel aborts a pending recovery loop; nil when none runs.
	reconnectCancel context.CancelFunc
	// closing marks an explicit disconnect so the connection-lost handler
	// does not start recovery for a teardown we initiated.
	closing bool

	messages chan Message

	newClient clientFactory
}

// NewManager creates a Manager for the given configuration.
func NewManager(cfg Config) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:       cfg,
		log:       logging.With().Str("component", "broker").Logger(),
		status:    models.StatusEvent{Status: models.StatusDisconnected},
		observers: make(map[int]Observer),
		messages:  make(chan Message, cfg.MessageBuffer),
		newClient: mqtt.NewClient,
	}
}

// Messages returns the inbound delivery channel consumed by ingestion.
// Per-connection ordering follows broker arrival order.
func (m *Manager) Messages() <-chan Message {
	return m.messages
}

// Status returns a copy of the current connection status.
func (m *Manager) Status() models.StatusEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// OnStatusChange registers an observer and returns its removal function.
// The registry is explicit: observers that are done must remove themselves,
// there is no ambient broadcast.
func (m *Manager) OnStatusChange(fn Observer) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextObserver
	m.nextObserver++
	m.observers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.observers, id)
	}
}

// setStatus records a transition and notifies observers with a snapshot of
// the registry, outside the lock.
func (m *Manager) setStatus(status models.ConnectionStatus, message string, attempt int) {
	m.mu.Lock()
	m.status = models.StatusEvent{Status: status, Message: message, Attempt: attempt}
	event := m.status
	observers := make([]Observer, 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	m.mu.Unlock()

	metrics.BrokerConnectionStatus.Set(statusGaugeValue(status))
	for _, fn := range observers {
		fn(event)
	}
}

func statusGaugeValue(s models.ConnectionStatus) float64 {
	switch s {
	case models.StatusConnected:
		return 1
	case models.StatusConnecting, models.StatusReconnecting:
		return 0.5
	default:
		return 0
	}
}

// Connect establishes the session. It succeeds only after the first
// successful handshake; a handshake error before any success fails the
// call and leaves the manager in the error state.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.client != nil && m.client.IsConnected() {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.closing = false
	m.mu.Unlock()

	m.setStatus(models.StatusConnecting, "connecting to "+m.cfg.URL, 0)

	client := m.newClient(m.clientOptions())

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()

	if err := m.waitToken(ctx, client.Connect()); err != nil {
		m.setStatus(models.StatusError, err.Error(), 0)
		return fmt.Errorf("broker connect: %w", err)
	}

	m.setStatus(models.StatusConnected, "connected to "+m.cfg.URL, 0)
	m.log.Info().Str("url", m.cfg.URL).Msg("broker connected")

	if err := m.Subscribe(m.cfg.Topics...); err != nil {
		// The session is up; a failed topic subscribe is a transport error.
		m.setStatus(models.StatusError, err.Error(), 0)
		return err
	}
	return nil
}

func (m *Manager) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.URL).
		SetClientID(m.cfg.ClientID).
		SetAutoReconnect(false).
		SetCleanSession(true).
		SetConnectTimeout(m.cfg.ConnectTimeout).
		SetConnectionLostHandler(m.onConnectionLost)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	return opts
}

// waitToken waits for a paho token bounded by both the connect timeout and
// the caller's context.
func (m *Manager) waitToken(ctx context.Context, token mqtt.Token) error {
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return token.Error()
	}
}

// Subscribe attaches the handler to the given topics. Invoked while not
// connected it logs a warning and performs nothing.
func (m *Manager) Subscribe(topics ...string) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil || !client.IsConnected() {
		m.log.Warn().Strs("topics", topics).Msg("subscribe ignored: not connected")
		return ErrNotConnected
	}

	for _, topic := range topics {
		token := client.Subscribe(topic, m.cfg.QoS, m.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			return fmt.Errorf("subscribe %q: %w", topic, err)
		}
		m.log.Info().Str("topic", topic).Uint8("qos", m.cfg.QoS).Msg("subscribed")
	}
	return nil
}

// onMessage forwards an inbound publish to the delivery channel. The paho
// handler must never block, so an overrun buffer drops the message; the
// broker redelivers at QoS 1 when the drop mattered.
func (m *Manager) onMessage(_ mqtt.Client, msg mqtt.Message) {
	metrics.BrokerMessagesReceived.Inc()
	select {
	case m.messages <- Message{Topic: msg.Topic(), Payload: msg.Payload()}:
	default:
		metrics.BrokerMessagesDropped.Inc()
		m.log.Warn().Str("topic", msg.Topic()).Msg("delivery buffer full, message dropped")
	}
}

// onConnectionLost drives connected -> reconnecting and starts the bounded
// recovery loop, unless the loss came from an explicit disconnect.
func (m *Manager) onConnectionLost(_ mqtt.Client, err error) {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	if m.reconnectCancel != nil {
		m.reconnectCancel()
	}
	m.reconnectCancel = cancel
	m.mu.Unlock()

	m.log.Warn().Err(err).Msg("broker session lost")
	go m.reconnectLoop(ctx, err)
}

// reconnectLoop retries the handshake with doubling delays until success
// or the attempt budget is spent. Spending the budget is terminal: the
// session is torn down and only an explicit Connect resumes.
func (m *Manager) reconnectLoop(ctx context.Context, cause error) {
	delay := m.cfg.ReconnectInitialDelay

	for attempt := 1; attempt <= m.cfg.MaxReconnectAttempts; attempt++ {
		m.setStatus(models.StatusReconnecting, fmt.Sprintf("session lost: %v", cause), attempt)
		metrics.BrokerReconnectAttempts.Inc()

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		m.mu.Lock()
		client := m.client
		m.mu.Unlock()
		if client == nil {
			return
		}

		token := client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			m.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			delay *= 2
			if delay > m.cfg.ReconnectMaxDelay {
				delay = m.cfg.ReconnectMaxDelay
			}
			continue
		}

		if err := m.Subscribe(m.cfg.Topics...); err != nil {
			// Handshake came back but the session has no subscriptions,
			// so it cannot deliver; treat it as a failed attempt.
			m.log.Warn().Err(err).Int("attempt", attempt).Msg("resubscribe failed")
			client.Disconnect(250)
			cause = err
			delay *= 2
			if delay > m.cfg.ReconnectMaxDelay {
				delay = m.cfg.ReconnectMaxDelay
			}
			continue
		}

		m.setStatus(models.StatusConnected, "reconnected", 0)
		m.log.Info().Int("attempt", attempt).Msg("broker reconnected")
		return
	}

	m.log.Error().Int("max_attempts", m.cfg.MaxReconnectAttempts).Msg("reconnect budget exhausted, tearing down session")
	m.teardown()
	m.setStatus(models.StatusError,
		fmt.Sprintf("gave up after %d reconnect attempts", m.cfg.MaxReconnectAttempts),
		m.cfg.MaxReconnectAttempts)
}

// Disconnect tears down the session from any state: pending reconnect
// timers are discarded and the transport is closed. Terminal until the
// next explicit Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closing = true
	if m.reconnectCancel != nil {
		m.reconnectCancel()
		m.reconnectCancel = nil
	}
	m.mu.Unlock()

	m.teardown()
	m.setStatus(models.StatusDisconnected, "", 0)
	m.log.Info().Msg("broker disconnected")
}

func (m *Manager) teardown() {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil {
		return
	}
	if client.IsConnected() {
		for _, topic := range m.cfg.Topics {
			client.Unsubscribe(topic).Wait()
		}
	}
	client.Disconnect(250)
}

// Serve runs the manager under a supervisor: it connects, then blocks
// until the context is canceled and disconnects. A failed initial connect
// returns the error so the supervisor applies its own restart backoff.
func (m *Manager) Serve(ctx context.Context) error {
	if err := m.Connect(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	m.Disconnect()
	return ctx.Err()
}
