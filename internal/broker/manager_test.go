// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tagsight/tagsight/internal/models"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

// fakeClient stands in for the paho client so the state machine can be
// driven without a broker.
type fakeClient struct {
	mu            sync.Mutex
	connected     bool
	connectErrs   []error // consumed one per Connect call; nil means success
	subscribeErrs []error // consumed one per Subscribe call; nil means success
	connectCalls  int
	handlers      map[string]mqtt.MessageHandler
	qosSeen       []byte
	unsubscribed  []string
	disconnects   int
}

func newFakeClient(connectErrs ...error) *fakeClient {
	return &fakeClient{
		connectErrs: connectErrs,
		handlers:    make(map[string]mqtt.MessageHandler),
	}
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectCalls++
	var err error
	if len(c.connectErrs) > 0 {
		err = c.connectErrs[0]
		c.connectErrs = c.connectErrs[1:]
	}
	if err == nil {
		c.connected = true
	}
	return &fakeToken{err: err}
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
}

func (c *fakeClient) Publish(string, byte, bool, interface{}) mqtt.Token {
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qosSeen = append(c.qosSeen, qos)
	var err error
	if len(c.subscribeErrs) > 0 {
		err = c.subscribeErrs[0]
		c.subscribeErrs = c.subscribeErrs[1:]
	}
	if err != nil {
		return &fakeToken{err: err}
	}
	c.handlers[topic] = handler
	return &fakeToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, handler mqtt.MessageHandler) mqtt.Token {
	for topic := range filters {
		c.Subscribe(topic, filters[topic], handler)
	}
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return &fakeToken{}
}

func (c *fakeClient) AddRoute(string, mqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (c *fakeClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectCalls
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func testManager(client *fakeClient) *Manager {
	m := NewManager(Config{
		URL:                   "tcp://127.0.0.1:1883",
		ClientID:              "tagsight-test",
		Topics:                []string{"rfid/readers/+/tags"},
		MaxReconnectAttempts:  3,
		ReconnectInitialDelay: time.Millisecond,
		ReconnectMaxDelay:     4 * time.Millisecond,
	})
	m.newClient = func(*mqtt.ClientOptions) mqtt.Client { return client }
	return m
}

func waitForStatus(t *testing.T, m *Manager, want models.ConnectionStatus) models.StatusEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ev := m.Status(); ev.Status == want {
			return ev
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Timed out waiting for status %q, last was %q", want, m.Status().Status)
	return models.StatusEvent{}
}

func TestConnect_Success(t *testing.T) {
	client := newFakeClient()
	m := testManager(client)

	var transitions []models.ConnectionStatus
	var mu sync.Mutex
	remove := m.OnStatusChange(func(ev models.StatusEvent) {
		mu.Lock()
		transitions = append(transitions, ev.Status)
		mu.Unlock()
	})
	defer remove()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	ev := m.Status()
	if ev.Status != models.StatusConnected {
		t.Errorf("Expected connected, got %q", ev.Status)
	}
	if ev.Attempt != 0 {
		t.Errorf("Expected attempt counter 0 after handshake, got %d", ev.Attempt)
	}

	client.mu.Lock()
	_, subscribed := client.handlers["rfid/readers/+/tags"]
	client.mu.Unlock()
	if !subscribed {
		t.Error("Expected topic subscription after handshake")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 2 || transitions[0] != models.StatusConnecting || transitions[1] != models.StatusConnected {
		t.Errorf("Unexpected transition order: %v", transitions)
	}
}

func TestConnect_HandshakeFailureBeforeAnySuccess(t *testing.T) {
	client := newFakeClient(errors.New("connection refused"))
	m := testManager(client)

	err := m.Connect(context.Background())
	if err == nil {
		t.Fatal("Expected connect error, got nil")
	}

	ev := m.Status()
	if ev.Status != models.StatusError {
		t.Errorf("Expected error status, got %q", ev.Status)
	}
	if ev.Message == "" {
		t.Error("Expected a human-readable error message")
	}
}

func TestSubscribe_NotConnected(t *testing.T) {
	m := testManager(newFakeClient())

	if err := m.Subscribe("rfid/readers/+/tags"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestObserverRemoval(t *testing.T) {
	client := newFakeClient()
	m := testManager(client)

	var calls int
	var mu sync.Mutex
	remove := m.OnStatusChange(func(models.StatusEvent) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	remove()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("Removed observer was invoked %d times", calls)
	}
}

func TestReconnect_RecoversSession(t *testing.T) {
	// First Connect succeeds; first reconnect attempt fails, second succeeds.
	client := newFakeClient(nil, errors.New("transient"), nil)
	m := testManager(client)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	m.onConnectionLost(client, errors.New("session dropped"))

	ev := waitForStatus(t, m, models.StatusConnected)
	if ev.Attempt != 0 {
		t.Errorf("Expected attempt counter reset on recovery, got %d", ev.Attempt)
	}
	if client.calls() != 3 {
		t.Errorf("Expected 3 connect calls (initial + 2 retries), got %d", client.calls())
	}
}

func TestReconnect_BudgetExhaustedIsTerminal(t *testing.T) {
	fail := errors.New("broker unreachable")
	client := newFakeClient(nil, fail, fail, fail, fail, fail)
	m := testManager(client)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	m.onConnectionLost(client, errors.New("session dropped"))

	ev := waitForStatus(t, m, models.StatusError)
	if ev.Attempt != 3 {
		t.Errorf("Expected attempt counter at budget (3), got %d", ev.Attempt)
	}

	// No further automatic attempts after the budget: initial + 3 retries.
	calls := client.calls()
	time.Sleep(20 * time.Millisecond)
	if client.calls() != calls {
		t.Error("Reconnects continued after the budget was spent")
	}
	if client.calls() != 4 {
		t.Errorf("Expected 4 connect calls total, got %d", client.calls())
	}

	client.mu.Lock()
	disconnects := client.disconnects
	client.mu.Unlock()
	if disconnects == 0 {
		t.Error("Expected session teardown after budget exhaustion")
	}
}

func TestReconnect_ResubscribeFailureRetriesAttempt(t *testing.T) {
	// Reconnect handshake succeeds but the first resubscribe is refused;
	// the session is useless without subscriptions, so the loop must keep
	// retrying instead of reporting connected.
	client := newFakeClient()
	client.subscribeErrs = []error{nil, errors.New("SUBACK failure"), nil}
	m := testManager(client)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var sawConnectedWithoutSub bool
	var mu sync.Mutex
	remove := m.OnStatusChange(func(ev models.StatusEvent) {
		if ev.Status != models.StatusConnected {
			return
		}
		client.mu.Lock()
		_, subscribed := client.handlers["rfid/readers/+/tags"]
		client.mu.Unlock()
		mu.Lock()
		if !subscribed {
			sawConnectedWithoutSub = true
		}
		mu.Unlock()
	})
	defer remove()

	client.mu.Lock()
	delete(client.handlers, "rfid/readers/+/tags")
	client.mu.Unlock()
	m.onConnectionLost(client, errors.New("session dropped"))

	waitForStatus(t, m, models.StatusConnected)
	if client.calls() != 3 {
		t.Errorf("Expected 3 connect calls (initial + failed-subscribe retry + recovery), got %d", client.calls())
	}

	mu.Lock()
	defer mu.Unlock()
	if sawConnectedWithoutSub {
		t.Error("Status reported connected while the session had no subscriptions")
	}
}

func TestReconnect_ResubscribeFailureSpendsBudget(t *testing.T) {
	subFail := errors.New("SUBACK failure")
	client := newFakeClient()
	client.subscribeErrs = []error{nil, subFail, subFail, subFail}
	m := testManager(client)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	m.onConnectionLost(client, errors.New("session dropped"))

	ev := waitForStatus(t, m, models.StatusError)
	if ev.Attempt != 3 {
		t.Errorf("Expected attempt counter at budget (3), got %d", ev.Attempt)
	}
}

func TestDisconnect_FromAnyState(t *testing.T) {
	client := newFakeClient()
	m := testManager(client)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	m.Disconnect()

	ev := m.Status()
	if ev.Status != models.StatusDisconnected {
		t.Errorf("Expected disconnected, got %q", ev.Status)
	}
	if ev.Attempt != 0 {
		t.Errorf("Expected attempt counter cleared, got %d", ev.Attempt)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.unsubscribed) == 0 {
		t.Error("Expected unsubscribe during teardown")
	}
	if client.disconnects != 1 {
		t.Errorf("Expected 1 transport disconnect, got %d", client.disconnects)
	}
}

func TestSubscribe_QoSPassedThrough(t *testing.T) {
	tests := []struct {
		name string
		qos  byte
	}{
		{"AtMostOnce", 0},
		{"AtLeastOnce", 1},
		{"ExactlyOnce", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			m := NewManager(Config{
				URL:      "tcp://127.0.0.1:1883",
				ClientID: "tagsight-test",
				Topics:   []string{"rfid/readers/+/tags"},
				QoS:      tt.qos,
			})
			m.newClient = func(*mqtt.ClientOptions) mqtt.Client { return client }

			if err := m.Connect(context.Background()); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			client.mu.Lock()
			defer client.mu.Unlock()
			if len(client.qosSeen) != 1 || client.qosSeen[0] != tt.qos {
				t.Errorf("Expected subscribe at QoS %d, saw %v", tt.qos, client.qosSeen)
			}
		})
	}
}

func TestMessageDelivery(t *testing.T) {
	client := newFakeClient()
	m := testManager(client)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	client.mu.Lock()
	handler := client.handlers["rfid/readers/+/tags"]
	client.mu.Unlock()
	if handler == nil {
		t.Fatal("No handler subscribed")
	}

	handler(client, &fakeMessage{topic: "rfid/readers/r1/tags", payload: []byte(`{"epc":"A"}`)})

	select {
	case msg := <-m.Messages():
		if msg.Topic != "rfid/readers/r1/tags" {
			t.Errorf("Unexpected topic %q", msg.Topic)
		}
		if string(msg.Payload) != `{"epc":"A"}` {
			t.Errorf("Unexpected payload %s", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("Message never delivered")
	}
}
