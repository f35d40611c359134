package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"heating-mqtt-bridge/internal/config"
	bridgeerrors "heating-mqtt-bridge/internal/errors"
	"heating-mqtt-bridge/internal/modbus"
)

// mockMessage implements mqtt.Message interface for testing
type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 0 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

// mockToken implements mqtt.Token, completed at creation
type mockToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *mockToken {
	t := &mockToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *mockToken) Wait() bool                     { return true }
func (t *mockToken) WaitTimeout(time.Duration) bool { return true }
func (t *mockToken) Done() <-chan struct{}          { return t.done }
func (t *mockToken) Error() error                   { return t.err }

// mockClient implements mqtt.Client, recording publishes and subscription callbacks
type mockClient struct {
	mu          sync.Mutex
	connected   bool
	publishErr  error
	published   [][]byte
	handlers    map[string]mqtt.MessageHandler
	unsubbed    []string
	disconnects int
}

func newMockClient() *mockClient {
	return &mockClient{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *mockClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
func (c *mockClient) IsConnectionOpen() bool { return c.IsConnected() }
func (c *mockClient) Connect() mqtt.Token   { return newToken(nil) }
func (c *mockClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
}
func (c *mockClient) Publish(_ string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return newToken(c.publishErr)
	}
	c.published = append(c.published, payload.([]byte))
	return newToken(nil)
}
func (c *mockClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = cb
	return newToken(nil)
}
func (c *mockClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return newToken(nil)
}
func (c *mockClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.handlers, topic)
		c.unsubbed = append(c.unsubbed, topic)
	}
	return newToken(nil)
}
func (c *mockClient) AddRoute(string, mqtt.MessageHandler)    {}
func (c *mockClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (c *mockClient) handler(topic string) mqtt.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[topic]
}

type dropCounter struct {
	mu        sync.Mutex
	dropped   int
	connected []bool
}

func (d *dropCounter) IncrementFramesPublished(string) {}
func (d *dropCounter) IncrementPublishErrors(string)   {}
func (d *dropCounter) IncrementMessagesReceived()      {}
func (d *dropCounter) IncrementInboundDropped() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropped++
}
func (d *dropCounter) RecordError(string)             {}
func (d *dropCounter) IncrementReadingsStored(string) {}
func (d *dropCounter) SetTransportConnected(c bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = append(d.connected, c)
}
func (d *dropCounter) ObserveAppendDuration(time.Duration) {}

func testSettings(buffer int) config.MQTTSettings {
	return config.MQTTSettings{
		Broker:        "tcp://test:1883",
		ClientID:      "test-bridge",
		RetryDelay:    10 * time.Millisecond,
		InboundBuffer: buffer,
	}
}

func connectedTransport(t *testing.T, buffer int) (*MQTTTransport, *mockClient, *dropCounter) {
	t.Helper()
	client := newMockClient()
	counter := &dropCounter{}
	tr := newWithClient(client, testSettings(buffer), counter)
	tr.onConnect(client)
	return tr, client, counter
}

func TestPublishSendsFrame(t *testing.T) {
	tr, client, _ := connectedTransport(t, 4)

	if err := tr.Publish(context.Background(), "device/sub", modbus.HeaterQuery.Bytes()); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if len(client.published) != 1 || fmt.Sprintf("%X", client.published[0]) != "010300000002C40B" {
		t.Errorf("Published %X", client.published)
	}
	t.Log("✅ Heater query published")
}

func TestPublishWhenDisconnected(t *testing.T) {
	client := newMockClient()
	tr := newWithClient(client, testSettings(4), nil)

	err := tr.Publish(context.Background(), "device/sub", modbus.RoomQuery.Bytes())
	if !errors.Is(err, bridgeerrors.ErrTransportUnavailable) {
		t.Errorf("Expected ErrTransportUnavailable, got %v", err)
	}
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected in chain, got %v", err)
	}
	if len(client.published) != 0 {
		t.Error("Nothing should be published while disconnected")
	}
}

func TestPublishBrokerError(t *testing.T) {
	tr, client, _ := connectedTransport(t, 4)
	client.publishErr = fmt.Errorf("not authorized")

	err := tr.Publish(context.Background(), "device/sub", modbus.RoomQuery.Bytes())
	var transportErr *bridgeerrors.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Expected *TransportError, got %v", err)
	}
	if transportErr.Topic != "device/sub" {
		t.Errorf("Topic = %q", transportErr.Topic)
	}
}

func TestSubscribeDeliversMessages(t *testing.T) {
	tr, client, _ := connectedTransport(t, 4)

	ch, err := tr.Subscribe(context.Background(), "device/pub")
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	frame := modbus.EncodeResponse(modbus.AddressRoom, modbus.FuncReadInputRegisters, 200, 666)
	client.handler("device/pub")(client, &mockMessage{topic: "device/pub", payload: frame})

	select {
	case msg := <-ch:
		if msg.Topic != "device/pub" || fmt.Sprintf("%X", msg.Payload) != fmt.Sprintf("%X", frame) {
			t.Errorf("Got message %+v", msg)
		}
		if msg.ReceivedAt.IsZero() {
			t.Error("ReceivedAt not set")
		}
	case <-time.After(time.Second):
		t.Fatal("Message not delivered")
	}

	if _, err := tr.Subscribe(context.Background(), "device/pub"); err == nil {
		t.Error("Expected error on duplicate subscription")
	}
}

func TestDeliverCopiesPayload(t *testing.T) {
	tr, client, _ := connectedTransport(t, 4)
	ch, _ := tr.Subscribe(context.Background(), "device/pub")

	buf := []byte{0x01, 0x03, 0x04}
	client.handler("device/pub")(client, &mockMessage{topic: "device/pub", payload: buf})
	buf[0] = 0xFF

	msg := <-ch
	if msg.Payload[0] != 0x01 {
		t.Error("Payload aliased paho's buffer")
	}
}

func TestInboundOverflowDropsAndCounts(t *testing.T) {
	tr, client, counter := connectedTransport(t, 2)
	ch, _ := tr.Subscribe(context.Background(), "device/pub")

	cb := client.handler("device/pub")
	for i := 0; i < 5; i++ {
		cb(client, &mockMessage{topic: "device/pub", payload: []byte{byte(i)}})
	}

	if len(ch) != 2 {
		t.Errorf("Queue length = %d, want 2", len(ch))
	}
	if counter.dropped != 3 {
		t.Errorf("Dropped = %d, want 3", counter.dropped)
	}
	first := <-ch
	if first.Payload[0] != 0 {
		t.Errorf("Oldest message should be kept, got %X", first.Payload)
	}
	t.Logf("✅ Overflow dropped %d messages without blocking", counter.dropped)
}

func TestResubscribeOnReconnect(t *testing.T) {
	client := newMockClient()
	tr := newWithClient(client, testSettings(4), nil)

	// Not connected: subscription deferred
	ch, err := tr.Subscribe(context.Background(), "device/pub")
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	if client.handler("device/pub") != nil {
		t.Fatal("Should not subscribe before connect")
	}

	tr.onConnect(client)
	if client.handler("device/pub") == nil {
		t.Fatal("Expected subscription on connect")
	}

	tr.onConnectionLost(client, fmt.Errorf("EOF"))
	if tr.IsConnected() {
		t.Error("Expected disconnected after connection lost")
	}
	client.mu.Lock()
	client.handlers = make(map[string]mqtt.MessageHandler)
	client.mu.Unlock()

	tr.onConnect(client)
	cb := client.handler("device/pub")
	if cb == nil {
		t.Fatal("Expected resubscription after reconnect")
	}
	cb(client, &mockMessage{topic: "device/pub", payload: []byte{0x02}})
	if len(ch) != 1 {
		t.Error("Original channel should keep receiving after reconnect")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	tr, client, _ := connectedTransport(t, 4)
	ch, _ := tr.Subscribe(context.Background(), "device/pub")
	cb := client.handler("device/pub")

	if err := tr.Unsubscribe(context.Background(), "device/pub"); err != nil {
		t.Fatalf("Unsubscribe() error: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("Expected closed channel")
	}
	// A late paho delivery must not panic on the closed channel
	cb(client, &mockMessage{topic: "device/pub", payload: []byte{0x01}})
	if len(client.unsubbed) != 1 {
		t.Errorf("Broker unsubscribe calls = %d", len(client.unsubbed))
	}
}

func TestCloseDisconnectsAndClosesChannels(t *testing.T) {
	tr, client, counter := connectedTransport(t, 4)
	ch, _ := tr.Subscribe(context.Background(), "device/pub")

	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if client.IsConnected() {
		t.Error("Client still connected")
	}
	if _, ok := <-ch; ok {
		t.Error("Expected closed channel")
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Second Close() error: %v", err)
	}
	if _, err := tr.Subscribe(context.Background(), "x"); err == nil {
		t.Error("Subscribe after Close should fail")
	}
	if last := counter.connected[len(counter.connected)-1]; last {
		t.Error("Connection gauge should end at disconnected")
	}
}

func TestCloseStopsReconnectAfterLostConnection(t *testing.T) {
	tr, client, _ := connectedTransport(t, 4)

	client.mu.Lock()
	client.connected = false
	client.mu.Unlock()
	tr.onConnectionLost(client, fmt.Errorf("broker went away"))

	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	client.mu.Lock()
	disconnects := client.disconnects
	client.mu.Unlock()
	if disconnects != 1 {
		t.Errorf("Disconnect calls = %d, want 1", disconnects)
	}
	t.Log("✅ Close disconnects a reconnecting client")
}

func TestConnectCancelled(t *testing.T) {
	client := newMockClient()
	client.connected = false
	tr := newWithClient(client, testSettings(4), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// OnConnect never fires, so establishment never completes
	if err := tr.Connect(ctx); err == nil {
		t.Fatal("Expected cancellation error")
	}
}

func TestConnectSucceedsWhenEstablished(t *testing.T) {
	client := newMockClient()
	tr := newWithClient(client, testSettings(4), nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		tr.onConnect(client)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
}
