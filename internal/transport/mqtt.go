package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"heating-mqtt-bridge/internal/config"
	bridgeerrors "heating-mqtt-bridge/internal/errors"
	"heating-mqtt-bridge/internal/logger"
	"heating-mqtt-bridge/internal/metrics"
)

const (
	defaultRetryDelay = 5000 * time.Millisecond
	disconnectQuiesce = 250 // ms
)

// ErrNotConnected is wrapped by publish and subscribe calls made while the broker is unreachable
var ErrNotConnected = errors.New("mqtt client is not connected")

// MQTTTransport carries Modbus frames over an MQTT broker.
// Inbound messages are pushed onto one buffered channel per subscribed topic;
// when a channel is full the message is dropped and counted.
type MQTTTransport struct {
	client   mqtt.Client
	settings config.MQTTSettings
	metrics  metrics.MetricsCollector

	mu        sync.RWMutex
	connected bool
	closed    bool
	subs      map[string]chan Message
}

// NewMQTTTransport creates a paho-backed transport. Call Connect before use.
func NewMQTTTransport(settings config.MQTTSettings, collector metrics.MetricsCollector) *MQTTTransport {
	t := newTransport(settings, collector)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(settings.Broker)
	opts.SetClientID(settings.ClientID)
	opts.SetUsername(settings.Username)
	opts.SetPassword(settings.Password)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectRetry(false)
	if settings.KeepAlive > 0 {
		opts.SetKeepAlive(settings.KeepAlive)
	}
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(t.onConnect)
	opts.SetConnectionLostHandler(t.onConnectionLost)
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.LogInfo("Reconnecting to MQTT broker %s...", settings.Broker)
	})

	t.client = mqtt.NewClient(opts)
	return t
}

// newWithClient wires an existing client, used by tests
func newWithClient(client mqtt.Client, settings config.MQTTSettings, collector metrics.MetricsCollector) *MQTTTransport {
	t := newTransport(settings, collector)
	t.client = client
	return t
}

func newTransport(settings config.MQTTSettings, collector metrics.MetricsCollector) *MQTTTransport {
	if collector == nil {
		collector = metrics.NewNullMetrics()
	}
	if settings.InboundBuffer <= 0 {
		settings.InboundBuffer = 64
	}
	return &MQTTTransport{
		settings: settings,
		metrics:  collector,
		subs:     make(map[string]chan Message),
	}
}

// onConnect marks the transport connected and restores every subscription.
// The session is clean, so the broker forgets them on each reconnect.
func (t *MQTTTransport) onConnect(client mqtt.Client) {
	t.mu.Lock()
	t.connected = true
	topics := make([]string, 0, len(t.subs))
	for topic := range t.subs {
		topics = append(topics, topic)
	}
	t.mu.Unlock()

	t.metrics.SetTransportConnected(true)
	logger.LogInfo("Connected to MQTT broker %s as %s", t.settings.Broker, t.settings.ClientID)

	for _, topic := range topics {
		token := client.Subscribe(topic, t.settings.QoS, t.handlerFor(topic))
		if token.Wait() && token.Error() != nil {
			t.metrics.RecordError(bridgeerrors.Kind(bridgeerrors.ErrTransportUnavailable))
			logger.LogError("Error resubscribing to %s: %v", topic, token.Error())
			continue
		}
		logger.LogInfo("Subscribed to: %s", topic)
	}
}

func (t *MQTTTransport) onConnectionLost(_ mqtt.Client, err error) {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()

	t.metrics.SetTransportConnected(false)
	logger.LogError("MQTT connection lost: %v", err)
}

// Connect connects to the broker, retrying every RetryDelay until ctx is cancelled
func (t *MQTTTransport) Connect(ctx context.Context) error {
	retryDelay := t.settings.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	attempt := 1
	for {
		logger.LogDebug("Attempting to connect to MQTT broker (attempt %d)...", attempt)

		token := t.client.Connect()
		if token.Wait() && token.Error() == nil {
			if t.waitEstablished(ctx) {
				logger.LogInfo("Connected to MQTT broker after %d attempt(s)", attempt)
				return nil
			}
			if ctx.Err() != nil {
				return fmt.Errorf("connection cancelled during establishment: %w", ctx.Err())
			}
			logger.LogWarn("MQTT connection establishment timeout (attempt %d)", attempt)
			if t.client.IsConnected() {
				t.client.Disconnect(disconnectQuiesce)
			}
		} else {
			logger.LogError("MQTT connection failed (attempt %d): %v", attempt, token.Error())
		}

		logger.LogInfo("Retrying in %.0f seconds...", retryDelay.Seconds())
		select {
		case <-ctx.Done():
			return fmt.Errorf("connection cancelled: %w", ctx.Err())
		case <-time.After(retryDelay):
			attempt++
		}
	}
}

// waitEstablished waits up to five seconds for the OnConnect callback
func (t *MQTTTransport) waitEstablished(ctx context.Context) bool {
	for i := 0; i < 50; i++ {
		if t.IsConnected() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return t.IsConnected()
}

// IsConnected checks if the client is connected
func (t *MQTTTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected && t.client != nil && t.client.IsConnected()
}

// Publish sends payload to topic. It fails fast when disconnected; callers
// retry on their own schedule.
func (t *MQTTTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	if !t.IsConnected() {
		return bridgeerrors.NewTransportError("publish", ErrNotConnected, t.settings.Broker, topic)
	}

	logger.LogFrame("out", topic, payload)
	token := t.client.Publish(topic, t.settings.QoS, false, payload)

	select {
	case <-ctx.Done():
		return bridgeerrors.NewTransportError("publish", ctx.Err(), t.settings.Broker, topic)
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return bridgeerrors.NewTransportError("publish", err, t.settings.Broker, topic)
	}
	return nil
}

// Subscribe registers topic and returns the channel its messages are delivered on.
// If the client is not connected yet the subscription is made on connect.
func (t *MQTTTransport) Subscribe(ctx context.Context, topic string) (<-chan Message, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, bridgeerrors.NewTransportError("subscribe", fmt.Errorf("transport closed"), t.settings.Broker, topic)
	}
	if _, exists := t.subs[topic]; exists {
		t.mu.Unlock()
		return nil, bridgeerrors.NewTransportError("subscribe", fmt.Errorf("already subscribed"), t.settings.Broker, topic)
	}
	ch := make(chan Message, t.settings.InboundBuffer)
	t.subs[topic] = ch
	t.mu.Unlock()

	if !t.IsConnected() {
		logger.LogWarn("Not connected yet, subscription to %s deferred until connect", topic)
		return ch, nil
	}

	token := t.client.Subscribe(topic, t.settings.QoS, t.handlerFor(topic))
	select {
	case <-ctx.Done():
		t.dropSubscription(topic)
		return nil, bridgeerrors.NewTransportError("subscribe", ctx.Err(), t.settings.Broker, topic)
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		t.dropSubscription(topic)
		return nil, bridgeerrors.NewTransportError("subscribe", err, t.settings.Broker, topic)
	}

	logger.LogInfo("Subscribed to: %s", topic)
	return ch, nil
}

// Unsubscribe stops delivery for topic and closes its channel
func (t *MQTTTransport) Unsubscribe(ctx context.Context, topic string) error {
	var err error
	if t.IsConnected() {
		token := t.client.Unsubscribe(topic)
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-token.Done():
			err = token.Error()
		}
	}

	t.dropSubscription(topic)
	if err != nil {
		return bridgeerrors.NewTransportError("unsubscribe", err, t.settings.Broker, topic)
	}
	return nil
}

func (t *MQTTTransport) dropSubscription(topic string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.subs[topic]; ok {
		delete(t.subs, topic)
		close(ch)
	}
}

// Close disconnects from the broker and closes every subscription channel
func (t *MQTTTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	t.mu.Unlock()

	// Disconnect waits for paho's workers, which may be inside deliver.
	// It also ends the auto-reconnect loop after a lost connection.
	if t.client != nil {
		t.client.Disconnect(disconnectQuiesce)
	}

	t.mu.Lock()
	for topic, ch := range t.subs {
		delete(t.subs, topic)
		close(ch)
	}
	t.mu.Unlock()

	t.metrics.SetTransportConnected(false)
	logger.LogInfo("MQTT transport closed")
	return nil
}

// handlerFor returns the paho callback for topic. It never blocks the paho router.
func (t *MQTTTransport) handlerFor(topic string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		t.deliver(topic, msg)
	}
}

func (t *MQTTTransport) deliver(subscription string, msg mqtt.Message) {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())
	logger.LogFrame("in", msg.Topic(), payload)

	m := Message{
		Topic:      msg.Topic(),
		Payload:    payload,
		ReceivedAt: time.Now(),
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	ch, ok := t.subs[subscription]
	if !ok {
		logger.LogDebug("Message on %s after unsubscribe, ignoring", msg.Topic())
		return
	}

	select {
	case ch <- m:
	default:
		t.metrics.IncrementInboundDropped()
		logger.LogWarn("Inbound queue full (%d), dropping message on %s: %X", cap(ch), msg.Topic(), payload)
	}
}
