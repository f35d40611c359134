package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	bridgeerrors "heating-mqtt-bridge/internal/errors"
)

// Responder answers a published payload, simulating the device behind the gateway.
// Returning ok=false means no reply.
type Responder func(topic string, payload []byte) (replyTopic string, reply []byte, ok bool)

// Publication is one payload recorded by MemoryTransport
type Publication struct {
	Topic   string
	Payload []byte
	At      time.Time
}

// MemoryTransport is an in-process broker used by the simulator and tests
type MemoryTransport struct {
	mu         sync.Mutex
	subs       map[string]chan Message
	published  []Publication
	responder  Responder
	publishErr error
	buffer     int
	dropped    int
	closed     bool
}

// NewMemoryTransport creates an in-process transport with the given per-topic buffer
func NewMemoryTransport(buffer int) *MemoryTransport {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryTransport{
		subs:   make(map[string]chan Message),
		buffer: buffer,
	}
}

// SetResponder installs a device simulator invoked on every publish
func (m *MemoryTransport) SetResponder(r Responder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = r
}

// FailPublishes makes every Publish return err until called again with nil
func (m *MemoryTransport) FailPublishes(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

// Publish records the payload and feeds the responder's reply back to subscribers
func (m *MemoryTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return bridgeerrors.NewTransportError("publish", err, "memory", topic)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return bridgeerrors.NewTransportError("publish", ErrNotConnected, "memory", topic)
	}
	if m.publishErr != nil {
		err := m.publishErr
		m.mu.Unlock()
		return bridgeerrors.NewTransportError("publish", err, "memory", topic)
	}
	raw := append([]byte(nil), payload...)
	m.published = append(m.published, Publication{Topic: topic, Payload: raw, At: time.Now()})
	responder := m.responder
	m.mu.Unlock()

	if responder != nil {
		if replyTopic, reply, ok := responder(topic, raw); ok {
			m.Deliver(replyTopic, reply)
		}
	}
	return nil
}

// Deliver pushes payload to the subscriber of topic, dropping it when the queue is full.
// It reports whether the message was queued.
func (m *MemoryTransport) Deliver(topic string, payload []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.subs[topic]
	if !ok {
		return false
	}
	select {
	case ch <- Message{Topic: topic, Payload: append([]byte(nil), payload...), ReceivedAt: time.Now()}:
		return true
	default:
		m.dropped++
		return false
	}
}

// Subscribe returns the delivery channel for topic
func (m *MemoryTransport) Subscribe(_ context.Context, topic string) (<-chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, bridgeerrors.NewTransportError("subscribe", ErrNotConnected, "memory", topic)
	}
	if _, exists := m.subs[topic]; exists {
		return nil, bridgeerrors.NewTransportError("subscribe", fmt.Errorf("already subscribed"), "memory", topic)
	}
	ch := make(chan Message, m.buffer)
	m.subs[topic] = ch
	return ch, nil
}

// Unsubscribe closes the channel for topic
func (m *MemoryTransport) Unsubscribe(_ context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.subs[topic]; ok {
		delete(m.subs, topic)
		close(ch)
	}
	return nil
}

// IsConnected reports true until Close
func (m *MemoryTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Close closes all subscription channels
func (m *MemoryTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for topic, ch := range m.subs {
		delete(m.subs, topic)
		close(ch)
	}
	return nil
}

// Published returns a copy of everything published so far
func (m *MemoryTransport) Published() []Publication {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Publication, len(m.published))
	copy(out, m.published)
	return out
}

// Dropped returns how many deliveries were dropped on a full queue
func (m *MemoryTransport) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

var (
	_ Transport = (*MemoryTransport)(nil)
	_ Transport = (*MQTTTransport)(nil)
)
