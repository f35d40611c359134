package transport

import (
	"context"
	"time"
)

// Message is one inbound publication taken off a subscribed topic
type Message struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Publisher sends raw payloads to a topic
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Transport is the pub/sub carrier between the bridge and the Modbus gateway.
// Subscribe hands back a channel that is closed by Unsubscribe or Close.
type Transport interface {
	Publisher
	Subscribe(ctx context.Context, topic string) (<-chan Message, error)
	Unsubscribe(ctx context.Context, topic string) error
	IsConnected() bool
	Close() error
}
