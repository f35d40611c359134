package store

import (
	"context"
	"fmt"
	"time"

	"heating-mqtt-bridge/internal/config"
)

const defaultOpenTimeout = 5 * time.Second

// New opens the sink selected by settings.Type
func New(ctx context.Context, settings config.StorageSettings) (Sink, error) {
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = defaultOpenTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch settings.Type {
	case config.StorageMongo:
		return NewMongoSink(ctx, settings.URI, settings.Database)
	case config.StorageSQLite:
		return NewSQLiteSink(ctx, settings.Path)
	case config.StorageMemory:
		return NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", settings.Type)
	}
}
