package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bridgeerrors "heating-mqtt-bridge/internal/errors"
	"heating-mqtt-bridge/internal/logger"
	"heating-mqtt-bridge/internal/metrics"
	"heating-mqtt-bridge/internal/modbus"
	"heating-mqtt-bridge/internal/reading"
	"heating-mqtt-bridge/internal/store"
	"heating-mqtt-bridge/internal/transport"
)

const defaultAppendTimeout = 5 * time.Second

// Options configures a Router. Zero values get sensible defaults.
type Options struct {
	Location      *time.Location   // Reporting timezone, default UTC
	Clock         func() time.Time // Default time.Now
	AppendTimeout time.Duration    // Per-record sink timeout
	Metrics       metrics.MetricsCollector
	Errors        *bridgeerrors.ErrorHandler
}

// Router turns inbound Modbus responses into stored readings.
// Each message is handled on its own: a bad frame or a failed append affects
// only that message or that reading.
type Router struct {
	sink          store.Sink
	loc           *time.Location
	clock         func() time.Time
	appendTimeout time.Duration
	metrics       metrics.MetricsCollector
	errors        *bridgeerrors.ErrorHandler

	mu          sync.Mutex
	lastReading time.Time
}

// New creates a router writing to sink
func New(sink store.Sink, opts Options) *Router {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.AppendTimeout <= 0 {
		opts.AppendTimeout = defaultAppendTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNullMetrics()
	}
	if opts.Errors == nil {
		opts.Errors = bridgeerrors.NewErrorHandler(logger.NewStandardLogger("router"), opts.Metrics)
	}
	return &Router{
		sink:          sink,
		loc:           opts.Location,
		clock:         opts.Clock,
		appendTimeout: opts.AppendTimeout,
		metrics:       opts.Metrics,
		errors:        opts.Errors,
	}
}

// Run consumes in until it is closed or ctx is cancelled. On cancellation the
// messages already queued are still handled before Run returns. Appends are
// bounded by the append timeout, not by ctx.
func (r *Router) Run(ctx context.Context, in <-chan transport.Message) error {
	logger.LogInfo("📥 Response router started")
	defer logger.LogInfo("📥 Response router stopped")

	storeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			r.drain(storeCtx, in)
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			r.consume(storeCtx, msg)
		}
	}
}

func (r *Router) drain(ctx context.Context, in <-chan transport.Message) {
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return
			}
			r.consume(ctx, msg)
		default:
			return
		}
	}
}

func (r *Router) consume(ctx context.Context, msg transport.Message) {
	r.metrics.IncrementMessagesReceived()
	_ = r.HandleMessage(ctx, msg.Topic, msg.Payload)
}

// HandleMessage decodes one inbound payload and appends its readings, one
// append per reading in decode order. Every failure is reported through the
// error handler; the returned error is for callers that want the outcome.
func (r *Router) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	if logger.IsDebugEnabled() {
		logger.LogDebug("Received %d bytes on %s: %X", len(payload), topic, payload)
	}

	frame, err := modbus.Decode(payload)
	if err != nil {
		r.errors.Handle(err)
		return err
	}

	readings, err := reading.Decode(frame, r.clock().In(r.loc))
	if err != nil {
		r.errors.Handle(err)
		return err
	}

	var errs []error
	for _, rd := range readings {
		if err := r.store(ctx, rd); err != nil {
			r.errors.Handle(err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Router) store(ctx context.Context, rd reading.SensorReading) error {
	rec, err := store.FromReading(rd, r.loc)
	if err != nil {
		return bridgeerrors.NewPersistenceError("map", err, "", string(rd.Kind))
	}

	actx, cancel := context.WithTimeout(ctx, r.appendTimeout)
	defer cancel()

	start := time.Now()
	err = r.sink.Append(actx, rec)
	r.metrics.ObserveAppendDuration(time.Since(start))
	if err != nil {
		if !errors.Is(err, bridgeerrors.ErrPersistenceFailure) {
			err = bridgeerrors.NewPersistenceError("append", err, rec.Collection, rec.Type)
		}
		return fmt.Errorf("%s reading %s: %w", rd.Kind, rd, err)
	}

	r.metrics.IncrementReadingsStored(string(rd.Kind))
	r.mu.Lock()
	r.lastReading = time.Now()
	r.mu.Unlock()
	logger.LogInfo("💾 %s %s%s stored in %s", rd.Kind, rd, rd.Kind.Unit(), rec.Collection)
	return nil
}

// LastReading returns when a reading was last stored
func (r *Router) LastReading() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastReading
}
