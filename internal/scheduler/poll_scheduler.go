package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"heating-mqtt-bridge/internal/config"
	bridgeerrors "heating-mqtt-bridge/internal/errors"
	"heating-mqtt-bridge/internal/logger"
	"heating-mqtt-bridge/internal/metrics"
	"heating-mqtt-bridge/internal/modbus"
	"heating-mqtt-bridge/internal/transport"
)

// ErrAlreadyRunning is returned by Start on a running scheduler
var ErrAlreadyRunning = errors.New("poll scheduler already running")

// Poll names, also used as metric labels
const (
	PollHeater = "heater"
	PollRoom   = "room"
)

// Poll is one query published at a fixed rate
type Poll struct {
	Name     string
	Interval time.Duration
	Frame    modbus.RequestFrame
}

// DefaultPolls returns the heater and room queries at the configured cadences
func DefaultPolls(settings config.PollingSettings) []Poll {
	return []Poll{
		{Name: PollHeater, Interval: settings.HeaterInterval, Frame: modbus.HeaterQuery},
		{Name: PollRoom, Interval: settings.RoomInterval, Frame: modbus.RoomQuery},
	}
}

// PollScheduler publishes each poll's frame on its own ticker.
// Tickers are independent: a failing or slow poll never delays another.
type PollScheduler struct {
	publisher transport.Publisher
	topic     string
	polls     []Poll
	metrics   metrics.MetricsCollector
	errors    *bridgeerrors.ErrorHandler

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastPublish time.Time
}

// NewPollScheduler creates a stopped scheduler publishing polls to topic
func NewPollScheduler(publisher transport.Publisher, topic string, polls []Poll,
	collector metrics.MetricsCollector, handler *bridgeerrors.ErrorHandler) *PollScheduler {
	if collector == nil {
		collector = metrics.NewNullMetrics()
	}
	if handler == nil {
		handler = bridgeerrors.NewErrorHandler(logger.NewStandardLogger("scheduler"), collector)
	}
	return &PollScheduler{
		publisher: publisher,
		topic:     topic,
		polls:     polls,
		metrics:   collector,
		errors:    handler,
	}
}

// Start launches one ticker goroutine per poll. The first frame of each poll
// goes out one full interval after Start. Cancelling ctx does not stop the
// tickers; only Stop does.
func (s *PollScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	for _, p := range s.polls {
		if p.Interval <= 0 {
			return fmt.Errorf("poll %s: interval must be positive, got %v", p.Name, p.Interval)
		}
	}

	// Only Stop ends polling; ctx supplies values, not the lifetime
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.running = true

	for _, p := range s.polls {
		s.wg.Add(1)
		go s.run(runCtx, p)
		logger.LogInfo("📅 Scheduled %s poll every %v: %s -> %s", p.Name, p.Interval, p.Frame, s.topic)
	}
	return nil
}

// Stop cancels every ticker and waits for the goroutines to exit.
// Stopping a stopped scheduler is a no-op.
func (s *PollScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	logger.LogInfo("🔄 Poll scheduler stopped")
}

// IsRunning reports whether Start has been called without a matching Stop
func (s *PollScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastPublish returns the time of the most recent successful publish
func (s *PollScheduler) LastPublish() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPublish
}

func (s *PollScheduler) run(ctx context.Context, p Poll) {
	defer s.wg.Done()

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.LogDebug("%s poll stopped", p.Name)
			return
		case <-ticker.C:
			s.poll(ctx, p)
		}
	}
}

// poll publishes one frame. Failures are reported and left for the next tick.
func (s *PollScheduler) poll(ctx context.Context, p Poll) {
	pctx, cancel := context.WithTimeout(ctx, p.Interval)
	defer cancel()

	if err := s.publisher.Publish(pctx, s.topic, p.Frame.Bytes()); err != nil {
		if ctx.Err() != nil {
			return // stopping
		}
		s.metrics.IncrementPublishErrors(p.Name)
		s.errors.Handle(fmt.Errorf("%s poll: %w", p.Name, err))
		return
	}

	s.metrics.IncrementFramesPublished(p.Name)
	s.mu.Lock()
	s.lastPublish = time.Now()
	s.mu.Unlock()
	if logger.IsTraceEnabled() {
		logger.LogTrace("⏰ %s query published: %s", p.Name, p.Frame)
	}
}
