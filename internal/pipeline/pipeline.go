package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"heating-mqtt-bridge/internal/config"
	bridgeerrors "heating-mqtt-bridge/internal/errors"
	"heating-mqtt-bridge/internal/logger"
	"heating-mqtt-bridge/internal/metrics"
	"heating-mqtt-bridge/internal/router"
	"heating-mqtt-bridge/internal/scheduler"
	"heating-mqtt-bridge/internal/store"
	"heating-mqtt-bridge/internal/transport"
)

// Settings is the slice of configuration the pipeline needs
type Settings struct {
	Topics        config.TopicSettings
	Polling       config.PollingSettings
	Location      *time.Location
	AppendTimeout time.Duration
}

// NewSettings extracts pipeline settings from full config
func NewSettings(cfg *config.Config) (Settings, error) {
	loc, err := cfg.Reporting.Location()
	if err != nil {
		return Settings{}, bridgeerrors.NewConfigError("reporting.timezone", err)
	}
	return Settings{
		Topics:        config.NewTopicSettings(cfg),
		Polling:       config.NewPollingSettings(cfg),
		Location:      loc,
		AppendTimeout: config.NewStorageSettings(cfg).Timeout,
	}, nil
}

// Deps are the collaborators the pipeline is wired to
type Deps struct {
	Transport transport.Transport
	Sink      store.Sink
	Clock     func() time.Time
	Logger    logger.ILogger
	Metrics   metrics.MetricsCollector
}

// Pipeline wires the poll scheduler to the transport and the transport's
// inbound queue to the response router.
type Pipeline struct {
	settings  Settings
	transport transport.Transport
	log       logger.ILogger
	scheduler *scheduler.PollScheduler
	router    *router.Router

	mu           sync.Mutex
	started      bool
	group        *errgroup.Group
	cancelRouter context.CancelFunc
}

// New validates settings and builds a stopped pipeline
func New(settings Settings, deps Deps) (*Pipeline, error) {
	if deps.Transport == nil {
		return nil, errors.New("pipeline: transport is required")
	}
	if deps.Sink == nil {
		return nil, errors.New("pipeline: sink is required")
	}
	if settings.Topics.Device == "" {
		settings.Topics.Device = config.DefaultDeviceTopic
	}
	if settings.Topics.Response == "" {
		return nil, bridgeerrors.NewConfigError("mqtt.response_topic", errors.New("is not specified"))
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewStandardLogger("pipeline")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNullMetrics()
	}

	handler := bridgeerrors.NewErrorHandler(deps.Logger, deps.Metrics)

	return &Pipeline{
		settings:  settings,
		transport: deps.Transport,
		log:       deps.Logger,
		scheduler: scheduler.NewPollScheduler(deps.Transport, settings.Topics.Device,
			scheduler.DefaultPolls(settings.Polling), deps.Metrics, handler),
		router: router.New(deps.Sink, router.Options{
			Location:      settings.Location,
			Clock:         deps.Clock,
			AppendTimeout: settings.AppendTimeout,
			Metrics:       deps.Metrics,
			Errors:        handler,
		}),
	}, nil
}

// Start subscribes to the response topic, starts the router task, then the scheduler
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("pipeline already started")
	}

	inbound, err := p.transport.Subscribe(ctx, p.settings.Topics.Response)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", p.settings.Topics.Response, err)
	}

	routerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g := &errgroup.Group{}
	g.Go(func() error {
		return p.router.Run(routerCtx, inbound)
	})

	if err := p.scheduler.Start(ctx); err != nil {
		_ = p.transport.Unsubscribe(ctx, p.settings.Topics.Response)
		cancel()
		_ = g.Wait()
		return fmt.Errorf("start scheduler: %w", err)
	}

	p.group = g
	p.cancelRouter = cancel
	p.started = true
	p.log.LogInfo("🚀 Pipeline started: polling on %s, responses from %s",
		p.settings.Topics.Device, p.settings.Topics.Response)
	return nil
}

// Stop halts polling first, then lets the router drain the inbound queue, then
// releases the transport. If ctx expires while draining, the router is
// cancelled and whatever is still queued is handled before it returns.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}
	p.started = false

	p.scheduler.Stop()

	var errs []error
	if err := p.transport.Unsubscribe(ctx, p.settings.Topics.Response); err != nil {
		errs = append(errs, err)
		p.cancelRouter()
	}

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			errs = append(errs, err)
		}
	case <-ctx.Done():
		p.log.LogWarn("⚠️ Router drain interrupted: %v", ctx.Err())
		p.cancelRouter()
		if err := <-done; err != nil {
			errs = append(errs, err)
		}
	}
	p.cancelRouter()

	if err := p.transport.Close(); err != nil {
		errs = append(errs, err)
	}

	p.log.LogInfo("🛑 Pipeline stopped")
	return errors.Join(errs...)
}

// Run starts the pipeline and stops it when ctx is cancelled. The transport
// is released on every exit path, including a failed Start.
func (p *Pipeline) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := p.Start(ctx); err != nil {
		if cerr := p.transport.Close(); cerr != nil {
			p.log.LogWarn("⚠️ Error closing transport after failed start: %v", cerr)
		}
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return p.Stop(stopCtx)
}

// IsConnected reports the transport connection state
func (p *Pipeline) IsConnected() bool {
	return p.transport.IsConnected()
}

// LastPublish returns when a query frame was last published
func (p *Pipeline) LastPublish() time.Time {
	return p.scheduler.LastPublish()
}

// LastReading returns when a reading was last stored
func (p *Pipeline) LastReading() time.Time {
	return p.router.LastReading()
}
