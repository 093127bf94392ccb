package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/telship/internal/alarm"
	"github.com/bft-labs/telship/internal/batch"
	"github.com/bft-labs/telship/internal/config"
	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/flusher"
	"github.com/bft-labs/telship/internal/input/alarms"
	"github.com/bft-labs/telship/internal/input/hostmonitor"
	"github.com/bft-labs/telship/internal/input/selfmonitor"
	"github.com/bft-labs/telship/internal/metrics"
	"github.com/bft-labs/telship/internal/pipeline"
	"github.com/bft-labs/telship/internal/ports"
	"github.com/bft-labs/telship/pkg/log"
)

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger. Default: no-op.
func WithLogger(l log.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithSinkFactory replaces DefaultSinkFactory.
func WithSinkFactory(f SinkFactory) Option {
	return func(a *Agent) { a.sinks = f }
}

// WithEventEmitter receives lifecycle state changes.
func WithEventEmitter(e EventEmitter) Option {
	return func(a *Agent) { a.emitter = e }
}

// WithInputs adds inputs to every pipeline generation, next to the
// configured ones.
func WithInputs(in ...ports.Input) Option {
	return func(a *Agent) { a.extraInputs = append(a.extraInputs, in...) }
}

// WithMetrics shares a metrics set, for example with an embedding program.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// WithAlarmManager shares an alarm manager.
func WithAlarmManager(m *alarm.Manager) Option {
	return func(a *Agent) { a.alarms = m }
}

// generation is one running pipeline set. A reload replaces it.
type generation struct {
	cfg       config.Config
	cancel    context.CancelFunc
	done      chan struct{}
	pipelines []*pipeline.Pipeline
}

// Agent owns the pipelines and their shared services.
type Agent struct {
	logger      log.Logger
	sinks       SinkFactory
	emitter     EventEmitter
	extraInputs []ports.Input
	metrics     *metrics.Metrics
	alarms      *alarm.Manager

	lifecycle *Lifecycle

	// mu serializes Start and Reload and guards cfg and ctx.
	mu      sync.Mutex
	cfg     config.Config
	ctx     context.Context
	current atomic.Pointer[generation]
}

// NewAgent creates an agent. cfg must have passed Validate.
func NewAgent(cfg config.Config, opts ...Option) *Agent {
	a := &Agent{
		cfg:    cfg,
		logger: log.NewNoopLogger(),
		sinks:  DefaultSinkFactory,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = metrics.New()
	}
	if a.alarms == nil {
		a.alarms = alarm.NewManager()
	}
	a.lifecycle = NewLifecycle(a.logger, a.emitter)
	return a
}

// Metrics returns the agent's collectors.
func (a *Agent) Metrics() *metrics.Metrics { return a.metrics }

// Alarms returns the agent's alarm manager.
func (a *Agent) Alarms() *alarm.Manager { return a.alarms }

// Status returns the lifecycle state.
func (a *Agent) Status() State { return a.lifecycle.State() }

// Start builds the pipelines and runs them in the background.
func (a *Agent) Start(ctx context.Context) error {
	if !a.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := a.lifecycle.TransitionTo(StateStarting, "start requested"); err != nil {
		return err
	}

	// a previous Stop closed the manager
	a.alarms.Reopen()

	runCtx, cancel := context.WithCancel(ctx)
	a.lifecycle.SetCancel(cancel)

	a.mu.Lock()
	a.ctx = runCtx
	cfg := a.cfg
	a.mu.Unlock()

	if cfg.MetricsAddr != "" {
		a.lifecycle.Go(func() {
			if err := metrics.Serve(runCtx, cfg.MetricsAddr, a.metrics, a.logger); err != nil {
				a.logger.Error("metrics listener failed", log.Err(err))
			}
		})
	}

	gen, err := a.startGeneration(runCtx, cfg)
	if err != nil {
		cancel()
		_ = a.lifecycle.TransitionTo(StateCrashed, err.Error())
		return err
	}
	a.current.Store(gen)

	return a.lifecycle.TransitionTo(StateRunning, "pipelines started")
}

// Stop cancels the pipelines, which force-flush before returning, and
// waits for them up to ShutdownTimeout.
func (a *Agent) Stop() error {
	if !a.lifecycle.CanStop() {
		return domain.ErrNotRunning
	}
	if err := a.lifecycle.TransitionTo(StateStopping, "stop requested"); err != nil {
		return err
	}

	a.lifecycle.Cancel()
	err := a.lifecycle.WaitWithTimeout(ShutdownTimeout)

	for _, g := range a.alarms.ForceFlush() {
		for _, e := range g.Events {
			a.logger.Warn("undelivered alarm",
				log.String("type", e.Contents["alarm_type"]),
				log.String("message", e.Contents["alarm_message"]),
			)
		}
	}

	if err != nil {
		_ = a.lifecycle.TransitionTo(StateCrashed, err.Error())
		return err
	}
	return a.lifecycle.TransitionTo(StateStopped, "all pipelines flushed")
}

// Reload replaces the running pipelines with ones built from cfg. The old
// generation is force-flushed before the new one starts.
func (a *Agent) Reload(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if a.lifecycle.State() != StateRunning {
		return domain.ErrNotRunning
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if old := a.current.Load(); old != nil {
		old.cancel()
		select {
		case <-old.done:
		case <-time.After(ShutdownTimeout):
			return domain.ErrShutdownTimeout
		}
	}

	gen, err := a.startGeneration(a.ctx, cfg)
	if err != nil {
		a.alarms.Send(alarm.ConfigUpdateAlarm, "reload failed: "+err.Error(), alarm.Labels{Config: cfg.PipelineName})
		// keep running on the previous configuration
		if prev, perr := a.startGeneration(a.ctx, a.cfg); perr == nil {
			a.current.Store(prev)
		} else {
			a.current.Store(nil)
		}
		return err
	}
	a.cfg = cfg
	a.current.Store(gen)
	a.logger.Info("configuration reloaded", log.Any("config", cfg.Masked()))
	return nil
}

// Pending returns buffered events across the running pipelines.
func (a *Agent) Pending() int64 {
	gen := a.current.Load()
	if gen == nil {
		return 0
	}
	var n int64
	for _, p := range gen.pipelines {
		n += p.Pending()
	}
	return n
}

func (a *Agent) startGeneration(ctx context.Context, cfg config.Config) (*generation, error) {
	sink, err := a.sinks(cfg, a.logger.With(log.String("sink", cfg.Sink)))
	if err != nil {
		return nil, fmt.Errorf("build sink: %w", err)
	}
	fl := flusher.New(cfg.PipelineName, sink, flusher.Config{MaxAttempts: cfg.MaxAttempts}, a.metrics, a.logger)

	p := pipeline.New(pipelineConfig(cfg), a.inputs(cfg), fl, pipeline.Deps{
		Logger:  a.logger,
		Alarms:  a.alarms,
		Metrics: a.metrics,
	})

	genCtx, cancel := context.WithCancel(ctx)
	gen := &generation{
		cfg:       cfg,
		cancel:    cancel,
		done:      make(chan struct{}),
		pipelines: []*pipeline.Pipeline{p},
	}

	a.lifecycle.Go(func() {
		defer close(gen.done)
		if err := p.Run(genCtx); err != nil {
			a.logger.Error("pipeline exited with error", log.String("pipeline", p.Name()), log.Err(err))
		}
	})
	return gen, nil
}

func (a *Agent) inputs(cfg config.Config) []ports.Input {
	in := []ports.Input{alarms.New(a.alarms, cfg.AlarmInterval)}
	if cfg.HostMonitor {
		in = append(in, hostmonitor.New(hostmonitor.Config{
			Interval:     cfg.HostMonitorInterval,
			EnableCPU:    cfg.EnableCPU,
			EnableSystem: cfg.EnableSystem,
			EnableNet:    cfg.EnableNet,
			EnableMemory: cfg.EnableMemory,
		}, a.logger, a.alarms))
	}
	if cfg.SelfMonitor {
		in = append(in, selfmonitor.New(cfg.SelfMonitorInterval, func() map[string]float64 {
			return map[string]float64{"agent_pending_events": float64(a.Pending())}
		}))
	}
	return append(in, a.extraInputs...)
}

func pipelineConfig(cfg config.Config) pipeline.Config {
	pc := pipeline.Config{
		Name: cfg.PipelineName,
		Strategy: batch.EventStrategyConfig{
			MinCount:     cfg.MinCount,
			MinSizeBytes: cfg.MinSizeBytes.Int(),
			MaxSizeBytes: cfg.MaxSizeBytes.Int(),
			Timeout:      cfg.BatchTimeout,
		},
		Aligned:      cfg.Aligned,
		TickInterval: cfg.TickInterval,
	}
	if cfg.GroupTimeout > 0 {
		pc.Group = &batch.GroupStrategyConfig{
			MaxSizeBytes: cfg.GroupMaxSizeBytes.Int(),
			Timeout:      cfg.GroupTimeout,
		}
	}
	return pc
}
