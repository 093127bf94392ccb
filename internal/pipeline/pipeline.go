// Package pipeline drives inputs into a batcher and the batcher into a sink.
// One goroutine per pipeline owns the batcher; nothing else touches it.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/telship/internal/alarm"
	"github.com/bft-labs/telship/internal/batch"
	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/metrics"
	"github.com/bft-labs/telship/internal/ports"
	"github.com/bft-labs/telship/pkg/log"
)

// Defaults.
const (
	DefaultTickInterval = time.Second
	DefaultBufferSize   = 256
	DefaultFlushTimeout = 10 * time.Second
)

// Config describes one pipeline.
type Config struct {
	Name     string
	Strategy batch.EventStrategyConfig
	// Aligned keeps log batches inside one calendar minute.
	Aligned bool
	// Group enables group-level batching when non-nil.
	Group *batch.GroupStrategyConfig

	TickInterval time.Duration
	BufferSize   int
	FlushTimeout time.Duration
}

// Deps are the shared collaborators of a pipeline. Only Logger is required.
type Deps struct {
	Logger  log.Logger
	Alarms  *alarm.Manager
	Metrics *metrics.Metrics
	Clock   batch.Clock
}

// Pipeline is created once and run once.
type Pipeline struct {
	cfg    Config
	inputs []ports.Input
	sink   ports.Sink
	acc    batch.Accumulator

	logger  log.Logger
	alarms  *alarm.Manager
	metrics *metrics.Metrics

	pending  atomic.Int64
	failures atomic.Int64
}

// New builds the pipeline and its batcher. sink is owned by the pipeline
// and closed when Run returns.
func New(cfg Config, inputs []ports.Input, sink ports.Sink, deps Deps) *Pipeline {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}

	p := &Pipeline{
		cfg:     cfg,
		inputs:  inputs,
		sink:    sink,
		logger:  deps.Logger.With(log.String("pipeline", cfg.Name)),
		alarms:  deps.Alarms,
		metrics: deps.Metrics,
	}

	opts := []batch.Option{batch.WithLogger(p.logger)}
	if deps.Clock != nil {
		opts = append(opts, batch.WithClock(deps.Clock))
	}
	if deps.Metrics != nil {
		opts = append(opts, batch.WithObserver(deps.Metrics.BatchObserver(cfg.Name)))
	}
	if cfg.Group != nil {
		opts = append(opts, batch.WithGroupStrategy(*cfg.Group))
	}
	if cfg.Aligned {
		p.acc = batch.NewAlignedBatcher(cfg.Strategy, sink, opts...)
	} else {
		p.acc = batch.NewEventBatcher(cfg.Strategy, sink, opts...)
	}
	return p
}

func (p *Pipeline) Name() string { return p.cfg.Name }

// Pending returns the number of buffered events as of the last batcher call.
func (p *Pipeline) Pending() int64 { return p.pending.Load() }

// Failures returns the number of failed deliveries so far.
func (p *Pipeline) Failures() int64 { return p.failures.Load() }

// Run starts the inputs and processes their events until every input has
// returned, which for long-running inputs means until ctx is done. It then
// force-flushes the batcher and closes the sink.
func (p *Pipeline) Run(ctx context.Context) error {
	events := make(chan domain.EventGroup, p.cfg.BufferSize)

	var wg sync.WaitGroup
	for _, in := range p.inputs {
		wg.Add(1)
		go func(in ports.Input) {
			defer wg.Done()
			if err := in.Run(ctx, events); err != nil {
				p.logger.Error("input stopped with error", log.String("input", in.Name()), log.Err(err))
			}
		}(in)
	}
	go func() {
		wg.Wait()
		close(events)
	}()

	p.logger.Info("pipeline started", log.Int("inputs", len(p.inputs)), log.String("sink", p.sink.Name()))

	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	// Once ctx is done the inputs wind down; what they still emit is
	// delivered under a detached context bounded by FlushTimeout.
	sendCtx, done := ctx, ctx.Done()
	cancelFlush := context.CancelFunc(func() {})
	defer func() { cancelFlush() }()

loop:
	for {
		select {
		case <-done:
			done = nil
			sendCtx, cancelFlush = context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FlushTimeout)
		case g, ok := <-events:
			if !ok {
				break loop
			}
			p.handle(p.acc.Add(sendCtx, g))
		case <-ticker.C:
			p.handle(p.acc.Tick(sendCtx))
		}
	}
	p.handle(p.acc.FlushAll(sendCtx))

	p.logger.Info("pipeline stopped",
		log.Int64("failures", p.failures.Load()),
		log.Int64("pending", p.pending.Load()),
	)
	return p.sink.Close()
}

func (p *Pipeline) handle(err error) {
	n := int64(p.acc.Pending())
	p.pending.Store(n)
	if p.metrics != nil {
		p.metrics.SetPending(p.cfg.Name, int(n))
	}
	if err == nil {
		return
	}

	p.failures.Add(1)
	p.logger.Error("deliver failed", log.Err(err))
	if p.alarms != nil {
		p.alarms.Send(alarm.SendDataFailAlarm, err.Error(), alarm.Labels{Config: p.cfg.Name})
	}
}
