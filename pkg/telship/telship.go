package telship

import (
	"context"
	"net/http"

	"github.com/bft-labs/telship/internal/app"
	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
)

// DefaultEmitBuffer is the default capacity of the Emit queue.
const DefaultEmitBuffer = 1024

// Telship is an embeddable agent. Use New, then Start.
type Telship struct {
	agent *app.Agent
	push  *pushInput
}

// New validates cfg and creates a stopped agent.
func New(cfg Config, opts ...Option) (*Telship, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	push := newPushInput(o.emitBuffer)
	agentOpts := []app.Option{
		app.WithLogger(o.logger),
		app.WithInputs(append([]ports.Input{push}, o.inputs...)...),
	}
	if o.eventHandler != nil {
		agentOpts = append(agentOpts, app.WithEventEmitter(o.eventHandler))
	}
	if o.sinks != nil {
		agentOpts = append(agentOpts, app.WithSinkFactory(app.SinkFactory(o.sinks)))
	}

	return &Telship{agent: app.NewAgent(cfg, agentOpts...), push: push}, nil
}

// Start runs the pipelines in the background.
func (t *Telship) Start(ctx context.Context) error { return t.agent.Start(ctx) }

// Stop force-flushes open batches and waits for the pipelines to exit.
// Returns ErrShutdownTimeout if they do not exit in time.
func (t *Telship) Stop() error { return t.agent.Stop() }

// Reload rebuilds the pipelines from cfg.
func (t *Telship) Reload(cfg Config) error { return t.agent.Reload(cfg) }

// Status returns the lifecycle state.
func (t *Telship) Status() State { return t.agent.Status() }

// Pending returns the number of events held in open batches.
func (t *Telship) Pending() int64 { return t.agent.Pending() }

// MetricsHandler serves the agent's Prometheus collectors.
func (t *Telship) MetricsHandler() http.Handler { return t.agent.Metrics().Handler() }

// Emit queues g for batching. It blocks while the queue is full. The group's
// tags are copied, but the events and their Contents and Tags maps belong
// to the agent once Emit returns and must not be modified by the caller.
func (t *Telship) Emit(ctx context.Context, g EventGroup) error {
	if t.agent.Status() != StateRunning {
		return domain.ErrNotRunning
	}
	return t.push.emit(ctx, g)
}
