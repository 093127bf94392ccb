package telship

import (
	"github.com/bft-labs/telship/internal/app"
	"github.com/bft-labs/telship/internal/config"
	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
	"github.com/bft-labs/telship/pkg/log"
)

type (
	// Config holds the agent configuration. Use DefaultConfig.
	Config = config.Config

	Event      = domain.Event
	EventGroup = domain.EventGroup
	Category   = domain.Category
	Payload    = domain.Payload

	// Sink delivers sealed payloads. Close is called when a pipeline
	// generation ends.
	Sink = ports.Sink

	// Input produces event groups until its context is done.
	Input = ports.Input

	State = app.State
)

const (
	CategoryLog    = domain.CategoryLog
	CategoryMetric = domain.CategoryMetric
	CategorySpan   = domain.CategorySpan
	CategoryRaw    = domain.CategoryRaw
)

const (
	StateStopped  = app.StateStopped
	StateStarting = app.StateStarting
	StateRunning  = app.StateRunning
	StateStopping = app.StateStopping
	StateCrashed  = app.StateCrashed
)

// DefaultConfig returns a Config with the default thresholds.
func DefaultConfig() Config { return config.DefaultConfig() }

// EventHandler receives lifecycle state changes. Calls are synchronous.
type EventHandler interface {
	OnStateChange(previous, current State, reason string)
}

// SinkFactory builds a sink for each pipeline generation.
type SinkFactory func(cfg Config, logger log.Logger) (Sink, error)

// Option configures optional behavior of Telship.
type Option func(*options)

type options struct {
	logger       log.Logger
	eventHandler EventHandler
	sinks        SinkFactory
	inputs       []Input
	emitBuffer   int
}

func defaultOptions() options {
	return options{
		logger:     log.NewNoopLogger(),
		emitBuffer: DefaultEmitBuffer,
	}
}

// WithLogger sets the logger. If not provided, nothing is logged.
func WithLogger(logger log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEventHandler sets a handler for state changes.
func WithEventHandler(h EventHandler) Option {
	return func(o *options) { o.eventHandler = h }
}

// WithSinkFactory replaces the sink selected by Config.Sink.
func WithSinkFactory(f SinkFactory) Option {
	return func(o *options) { o.sinks = f }
}

// WithInput adds an input next to the built-in ones.
func WithInput(in Input) Option {
	return func(o *options) { o.inputs = append(o.inputs, in) }
}

// WithEmitBuffer sets the capacity of the Emit queue.
func WithEmitBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.emitBuffer = n
		}
	}
}

var (
	ErrAlreadyRunning  = domain.ErrAlreadyRunning
	ErrNotRunning      = domain.ErrNotRunning
	ErrShutdownTimeout = domain.ErrShutdownTimeout
	ErrInvalidConfig   = domain.ErrInvalidConfig
)
