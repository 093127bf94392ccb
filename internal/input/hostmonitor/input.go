// Package hostmonitor samples host counters (CPU, load, network, memory) on
// a fixed interval and emits them as metric events.
package hostmonitor

import (
	"context"
	"os"
	"time"

	"github.com/bft-labs/telship/internal/alarm"
	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
	"github.com/bft-labs/telship/pkg/log"
)

// Name is the input name used in logs and alarms.
const Name = "input_host_monitor"

// Source is the EventGroup source of host metrics.
const Source = "host_monitor"

const (
	DefaultInterval = 15 * time.Second
	MinInterval     = 5 * time.Second
)

// Config selects collectors and the sampling interval.
type Config struct {
	Interval     time.Duration
	EnableCPU    bool
	EnableSystem bool
	EnableNet    bool
	EnableMemory bool
}

// DefaultConfig enables every collector at the default interval.
func DefaultConfig() Config {
	return Config{
		Interval:     DefaultInterval,
		EnableCPU:    true,
		EnableSystem: true,
		EnableNet:    true,
		EnableMemory: true,
	}
}

// Option configures an Input.
type Option func(*Input)

// WithCollectors replaces the gopsutil collectors.
func WithCollectors(cs ...Collector) Option {
	return func(in *Input) { in.collectors = cs }
}

// WithClock overrides time.Now for sample timestamps.
func WithClock(now func() time.Time) Option {
	return func(in *Input) { in.now = now }
}

// Input is one host monitor runner. Each pipeline that wants host metrics
// constructs its own.
type Input struct {
	interval   time.Duration
	collectors []Collector
	hostname   string
	logger     log.Logger
	alarms     *alarm.Manager
	now        func() time.Time
}

// New builds the runner. An interval below MinInterval is raised to it with
// a warning; zero means DefaultInterval.
func New(cfg Config, logger log.Logger, alarms *alarm.Manager, opts ...Option) *Input {
	logger = logger.With(log.String("input", Name))

	interval := cfg.Interval
	switch {
	case interval == 0:
		interval = DefaultInterval
	case interval < MinInterval:
		logger.Warn("interval below minimum, using minimum",
			log.Duration("configured", interval),
			log.Duration("minimum", MinInterval),
		)
		if alarms != nil {
			alarms.Send(alarm.UserConfigAlarm, "host monitor interval below 5s, raised to 5s", alarm.Labels{Config: Name})
		}
		interval = MinInterval
	}

	in := &Input{
		interval: interval,
		logger:   logger,
		alarms:   alarms,
		now:      time.Now,
	}
	if cfg.EnableCPU {
		in.collectors = append(in.collectors, newCPUCollector())
	}
	if cfg.EnableSystem {
		in.collectors = append(in.collectors, newSystemCollector())
	}
	if cfg.EnableNet {
		in.collectors = append(in.collectors, newNetCollector())
	}
	if cfg.EnableMemory {
		in.collectors = append(in.collectors, newMemCollector())
	}
	for _, opt := range opts {
		opt(in)
	}
	in.hostname, _ = os.Hostname()
	return in
}

func (in *Input) Name() string { return Name }

// Interval returns the effective sampling interval.
func (in *Input) Interval() time.Duration { return in.interval }

// Collectors returns the names of the enabled collectors.
func (in *Input) Collectors() []string {
	out := make([]string, len(in.collectors))
	for i, c := range in.collectors {
		out[i] = c.Name()
	}
	return out
}

// Run samples immediately and then on every interval until ctx is done.
func (in *Input) Run(ctx context.Context, out chan<- domain.EventGroup) error {
	if len(in.collectors) == 0 {
		in.logger.Warn("no collectors enabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(in.interval)
	defer ticker.Stop()

	for {
		if err := in.collect(ctx, out); err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// collect runs every collector once. It returns ctx.Err() when the
// pipeline stopped while a group was waiting to be sent.
func (in *Input) collect(ctx context.Context, out chan<- domain.EventGroup) error {
	now := in.now()
	for _, c := range in.collectors {
		events, err := c.Collect(ctx, now)
		if err != nil {
			in.logger.Warn("collect failed", log.String("collector", c.Name()), log.Err(err))
			if in.alarms != nil {
				in.alarms.SendLowLevel(alarm.HostMonitorCollectFailAlarm, err.Error(), alarm.Labels{Config: Name})
			}
			continue
		}
		if len(events) == 0 {
			continue
		}

		g := domain.EventGroup{
			Source: Source,
			Tags:   map[string]string{"collector": c.Name(), "hostname": in.hostname},
			Events: events,
		}
		select {
		case out <- g:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

var _ ports.Input = (*Input)(nil)
