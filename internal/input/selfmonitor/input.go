// Package selfmonitor reports the agent's own Go runtime figures as metric
// events.
package selfmonitor

import (
	"context"
	"os"
	"runtime/metrics"
	"time"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
)

const (
	Name   = "input_self_monitor"
	Source = "telship_self_monitor"

	DefaultInterval = 60 * time.Second
)

// Metric names emitted by the input.
const (
	MetricGoMemoryBytes = "agent_go_memory_used_bytes"
	MetricGoRoutines    = "agent_go_routines_total"
)

// runtime/metrics sample name -> emitted metric name
var runtimeNames = map[string]string{
	"/memory/classes/heap/objects:bytes": MetricGoMemoryBytes,
	"/sched/goroutines:goroutines":       MetricGoRoutines,
}

// StatsFunc returns extra agent counters to report alongside the runtime
// figures, for example pending events per pipeline.
type StatsFunc func() map[string]float64

// Input periodically reads runtime/metrics.
type Input struct {
	interval time.Duration
	stats    StatsFunc
	hostname string
	now      func() time.Time
}

// New creates the input. A zero interval means DefaultInterval; stats may be nil.
func New(interval time.Duration, stats StatsFunc) *Input {
	if interval <= 0 {
		interval = DefaultInterval
	}
	h, _ := os.Hostname()
	return &Input{interval: interval, stats: stats, hostname: h, now: time.Now}
}

func (in *Input) Name() string { return Name }

func (in *Input) Run(ctx context.Context, out chan<- domain.EventGroup) error {
	ticker := time.NewTicker(in.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		select {
		case out <- in.Sample():
		case <-ctx.Done():
			return nil
		}
	}
}

// Sample reads the current figures into one group.
func (in *Input) Sample() domain.EventGroup {
	now := in.now()
	samples := make([]metrics.Sample, 0, len(runtimeNames))
	for name := range runtimeNames {
		samples = append(samples, metrics.Sample{Name: name})
	}
	metrics.Read(samples)

	g := domain.EventGroup{Source: Source, Tags: map[string]string{"hostname": in.hostname}}
	for _, s := range samples {
		var v float64
		switch s.Value.Kind() {
		case metrics.KindUint64:
			v = float64(s.Value.Uint64())
		case metrics.KindFloat64:
			v = s.Value.Float64()
		default:
			continue
		}
		g.Events = append(g.Events, domain.Event{
			Category:  domain.CategoryMetric,
			Name:      runtimeNames[s.Name],
			Value:     v,
			Timestamp: now,
		})
	}
	if in.stats != nil {
		for name, v := range in.stats() {
			g.Events = append(g.Events, domain.Event{Category: domain.CategoryMetric, Name: name, Value: v, Timestamp: now})
		}
	}
	return g
}

var _ ports.Input = (*Input)(nil)
