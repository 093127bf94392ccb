// Package alarms drains the agent's alarm manager into a pipeline.
package alarms

import (
	"context"
	"time"

	"github.com/bft-labs/telship/internal/alarm"
	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
)

const (
	Name            = "input_alarm"
	DefaultInterval = 30 * time.Second
)

// Input flushes the manager on every interval and once more when stopped.
type Input struct {
	manager  *alarm.Manager
	interval time.Duration
}

// New creates the input. A zero interval means DefaultInterval.
func New(m *alarm.Manager, interval time.Duration) *Input {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Input{manager: m, interval: interval}
}

func (in *Input) Name() string { return Name }

// Run never blocks the final drain on ctx: the pipeline keeps reading until
// all of its inputs returned.
func (in *Input) Run(ctx context.Context, out chan<- domain.EventGroup) error {
	ticker := time.NewTicker(in.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			in.drain(out)
			return nil
		case <-ticker.C:
			in.drain(out)
		}
	}
}

func (in *Input) drain(out chan<- domain.EventGroup) {
	for _, g := range in.manager.Flush() {
		out <- g
	}
}

var _ ports.Input = (*Input)(nil)
