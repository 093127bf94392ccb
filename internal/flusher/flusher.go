// Package flusher wraps a transport sink with delivery accounting and
// retries. The batch engine never retries; this is the only place that does.
package flusher

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/metrics"
	"github.com/bft-labs/telship/internal/ports"
	"github.com/bft-labs/telship/pkg/log"
)

// DefaultMaxAttempts is the number of delivery attempts per payload.
const DefaultMaxAttempts = 3

// Config controls retries.
type Config struct {
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = DefaultBackoffInitial
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	return c
}

// Flusher is a ports.Sink decorator.
type Flusher struct {
	sink     ports.Sink
	cfg      Config
	counters metrics.SinkCounters
	logger   log.Logger
}

// New wraps sink for the named pipeline.
func New(pipeline string, sink ports.Sink, cfg Config, m *metrics.Metrics, logger log.Logger) *Flusher {
	return &Flusher{
		sink:     sink,
		cfg:      cfg.withDefaults(),
		counters: m.Sink(pipeline, sink.Name()),
		logger:   logger.With(log.String("pipeline", pipeline), log.String("sink", sink.Name())),
	}
}

func (f *Flusher) Name() string { return f.sink.Name() }

// Send delivers p, retrying with backoff. The returned error wraps
// domain.ErrSinkUnavailable and the last transport error.
func (f *Flusher) Send(ctx context.Context, p *domain.Payload) error {
	f.counters.InEventGroups.Add(float64(len(p.Batches)))
	f.counters.InEvents.Add(float64(p.EventCount()))
	f.counters.InSizeBytes.Add(float64(p.SizeBytes()))

	start := time.Now()
	defer func() {
		f.counters.PackageTimeMs.Add(float64(time.Since(start).Milliseconds()))
	}()

	bo := newBackoff(f.cfg.BackoffInitial, f.cfg.BackoffMax)
	var err error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if err = f.sink.Send(ctx, p); err == nil {
			return nil
		}
		if attempt == f.cfg.MaxAttempts || ctx.Err() != nil {
			break
		}

		f.counters.SendRetries.Inc()
		f.logger.Warn("send failed, retrying",
			log.String("payload_id", p.ID),
			log.Int("attempt", attempt),
			log.Duration("backoff", bo.Current()),
			log.Err(err),
		)
		if werr := bo.Wait(ctx); werr != nil {
			break
		}
	}

	f.counters.SendFailures.Inc()
	return fmt.Errorf("%w: %s: %w", domain.ErrSinkUnavailable, f.sink.Name(), err)
}

func (f *Flusher) Close() error {
	return f.sink.Close()
}

var _ ports.Sink = (*Flusher)(nil)
