package batch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
	"github.com/bft-labs/telship/pkg/log"
)

// Accumulator is the pipeline-facing view of a Batcher, independent of the
// status variant it runs with.
type Accumulator interface {
	// Add appends every event of the group, sealing batches as rules fire.
	Add(ctx context.Context, g domain.EventGroup) error

	// Tick seals batches whose time rule fired without a new event.
	Tick(ctx context.Context) error

	// FlushAll seals every non-empty batch unconditionally.
	FlushAll(ctx context.Context) error

	// Pending returns the number of buffered events not yet handed to the sink.
	Pending() int
}

// Option configures optional behavior of a Batcher.
type Option func(*options)

type options struct {
	observer Observer
	logger   log.Logger
	clock    Clock
	group    *GroupStrategyConfig
}

// WithObserver injects the hot-path observer. Default: NopObserver.
func WithObserver(o Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// WithLogger sets the logger. Default: no-op.
func WithLogger(l log.Logger) Option {
	return func(opts *options) { opts.logger = l }
}

// WithClock sets the clock shared by the batcher and its strategies.
func WithClock(c Clock) Option {
	return func(opts *options) { opts.clock = c }
}

// WithGroupStrategy enables group-level batching: sealed event batches are
// collected and handed to the sink together.
func WithGroupStrategy(cfg GroupStrategyConfig) Option {
	return func(opts *options) { opts.group = &cfg }
}

// Batcher owns one open event batch per group key and, optionally, one
// group-level batch. It is not safe for concurrent use; a pipeline goroutine
// owns it exclusively.
type Batcher[S EventBatchStatus] struct {
	strategy  *EventStrategy[S]
	group     *GroupStrategy
	newStatus func() S

	items     map[string]*eventItem[S]
	keys      []string
	groupItem groupItem

	sink     ports.Sink
	observer Observer
	logger   log.Logger
	now      Clock
}

// New creates a Batcher for the status variant produced by newStatus.
func New[S EventBatchStatus](cfg EventStrategyConfig, newStatus func() S, sink ports.Sink, opts ...Option) *Batcher[S] {
	o := options{observer: NopObserver{}, logger: log.NewNoopLogger(), clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	b := &Batcher[S]{
		strategy:  NewEventStrategy[S](cfg, o.clock),
		newStatus: newStatus,
		items:     make(map[string]*eventItem[S]),
		sink:      sink,
		observer:  o.observer,
		logger:    o.logger,
		now:       o.clock,
	}
	if o.group != nil {
		b.group = NewGroupStrategy(*o.group, o.clock)
	}
	return b
}

// NewEventBatcher creates a Batcher using plain per-event statuses.
func NewEventBatcher(cfg EventStrategyConfig, sink ports.Sink, opts ...Option) *Batcher[*EventStatus] {
	return New(cfg, NewEventStatus, sink, opts...)
}

// NewAlignedBatcher creates a Batcher whose batches never straddle a minute
// boundary for log-like events.
func NewAlignedBatcher(cfg EventStrategyConfig, sink ports.Sink, opts ...Option) *Batcher[*AlignedStatus] {
	return New(cfg, NewAlignedStatus, sink, opts...)
}

// Strategy returns the event strategy in use.
func (b *Batcher[S]) Strategy() *EventStrategy[S] { return b.strategy }

// Add appends the events of g in order. Before an event joins a non-empty
// batch the time rule is checked against it, so an event that must not share
// the batch opens the next one. After the append the hard cap is checked
// first, then count and size.
//
// Delivery errors do not stop the loop; every event is still buffered and
// the joined errors are returned.
func (b *Batcher[S]) Add(ctx context.Context, g domain.EventGroup) error {
	if len(g.Events) == 0 {
		return nil
	}
	it := b.item(g)

	var errs []error
	for i := range g.Events {
		e := g.Events[i]
		if !it.status.Empty() && b.strategy.NeedFlushByTime(it.status, &e) {
			errs = appendErr(errs, b.seal(ctx, it, domain.FlushByTime))
		}

		size := e.SizeBytes()
		it.add(e, size, b.now)
		b.observer.OnAppend(it.key, size)

		switch {
		case b.strategy.SizeReachingUpperLimit(it.status):
			errs = appendErr(errs, b.seal(ctx, it, domain.FlushByHardCap))
		case b.strategy.NeedFlushByCount(it.status):
			errs = appendErr(errs, b.seal(ctx, it, domain.FlushByCount))
		case b.strategy.NeedFlushBySize(it.status):
			errs = appendErr(errs, b.seal(ctx, it, domain.FlushBySize))
		}
	}
	return errors.Join(errs...)
}

// Tick seals event batches that timed out, then a timed-out group batch.
func (b *Batcher[S]) Tick(ctx context.Context) error {
	var errs []error
	for _, k := range b.keys {
		it := b.items[k]
		if !it.status.Empty() && b.strategy.NeedFlushByTime(it.status, nil) {
			errs = appendErr(errs, b.seal(ctx, it, domain.FlushByTime))
		}
	}
	if b.group != nil && !b.groupItem.status.Empty() && b.group.NeedFlushByTime(&b.groupItem.status) {
		errs = appendErr(errs, b.sealGroup(ctx, domain.FlushByTime))
	}
	return errors.Join(errs...)
}

// FlushAll seals everything that is buffered. It is a no-op when empty.
func (b *Batcher[S]) FlushAll(ctx context.Context) error {
	var errs []error
	for _, k := range b.keys {
		it := b.items[k]
		if !it.status.Empty() {
			errs = appendErr(errs, b.seal(ctx, it, domain.FlushByForce))
		}
	}
	if b.group != nil && !b.groupItem.status.Empty() {
		errs = appendErr(errs, b.sealGroup(ctx, domain.FlushByForce))
	}
	return errors.Join(errs...)
}

// Pending returns the number of buffered events, including those waiting in
// the group batch.
func (b *Batcher[S]) Pending() int {
	n := b.groupItem.events
	for _, it := range b.items {
		n += len(it.events)
	}
	return n
}

// Keys returns the group keys that currently hold an open batch.
func (b *Batcher[S]) Keys() []string {
	out := make([]string, 0, len(b.keys))
	for _, k := range b.keys {
		if !b.items[k].status.Empty() {
			out = append(out, k)
		}
	}
	return out
}

func (b *Batcher[S]) item(g domain.EventGroup) *eventItem[S] {
	key := g.Key()
	if it, ok := b.items[key]; ok {
		return it
	}
	it := &eventItem[S]{
		key:    key,
		source: g.Source,
		tags:   maps.Clone(g.Tags),
		status: b.newStatus(),
	}
	b.items[key] = it
	b.keys = append(b.keys, key)
	return it
}

// seal hands the open batch of it downstream and resets its status after the
// hand-off returns, whatever the outcome.
func (b *Batcher[S]) seal(ctx context.Context, it *eventItem[S], reason domain.FlushReason) error {
	sealed := it.seal(reason)
	b.observer.OnSeal(it.key, reason, sealed.Snapshot)
	b.logger.Debug("batch sealed",
		log.String("key", it.key),
		log.String("reason", string(reason)),
		log.Int("events", sealed.Snapshot.Count),
		log.Int("bytes", sealed.Snapshot.SizeBytes),
	)

	err := b.handOff(ctx, sealed)
	it.status.Reset()
	return err
}

func (b *Batcher[S]) handOff(ctx context.Context, sealed *domain.Batch) error {
	if b.group == nil {
		return b.deliver(ctx, &domain.Payload{
			ID:       uuid.NewString(),
			Batches:  []*domain.Batch{sealed},
			Snapshot: sealed.Snapshot,
			Reason:   sealed.Reason,
		})
	}

	b.groupItem.add(sealed, b.now)
	if b.group.NeedFlushBySize(&b.groupItem.status) {
		return b.sealGroup(ctx, domain.FlushBySize)
	}
	return nil
}

func (b *Batcher[S]) sealGroup(ctx context.Context, reason domain.FlushReason) error {
	p := b.groupItem.seal(reason)
	err := b.deliver(ctx, p)
	b.groupItem.status.Reset()
	return err
}

func (b *Batcher[S]) deliver(ctx context.Context, p *domain.Payload) error {
	start := time.Now()
	err := b.sink.Send(ctx, p)
	b.observer.OnDeliver(p, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("deliver payload %s (%d events): %w", p.ID, p.EventCount(), err)
	}
	return nil
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}

var (
	_ Accumulator = (*Batcher[*EventStatus])(nil)
	_ Accumulator = (*Batcher[*AlignedStatus])(nil)
)
