package batch

import (
	"time"

	"github.com/bft-labs/telship/internal/domain"
)

// Clock returns the current wall-clock time.
type Clock func() time.Time

// EventStrategyConfig holds the thresholds of an EventStrategy.
// Values are validated by the config layer before construction.
type EventStrategyConfig struct {
	MinCount     int
	MinSizeBytes int
	// MaxSizeBytes is the hard cap. Zero means no cap.
	MaxSizeBytes int
	Timeout      time.Duration
}

// EventStrategy decides when a per-source event batch must be flushed.
// It only reads the status and the clock.
type EventStrategy[S CountedStatus] struct {
	cfg EventStrategyConfig
	now Clock
}

// NewEventStrategy creates a strategy. A nil clock means time.Now.
func NewEventStrategy[S CountedStatus](cfg EventStrategyConfig, now Clock) *EventStrategy[S] {
	if now == nil {
		now = time.Now
	}
	return &EventStrategy[S]{cfg: cfg, now: now}
}

// Config returns the thresholds the strategy was built with.
func (f *EventStrategy[S]) Config() EventStrategyConfig { return f.cfg }

func (f *EventStrategy[S]) NeedFlushByCount(s S) bool {
	return s.Count() >= f.cfg.MinCount
}

func (f *EventStrategy[S]) NeedFlushBySize(s S) bool {
	return s.SizeBytes() >= f.cfg.MinSizeBytes
}

// SizeReachingUpperLimit reports whether the hard cap is reached. It ignores
// how old the batch is.
func (f *EventStrategy[S]) SizeReachingUpperLimit(s S) bool {
	return f.cfg.MaxSizeBytes > 0 && s.SizeBytes() >= f.cfg.MaxSizeBytes
}

// NeedFlushByTime reports whether the batch timed out, or, for minute-aligned
// statuses, whether newest must not join it: a log-like event from another
// minute than the batch's first event, or a metric point outside the
// freshness window. newest may be nil, in which case only the timeout applies.
func (f *EventStrategy[S]) NeedFlushByTime(s S, newest *domain.Event) bool {
	now := f.now()
	if now.Sub(s.OpenedAt()) >= f.cfg.Timeout {
		return true
	}
	if newest == nil {
		return false
	}
	a, ok := any(s).(MinuteAligned)
	if !ok {
		return false
	}
	switch {
	case newest.Category.IsLogLike():
		return MinuteBucket(newest.Timestamp) != a.MinuteBucket()
	case newest.Category.IsMetricLike():
		return outsideWindow(now.Sub(newest.Timestamp), MetricFreshnessWindow)
	}
	return false
}

// NeedFlush returns the first rule that fires, in hard cap, count, size,
// time order.
func (f *EventStrategy[S]) NeedFlush(s S, newest *domain.Event) (domain.FlushReason, bool) {
	switch {
	case f.SizeReachingUpperLimit(s):
		return domain.FlushByHardCap, true
	case f.NeedFlushByCount(s):
		return domain.FlushByCount, true
	case f.NeedFlushBySize(s):
		return domain.FlushBySize, true
	case f.NeedFlushByTime(s, newest):
		return domain.FlushByTime, true
	}
	return "", false
}

// outsideWindow reports |d| > window. Sub saturates on overflow, so the
// negation of the minimum duration is treated as outside.
func outsideWindow(d, window time.Duration) bool {
	if d < 0 {
		d = -d
		if d < 0 {
			return true
		}
	}
	return d > window
}

// GroupStrategyConfig holds the thresholds of a GroupStrategy.
type GroupStrategyConfig struct {
	// MaxSizeBytes is a soft threshold here, not a hard cap.
	MaxSizeBytes int
	Timeout      time.Duration
}

// GroupStrategy decides when a group-level batch of sealed event batches
// must be flushed. There is no count rule and no category branching.
type GroupStrategy struct {
	cfg GroupStrategyConfig
	now Clock
}

// NewGroupStrategy creates a group strategy. A nil clock means time.Now.
func NewGroupStrategy(cfg GroupStrategyConfig, now Clock) *GroupStrategy {
	if now == nil {
		now = time.Now
	}
	return &GroupStrategy{cfg: cfg, now: now}
}

func (g *GroupStrategy) NeedFlushBySize(s *GroupStatus) bool {
	return s.SizeBytes() >= g.cfg.MaxSizeBytes
}

func (g *GroupStrategy) NeedFlushByTime(s *GroupStatus) bool {
	return g.now().Sub(s.OpenedAt()) >= g.cfg.Timeout
}
