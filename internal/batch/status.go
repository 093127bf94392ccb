package batch

import (
	"time"

	"github.com/bft-labs/telship/internal/domain"
)

// MetricFreshnessWindow is the largest distance between a metric point's own
// timestamp and the current time before its batch must be flushed.
const MetricFreshnessWindow = 300 * time.Second

// CountedStatus is the read-only view an EventStrategy needs.
type CountedStatus interface {
	Count() int
	SizeBytes() int
	OpenedAt() time.Time
}

// MinuteAligned is implemented by statuses that remember the minute bucket
// of the first event appended to the batch.
type MinuteAligned interface {
	MinuteBucket() int64
}

// EventBatchStatus is the full contract a Batcher drives.
type EventBatchStatus interface {
	CountedStatus
	RecordAppend(sizeBytes int, itemTime, now time.Time)
	Reset()
	Empty() bool
	Snapshot() domain.Snapshot
}

// EventStatus tracks count, size and open time of a per-source event batch.
type EventStatus struct {
	count     int
	sizeBytes int
	openedAt  time.Time
}

// NewEventStatus returns an empty status.
func NewEventStatus() *EventStatus { return &EventStatus{} }

// RecordAppend accounts one appended item. The open time is captured on the
// first append only.
func (s *EventStatus) RecordAppend(sizeBytes int, itemTime, now time.Time) {
	if s.openedAt.IsZero() {
		s.openedAt = now
	}
	s.count++
	s.sizeBytes += sizeBytes
}

func (s *EventStatus) Reset() { *s = EventStatus{} }

func (s *EventStatus) Count() int          { return s.count }
func (s *EventStatus) SizeBytes() int      { return s.sizeBytes }
func (s *EventStatus) OpenedAt() time.Time { return s.openedAt }
func (s *EventStatus) Empty() bool         { return s.openedAt.IsZero() }

// Snapshot returns the current values for observability.
func (s *EventStatus) Snapshot() domain.Snapshot {
	return domain.Snapshot{Count: s.count, SizeBytes: s.sizeBytes, OpenedAt: s.openedAt}
}

// AlignedStatus is an EventStatus that also remembers the minute bucket of
// the first event's own timestamp. Used for backends that group by minute.
type AlignedStatus struct {
	EventStatus
	minuteBucket int64
}

// NewAlignedStatus returns an empty aligned status.
func NewAlignedStatus() *AlignedStatus { return &AlignedStatus{} }

// RecordAppend accounts one appended item; the first append also fixes the
// minute bucket from itemTime (not from the wall clock).
func (s *AlignedStatus) RecordAppend(sizeBytes int, itemTime, now time.Time) {
	if s.Empty() {
		s.minuteBucket = MinuteBucket(itemTime)
	}
	s.EventStatus.RecordAppend(sizeBytes, itemTime, now)
}

func (s *AlignedStatus) Reset() { *s = AlignedStatus{} }

func (s *AlignedStatus) MinuteBucket() int64 { return s.minuteBucket }

// GroupStatus tracks size and open time of a group-level batch.
// Group batches have no count threshold.
type GroupStatus struct {
	sizeBytes int
	openedAt  time.Time
}

// RecordAppend accounts one appended sealed batch.
func (s *GroupStatus) RecordAppend(sizeBytes int, now time.Time) {
	if s.openedAt.IsZero() {
		s.openedAt = now
	}
	s.sizeBytes += sizeBytes
}

func (s *GroupStatus) Reset() { *s = GroupStatus{} }

func (s *GroupStatus) SizeBytes() int      { return s.sizeBytes }
func (s *GroupStatus) OpenedAt() time.Time { return s.openedAt }
func (s *GroupStatus) Empty() bool         { return s.openedAt.IsZero() }

// MinuteBucket returns floor(unix seconds / 60) of t.
func MinuteBucket(t time.Time) int64 {
	sec := t.Unix()
	b := sec / 60
	if sec%60 < 0 {
		b--
	}
	return b
}

var (
	_ EventBatchStatus = (*EventStatus)(nil)
	_ EventBatchStatus = (*AlignedStatus)(nil)
	_ MinuteAligned    = (*AlignedStatus)(nil)
)
