package batch

import (
	"math"
	"testing"
	"time"

	"github.com/bft-labs/telship/internal/domain"
)

var testNow = time.Unix(1717398030, 0)

func fixedClock(t time.Time) Clock { return func() time.Time { return t } }

func eventStatus(count, size int, openedAt time.Time) *EventStatus {
	return &EventStatus{count: count, sizeBytes: size, openedAt: openedAt}
}

func alignedStatus(count, size int, openedAt time.Time, bucket int64) *AlignedStatus {
	return &AlignedStatus{EventStatus: *eventStatus(count, size, openedAt), minuteBucket: bucket}
}

func TestEventStrategy_Rules(t *testing.T) {
	f := NewEventStrategy[*EventStatus](EventStrategyConfig{
		MinCount:     2,
		MinSizeBytes: 100,
		MaxSizeBytes: 200,
		Timeout:      3 * time.Second,
	}, fixedClock(testNow))

	tests := []struct {
		name                       string
		status                     *EventStatus
		count, size, hardCap, time bool
	}{
		{"count only", eventStatus(2, 50, testNow.Add(-time.Second)), true, false, false, false},
		{"size only", eventStatus(1, 100, testNow.Add(-time.Second)), false, true, false, false},
		{"time only", eventStatus(1, 50, testNow.Add(-4*time.Second)), false, false, false, true},
		{"hard cap", eventStatus(1, 300, testNow.Add(-time.Second)), false, true, true, false},
		{"cap exact", eventStatus(1, 200, testNow.Add(-time.Millisecond)), false, true, true, false},
		{"timeout minus one second", eventStatus(1, 10, testNow.Add(-2*time.Second)), false, false, false, false},
		{"timeout exact", eventStatus(1, 10, testNow.Add(-3*time.Second)), false, false, false, true},
		{"below all", eventStatus(1, 99, testNow), false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.NeedFlushByCount(tt.status); got != tt.count {
				t.Errorf("NeedFlushByCount = %v, want %v", got, tt.count)
			}
			if got := f.NeedFlushBySize(tt.status); got != tt.size {
				t.Errorf("NeedFlushBySize = %v, want %v", got, tt.size)
			}
			if got := f.SizeReachingUpperLimit(tt.status); got != tt.hardCap {
				t.Errorf("SizeReachingUpperLimit = %v, want %v", got, tt.hardCap)
			}
			if got := f.NeedFlushByTime(tt.status, nil); got != tt.time {
				t.Errorf("NeedFlushByTime = %v, want %v", got, tt.time)
			}
		})
	}
}

func TestEventStrategy_NoHardCapWhenZero(t *testing.T) {
	f := NewEventStrategy[*EventStatus](EventStrategyConfig{MinCount: 10, MinSizeBytes: 1 << 20}, fixedClock(testNow))
	if f.SizeReachingUpperLimit(eventStatus(1, math.MaxInt32, testNow)) {
		t.Error("MaxSizeBytes=0 must disable the hard cap")
	}
}

func TestEventStrategy_DoesNotMutateStatus(t *testing.T) {
	f := NewEventStrategy[*AlignedStatus](EventStrategyConfig{MinCount: 2, MinSizeBytes: 100, MaxSizeBytes: 200, Timeout: 3 * time.Second}, fixedClock(testNow))
	s := alignedStatus(1, 50, testNow.Add(-time.Second), 42)
	before := *s

	e := domain.Event{Category: domain.CategoryLog, Timestamp: testNow}
	f.NeedFlush(s, &e)
	f.NeedFlushByTime(s, nil)

	if *s != before {
		t.Errorf("status changed: before=%+v after=%+v", before, *s)
	}
}

func TestEventStrategy_AlignedMinuteBoundary(t *testing.T) {
	f := NewEventStrategy[*AlignedStatus](EventStrategyConfig{
		MinCount:     2,
		MinSizeBytes: 100,
		Timeout:      3 * time.Second,
	}, fixedClock(testNow))

	logEvent := domain.Event{Category: domain.CategoryLog, Timestamp: time.Unix(1717398001, 0)}
	opened := testNow.Add(-time.Second)

	same := alignedStatus(1, 50, opened, 1717398001/60)
	if f.NeedFlushByTime(same, &logEvent) {
		t.Error("log event in the batch's minute must not trigger a time flush")
	}

	other := alignedStatus(1, 50, opened, 1717398071/60)
	if !f.NeedFlushByTime(other, &logEvent) {
		t.Error("log event from another minute must trigger a time flush")
	}

	raw := domain.Event{Category: domain.CategoryRaw, Timestamp: time.Unix(1717398001, 0)}
	if !f.NeedFlushByTime(other, &raw) {
		t.Error("raw events are log-like and must honor minute alignment")
	}

	span := domain.Event{Category: domain.CategorySpan, Timestamp: time.Unix(1717398001, 0)}
	if f.NeedFlushByTime(other, &span) {
		t.Error("spans are neither log-like nor metric-like")
	}
}

func TestEventStrategy_PlainStatusIgnoresMinute(t *testing.T) {
	f := NewEventStrategy[*EventStatus](EventStrategyConfig{MinCount: 2, MinSizeBytes: 100, Timeout: 3 * time.Second}, fixedClock(testNow))
	s := eventStatus(1, 50, testNow.Add(-time.Second))
	e := domain.Event{Category: domain.CategoryLog, Timestamp: testNow.Add(-10 * time.Minute)}
	if f.NeedFlushByTime(s, &e) {
		t.Error("minute alignment applies to aligned statuses only")
	}
}

func TestEventStrategy_MetricFreshnessWindow(t *testing.T) {
	f := NewEventStrategy[*AlignedStatus](EventStrategyConfig{MinCount: 2, MinSizeBytes: 100, Timeout: 3 * time.Second}, fixedClock(testNow))
	s := alignedStatus(1, 50, testNow.Add(-time.Second), 1717398071/60)

	tests := []struct {
		name string
		ts   time.Time
		want bool
	}{
		{"now", testNow, false},
		{"300s old", testNow.Add(-300 * time.Second), false},
		{"300s ahead", testNow.Add(300 * time.Second), false},
		{"302s old", testNow.Add(-302 * time.Second), true},
		{"301s ahead", testNow.Add(301 * time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := domain.Event{Category: domain.CategoryMetric, Timestamp: tt.ts}
			if got := f.NeedFlushByTime(s, &e); got != tt.want {
				t.Errorf("NeedFlushByTime = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventStrategy_PlainStatusIgnoresMetricWindow(t *testing.T) {
	f := NewEventStrategy[*EventStatus](EventStrategyConfig{MinCount: 2, MinSizeBytes: 100, Timeout: 3 * time.Second}, fixedClock(testNow))
	for _, ts := range []time.Time{testNow.Add(-time.Hour), testNow.Add(time.Hour)} {
		e := domain.Event{Category: domain.CategoryMetric, Timestamp: ts}
		if f.NeedFlushByTime(eventStatus(1, 10, testNow), &e) {
			t.Errorf("metric at %v: freshness window applies to aligned statuses only", ts)
		}
	}
}

func TestEventStrategy_ClockBackwards(t *testing.T) {
	f := NewEventStrategy[*EventStatus](EventStrategyConfig{MinCount: 2, MinSizeBytes: 100, Timeout: 3 * time.Second}, fixedClock(testNow))
	if f.NeedFlushByTime(eventStatus(1, 10, testNow.Add(time.Hour)), nil) {
		t.Error("negative elapsed time must not trigger a time flush")
	}
}

func TestEventStrategy_NeedFlushOrder(t *testing.T) {
	f := NewEventStrategy[*EventStatus](EventStrategyConfig{MinCount: 2, MinSizeBytes: 100, MaxSizeBytes: 200, Timeout: 3 * time.Second}, fixedClock(testNow))

	tests := []struct {
		name   string
		status *EventStatus
		want   domain.FlushReason
		ok     bool
	}{
		{"cap beats count", eventStatus(5, 250, testNow), domain.FlushByHardCap, true},
		{"count beats size", eventStatus(2, 150, testNow), domain.FlushByCount, true},
		{"size beats time", eventStatus(1, 150, testNow.Add(-time.Minute)), domain.FlushBySize, true},
		{"time", eventStatus(1, 10, testNow.Add(-time.Minute)), domain.FlushByTime, true},
		{"none", eventStatus(1, 10, testNow), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := f.NeedFlush(tt.status, nil)
			if got != tt.want || ok != tt.ok {
				t.Errorf("NeedFlush = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestGroupStrategy(t *testing.T) {
	g := NewGroupStrategy(GroupStrategyConfig{MaxSizeBytes: 100, Timeout: 3 * time.Second}, fixedClock(testNow))

	full := &GroupStatus{sizeBytes: 100, openedAt: testNow.Add(-time.Second)}
	if !g.NeedFlushBySize(full) {
		t.Error("size at threshold must flush")
	}
	if g.NeedFlushByTime(full) {
		t.Error("young group batch must not flush by time")
	}

	old := &GroupStatus{sizeBytes: 50, openedAt: testNow.Add(-4 * time.Second)}
	if g.NeedFlushBySize(old) {
		t.Error("size below threshold must not flush")
	}
	if !g.NeedFlushByTime(old) {
		t.Error("old group batch must flush by time")
	}
}

func TestOutsideWindow(t *testing.T) {
	w := 5 * time.Minute
	if outsideWindow(w, w) || outsideWindow(-w, w) {
		t.Error("window boundary is inclusive")
	}
	if !outsideWindow(w+1, w) || !outsideWindow(-w-1, w) {
		t.Error("past the window must be outside")
	}
	if !outsideWindow(time.Duration(math.MinInt64), w) {
		t.Error("saturated duration must be outside")
	}
}
