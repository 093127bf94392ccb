package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/telship/internal/domain"
)

// recordingSink captures every payload it receives.
type recordingSink struct {
	mu       sync.Mutex
	payloads []*domain.Payload
	err      error
}

func (s *recordingSink) Send(_ context.Context, p *domain.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	return s.err
}

func (s *recordingSink) Name() string { return "recording" }
func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) Payloads() []*domain.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Payload{}, s.payloads...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// countingObserver counts notifications per kind.
type countingObserver struct {
	appends  int
	seals    map[domain.FlushReason]int
	delivers int
	failed   int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{seals: make(map[domain.FlushReason]int)}
}

func (o *countingObserver) OnAppend(string, int) { o.appends++ }
func (o *countingObserver) OnSeal(_ string, r domain.FlushReason, _ domain.Snapshot) {
	o.seals[r]++
}
func (o *countingObserver) OnDeliver(_ *domain.Payload, err error, _ time.Duration) {
	o.delivers++
	if err != nil {
		o.failed++
	}
}

func logEvent(ts time.Time) domain.Event {
	return domain.Event{Category: domain.CategoryLog, Timestamp: ts, Contents: map[string]string{"msg": "hello"}}
}

func group(source string, events ...domain.Event) domain.EventGroup {
	return domain.EventGroup{Source: source, Events: events}
}

func TestBatcher_FlushByCount(t *testing.T) {
	clk := &fakeClock{t: testNow}
	sink := &recordingSink{}
	b := NewEventBatcher(EventStrategyConfig{MinCount: 3, MinSizeBytes: 1 << 20, Timeout: time.Minute}, sink, WithClock(clk.Now))

	ctx := context.Background()
	if err := b.Add(ctx, group("app", logEvent(testNow), logEvent(testNow))); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(sink.Payloads()) != 0 {
		t.Fatal("flushed before reaching count")
	}
	if b.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", b.Pending())
	}

	if err := b.Add(ctx, group("app", logEvent(testNow), logEvent(testNow))); err != nil {
		t.Fatalf("Add: %v", err)
	}

	payloads := sink.Payloads()
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}
	p := payloads[0]
	if p.Reason != domain.FlushByCount || p.EventCount() != 3 {
		t.Errorf("payload reason=%s events=%d, want count/3", p.Reason, p.EventCount())
	}
	if p.ID == "" || p.Batches[0].ID == "" {
		t.Error("payload and batch must carry an ID")
	}
	if p.Batches[0].Snapshot.Count != 3 {
		t.Errorf("snapshot count = %d, want 3", p.Batches[0].Snapshot.Count)
	}
	if b.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", b.Pending())
	}
}

func TestBatcher_FlushBySize(t *testing.T) {
	e := logEvent(testNow)
	sink := &recordingSink{}
	b := NewEventBatcher(EventStrategyConfig{MinCount: 100, MinSizeBytes: 2 * e.SizeBytes(), Timeout: time.Minute}, sink, WithClock(fixedClock(testNow)))

	if err := b.Add(context.Background(), group("app", e, e)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	payloads := sink.Payloads()
	if len(payloads) != 1 || payloads[0].Reason != domain.FlushBySize {
		t.Fatalf("want one size flush, got %d payloads", len(payloads))
	}
	if got := payloads[0].SizeBytes(); got != 2*e.SizeBytes() {
		t.Errorf("SizeBytes() = %d, want %d", got, 2*e.SizeBytes())
	}
}

func TestBatcher_HardCapWinsOverCount(t *testing.T) {
	e := logEvent(testNow)
	sink := &recordingSink{}
	b := NewEventBatcher(EventStrategyConfig{
		MinCount:     2,
		MinSizeBytes: 1 << 20,
		MaxSizeBytes: 2 * e.SizeBytes(),
		Timeout:      time.Minute,
	}, sink, WithClock(fixedClock(testNow)))

	if err := b.Add(context.Background(), group("app", e, e)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	payloads := sink.Payloads()
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}
	if payloads[0].Reason != domain.FlushByHardCap {
		t.Errorf("reason = %s, want hard_cap", payloads[0].Reason)
	}
}

func TestBatcher_MinuteBoundarySealsBeforeAppend(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1717398075, 0)}
	sink := &recordingSink{}
	b := NewAlignedBatcher(EventStrategyConfig{MinCount: 10, MinSizeBytes: 1 << 20, Timeout: time.Minute}, sink, WithClock(clk.Now))

	first := logEvent(time.Unix(1717398001, 0))
	second := logEvent(time.Unix(1717398071, 0))
	if err := b.Add(context.Background(), group("app", first, second)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	payloads := sink.Payloads()
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}
	sealed := payloads[0].Batches[0]
	if sealed.Reason != domain.FlushByTime || len(sealed.Events) != 1 {
		t.Fatalf("sealed reason=%s events=%d, want time/1", sealed.Reason, len(sealed.Events))
	}
	if !sealed.Events[0].Timestamp.Equal(first.Timestamp) {
		t.Error("sealed batch must hold the earlier minute's event")
	}
	if b.Pending() != 1 {
		t.Errorf("Pending() = %d, want the new minute's event buffered", b.Pending())
	}
}

func TestBatcher_StaleMetricStartsNewBatch(t *testing.T) {
	sink := &recordingSink{}
	b := NewAlignedBatcher(EventStrategyConfig{MinCount: 10, MinSizeBytes: 1 << 20, Timeout: time.Minute}, sink, WithClock(fixedClock(testNow)))

	fresh := domain.Event{Category: domain.CategoryMetric, Name: "cpu", Value: 1, Timestamp: testNow}
	stale := domain.Event{Category: domain.CategoryMetric, Name: "cpu", Value: 2, Timestamp: testNow.Add(-10 * time.Minute)}
	if err := b.Add(context.Background(), group("host", fresh, stale)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	payloads := sink.Payloads()
	if len(payloads) != 1 || payloads[0].EventCount() != 1 {
		t.Fatalf("want the fresh point sealed alone, got %d payloads", len(payloads))
	}
	if b.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", b.Pending())
	}
}

func TestBatcher_PlainBatcherKeepsStaleMetric(t *testing.T) {
	sink := &recordingSink{}
	b := NewEventBatcher(EventStrategyConfig{MinCount: 10, MinSizeBytes: 1 << 20, Timeout: time.Minute}, sink, WithClock(fixedClock(testNow)))

	fresh := domain.Event{Category: domain.CategoryMetric, Name: "cpu", Value: 1, Timestamp: testNow}
	stale := domain.Event{Category: domain.CategoryMetric, Name: "cpu", Value: 2, Timestamp: testNow.Add(-10 * time.Minute)}
	if err := b.Add(context.Background(), group("host", fresh, stale)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(sink.Payloads()) != 0 || b.Pending() != 2 {
		t.Errorf("payloads = %d, pending = %d; want both points in one open batch", len(sink.Payloads()), b.Pending())
	}
}

func TestBatcher_TickTimeout(t *testing.T) {
	clk := &fakeClock{t: testNow}
	sink := &recordingSink{}
	b := NewEventBatcher(EventStrategyConfig{MinCount: 10, MinSizeBytes: 1 << 20, Timeout: 3 * time.Second}, sink, WithClock(clk.Now))
	ctx := context.Background()

	if err := b.Add(ctx, group("app", logEvent(testNow))); err != nil {
		t.Fatalf("Add: %v", err)
	}

	clk.Advance(2 * time.Second)
	if err := b.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(sink.Payloads()) != 0 {
		t.Fatal("flushed before timeout")
	}

	clk.Advance(time.Second)
	if err := b.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	payloads := sink.Payloads()
	if len(payloads) != 1 || payloads[0].Reason != domain.FlushByTime {
		t.Fatalf("want one time flush at the timeout, got %d", len(payloads))
	}
	if len(b.Keys()) != 0 {
		t.Errorf("Keys() = %v, want none open", b.Keys())
	}
}

func TestBatcher_FlushAll(t *testing.T) {
	sink := &recordingSink{}
	b := NewEventBatcher(EventStrategyConfig{MinCount: 10, MinSizeBytes: 1 << 20, Timeout: time.Minute}, sink, WithClock(fixedClock(testNow)))
	ctx := context.Background()

	if err := b.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll on empty: %v", err)
	}
	if len(sink.Payloads()) != 0 {
		t.Fatal("FlushAll on an empty batcher must not deliver")
	}

	_ = b.Add(ctx, group("a", logEvent(testNow)))
	_ = b.Add(ctx, group("b", logEvent(testNow), logEvent(testNow)))
	if err := b.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}

	payloads := sink.Payloads()
	if len(payloads) != 2 {
		t.Fatalf("got %d payloads, want one per key", len(payloads))
	}
	if payloads[0].FirstKey() != "a" || payloads[1].FirstKey() != "b" {
		t.Errorf("keys = %q, %q; want insertion order", payloads[0].FirstKey(), payloads[1].FirstKey())
	}
	for _, p := range payloads {
		if p.Reason != domain.FlushByForce {
			t.Errorf("reason = %s, want force", p.Reason)
		}
	}
	if b.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", b.Pending())
	}
}

func TestBatcher_SeparateKeys(t *testing.T) {
	sink := &recordingSink{}
	b := NewEventBatcher(EventStrategyConfig{MinCount: 2, MinSizeBytes: 1 << 20, Timeout: time.Minute}, sink, WithClock(fixedClock(testNow)))
	ctx := context.Background()

	web := domain.EventGroup{Source: "nginx", Tags: map[string]string{"host": "web"}, Events: []domain.Event{logEvent(testNow)}}
	db := domain.EventGroup{Source: "nginx", Tags: map[string]string{"host": "db"}, Events: []domain.Event{logEvent(testNow)}}
	_ = b.Add(ctx, web)
	_ = b.Add(ctx, db)

	if len(sink.Payloads()) != 0 {
		t.Fatal("events under different keys must not share a batch")
	}
	if got := len(b.Keys()); got != 2 {
		t.Errorf("open keys = %d, want 2", got)
	}
}

func TestBatcher_SinkErrorResetsStatus(t *testing.T) {
	sinkErr := errors.New("backend down")
	sink := &recordingSink{err: sinkErr}
	obs := newCountingObserver()
	b := NewEventBatcher(EventStrategyConfig{MinCount: 1, MinSizeBytes: 1 << 20, Timeout: time.Minute}, sink,
		WithClock(fixedClock(testNow)), WithObserver(obs))

	err := b.Add(context.Background(), group("app", logEvent(testNow), logEvent(testNow)))
	if !errors.Is(err, sinkErr) {
		t.Fatalf("Add error = %v, want wrapped sink error", err)
	}
	if got := len(sink.Payloads()); got != 2 {
		t.Errorf("sink called %d times, want 2 despite the first failure", got)
	}
	if b.Pending() != 0 || len(b.Keys()) != 0 {
		t.Errorf("status not reset after failed delivery: pending=%d keys=%v", b.Pending(), b.Keys())
	}
	if obs.appends != 2 || obs.seals[domain.FlushByCount] != 2 || obs.failed != 2 {
		t.Errorf("observer = %+v", obs)
	}
}

func TestBatcher_GroupLevel(t *testing.T) {
	clk := &fakeClock{t: testNow}
	sink := &recordingSink{}
	b := NewEventBatcher(EventStrategyConfig{MinCount: 1, MinSizeBytes: 1 << 20, Timeout: time.Minute}, sink,
		WithClock(clk.Now),
		WithGroupStrategy(GroupStrategyConfig{MaxSizeBytes: 1 << 20, Timeout: 5 * time.Second}),
	)
	ctx := context.Background()

	_ = b.Add(ctx, group("a", logEvent(testNow)))
	_ = b.Add(ctx, group("b", logEvent(testNow)))
	if len(sink.Payloads()) != 0 {
		t.Fatal("sealed batches must wait in the group batch")
	}
	if b.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", b.Pending())
	}

	clk.Advance(5 * time.Second)
	if err := b.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	payloads := sink.Payloads()
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}
	if len(payloads[0].Batches) != 2 || payloads[0].Reason != domain.FlushByTime {
		t.Errorf("group payload batches=%d reason=%s", len(payloads[0].Batches), payloads[0].Reason)
	}
	if b.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", b.Pending())
	}
}

func TestBatcher_GroupLevelSize(t *testing.T) {
	e := logEvent(testNow)
	sink := &recordingSink{}
	b := NewEventBatcher(EventStrategyConfig{MinCount: 1, MinSizeBytes: 1 << 20, Timeout: time.Minute}, sink,
		WithClock(fixedClock(testNow)),
		WithGroupStrategy(GroupStrategyConfig{MaxSizeBytes: 2 * e.SizeBytes(), Timeout: time.Minute}),
	)

	_ = b.Add(context.Background(), group("a", e, e))
	payloads := sink.Payloads()
	if len(payloads) != 1 || payloads[0].Reason != domain.FlushBySize || len(payloads[0].Batches) != 2 {
		t.Fatalf("want one size flush carrying two batches, got %d payloads", len(payloads))
	}
}

func TestBatcher_EmptyGroup(t *testing.T) {
	sink := &recordingSink{}
	b := NewEventBatcher(EventStrategyConfig{MinCount: 1}, sink)
	if err := b.Add(context.Background(), domain.EventGroup{Source: "x"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(b.Keys()) != 0 || len(sink.Payloads()) != 0 {
		t.Error("an empty group must not open a batch")
	}
}

func TestBatcher_SealedBatchKeepsOwnTags(t *testing.T) {
	sink := &recordingSink{}
	b := NewEventBatcher(EventStrategyConfig{MinCount: 10, MinSizeBytes: 1 << 20, Timeout: time.Minute}, sink, WithClock(fixedClock(testNow)))
	ctx := context.Background()

	tags := map[string]string{"host": "a"}
	g := group("app", logEvent(testNow))
	g.Tags = tags
	if err := b.Add(ctx, g); err != nil {
		t.Fatalf("Add: %v", err)
	}
	tags["host"] = "b"

	if err := b.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	payloads := sink.Payloads()
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}
	if got := payloads[0].Batches[0].Tags["host"]; got != "a" {
		t.Errorf("sealed batch tag host = %q, want %q", got, "a")
	}
}
