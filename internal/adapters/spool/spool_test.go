package spool

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bft-labs/telship/internal/domain"
)

type collectSink struct {
	got  []string
	fail bool
}

func (c *collectSink) Send(_ context.Context, p *domain.Payload) error {
	if c.fail {
		return errors.New("down")
	}
	c.got = append(c.got, p.ID)
	return nil
}
func (c *collectSink) Name() string { return "collect" }
func (c *collectSink) Close() error { return nil }

func openTest(t *testing.T) *Spool {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "spool"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	tick := time.Unix(1717398000, 0)
	s.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	return s
}

func TestSpool_SendListDelete(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Send(ctx, &domain.Payload{ID: id}); err != nil {
			t.Fatalf("Send(%s): %v", id, err)
		}
	}

	entries, err := s.List(2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].Payload.ID != "a" || entries[1].Payload.ID != "b" {
		t.Fatalf("List(2) = %+v", entries)
	}

	if err := s.Delete(entries[0].Key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	all, _ := s.List(0)
	if len(all) != 2 || all[0].Payload.ID != "b" {
		t.Errorf("after delete: %d entries", len(all))
	}

	if err := s.Delete([]byte("other/key")); err == nil {
		t.Error("Delete must reject keys outside the spool prefix")
	}
}

func TestSpool_Replay(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	_ = s.Send(ctx, &domain.Payload{ID: "1"})
	_ = s.Send(ctx, &domain.Payload{ID: "2"})

	if n, err := s.Replay(ctx, &collectSink{fail: true}); err == nil || n != 0 {
		t.Fatalf("Replay to failing sink: n=%d err=%v", n, err)
	}

	sink := &collectSink{}
	n, err := s.Replay(ctx, sink)
	if err != nil || n != 2 {
		t.Fatalf("Replay: n=%d err=%v", n, err)
	}
	if sink.got[0] != "1" || sink.got[1] != "2" {
		t.Errorf("replay order = %v", sink.got)
	}
	if rest, _ := s.List(0); len(rest) != 0 {
		t.Errorf("%d entries left after replay", len(rest))
	}
}
