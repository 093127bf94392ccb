package alarm

import (
	"sync"
	"testing"
	"time"
)

func newTestManager(opts ...Option) *Manager {
	now := time.Unix(1717398000, 0)
	return NewManager(append([]Option{WithClock(func() time.Time { return now }), WithHostname("node-1")}, opts...)...)
}

func TestManager_Dedup(t *testing.T) {
	m := newTestManager()
	l := Labels{Region: "eu", Project: "p", Config: "main"}

	m.Send(SendDataFailAlarm, "backend down", l)
	m.Send(SendDataFailAlarm, "backend down", l)
	m.Send(SendDataFailAlarm, "other message", l)
	m.Send(DiscardDataAlarm, "backend down", l)

	if m.Pending() != 3 {
		t.Fatalf("Pending() = %d, want 3", m.Pending())
	}

	groups := m.Flush()
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	g := groups[0]
	if g.Source != Source || g.Tags["region"] != "eu" {
		t.Errorf("group source=%s tags=%v", g.Source, g.Tags)
	}

	counts := map[string]string{}
	for _, e := range g.Events {
		counts[e.Contents["alarm_type"]+"/"+e.Contents["alarm_message"]] = e.Contents["alarm_count"]
		if e.Contents["hostname"] != "node-1" || e.Contents["project_name"] != "p" {
			t.Errorf("contents = %v", e.Contents)
		}
	}
	if counts["SEND_DATA_FAIL_ALARM/backend down"] != "2" {
		t.Errorf("dedup count = %q, want 2", counts["SEND_DATA_FAIL_ALARM/backend down"])
	}
	if m.Pending() != 0 {
		t.Error("Flush must clear the manager")
	}
}

func TestManager_GroupPerRegion(t *testing.T) {
	m := newTestManager()
	m.Send(UserConfigAlarm, "bad", Labels{Region: "us"})
	m.Send(UserConfigAlarm, "bad", Labels{Region: "eu"})
	m.Send(UserConfigAlarm, "bad", Labels{})

	groups := m.Flush()
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	want := []string{"", "eu", "us"}
	for i, g := range groups {
		if g.Tags["region"] != want[i] {
			t.Errorf("group %d region = %q, want %q", i, g.Tags["region"], want[i])
		}
	}
}

func TestManager_ForceFlushCloses(t *testing.T) {
	m := newTestManager()
	m.Send(ConfigUpdateAlarm, "reloaded", Labels{})
	if got := m.ForceFlush(); len(got) != 1 {
		t.Fatalf("ForceFlush returned %d groups", len(got))
	}
	m.Send(ConfigUpdateAlarm, "late", Labels{})
	if m.Pending() != 0 {
		t.Error("alarms after ForceFlush must be dropped")
	}
}

func TestManager_ReopenAfterForceFlush(t *testing.T) {
	m := newTestManager()
	m.ForceFlush()
	m.Reopen()
	m.Send(SendDataFailAlarm, "send failed", Labels{})
	if m.Pending() != 1 {
		t.Fatalf("Pending() = %d after Reopen, want 1", m.Pending())
	}
}

func TestManager_LowLevelLimit(t *testing.T) {
	m := newTestManager(WithLowLevelLimit(1, 2))
	admitted := 0
	for i := 0; i < 5; i++ {
		if m.SendLowLevel(OutdatedLogAlarm, "old", Labels{}) {
			admitted++
		}
	}
	if admitted != 2 {
		t.Errorf("admitted = %d, want burst of 2 with a frozen clock", admitted)
	}
}

func TestManager_Concurrent(t *testing.T) {
	m := newTestManager()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Send(SendDataFailAlarm, "x", Labels{})
			}
		}()
	}
	wg.Wait()

	groups := m.Flush()
	if got := groups[0].Events[0].Contents["alarm_count"]; got != "800" {
		t.Errorf("alarm_count = %s, want 800", got)
	}
}

func TestType_String(t *testing.T) {
	if SendDataFailAlarm.String() != "SEND_DATA_FAIL_ALARM" {
		t.Errorf("String() = %s", SendDataFailAlarm.String())
	}
	if Type(999).String() != "ALARM_999" {
		t.Errorf("unknown type String() = %s", Type(999).String())
	}
}
