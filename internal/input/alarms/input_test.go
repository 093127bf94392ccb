package alarms

import (
	"context"
	"testing"
	"time"

	"github.com/bft-labs/telship/internal/alarm"
	"github.com/bft-labs/telship/internal/domain"
)

func TestRun_DrainsOnTickAndStop(t *testing.T) {
	m := alarm.NewManager()
	in := New(m, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan domain.EventGroup, 8)
	done := make(chan struct{})
	go func() {
		_ = in.Run(ctx, out)
		close(done)
	}()

	m.Send(alarm.SendDataFailAlarm, "first", alarm.Labels{Region: "eu"})
	select {
	case g := <-out:
		if g.Source != alarm.Source || g.Events[0].Contents["alarm_message"] != "first" {
			t.Errorf("group = %+v", g)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tick did not drain the manager")
	}

	m.Send(alarm.ConfigUpdateAlarm, "last", alarm.Labels{})
	cancel()
	<-done

	found := false
	for len(out) > 0 {
		g := <-out
		for _, e := range g.Events {
			if e.Contents["alarm_message"] == "last" {
				found = true
			}
		}
	}
	if !found {
		t.Error("stop must drain pending alarms")
	}
}
