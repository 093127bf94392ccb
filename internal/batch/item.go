package batch

import (
	"github.com/google/uuid"

	"github.com/bft-labs/telship/internal/domain"
)

// eventItem is the open batch of one group key.
type eventItem[S EventBatchStatus] struct {
	key    string
	source string
	tags   map[string]string
	events []domain.Event
	status S
}

func (it *eventItem[S]) add(e domain.Event, size int, now Clock) {
	it.events = append(it.events, e)
	it.status.RecordAppend(size, e.Timestamp, now())
}

// seal hands out the buffered events as an immutable Batch. The status is
// left untouched; the caller resets it once the hand-off has returned.
func (it *eventItem[S]) seal(reason domain.FlushReason) *domain.Batch {
	b := &domain.Batch{
		ID:       uuid.NewString(),
		Key:      it.key,
		Source:   it.source,
		Tags:     it.tags,
		Events:   it.events,
		Snapshot: it.status.Snapshot(),
		Reason:   reason,
	}
	it.events = nil
	return b
}

// groupItem accumulates sealed event batches for group-level flushing.
type groupItem struct {
	batches []*domain.Batch
	events  int
	status  GroupStatus
}

func (g *groupItem) add(b *domain.Batch, now Clock) {
	g.batches = append(g.batches, b)
	g.events += len(b.Events)
	g.status.RecordAppend(b.Snapshot.SizeBytes, now())
}

func (g *groupItem) seal(reason domain.FlushReason) *domain.Payload {
	p := &domain.Payload{
		ID:      uuid.NewString(),
		Batches: g.batches,
		Snapshot: domain.Snapshot{
			Count:     g.events,
			SizeBytes: g.status.SizeBytes(),
			OpenedAt:  g.status.OpenedAt(),
		},
		Reason: reason,
	}
	g.batches = nil
	g.events = 0
	return p
}
