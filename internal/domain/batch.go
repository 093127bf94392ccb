package domain

import "time"

// FlushReason records which rule sealed a batch.
type FlushReason string

const (
	FlushByCount   FlushReason = "count"
	FlushBySize    FlushReason = "size"
	FlushByTime    FlushReason = "time"
	FlushByHardCap FlushReason = "hard_cap"
	FlushByForce   FlushReason = "force"
)

// Snapshot is the final state of a batch status at the moment it was sealed.
type Snapshot struct {
	Count     int       `json:"count"`
	SizeBytes int       `json:"size_bytes"`
	OpenedAt  time.Time `json:"opened_at"`
}

// Batch is a sealed run of events for one group key.
// Once sealed it is never mutated; ownership moves to the receiver.
type Batch struct {
	ID       string            `json:"id"`
	Key      string            `json:"key"`
	Source   string            `json:"source"`
	Tags     map[string]string `json:"tags,omitempty"`
	Events   []Event           `json:"events"`
	Snapshot Snapshot          `json:"snapshot"`
	Reason   FlushReason       `json:"reason"`
}

// Size returns the number of events in the batch.
func (b *Batch) Size() int {
	return len(b.Events)
}

// Empty returns true if the batch has no events.
func (b *Batch) Empty() bool {
	return len(b.Events) == 0
}

// Payload is one delivery to a sink. Without group-level batching it carries
// exactly one batch.
type Payload struct {
	ID       string      `json:"id"`
	Batches  []*Batch    `json:"batches"`
	Snapshot Snapshot    `json:"snapshot"`
	Reason   FlushReason `json:"reason"`
}

// EventCount returns the total number of events across all batches.
func (p *Payload) EventCount() int {
	n := 0
	for _, b := range p.Batches {
		n += len(b.Events)
	}
	return n
}

// SizeBytes returns the estimated size of all batches in the payload.
func (p *Payload) SizeBytes() int {
	n := 0
	for _, b := range p.Batches {
		n += b.Snapshot.SizeBytes
	}
	return n
}

// FirstKey returns the key of the first batch, or "" if the payload is empty.
func (p *Payload) FirstKey() string {
	if len(p.Batches) == 0 {
		return ""
	}
	return p.Batches[0].Key
}
