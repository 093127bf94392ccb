package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Category discriminates the kinds of events the agent carries.
type Category uint8

const (
	CategoryLog Category = iota
	CategoryMetric
	CategorySpan
	CategoryRaw
)

// String returns the lowercase category name used in payloads and metrics.
func (c Category) String() string {
	switch c {
	case CategoryLog:
		return "log"
	case CategoryMetric:
		return "metric"
	case CategorySpan:
		return "span"
	case CategoryRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	switch string(text) {
	case "log":
		*c = CategoryLog
	case "metric":
		*c = CategoryMetric
	case "span":
		*c = CategorySpan
	case "raw":
		*c = CategoryRaw
	default:
		return fmt.Errorf("unknown event category %q", text)
	}
	return nil
}

// IsLogLike reports whether events of this category are bucketed by minute
// on backends that align batches to calendar minutes.
func (c Category) IsLogLike() bool {
	return c == CategoryLog || c == CategoryRaw
}

// IsMetricLike reports whether events of this category are subject to the
// backend freshness window.
func (c Category) IsMetricLike() bool {
	return c == CategoryMetric
}

// per-field overhead used by the size estimate; roughly the framing cost of a
// key/value pair in the serialized group.
const fieldOverhead = 4

// eventOverhead covers timestamp, category and framing of one event.
const eventOverhead = 16

// Event is one log line, metric point, span or raw record.
type Event struct {
	Category  Category          `json:"category"`
	Timestamp time.Time         `json:"timestamp"`
	Name      string            `json:"name,omitempty"`
	Value     float64           `json:"value,omitempty"`
	Contents  map[string]string `json:"contents,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// SizeBytes returns the estimated serialized size of the event.
func (e Event) SizeBytes() int {
	size := eventOverhead + len(e.Name)
	if e.Category == CategoryMetric {
		size += 8
	}
	for k, v := range e.Contents {
		size += len(k) + len(v) + fieldOverhead
	}
	for k, v := range e.Tags {
		size += len(k) + len(v) + fieldOverhead
	}
	return size
}

// EventGroup is a run of events from one source sharing the same tags.
// Inputs emit groups; the batcher splits them back into per-key batches.
type EventGroup struct {
	Source string            `json:"source"`
	Tags   map[string]string `json:"tags,omitempty"`
	Events []Event           `json:"events"`
}

// Key returns the batching key of the group: the source followed by its
// tags in key order. Groups with equal keys share one open batch.
func (g EventGroup) Key() string {
	if len(g.Tags) == 0 {
		return g.Source
	}
	keys := make([]string, 0, len(g.Tags))
	for k := range g.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(g.Source)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(g.Tags[k])
	}
	return b.String()
}

// SizeBytes returns the estimated size of all events in the group.
func (g EventGroup) SizeBytes() int {
	total := 0
	for _, e := range g.Events {
		total += e.SizeBytes()
	}
	return total
}
