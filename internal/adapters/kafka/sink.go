// Package kafka ships payloads to a Kafka (or Redpanda) topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
)

// Config describes the target topic.
type Config struct {
	Brokers []string
	Topic   string
}

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink writes one message per payload. The message key is the first batch
// key so batches of one source land on one partition.
type Sink struct {
	writer messageWriter
	topic  string
}

// NewSink creates a sink backed by a kafka-go Writer.
func NewSink(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink needs brokers and topic")
	}
	return newSink(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}, cfg.Topic), nil
}

func newSink(w messageWriter, topic string) *Sink {
	return &Sink{writer: w, topic: topic}
}

func (k *Sink) Name() string { return "kafka" }

func (k *Sink) Send(ctx context.Context, p *domain.Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(p.FirstKey()),
		Value: data,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "payload-id", Value: []byte(p.ID)},
			{Key: "reason", Value: []byte(p.Reason)},
		},
	})
	if err != nil {
		return fmt.Errorf("write to topic %s: %w", k.topic, err)
	}
	return nil
}

func (k *Sink) Close() error {
	return k.writer.Close()
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

var _ ports.Sink = (*Sink)(nil)
