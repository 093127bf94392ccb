// Package stdout writes payloads as JSON lines. Meant for debugging.
package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
)

// Sink encodes each payload on its own line.
type Sink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewSink writes to w, or to os.Stdout when w is nil.
func NewSink(w io.Writer) *Sink {
	if w == nil {
		w = os.Stdout
	}
	return &Sink{enc: json.NewEncoder(w)}
}

func (s *Sink) Name() string { return "stdout" }

func (s *Sink) Send(_ context.Context, p *domain.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(p); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

func (s *Sink) Close() error { return nil }

var _ ports.Sink = (*Sink)(nil)
