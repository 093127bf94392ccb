package ports

import (
	"context"

	"github.com/bft-labs/telship/internal/domain"
)

// Sink transmits sealed payloads to a backend.
// Send blocks until the payload is accepted or has failed. The payload is
// owned by the sink once Send is called.
type Sink interface {
	Send(ctx context.Context, p *domain.Payload) error

	// Name identifies the sink in logs and metrics.
	Name() string

	// Close releases connections, files and writers.
	Close() error
}
