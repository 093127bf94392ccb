package ports

import (
	"context"

	"github.com/bft-labs/telship/internal/domain"
)

// Input produces event groups for one pipeline.
// Run blocks, sending groups on out until ctx is cancelled.
type Input interface {
	Name() string
	Run(ctx context.Context, out chan<- domain.EventGroup) error
}
