package telship

import (
	"context"

	"github.com/bft-labs/telship/internal/domain"
)

// pushInput forwards groups handed to Emit into the running pipeline.
// The queue outlives pipeline generations, so a reload keeps what is queued.
type pushInput struct {
	queue chan domain.EventGroup
}

func newPushInput(size int) *pushInput {
	return &pushInput{queue: make(chan domain.EventGroup, size)}
}

func (p *pushInput) Name() string { return "input_push" }

// Run forwards until ctx is done, then hands over whatever is still queued.
// The pipeline keeps reading out after cancellation, so the final sends
// do not block forever.
func (p *pushInput) Run(ctx context.Context, out chan<- domain.EventGroup) error {
	for {
		select {
		case <-ctx.Done():
			p.drain(out)
			return nil
		case g := <-p.queue:
			out <- g
		}
	}
}

func (p *pushInput) drain(out chan<- domain.EventGroup) {
	for {
		select {
		case g := <-p.queue:
			out <- g
		default:
			return
		}
	}
}

func (p *pushInput) emit(ctx context.Context, g domain.EventGroup) error {
	select {
	case p.queue <- g:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
