package batch

import (
	"time"

	"github.com/bft-labs/telship/internal/domain"
)

// Observer receives hot-path notifications from a Batcher. Implementations
// run synchronously on the pipeline goroutine and must return quickly.
type Observer interface {
	OnAppend(key string, sizeBytes int)
	OnSeal(key string, reason domain.FlushReason, snap domain.Snapshot)
	OnDeliver(p *domain.Payload, err error, elapsed time.Duration)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) OnAppend(string, int)                               {}
func (NopObserver) OnSeal(string, domain.FlushReason, domain.Snapshot) {}
func (NopObserver) OnDeliver(*domain.Payload, error, time.Duration)    {}
