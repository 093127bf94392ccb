package app

import (
	"context"
	"fmt"

	"github.com/bft-labs/telship/internal/adapters/spool"
	"github.com/bft-labs/telship/internal/config"
	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/flusher"
	"github.com/bft-labs/telship/internal/metrics"
	"github.com/bft-labs/telship/pkg/log"
)

// ReplaySpool sends the payloads stored in spoolDir, oldest first, to the
// sink cfg selects, with the usual retries. Delivered payloads are removed
// from the spool; replay stops at the first payload that still fails.
// It returns the number of payloads delivered.
func ReplaySpool(ctx context.Context, cfg config.Config, spoolDir string, sinks SinkFactory, logger log.Logger) (int, error) {
	if cfg.Sink == config.SinkSpool {
		return 0, fmt.Errorf("%w: replay needs a sink other than spool", domain.ErrInvalidConfig)
	}
	if sinks == nil {
		sinks = DefaultSinkFactory
	}

	sp, err := spool.Open(spoolDir)
	if err != nil {
		return 0, err
	}
	defer sp.Close()

	sink, err := sinks(cfg, logger.With(log.String("sink", cfg.Sink)))
	if err != nil {
		return 0, fmt.Errorf("build sink: %w", err)
	}
	fl := flusher.New(cfg.PipelineName, sink, flusher.Config{MaxAttempts: cfg.MaxAttempts}, metrics.New(), logger)
	defer fl.Close()

	n, err := sp.Replay(ctx, fl)
	logger.Info("spool replayed", log.String("dir", spoolDir), log.Int("payloads", n))
	return n, err
}
