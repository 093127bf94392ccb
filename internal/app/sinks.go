package app

import (
	"fmt"
	"net/http"
	"os"

	"github.com/bft-labs/telship/internal/adapters/kafka"
	"github.com/bft-labs/telship/internal/adapters/spool"
	"github.com/bft-labs/telship/internal/adapters/stdout"
	"github.com/bft-labs/telship/internal/config"
	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
	"github.com/bft-labs/telship/pkg/log"

	httpsink "github.com/bft-labs/telship/internal/adapters/http"
)

// SinkFactory builds the transport sink for a configuration.
type SinkFactory func(cfg config.Config, logger log.Logger) (ports.Sink, error)

// DefaultSinkFactory builds one of the bundled sinks.
func DefaultSinkFactory(cfg config.Config, logger log.Logger) (ports.Sink, error) {
	var (
		sink ports.Sink
		err  error
	)
	switch cfg.Sink {
	case config.SinkHTTP:
		hostname, _ := os.Hostname()
		var s *httpsink.Sink
		s, err = httpsink.NewSink(&http.Client{Timeout: cfg.HTTPTimeout}, httpsink.Metadata{
			Hostname:    hostname,
			AuthKey:     cfg.AuthKey,
			ServiceURL:  cfg.ServiceURL,
			Compression: cfg.Compression,
		}, logger)
		sink = s
	case config.SinkKafka:
		var s *kafka.Sink
		s, err = kafka.NewSink(kafka.Config{
			Brokers: kafka.ParseBrokers(cfg.KafkaBrokers),
			Topic:   cfg.KafkaTopic,
		})
		sink = s
	case config.SinkSpool:
		var s *spool.Spool
		s, err = spool.Open(cfg.SpoolDir)
		sink = s
	case config.SinkStdout:
		sink = stdout.NewSink(nil)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSink, cfg.Sink)
	}
	if err != nil {
		return nil, fmt.Errorf("%s sink: %w", cfg.Sink, err)
	}
	return sink, nil
}
