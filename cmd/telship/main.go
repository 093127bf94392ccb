package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/telship/internal/app"
	"github.com/bft-labs/telship/internal/config"
	"github.com/bft-labs/telship/pkg/log"
	"github.com/bft-labs/telship/pkg/telship"
)

const helpDescription = `
Collect host and agent telemetry, batch it, and ship it to a sink.

Highlights:
  - Batches per source by count, size, age, and calendar minute.
  - Sinks: HTTP (zstd/gzip), Kafka, a local Pebble spool, or stdout.
  - Configure via file, env (TELSHIP_*), or flags; the file is watched and
    reloaded without dropping buffered events.
`

var exampleUsage = strings.TrimSpace(`
  telship --service-url https://ingest.example.com --auth-key <api-key>
  telship --sink kafka --kafka-brokers k1:9092,k2:9092 --kafka-topic telemetry
  telship --config $HOME/.telship/config.toml --metrics-addr :9100
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// loadConfig layers .env, the config file and the environment under the
// flags that were set on cmd.
func loadConfig(cmd *cobra.Command, cfg *config.Config, cfgPath, envFile string) (string, map[string]bool, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return "", nil, err
	}

	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = config.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if err := config.Load(cfg, cfgFile, changed); err != nil {
		return "", nil, err
	}
	return cfgFile, changed, nil
}

func main() {
	cfg := config.DefaultConfig()
	var cfgPath, envFile string

	root := &cobra.Command{
		Use:     "telship",
		Short:   "Batch and ship host telemetry",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			// flags only; file and env are layered on a copy at every (re)load
			base := cfg
			cfgFile, changed, err := loadConfig(cmd, &cfg, cfgPath, envFile)
			if err != nil {
				return err
			}

			logger := log.NewZerologLogger(os.Stderr, cfg.LogLevel, cfg.LogConsole)
			logger.Info("configuration", log.Any("config", cfg.Masked()))

			t, err := telship.New(cfg, telship.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("create agent: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := t.Start(ctx); err != nil {
				return fmt.Errorf("start agent: %w", err)
			}

			if cfg.Watch && config.FileExists(cfgFile) {
				w := config.NewWatcher(cfgFile, 0, func() {
					next := base
					if err := config.Load(&next, cfgFile, changed); err != nil {
						logger.Error("config reload rejected", log.Err(err))
						return
					}
					if err := t.Reload(next); err != nil {
						logger.Error("config reload failed", log.Err(err))
					}
				}, logger)
				if err := w.Start(ctx); err != nil {
					logger.Warn("config watcher disabled", log.Err(err))
				} else {
					defer w.Shutdown()
				}
			}

			<-ctx.Done()
			logger.Info("received signal, stopping")

			if err := t.Stop(); err != nil {
				return fmt.Errorf("stop agent: %w", err)
			}
			return nil
		},
	}

	var replayFrom string
	replay := &cobra.Command{
		Use:   "replay",
		Short: "Send payloads stored in a spool directory to the configured sink",
		Example: strings.TrimSpace(`
  telship replay --from /var/lib/telship/spool --service-url https://ingest.example.com`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := loadConfig(cmd, &cfg, cfgPath, envFile); err != nil {
				return err
			}
			dir := replayFrom
			if dir == "" {
				dir = cfg.SpoolDir
			}
			if dir == "" {
				return fmt.Errorf("replay needs --from or spool-dir")
			}

			logger := log.NewZerologLogger(os.Stderr, cfg.LogLevel, cfg.LogConsole)
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			n, err := app.ReplaySpool(ctx, cfg, dir, nil, logger)
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d payloads\n", n)
			return err
		},
	}
	replay.Flags().StringVar(&replayFrom, "from", "", "spool directory to replay (defaults to spool-dir)")
	root.AddCommand(replay)

	f := root.PersistentFlags()
	f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.telship/config.toml)")
	f.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading TELSHIP_* variables")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	f.BoolVar(&cfg.LogConsole, "log-console", cfg.LogConsole, "human-readable log output")
	f.StringVar(&cfg.PipelineName, "pipeline", cfg.PipelineName, "pipeline name used in metrics and logs")

	f.IntVar(&cfg.MinCount, "min-count", cfg.MinCount, "events per batch before it is flushed")
	f.Var(&cfg.MinSizeBytes, "min-size", "batch size before it is flushed (e.g. 512KiB)")
	f.Var(&cfg.MaxSizeBytes, "max-size", "hard cap on batch size, 0 disables")
	f.DurationVar(&cfg.BatchTimeout, "batch-timeout", cfg.BatchTimeout, "maximum age of a batch")
	f.BoolVar(&cfg.Aligned, "aligned", cfg.Aligned, "keep log batches within one calendar minute")
	f.Var(&cfg.GroupMaxSizeBytes, "group-max-size", "group batch size before it is flushed (defaults to max-size)")
	f.DurationVar(&cfg.GroupTimeout, "group-timeout", cfg.GroupTimeout, "maximum age of a group batch, 0 disables grouping")
	f.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "interval of timeout checks")

	f.StringVar(&cfg.Sink, "sink", cfg.Sink, "sink type (http, kafka, spool, stdout)")
	f.StringVar(&cfg.ServiceURL, "service-url", cfg.ServiceURL, fmt.Sprintf("ingest base URL (defaults to %s)", config.DefaultServiceURL))
	f.StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "API key for authentication")
	f.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")
	f.StringVar(&cfg.Compression, "compression", cfg.Compression, "HTTP body compression (none, gzip, zstd)")
	f.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "delivery attempts per payload")
	f.StringVar(&cfg.KafkaBrokers, "kafka-brokers", cfg.KafkaBrokers, "comma-separated Kafka brokers")
	f.StringVar(&cfg.KafkaTopic, "kafka-topic", cfg.KafkaTopic, "Kafka topic")
	f.StringVar(&cfg.SpoolDir, "spool-dir", cfg.SpoolDir, "directory of the spool sink")

	f.BoolVar(&cfg.HostMonitor, "host-monitor", cfg.HostMonitor, "collect host metrics")
	f.DurationVar(&cfg.HostMonitorInterval, "host-monitor-interval", cfg.HostMonitorInterval, "host metric interval")
	f.BoolVar(&cfg.EnableCPU, "enable-cpu", cfg.EnableCPU, "collect CPU metrics")
	f.BoolVar(&cfg.EnableSystem, "enable-system", cfg.EnableSystem, "collect load averages")
	f.BoolVar(&cfg.EnableNet, "enable-net", cfg.EnableNet, "collect network counters")
	f.BoolVar(&cfg.EnableMemory, "enable-memory", cfg.EnableMemory, "collect memory metrics")
	f.BoolVar(&cfg.SelfMonitor, "self-monitor", cfg.SelfMonitor, "collect agent runtime metrics")
	f.DurationVar(&cfg.SelfMonitorInterval, "self-monitor-interval", cfg.SelfMonitorInterval, "agent metric interval")
	f.DurationVar(&cfg.AlarmInterval, "alarm-interval", cfg.AlarmInterval, "alarm flush interval")

	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address of the Prometheus listener, empty disables")
	f.BoolVar(&cfg.Watch, "watch", cfg.Watch, "reload when the config file changes")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "telship:", err)
		os.Exit(1)
	}
}
