package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable the agent reads.
const EnvPrefix = "TELSHIP_"

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" || !FileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func env(name string) string { return os.Getenv(EnvPrefix + name) }

// ApplyEnvConfig applies configuration from environment variables (TELSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)
	s.setBoolFromString("log-console", env("LOG_CONSOLE"), &cfg.LogConsole)
	s.setString("pipeline", env("PIPELINE"), &cfg.PipelineName)

	s.setString("sink", env("SINK"), &cfg.Sink)
	s.setString("service-url", env("SERVICE_URL"), &cfg.ServiceURL)
	s.setString("auth-key", env("AUTH_KEY"), &cfg.AuthKey)
	s.setString("compression", env("COMPRESSION"), &cfg.Compression)
	s.setString("kafka-brokers", env("KAFKA_BROKERS"), &cfg.KafkaBrokers)
	s.setString("kafka-topic", env("KAFKA_TOPIC"), &cfg.KafkaTopic)
	s.setString("spool-dir", env("SPOOL_DIR"), &cfg.SpoolDir)
	s.setString("metrics-addr", env("METRICS_ADDR"), &cfg.MetricsAddr)

	if err := s.setIntFromString("min-count", env("MIN_COUNT"), &cfg.MinCount); err != nil {
		return err
	}
	if err := s.setIntFromString("max-attempts", env("MAX_ATTEMPTS"), &cfg.MaxAttempts); err != nil {
		return err
	}

	if err := s.setBytes("min-size", env("MIN_SIZE"), &cfg.MinSizeBytes); err != nil {
		return err
	}
	if err := s.setBytes("max-size", env("MAX_SIZE"), &cfg.MaxSizeBytes); err != nil {
		return err
	}
	if err := s.setBytes("group-max-size", env("GROUP_MAX_SIZE"), &cfg.GroupMaxSizeBytes); err != nil {
		return err
	}

	for _, d := range []struct {
		flag, name string
		dst        *time.Duration
	}{
		{"batch-timeout", "BATCH_TIMEOUT", &cfg.BatchTimeout},
		{"group-timeout", "GROUP_TIMEOUT", &cfg.GroupTimeout},
		{"tick", "TICK", &cfg.TickInterval},
		{"timeout", "HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"host-monitor-interval", "HOST_MONITOR_INTERVAL", &cfg.HostMonitorInterval},
		{"self-monitor-interval", "SELF_MONITOR_INTERVAL", &cfg.SelfMonitorInterval},
		{"alarm-interval", "ALARM_INTERVAL", &cfg.AlarmInterval},
	} {
		if err := s.setDuration(d.flag, env(d.name), d.dst); err != nil {
			return err
		}
	}

	s.setBoolFromString("aligned", env("ALIGNED"), &cfg.Aligned)
	s.setBoolFromString("host-monitor", env("HOST_MONITOR"), &cfg.HostMonitor)
	s.setBoolFromString("enable-cpu", env("ENABLE_CPU"), &cfg.EnableCPU)
	s.setBoolFromString("enable-system", env("ENABLE_SYSTEM"), &cfg.EnableSystem)
	s.setBoolFromString("enable-net", env("ENABLE_NET"), &cfg.EnableNet)
	s.setBoolFromString("enable-memory", env("ENABLE_MEMORY"), &cfg.EnableMemory)
	s.setBoolFromString("self-monitor", env("SELF_MONITOR"), &cfg.SelfMonitor)
	s.setBoolFromString("watch", env("WATCH"), &cfg.Watch)

	return nil
}

// Load layers a config file (if present), the environment and changed flags
// over cfg, in that order of increasing precedence, then validates it.
func Load(cfg *Config, path string, changed map[string]bool) error {
	if path != "" && FileExists(path) {
		fc, err := LoadFileConfig(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}
	if err := ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}
