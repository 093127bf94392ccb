package config

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations and byte sizes
// to make TOML friendly.
type FileConfig struct {
	LogLevel   string `toml:"log_level"`
	LogConsole *bool  `toml:"log_console"`

	PipelineName string `toml:"pipeline"`

	MinCount     int    `toml:"min_count"`
	MinSize      string `toml:"min_size"`
	MaxSize      string `toml:"max_size"`
	BatchTimeout string `toml:"batch_timeout"`
	Aligned      *bool  `toml:"aligned"`

	GroupMaxSize string `toml:"group_max_size"`
	GroupTimeout string `toml:"group_timeout"`
	TickInterval string `toml:"tick"`

	Sink        string `toml:"sink"`
	ServiceURL  string `toml:"service_url"`
	AuthKey     string `toml:"auth_key"`
	HTTPTimeout string `toml:"http_timeout"`
	Compression string `toml:"compression"`
	MaxAttempts int    `toml:"max_attempts"`

	KafkaBrokers string `toml:"kafka_brokers"`
	KafkaTopic   string `toml:"kafka_topic"`
	SpoolDir     string `toml:"spool_dir"`

	HostMonitor         *bool  `toml:"host_monitor"`
	HostMonitorInterval string `toml:"host_monitor_interval"`
	EnableCPU           *bool  `toml:"enable_cpu"`
	EnableSystem        *bool  `toml:"enable_system"`
	EnableNet           *bool  `toml:"enable_net"`
	EnableMemory        *bool  `toml:"enable_memory"`

	SelfMonitor         *bool  `toml:"self_monitor"`
	SelfMonitorInterval string `toml:"self_monitor_interval"`
	AlarmInterval       string `toml:"alarm_interval"`

	MetricsAddr string `toml:"metrics_addr"`
	Watch       *bool  `toml:"watch"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.telship/config.toml if the user home
// directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".telship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setBool("log-console", fc.LogConsole, &cfg.LogConsole)
	s.setString("pipeline", fc.PipelineName, &cfg.PipelineName)

	s.setInt("min-count", fc.MinCount, &cfg.MinCount)
	s.setInt("max-attempts", fc.MaxAttempts, &cfg.MaxAttempts)
	s.setBool("aligned", fc.Aligned, &cfg.Aligned)

	s.setString("sink", fc.Sink, &cfg.Sink)
	s.setString("service-url", fc.ServiceURL, &cfg.ServiceURL)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("compression", fc.Compression, &cfg.Compression)
	s.setString("kafka-brokers", fc.KafkaBrokers, &cfg.KafkaBrokers)
	s.setString("kafka-topic", fc.KafkaTopic, &cfg.KafkaTopic)
	s.setString("spool-dir", fc.SpoolDir, &cfg.SpoolDir)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)

	s.setBool("host-monitor", fc.HostMonitor, &cfg.HostMonitor)
	s.setBool("enable-cpu", fc.EnableCPU, &cfg.EnableCPU)
	s.setBool("enable-system", fc.EnableSystem, &cfg.EnableSystem)
	s.setBool("enable-net", fc.EnableNet, &cfg.EnableNet)
	s.setBool("enable-memory", fc.EnableMemory, &cfg.EnableMemory)
	s.setBool("self-monitor", fc.SelfMonitor, &cfg.SelfMonitor)
	s.setBool("watch", fc.Watch, &cfg.Watch)

	for _, b := range []struct {
		flag  string
		value string
		dst   *ByteSize
	}{
		{"min-size", fc.MinSize, &cfg.MinSizeBytes},
		{"max-size", fc.MaxSize, &cfg.MaxSizeBytes},
		{"group-max-size", fc.GroupMaxSize, &cfg.GroupMaxSizeBytes},
	} {
		if err := s.setBytes(b.flag, b.value, b.dst); err != nil {
			return err
		}
	}

	for _, d := range []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"batch-timeout", fc.BatchTimeout, &cfg.BatchTimeout},
		{"group-timeout", fc.GroupTimeout, &cfg.GroupTimeout},
		{"tick", fc.TickInterval, &cfg.TickInterval},
		{"timeout", fc.HTTPTimeout, &cfg.HTTPTimeout},
		{"host-monitor-interval", fc.HostMonitorInterval, &cfg.HostMonitorInterval},
		{"self-monitor-interval", fc.SelfMonitorInterval, &cfg.SelfMonitorInterval},
		{"alarm-interval", fc.AlarmInterval, &cfg.AlarmInterval},
	} {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
