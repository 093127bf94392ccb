// Package config holds the agent configuration and the layering of file,
// environment and flag values.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bft-labs/telship/internal/domain"
)

// DefaultServiceURL is the default ingestion endpoint of the http sink.
const DefaultServiceURL = "http://127.0.0.1:4318"

// Sink types.
const (
	SinkHTTP   = "http"
	SinkKafka  = "kafka"
	SinkSpool  = "spool"
	SinkStdout = "stdout"
)

// Config holds the complete agent configuration.
type Config struct {
	LogLevel   string
	LogConsole bool

	PipelineName string

	// Event batch thresholds.
	MinCount     int
	MinSizeBytes ByteSize
	MaxSizeBytes ByteSize
	BatchTimeout time.Duration
	Aligned      bool

	// Group-level batching is enabled when GroupTimeout > 0.
	GroupMaxSizeBytes ByteSize
	GroupTimeout      time.Duration

	TickInterval time.Duration

	Sink        string
	ServiceURL  string
	AuthKey     string
	HTTPTimeout time.Duration
	Compression string
	MaxAttempts int

	KafkaBrokers string
	KafkaTopic   string

	SpoolDir string

	HostMonitor         bool
	HostMonitorInterval time.Duration
	EnableCPU           bool
	EnableSystem        bool
	EnableNet           bool
	EnableMemory        bool

	SelfMonitor         bool
	SelfMonitorInterval time.Duration
	AlarmInterval       time.Duration

	MetricsAddr string
	Watch       bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		LogLevel:            "info",
		PipelineName:        "main",
		MinCount:            1024,
		MinSizeBytes:        512 * humanize.KiByte,
		MaxSizeBytes:        5 * humanize.MiByte,
		BatchTimeout:        3 * time.Second,
		TickInterval:        time.Second,
		Sink:                SinkHTTP,
		ServiceURL:          DefaultServiceURL,
		HTTPTimeout:         15 * time.Second,
		Compression:         "zstd",
		MaxAttempts:         3,
		HostMonitor:         true,
		HostMonitorInterval: 15 * time.Second,
		EnableCPU:           true,
		EnableSystem:        true,
		EnableNet:           true,
		EnableMemory:        true,
		SelfMonitor:         true,
		SelfMonitorInterval: 60 * time.Second,
		AlarmInterval:       30 * time.Second,
		Watch:               true,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
// Every error wraps domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.PipelineName == "" {
		c.PipelineName = "main"
	}
	if c.MinCount < 1 {
		return invalid("min-count must be at least 1")
	}
	if c.MinSizeBytes < 0 || c.MaxSizeBytes < 0 || c.GroupMaxSizeBytes < 0 {
		return invalid("byte sizes must not be negative")
	}
	if c.MaxSizeBytes > 0 && c.MinSizeBytes > c.MaxSizeBytes {
		return invalid("min-size (%s) exceeds max-size (%s)", c.MinSizeBytes, c.MaxSizeBytes)
	}
	if c.BatchTimeout <= 0 {
		return invalid("batch-timeout must be positive")
	}
	if c.GroupTimeout < 0 {
		return invalid("group-timeout must not be negative")
	}
	if c.GroupTimeout > 0 && c.GroupMaxSizeBytes == 0 {
		c.GroupMaxSizeBytes = c.MaxSizeBytes
		if c.GroupMaxSizeBytes == 0 {
			c.GroupMaxSizeBytes = c.MinSizeBytes
		}
		if c.GroupMaxSizeBytes == 0 {
			return invalid("group-timeout needs group-max-size when max-size and min-size are 0")
		}
	}
	if c.TickInterval <= 0 {
		return invalid("tick must be positive")
	}
	if c.MaxAttempts < 1 {
		return invalid("max-attempts must be at least 1")
	}

	switch c.Sink {
	case SinkHTTP:
		if c.ServiceURL == "" {
			c.ServiceURL = DefaultServiceURL
		}
		// Ensure no trailing slash
		c.ServiceURL = strings.TrimRight(c.ServiceURL, "/")
		switch c.Compression {
		case "", "none", "gzip", "zstd":
		default:
			return invalid("unknown compression %q", c.Compression)
		}
	case SinkKafka:
		if c.KafkaBrokers == "" || c.KafkaTopic == "" {
			return invalid("kafka sink needs kafka-brokers and kafka-topic")
		}
	case SinkSpool:
		if c.SpoolDir == "" {
			return invalid("spool sink needs spool-dir")
		}
	case SinkStdout:
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownSink, c.Sink)
	}
	return nil
}

// Masked returns a copy safe to log.
func (c Config) Masked() Config {
	if len(c.AuthKey) > 0 {
		c.AuthKey = "*****"
	}
	return c
}

// ByteSize is a byte count that accepts human readable values such as
// "512KiB" or "5MB". It implements pflag.Value.
type ByteSize int64

// ParseByteSize parses a human readable size.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return ByteSize(n), nil
}

func (b ByteSize) String() string { return humanize.IBytes(uint64(b)) }

// Int returns the size as int for the batch thresholds.
func (b ByteSize) Int() int { return int(b) }

func (b *ByteSize) Set(s string) error {
	v, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b *ByteSize) Type() string { return "bytes" }

func (b *ByteSize) UnmarshalText(text []byte) error { return b.Set(string(text)) }

func (b ByteSize) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBytes parses a human readable size. "0" is accepted so a file or the
// environment can switch the hard cap off.
func (s *configSetter) setBytes(flag, value string, dst *ByteSize) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	b, err := ParseByteSize(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = b
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
