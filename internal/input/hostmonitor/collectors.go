package hostmonitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"

	"github.com/bft-labs/telship/internal/domain"
)

// Collector names.
const (
	CPUCollectorName    = "cpu"
	SystemCollectorName = "system"
	NetCollectorName    = "net"
	MemCollectorName    = "mem"
)

// Collector samples one family of host counters.
type Collector interface {
	Name() string
	Collect(ctx context.Context, now time.Time) ([]domain.Event, error)
}

func metric(name string, v float64, now time.Time) domain.Event {
	return domain.Event{Category: domain.CategoryMetric, Name: name, Value: v, Timestamp: now}
}

type cpuCollector struct {
	percent func(ctx context.Context) ([]float64, error)
	counts  func(ctx context.Context) (int, error)
}

func newCPUCollector() *cpuCollector {
	return &cpuCollector{
		percent: func(ctx context.Context) ([]float64, error) { return cpu.PercentWithContext(ctx, 0, false) },
		counts:  func(ctx context.Context) (int, error) { return cpu.CountsWithContext(ctx, true) },
	}
}

func (c *cpuCollector) Name() string { return CPUCollectorName }

func (c *cpuCollector) Collect(ctx context.Context, now time.Time) ([]domain.Event, error) {
	pct, err := c.percent(ctx)
	if err != nil {
		return nil, fmt.Errorf("cpu percent: %w", err)
	}
	if len(pct) == 0 {
		return nil, fmt.Errorf("cpu percent: no sample")
	}
	n, err := c.counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("cpu counts: %w", err)
	}
	return []domain.Event{
		metric("cpu_util", pct[0], now),
		metric("cpu_cores", float64(n), now),
	}, nil
}

type systemCollector struct {
	avg func(ctx context.Context) (*load.AvgStat, error)
}

func newSystemCollector() *systemCollector {
	return &systemCollector{avg: load.AvgWithContext}
}

func (c *systemCollector) Name() string { return SystemCollectorName }

func (c *systemCollector) Collect(ctx context.Context, now time.Time) ([]domain.Event, error) {
	a, err := c.avg(ctx)
	if err != nil {
		return nil, fmt.Errorf("load average: %w", err)
	}
	return []domain.Event{
		metric("system_load1", a.Load1, now),
		metric("system_load5", a.Load5, now),
		metric("system_load15", a.Load15, now),
	}, nil
}

// netCollector reports per-second rates, so the first sample only primes it.
type netCollector struct {
	counters func(ctx context.Context) ([]net.IOCountersStat, error)
	prev     *net.IOCountersStat
	prevAt   time.Time
}

func newNetCollector() *netCollector {
	return &netCollector{
		counters: func(ctx context.Context) ([]net.IOCountersStat, error) { return net.IOCountersWithContext(ctx, false) },
	}
}

func (c *netCollector) Name() string { return NetCollectorName }

func (c *netCollector) Collect(ctx context.Context, now time.Time) ([]domain.Event, error) {
	stats, err := c.counters(ctx)
	if err != nil {
		return nil, fmt.Errorf("net counters: %w", err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("net counters: no sample")
	}
	cur := stats[0]
	prev, prevAt := c.prev, c.prevAt
	c.prev, c.prevAt = &cur, now
	if prev == nil {
		return nil, nil
	}

	secs := now.Sub(prevAt).Seconds()
	if secs <= 0 {
		return nil, nil
	}
	rate := func(cur, prev uint64) float64 {
		if cur < prev {
			return 0
		}
		return float64(cur-prev) / secs
	}
	return []domain.Event{
		metric("net_in_bytes_per_sec", rate(cur.BytesRecv, prev.BytesRecv), now),
		metric("net_out_bytes_per_sec", rate(cur.BytesSent, prev.BytesSent), now),
		metric("net_in_packets_per_sec", rate(cur.PacketsRecv, prev.PacketsRecv), now),
		metric("net_out_packets_per_sec", rate(cur.PacketsSent, prev.PacketsSent), now),
		metric("net_in_errors", float64(cur.Errin), now),
		metric("net_out_errors", float64(cur.Errout), now),
	}, nil
}

type memCollector struct {
	virtual func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

func newMemCollector() *memCollector {
	return &memCollector{virtual: mem.VirtualMemoryWithContext}
}

func (c *memCollector) Name() string { return MemCollectorName }

func (c *memCollector) Collect(ctx context.Context, now time.Time) ([]domain.Event, error) {
	v, err := c.virtual(ctx)
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}
	return []domain.Event{
		metric("mem_total_bytes", float64(v.Total), now),
		metric("mem_used_bytes", float64(v.Used), now),
		metric("mem_available_bytes", float64(v.Available), now),
		metric("mem_used_percent", v.UsedPercent, now),
	}, nil
}
