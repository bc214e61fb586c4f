// Package metrics computes throughput and samples host resource usage.
package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// PerformanceMetrics is an immutable snapshot taken when a table finishes
type PerformanceMetrics struct {
	RecordsPerSecond   float64 `json:"records_per_second"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
	CPUUsagePercent    float64 `json:"cpu_usage_percent"`
	DurationSeconds    float64 `json:"duration_seconds"`
	TotalRecords       int64   `json:"total_records"`
}

// HostSampler reads host resource usage
type HostSampler interface {
	MemoryPercent(ctx context.Context) (float64, error)
	CPUPercent(ctx context.Context) (float64, error)
}

// Collector builds PerformanceMetrics snapshots
type Collector struct {
	sampler HostSampler
	logger  zerolog.Logger
}

// NewCollector returns a collector sampling the local host
func NewCollector(logger zerolog.Logger) *Collector {
	return NewCollectorWithSampler(SystemSampler{}, logger)
}

// NewCollectorWithSampler returns a collector using sampler
func NewCollectorWithSampler(sampler HostSampler, logger zerolog.Logger) *Collector {
	return &Collector{
		sampler: sampler,
		logger:  logger.With().Str("component", "metrics").Logger(),
	}
}

// Snapshot computes throughput for count records over duration and samples
// the host. Sampling failures are logged and leave the field at zero.
func (c *Collector) Snapshot(ctx context.Context, duration time.Duration, count int64) PerformanceMetrics {
	seconds := duration.Seconds()
	m := PerformanceMetrics{
		DurationSeconds: seconds,
		TotalRecords:    count,
	}
	if seconds > 0 {
		m.RecordsPerSecond = float64(count) / seconds
	}

	if v, err := c.sampler.MemoryPercent(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to sample memory usage")
	} else {
		m.MemoryUsagePercent = v
	}
	if v, err := c.sampler.CPUPercent(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to sample CPU usage")
	} else {
		m.CPUUsagePercent = v
	}
	return m
}

// SystemSampler reads usage through gopsutil
type SystemSampler struct{}

func (SystemSampler) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// CPUPercent reports usage since the previous call; the first call compares
// against boot time
func (SystemSampler) CPUPercent(ctx context.Context) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(pct) == 0 {
		return 0, nil
	}
	return pct[0], nil
}
