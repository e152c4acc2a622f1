package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// SystemCollector samples CPU, memory, per-mount disk usage and the process count
type SystemCollector struct {
	logger    *zap.Logger
	cpuSample time.Duration
}

// NewSystemCollector creates a system collector. CPU usage is measured over one second.
func NewSystemCollector(logger *zap.Logger) *SystemCollector {
	return &SystemCollector{
		logger:    logger,
		cpuSample: time.Second,
	}
}

// Name implements SubCollector
func (s *SystemCollector) Name() string { return "system" }

// Collect implements SubCollector
func (s *SystemCollector) Collect(ctx context.Context) (Sample, error) {
	sample := make(Sample)

	percents, err := cpu.PercentWithContext(ctx, s.cpuSample, false)
	if err != nil {
		return nil, fmt.Errorf("cpu percent: %w", err)
	}
	if len(percents) > 0 {
		sample[KeyCPUUsage] = percents[0]
	}

	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}
	sample[KeyMemoryUsage] = vmem.UsedPercent

	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		s.logger.Debug("Failed to list partitions", zap.Error(err))
	}
	for _, p := range partitions {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || usage.Total == 0 {
			// unreadable mounts are skipped individually
			continue
		}
		sample[DiskKey(p.Mountpoint)] = float64(usage.Used) / float64(usage.Total) * 100
	}

	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		s.logger.Debug("Failed to list processes", zap.Error(err))
	} else {
		sample[KeyActiveProcesses] = float64(len(pids))
	}

	return sample, nil
}

// NetworkCollector counts open inet connections
type NetworkCollector struct{}

// NewNetworkCollector creates a network collector
func NewNetworkCollector() *NetworkCollector {
	return &NetworkCollector{}
}

// Name implements SubCollector
func (n *NetworkCollector) Name() string { return "network" }

// Collect implements SubCollector
func (n *NetworkCollector) Collect(ctx context.Context) (Sample, error) {
	conns, err := net.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, fmt.Errorf("connections: %w", err)
	}
	return Sample{KeyNetworkConnections: float64(len(conns))}, nil
}
