// Package metrics samples host resource usage (CPU, memory, disk I/O) on a
// fixed interval and logs it alongside the replication pipeline's own
// throughput counters, so an operator watching the log stream can tell a
// slow replication window from a starved host apart without a separate
// monitoring stack.
package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// HostSnapshot is one point-in-time reading of host resource usage.
type HostSnapshot struct {
	CPUPercent        float64 // system-wide CPU usage, 0-100
	ProcessCPUPercent float64 // this process's CPU usage, can exceed 100 on multi-core
	IOWaitPercent     float64
	MemoryUsedGB      float64
	MemoryTotalGB     float64
	MemoryPercent     float64
	DiskReadMBps      float64
	DiskWriteMBps     float64
	DiskBusyPercent   float64
	Timestamp         time.Time
}

// Collector samples HostSnapshot on a fixed interval and logs each one.
// Rate-based fields (disk throughput, iowait) need a previous sample to
// compute a delta against, so the first sample, which Start takes
// immediately rather than on a tick, always reports zero for those.
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	mu            sync.RWMutex
	last          *HostSnapshot
	lastDiskStats map[string]disk.IOCountersStat
	lastDiskAt    time.Time
	lastCPUTimes  cpu.TimesStat
	haveCPUTimes  bool
}

// NewCollector binds a collector to the current process, defaulting the
// interval to 30s when unset or unreasonably small.
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Collector{interval: interval, logger: logger, proc: proc}
}

// Start samples and logs on every tick until ctx is cancelled. It blocks,
// so callers run it in its own goroutine.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sample() // establish the disk/CPU baseline immediately

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("host metrics collection stopped")
			return
		case <-ticker.C:
			c.sample()
		}
	}
}

// Snapshot returns the most recently collected sample, or nil before the
// first sample.
func (c *Collector) Snapshot() *HostSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Collector) sample() {
	snap := &HostSnapshot{Timestamp: time.Now()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		snap.CPUPercent = pct[0]
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			snap.ProcessCPUPercent = pct
		}
	}
	snap.IOWaitPercent = c.ioWaitDelta()

	if vmem, err := mem.VirtualMemory(); err == nil {
		snap.MemoryPercent = vmem.UsedPercent
		snap.MemoryUsedGB = float64(vmem.Used) / (1024 * 1024 * 1024)
		snap.MemoryTotalGB = float64(vmem.Total) / (1024 * 1024 * 1024)
	}

	snap.DiskReadMBps, snap.DiskWriteMBps, snap.DiskBusyPercent = c.diskDelta()

	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()

	c.logger.Info("host metrics",
		zap.Float64("sys_cpu", snap.CPUPercent),
		zap.Float64("proc_cpu", snap.ProcessCPUPercent),
		zap.Float64("iowait", snap.IOWaitPercent),
		zap.Float64("mem_pct", snap.MemoryPercent),
		zap.String("mem_used", fmt.Sprintf("%.1f GB", snap.MemoryUsedGB)),
		zap.String("disk_r", fmt.Sprintf("%.1f MB/s", snap.DiskReadMBps)),
		zap.String("disk_w", fmt.Sprintf("%.1f MB/s", snap.DiskWriteMBps)),
		zap.Float64("disk_busy", snap.DiskBusyPercent),
	)
}

// ioWaitDelta derives the percentage of elapsed CPU time spent waiting on
// I/O between this sample and the last. The first call only seeds the
// baseline and reports zero.
func (c *Collector) ioWaitDelta() float64 {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return 0
	}
	current := times[0]

	if !c.haveCPUTimes {
		c.lastCPUTimes = current
		c.haveCPUTimes = true
		return 0
	}

	last := c.lastCPUTimes
	total := (current.User - last.User) +
		(current.System - last.System) +
		(current.Idle - last.Idle) +
		(current.Iowait - last.Iowait) +
		(current.Irq - last.Irq) +
		(current.Softirq - last.Softirq) +
		(current.Steal - last.Steal)
	iowait := current.Iowait - last.Iowait
	c.lastCPUTimes = current

	if total <= 0 {
		return 0
	}
	return (iowait / total) * 100
}

// diskDelta derives read/write throughput and busy percentage from the
// counter deltas since the last sample, across all disks combined. A
// counter that decreased (device reset, wraparound) contributes zero to
// its delta rather than going negative.
func (c *Collector) diskDelta() (readMBps, writeMBps, busyPct float64) {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0, 0, 0
	}
	now := time.Now()

	if c.lastDiskStats == nil {
		c.lastDiskStats = counters
		c.lastDiskAt = now
		return 0, 0, 0
	}

	elapsed := now.Sub(c.lastDiskAt).Seconds()
	if elapsed < 0.1 {
		return 0, 0, 0
	}

	var readDelta, writeDelta, ioTimeDelta uint64
	for name, cur := range counters {
		prev, ok := c.lastDiskStats[name]
		if !ok {
			continue
		}
		if cur.ReadBytes >= prev.ReadBytes {
			readDelta += cur.ReadBytes - prev.ReadBytes
		}
		if cur.WriteBytes >= prev.WriteBytes {
			writeDelta += cur.WriteBytes - prev.WriteBytes
		}
		if cur.IoTime >= prev.IoTime {
			ioTimeDelta += cur.IoTime - prev.IoTime
		}
	}

	c.lastDiskStats = counters
	c.lastDiskAt = now

	readMBps = float64(readDelta) / elapsed / (1024 * 1024)
	writeMBps = float64(writeDelta) / elapsed / (1024 * 1024)

	elapsedMs := elapsed * 1000
	if elapsedMs > 0 {
		busyPct = float64(ioTimeDelta) / elapsedMs * 100
		if busyPct > 100 {
			// Multiple disks busy concurrently can sum past 100; cap for
			// a single-number-per-sample reading.
			busyPct = 100
		}
	}
	return readMBps, writeMBps, busyPct
}
