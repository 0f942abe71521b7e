package hardware

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"
)

// ProcessStats is a resource sample of a running process
type ProcessStats struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	RSSBytes   uint64    `json:"rss_bytes"`
	Threads    int32     `json:"threads"`
	StartedAt  time.Time `json:"started_at"`
	SampledAt  time.Time `json:"sampled_at"`
}

// HostStats is a memory sample of the machine
type HostStats struct {
	MemoryTotal     uint64  `json:"memory_total"`
	MemoryAvailable uint64  `json:"memory_available"`
	MemoryUsed      float64 `json:"memory_used_percent"`
}

// SampleProcess reads CPU, memory and thread usage of pid
func SampleProcess(pid int) (ProcessStats, error) {
	if pid <= 0 {
		return ProcessStats{}, fmt.Errorf("invalid pid %d", pid)
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return ProcessStats{}, fmt.Errorf("failed to open process %d: %w", pid, err)
	}

	stats := ProcessStats{PID: int32(pid), SampledAt: time.Now()}

	if stats.CPUPercent, err = proc.CPUPercent(); err != nil {
		return ProcessStats{}, fmt.Errorf("failed to read cpu usage of %d: %w", pid, err)
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return ProcessStats{}, fmt.Errorf("failed to read memory usage of %d: %w", pid, err)
	}
	stats.RSSBytes = memInfo.RSS

	// thread count and start time are informative only
	if threads, err := proc.NumThreads(); err == nil {
		stats.Threads = threads
	}
	if created, err := proc.CreateTime(); err == nil {
		stats.StartedAt = time.UnixMilli(created)
	}
	return stats, nil
}

// SampleHost reads the machine's memory usage
func SampleHost() (HostStats, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return HostStats{}, fmt.Errorf("failed to read host memory: %w", err)
	}
	return HostStats{
		MemoryTotal:     vm.Total,
		MemoryAvailable: vm.Available,
		MemoryUsed:      vm.UsedPercent,
	}, nil
}
